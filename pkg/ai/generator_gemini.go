package ai

import "context"

// GeminiGenerator wraps GeminiClient with a fixed model for text generation.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

// NewGeminiGenerator builds a Gemini-based TextGenerator.
func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

// GenerateText implements TextGenerator using Gemini.
func (g *GeminiGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.client.GenerateText(ctx, g.model, systemPrompt, userPrompt)
}

// GenerateWithFile implements FileGenerator using Gemini file references.
func (g *GeminiGenerator) GenerateWithFile(ctx context.Context, systemPrompt, userPrompt, fileURI, mimeType string) (string, error) {
	return g.client.GenerateWithFile(ctx, g.model, systemPrompt, userPrompt, fileURI, mimeType)
}
