package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// FileGenerator is an optional capability for providers that can answer
// against a provider-side uploaded file. Only Gemini implements it.
type FileGenerator interface {
	GenerateWithFile(ctx context.Context, systemPrompt, userPrompt, fileURI, mimeType string) (string, error)
}
