package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
)

// ResultKind classifies an answer engine outcome.
type ResultKind string

const (
	ResultAnswered ResultKind = "answered"
	ResultFailed   ResultKind = "failed"
	ResultBusy     ResultKind = "busy"
)

// BusyText is returned after every retry attempt hit the provider rate limit.
const BusyText = "The system is extremely busy right now. Please wait a couple of minutes before asking again."

// DefaultBackoff is the escalating wait schedule between rate-limited attempts.
var DefaultBackoff = []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}

// AskResult is the tagged outcome of one question. Callers branch on Kind;
// Text is always safe to show to the user.
type AskResult struct {
	Kind ResultKind `json:"kind"`
	Text string     `json:"text"`
	Err  error      `json:"-"`
}

// Answered reports whether the result may be persisted and transcribed.
func (r AskResult) Answered() bool {
	return r.Kind == ResultAnswered
}

// WaitObserver is notified before each backoff wait so the caller can surface
// retry progress to the user. attempt is 1-based.
type WaitObserver func(attempt int, wait time.Duration)

// AnswerEngineConfig wires the generator and retry policy.
type AnswerEngineConfig struct {
	Generator    TextGenerator
	SystemPrompt string
	Backoff      []time.Duration
	Observer     WaitObserver
}

// AnswerEngine sends document questions to the LLM, retrying rate-limited
// calls with escalating backoff. Every exit path is a returned AskResult;
// Ask never panics and never returns an error.
type AnswerEngine struct {
	gen          TextGenerator
	systemPrompt string
	backoff      []time.Duration
	observer     WaitObserver
}

// NewAnswerEngine constructs the engine. A nil backoff uses DefaultBackoff.
func NewAnswerEngine(cfg AnswerEngineConfig) (*AnswerEngine, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("answer engine generator required")
	}
	backoff := cfg.Backoff
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	return &AnswerEngine{
		gen:          cfg.Generator,
		systemPrompt: cfg.SystemPrompt,
		backoff:      backoff,
		observer:     cfg.Observer,
	}, nil
}

// Attempts returns how many provider calls one question may consume.
func (e *AnswerEngine) Attempts() int {
	return len(e.backoff)
}

// Ask answers a question against the uploaded document. One attempt is made
// per backoff slot; rate-limited attempts wait the scheduled interval before
// the next try, any other failure is terminal immediately.
func (e *AnswerEngine) Ask(ctx context.Context, handle domain.DocumentHandle, question string) AskResult {
	if handle.Empty() {
		return AskResult{
			Kind: ResultFailed,
			Text: "No readable document is loaded. Please upload a document first.",
			Err:  fmt.Errorf("empty document handle"),
		}
	}

	for attempt := 1; attempt <= len(e.backoff); attempt++ {
		text, err := e.generate(ctx, handle, question)
		if err == nil {
			return AskResult{Kind: ResultAnswered, Text: text}
		}
		if !IsRateLimited(err) {
			return AskResult{
				Kind: ResultFailed,
				Text: fmt.Sprintf("Technical error: %v", err),
				Err:  err,
			}
		}
		if attempt == len(e.backoff) {
			break
		}
		wait := e.backoff[attempt-1]
		if e.observer != nil {
			e.observer(attempt, wait)
		}
		select {
		case <-ctx.Done():
			return AskResult{
				Kind: ResultFailed,
				Text: fmt.Sprintf("Technical error: %v", ctx.Err()),
				Err:  ctx.Err(),
			}
		case <-time.After(wait):
		}
	}
	return AskResult{Kind: ResultBusy, Text: BusyText}
}

func (e *AnswerEngine) generate(ctx context.Context, handle domain.DocumentHandle, question string) (string, error) {
	if handle.IsVision() {
		fileGen, ok := e.gen.(FileGenerator)
		if !ok {
			return "", fmt.Errorf("configured provider cannot answer against uploaded file references")
		}
		prompt := fmt.Sprintf("Question: %s\nAnswer:", question)
		return fileGen.GenerateWithFile(ctx, e.systemPrompt, prompt, handle.FileURI, handle.MIMEType)
	}
	prompt := fmt.Sprintf("Document: %s\nQuestion: %s\nAnswer:", handle.Text, question)
	return e.gen.GenerateText(ctx, e.systemPrompt, prompt)
}
