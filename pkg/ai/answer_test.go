package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
)

type scriptedGenerator struct {
	calls   int
	results []func() (string, error)
}

func (g *scriptedGenerator) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	g.calls++
	if g.calls > len(g.results) {
		return "", errors.New("unexpected extra call")
	}
	return g.results[g.calls-1]()
}

func rateLimited() (string, error) {
	return "", &APIError{Provider: "gemini", StatusCode: 429, Message: "quota exceeded"}
}

func testBackoff() []time.Duration {
	return []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
}

func TestAskReturnsBusyAfterPersistentRateLimit(t *testing.T) {
	gen := &scriptedGenerator{results: []func() (string, error){rateLimited, rateLimited, rateLimited}}
	engine, err := NewAnswerEngine(AnswerEngineConfig{Generator: gen, Backoff: testBackoff()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	res := engine.Ask(context.Background(), domain.DocumentHandle{Text: "doc"}, "q")
	if res.Kind != ResultBusy {
		t.Fatalf("Kind = %q, want %q", res.Kind, ResultBusy)
	}
	if res.Text != BusyText {
		t.Fatalf("Text = %q, want fixed busy message", res.Text)
	}
	if gen.calls != 3 {
		t.Fatalf("provider calls = %d, want 3", gen.calls)
	}
}

func TestAskDoesNotRetryNonRateLimitFailures(t *testing.T) {
	gen := &scriptedGenerator{results: []func() (string, error){
		func() (string, error) { return "", errors.New("invalid request") },
	}}
	var waits int
	engine, err := NewAnswerEngine(AnswerEngineConfig{
		Generator: gen,
		Backoff:   testBackoff(),
		Observer:  func(int, time.Duration) { waits++ },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	res := engine.Ask(context.Background(), domain.DocumentHandle{Text: "doc"}, "q")
	if res.Kind != ResultFailed {
		t.Fatalf("Kind = %q, want %q", res.Kind, ResultFailed)
	}
	if !strings.Contains(res.Text, "invalid request") {
		t.Fatalf("Text = %q, want embedded cause", res.Text)
	}
	if gen.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", gen.calls)
	}
	if waits != 0 {
		t.Fatalf("backoff waits = %d, want 0", waits)
	}
}

func TestAskRecoversAfterTwoRateLimitedAttempts(t *testing.T) {
	gen := &scriptedGenerator{results: []func() (string, error){
		rateLimited,
		rateLimited,
		func() (string, error) { return "the answer", nil },
	}}
	var waits []time.Duration
	engine, err := NewAnswerEngine(AnswerEngineConfig{
		Generator: gen,
		Backoff:   testBackoff(),
		Observer:  func(_ int, wait time.Duration) { waits = append(waits, wait) },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	res := engine.Ask(context.Background(), domain.DocumentHandle{Text: "doc"}, "q")
	if res.Kind != ResultAnswered || res.Text != "the answer" {
		t.Fatalf("result = %+v, want answered text", res)
	}
	if len(waits) != 2 {
		t.Fatalf("backoff waits = %d, want exactly 2", len(waits))
	}
}

func TestAskPromptIncludesDocumentAndQuestion(t *testing.T) {
	var prompt string
	gen := &scriptedGenerator{results: []func() (string, error){
		func() (string, error) { return "ok", nil },
	}}
	engine, err := NewAnswerEngine(AnswerEngineConfig{Generator: gen, Backoff: testBackoff()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	captured := &promptCapture{inner: gen, prompt: &prompt}
	engine.gen = captured

	engine.Ask(context.Background(), domain.DocumentHandle{Text: "report body"}, "what is revenue?")
	if !strings.Contains(prompt, "Document: report body") || !strings.Contains(prompt, "Question: what is revenue?") {
		t.Fatalf("prompt = %q, missing document or question section", prompt)
	}
}

func TestAskRejectsEmptyHandleWithoutProviderCall(t *testing.T) {
	gen := &scriptedGenerator{}
	engine, err := NewAnswerEngine(AnswerEngineConfig{Generator: gen, Backoff: testBackoff()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	res := engine.Ask(context.Background(), domain.DocumentHandle{}, "q")
	if res.Kind != ResultFailed {
		t.Fatalf("Kind = %q, want %q", res.Kind, ResultFailed)
	}
	if gen.calls != 0 {
		t.Fatalf("provider calls = %d, want 0", gen.calls)
	}
}

type promptCapture struct {
	inner  TextGenerator
	prompt *string
}

func (p *promptCapture) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	*p.prompt = userPrompt
	return p.inner.GenerateText(ctx, systemPrompt, userPrompt)
}

func TestIsRateLimited(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed 429", &APIError{Provider: "gemini", StatusCode: 429}, true},
		{"typed 500", &APIError{Provider: "gemini", StatusCode: 500}, false},
		{"wrapped text marker", errors.New("call failed: http 429 too many requests"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsRateLimited(tc.err); got != tc.want {
			t.Fatalf("%s: IsRateLimited() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
