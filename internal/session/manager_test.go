package session

import (
	"errors"
	"testing"
	"time"

	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	tokens, err := NewTokenStore("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenStore: %v", err)
	}
	return NewManager(tokens)
}

func TestLoginRejectsEmptyEmail(t *testing.T) {
	m := newTestManager(t)
	for _, email := range []string{"", "   ", "\t\n"} {
		if _, _, err := m.Login(email); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("Login(%q) err = %v, want ErrInvalidEmail", email, err)
		}
	}
}

func TestLoginAcceptsAnyNonEmptyIdentifier(t *testing.T) {
	m := newTestManager(t)
	for _, email := range []string{"bob", "a@", "not-an-email"} {
		_, st, err := m.Login(email)
		if err != nil {
			t.Fatalf("Login(%q): %v", email, err)
		}
		if st.Email != email {
			t.Fatalf("email = %q, want %q", st.Email, email)
		}
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	m := newTestManager(t)
	_, st, err := m.Login("  Alice@Example.COM ")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if st.Email != "alice@example.com" {
		t.Fatalf("email = %q", st.Email)
	}
}

func TestResolveRoundTrip(t *testing.T) {
	m := newTestManager(t)
	token, st, err := m.Login("a@example.com")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	got, err := m.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != st.ID || got.Email != "a@example.com" {
		t.Fatalf("resolved session = %+v", got)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	m := newTestManager(t)
	token, st, err := m.Login("a@example.com")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	m.Logout(st.ID)
	if _, err := m.Resolve(token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Resolve after logout err = %v, want ErrSessionNotFound", err)
	}
	// idempotent
	m.Logout(st.ID)
}

func TestDocumentLifecycle(t *testing.T) {
	m := newTestManager(t)
	_, st, err := m.Login("a@example.com")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, _, err := m.ReadyHandle(st.ID); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("ReadyHandle with no document err = %v, want ErrNoDocument", err)
	}

	doc := domain.Document{ID: "doc-1", OriginalFilename: "report.pdf", Mode: domain.IngestText}
	if err := m.BeginDocument(st.ID, doc); err != nil {
		t.Fatalf("BeginDocument: %v", err)
	}
	if _, _, err := m.ReadyHandle(st.ID); !errors.Is(err, ErrDocumentNotReady) {
		t.Fatalf("ReadyHandle while queued err = %v, want ErrDocumentNotReady", err)
	}

	if err := m.MarkDocumentProcessing(st.ID, "doc-1"); err != nil {
		t.Fatalf("MarkDocumentProcessing: %v", err)
	}
	if _, _, err := m.ReadyHandle(st.ID); !errors.Is(err, ErrDocumentNotReady) {
		t.Fatalf("ReadyHandle while processing err = %v, want ErrDocumentNotReady", err)
	}

	handle := domain.DocumentHandle{Text: "extracted text"}
	if err := m.CompleteDocument(st.ID, "doc-1", handle); err != nil {
		t.Fatalf("CompleteDocument: %v", err)
	}
	got, doc2, err := m.ReadyHandle(st.ID)
	if err != nil {
		t.Fatalf("ReadyHandle: %v", err)
	}
	if got.Text != "extracted text" || doc2.Status != domain.StatusReady {
		t.Fatalf("handle=%+v doc=%+v", got, doc2)
	}
}

func TestFailDocumentBlocksQuestions(t *testing.T) {
	m := newTestManager(t)
	_, st, err := m.Login("a@example.com")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.BeginDocument(st.ID, domain.Document{ID: "doc-1"}); err != nil {
		t.Fatalf("BeginDocument: %v", err)
	}
	if err := m.FailDocument(st.ID, "doc-1", "no extractable text"); err != nil {
		t.Fatalf("FailDocument: %v", err)
	}
	if _, _, err := m.ReadyHandle(st.ID); !errors.Is(err, ErrDocumentNotReady) {
		t.Fatalf("ReadyHandle after failure err = %v, want ErrDocumentNotReady", err)
	}
	got, err := m.Get(st.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Document.Status != domain.StatusFailed || got.Document.ErrorMessage != "no extractable text" {
		t.Fatalf("document = %+v", got.Document)
	}
}

func TestStaleWorkerUpdateIgnoredAfterReplacement(t *testing.T) {
	m := newTestManager(t)
	_, st, err := m.Login("a@example.com")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.BeginDocument(st.ID, domain.Document{ID: "doc-1"}); err != nil {
		t.Fatalf("BeginDocument: %v", err)
	}
	if err := m.BeginDocument(st.ID, domain.Document{ID: "doc-2"}); err != nil {
		t.Fatalf("BeginDocument: %v", err)
	}
	if err := m.CompleteDocument(st.ID, "doc-1", domain.DocumentHandle{Text: "stale"}); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("stale complete err = %v, want ErrNoDocument", err)
	}
	got, err := m.Get(st.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Document.ID != "doc-2" || got.Document.Status != domain.StatusQueued {
		t.Fatalf("document = %+v", got.Document)
	}
}

func TestReplacingDocumentClearsTranscript(t *testing.T) {
	m := newTestManager(t)
	_, st, err := m.Login("a@example.com")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.BeginDocument(st.ID, domain.Document{ID: "doc-1"}); err != nil {
		t.Fatalf("BeginDocument: %v", err)
	}
	if err := m.CompleteDocument(st.ID, "doc-1", domain.DocumentHandle{Text: "t"}); err != nil {
		t.Fatalf("CompleteDocument: %v", err)
	}
	if err := m.AppendExchange(st.ID, "q", "a"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}
	if err := m.BeginDocument(st.ID, domain.Document{ID: "doc-2"}); err != nil {
		t.Fatalf("BeginDocument: %v", err)
	}
	transcript, err := m.Transcript(st.ID)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(transcript) != 0 {
		t.Fatalf("transcript not cleared: %+v", transcript)
	}
}

func TestTranscriptOrderAndRoles(t *testing.T) {
	m := newTestManager(t)
	_, st, err := m.Login("a@example.com")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := m.AppendExchange(st.ID, "q1", "a1"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}
	if err := m.AppendExchange(st.ID, "q2", "a2"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}
	transcript, err := m.Transcript(st.ID)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	want := []struct{ role, content string }{
		{domain.RoleUser, "q1"}, {domain.RoleAssistant, "a1"},
		{domain.RoleUser, "q2"}, {domain.RoleAssistant, "a2"},
	}
	if len(transcript) != len(want) {
		t.Fatalf("transcript length = %d", len(transcript))
	}
	for i, w := range want {
		if transcript[i].Role != w.role || transcript[i].Content != w.content {
			t.Fatalf("transcript[%d] = %+v, want %+v", i, transcript[i], w)
		}
	}
}

func TestPruneIdleDropsOldSessions(t *testing.T) {
	m := newTestManager(t)
	_, st, err := m.Login("a@example.com")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	m.mu.Lock()
	m.sessions[st.ID].LastSeen = time.Now().UTC().Add(-2 * time.Hour)
	m.mu.Unlock()
	m.pruneIdle(time.Hour)
	if _, err := m.Get(st.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get after prune err = %v, want ErrSessionNotFound", err)
	}
}
