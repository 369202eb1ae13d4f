package ingest

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/st243452-ship-it/smart-analyst-saas/internal/session"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/ai"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/storage"
)

type fakeUploader struct {
	gotName string
	gotMIME string
	err     error
}

func (f *fakeUploader) UploadFile(_ context.Context, displayName string, r io.Reader, _ int64, mimeType string) (ai.StoredFile, error) {
	if f.err != nil {
		return ai.StoredFile{}, f.err
	}
	f.gotName = displayName
	f.gotMIME = mimeType
	_, _ = io.ReadAll(r)
	return ai.StoredFile{Name: "files/abc", URI: "https://provider/files/abc", MIMEType: mimeType}, nil
}

func newWorkerFixture(t *testing.T, uploader FileUploader) (*Worker, *session.Manager, *storage.Spool, string) {
	t.Helper()
	tokens, err := session.NewTokenStore("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenStore: %v", err)
	}
	sessions := session.NewManager(tokens)
	spool, err := storage.NewSpool(t.TempDir())
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	w := NewWorker(WorkerConfig{
		Sessions: sessions,
		Spool:    spool,
		Parser:   NewParser(0),
		Uploader: uploader,
	})
	_, st, err := sessions.Login("a@example.com")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return w, sessions, spool, st.ID
}

func beginSpooledDocument(t *testing.T, sessions *session.Manager, spool *storage.Spool, sessionID, docID, filename, content string, mode domain.IngestMode) {
	t.Helper()
	if _, err := spool.Save(docID, filename, strings.NewReader(content)); err != nil {
		t.Fatalf("spool save: %v", err)
	}
	doc := domain.Document{ID: docID, OriginalFilename: filename, Mode: mode}
	if err := sessions.BeginDocument(sessionID, doc); err != nil {
		t.Fatalf("BeginDocument: %v", err)
	}
}

func TestProcessTextModeProducesReadyHandle(t *testing.T) {
	w, sessions, spool, sessionID := newWorkerFixture(t, nil)
	beginSpooledDocument(t, sessions, spool, sessionID, "doc-1", "notes.txt", "the quarterly report", domain.IngestText)

	if err := w.Process(context.Background(), sessionID, "doc-1"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	handle, doc, err := sessions.ReadyHandle(sessionID)
	if err != nil {
		t.Fatalf("ReadyHandle: %v", err)
	}
	if doc.Status != domain.StatusReady {
		t.Fatalf("status = %s", doc.Status)
	}
	if handle.Text != "the quarterly report" {
		t.Fatalf("handle text = %q", handle.Text)
	}
}

func TestProcessEmptyDocumentFails(t *testing.T) {
	w, sessions, spool, sessionID := newWorkerFixture(t, nil)
	beginSpooledDocument(t, sessions, spool, sessionID, "doc-1", "empty.txt", "", domain.IngestText)

	if err := w.Process(context.Background(), sessionID, "doc-1"); err == nil {
		t.Fatal("expected ingest error")
	}
	st, err := sessions.Get(sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Document.Status != domain.StatusFailed {
		t.Fatalf("status = %s", st.Document.Status)
	}
	if st.Document.ErrorMessage == "" {
		t.Fatal("expected a failure reason")
	}
}

func TestProcessVisionModeUploadsToProvider(t *testing.T) {
	uploader := &fakeUploader{}
	w, sessions, spool, sessionID := newWorkerFixture(t, uploader)
	beginSpooledDocument(t, sessions, spool, sessionID, "doc-1", "scan.pdf", "%PDF-1.4 fake", domain.IngestVision)

	if err := w.Process(context.Background(), sessionID, "doc-1"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	handle, _, err := sessions.ReadyHandle(sessionID)
	if err != nil {
		t.Fatalf("ReadyHandle: %v", err)
	}
	if handle.FileURI != "https://provider/files/abc" || handle.MIMEType != "application/pdf" {
		t.Fatalf("handle = %+v", handle)
	}
	if uploader.gotName != "scan.pdf" || uploader.gotMIME != "application/pdf" {
		t.Fatalf("upload call = %q %q", uploader.gotName, uploader.gotMIME)
	}
}

func TestProcessDropsJobForDeadSession(t *testing.T) {
	w, _, _, _ := newWorkerFixture(t, nil)
	if err := w.Process(context.Background(), "no-such-session", "doc-1"); err != nil {
		t.Fatalf("expected dead-session job to be dropped, got %v", err)
	}
}

func TestProcessDropsJobForReplacedDocument(t *testing.T) {
	w, sessions, spool, sessionID := newWorkerFixture(t, nil)
	beginSpooledDocument(t, sessions, spool, sessionID, "doc-1", "a.txt", "first", domain.IngestText)
	beginSpooledDocument(t, sessions, spool, sessionID, "doc-2", "b.txt", "second", domain.IngestText)

	if err := w.Process(context.Background(), sessionID, "doc-1"); err != nil {
		t.Fatalf("expected stale job to be dropped, got %v", err)
	}
	st, err := sessions.Get(sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Document.ID != "doc-2" || st.Document.Status != domain.StatusQueued {
		t.Fatalf("document = %+v", st.Document)
	}
}

func TestProcessCleansSpoolOnSuccess(t *testing.T) {
	w, sessions, spool, sessionID := newWorkerFixture(t, nil)
	beginSpooledDocument(t, sessions, spool, sessionID, "doc-1", "notes.txt", "text", domain.IngestText)

	if err := w.Process(context.Background(), sessionID, "doc-1"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := spool.Open(spool.Path("doc-1", "notes.txt")); err == nil {
		t.Fatal("spooled file should be gone after ingest")
	}
}
