package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/st243452-ship-it/smart-analyst-saas/internal/session"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/ai"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/queue"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/storage"
)

// FileUploader pushes raw document bytes to the model provider for
// vision-mode ingestion.
type FileUploader interface {
	UploadFile(ctx context.Context, displayName string, r io.Reader, size int64, mimeType string) (ai.StoredFile, error)
}

// Worker turns queued uploads into answer-engine handles. Text mode extracts
// the document locally; vision mode hands the raw bytes to the provider and
// keeps only the returned file reference.
type Worker struct {
	sessions *session.Manager
	spool    *storage.Spool
	archive  storage.ObjectStore
	parser   *Parser
	uploader FileUploader
	logger   *slog.Logger
}

type WorkerConfig struct {
	Sessions *session.Manager
	Spool    *storage.Spool
	Archive  storage.ObjectStore
	Parser   *Parser
	Uploader FileUploader
	Logger   *slog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		sessions: cfg.Sessions,
		spool:    cfg.Spool,
		archive:  cfg.Archive,
		parser:   cfg.Parser,
		uploader: cfg.Uploader,
		logger:   logger,
	}
}

// Handle adapts Process to the job queue callback signature.
func (w *Worker) Handle(ctx context.Context, job queue.JobStatus) error {
	return w.Process(ctx, job.SessionID, job.DocumentID)
}

// Process ingests the session's current document. Jobs for sessions or
// documents that no longer exist are dropped silently; the user has already
// moved on.
func (w *Worker) Process(ctx context.Context, sessionID, documentID string) error {
	st, err := w.sessions.Get(sessionID)
	if err != nil {
		w.logger.Info("dropping ingest job for dead session", "sessionId", sessionID, "documentId", documentID)
		return nil
	}
	if st.Document == nil || st.Document.ID != documentID {
		w.logger.Info("dropping ingest job for replaced document", "sessionId", sessionID, "documentId", documentID)
		return nil
	}
	doc := *st.Document

	if err := w.sessions.MarkDocumentProcessing(sessionID, documentID); err != nil {
		return nil
	}

	path := w.spool.Path(documentID, doc.OriginalFilename)

	var handle domain.DocumentHandle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := w.buildHandle(gctx, doc, path)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	g.Go(func() error {
		// Archival is best-effort; losing the archive copy must not fail
		// the upload.
		if w.archive == nil {
			return nil
		}
		if err := w.archiveDocument(gctx, doc, path); err != nil {
			w.logger.Warn("archive document failed", "documentId", documentID, "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		reason := ingestFailureReason(err)
		if ferr := w.sessions.FailDocument(sessionID, documentID, reason); ferr != nil {
			return ferr
		}
		w.logger.Warn("ingest failed", "sessionId", sessionID, "documentId", documentID, "error", err)
		return err
	}

	if err := w.sessions.CompleteDocument(sessionID, documentID, handle); err != nil {
		return nil
	}
	if err := w.spool.Delete(documentID); err != nil {
		w.logger.Warn("spool cleanup failed", "documentId", documentID, "error", err)
	}
	w.logger.Info("document ready", "sessionId", sessionID, "documentId", documentID, "mode", doc.Mode)
	return nil
}

func (w *Worker) buildHandle(ctx context.Context, doc domain.Document, path string) (domain.DocumentHandle, error) {
	if doc.Mode == domain.IngestVision {
		return w.uploadForVision(ctx, doc, path)
	}
	text, err := w.parser.Extract(doc.OriginalFilename, path)
	if err != nil {
		return domain.DocumentHandle{}, err
	}
	return domain.DocumentHandle{Text: text}, nil
}

func (w *Worker) uploadForVision(ctx context.Context, doc domain.Document, path string) (domain.DocumentHandle, error) {
	if w.uploader == nil {
		return domain.DocumentHandle{}, fmt.Errorf("vision mode requires a file uploader")
	}
	f, err := w.spool.Open(path)
	if err != nil {
		return domain.DocumentHandle{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return domain.DocumentHandle{}, fmt.Errorf("stat spooled file: %w", err)
	}
	mimeType := MIMETypeFor(doc.OriginalFilename)
	stored, err := w.uploader.UploadFile(ctx, doc.OriginalFilename, f, info.Size(), mimeType)
	if err != nil {
		return domain.DocumentHandle{}, fmt.Errorf("provider upload: %w", err)
	}
	return domain.DocumentHandle{FileURI: stored.URI, MIMEType: stored.MIMEType}, nil
}

func (w *Worker) archiveDocument(ctx context.Context, doc domain.Document, path string) error {
	f, err := w.spool.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = w.archive.PutDocument(ctx, doc.ID, doc.OriginalFilename, f, info.Size(), MIMETypeFor(doc.OriginalFilename))
	return err
}

// MIMETypeFor maps a filename to the content type sent to the provider and
// the archive.
func MIMETypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".epub":
		return "application/epub+zip"
	case ".txt", ".md":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func ingestFailureReason(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "no text extracted") {
		return "The document contains no extractable text."
	}
	return "The document could not be processed."
}
