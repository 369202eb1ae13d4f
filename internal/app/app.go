package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/st243452-ship-it/smart-analyst-saas/internal/ingest"
	"github.com/st243452-ship-it/smart-analyst-saas/internal/session"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/ai"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/storage"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store             store.Store
	Sessions          *session.Manager
	Engine            *ai.AnswerEngine
	Dispatcher        ingest.Dispatcher
	Spool             *storage.Spool
	FreeLimit         int
	IngestMode        domain.IngestMode
	AllowedExtensions []string
	Logger            *slog.Logger
}

// App wires sessions, document ingestion, the answer engine and the usage
// store into the operations the HTTP layer exposes.
type App struct {
	store       store.Store
	sessions    *session.Manager
	engine      *ai.AnswerEngine
	dispatcher  ingest.Dispatcher
	spool       *storage.Spool
	freeLimit   int
	ingestMode  domain.IngestMode
	allowedExts map[string]struct{}
	logger      *slog.Logger
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("usage store required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("answer engine required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("ingest dispatcher required")
	}
	if cfg.Spool == nil {
		return nil, fmt.Errorf("upload spool required")
	}
	freeLimit := cfg.FreeLimit
	if freeLimit <= 0 {
		freeLimit = 5
	}
	mode := cfg.IngestMode
	if mode == "" {
		mode = domain.IngestText
	}
	allowed := make(map[string]struct{})
	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = []string{".pdf", ".epub", ".txt", ".md"}
	}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		store:       cfg.Store,
		sessions:    cfg.Sessions,
		engine:      cfg.Engine,
		dispatcher:  cfg.Dispatcher,
		spool:       cfg.Spool,
		freeLimit:   freeLimit,
		ingestMode:  mode,
		allowedExts: allowed,
		logger:      logger,
	}, nil
}

// FreeLimit reports the per-email question allowance.
func (a *App) FreeLimit() int {
	return a.freeLimit
}

// Login starts a session for the email. No verification: typing an address
// is enough, but usage still accrues against it.
func (a *App) Login(email string) (string, session.State, error) {
	token, st, err := a.sessions.Login(email)
	if err != nil {
		return "", session.State{}, err
	}
	a.logger.Info("session started", "email", st.Email, "sessionId", st.ID)
	return token, st, nil
}

// Logout ends the session; the transcript dies with it.
func (a *App) Logout(sessionID string) {
	a.sessions.Logout(sessionID)
}

// UploadDocument spools the upload, replaces the session's document in the
// queued state and hands it to the ingestion pipeline.
func (a *App) UploadDocument(ctx context.Context, sessionID, filename string, r io.Reader, size int64) (domain.Document, error) {
	filename = strings.TrimSpace(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := a.allowedExts[ext]; !ok {
		return domain.Document{}, ErrUnsupportedFileType
	}
	if size == 0 {
		return domain.Document{}, ErrEmptyUpload
	}

	doc := domain.Document{
		ID:               uuid.NewString(),
		OriginalFilename: filename,
		Mode:             a.ingestMode,
		SizeBytes:        size,
	}
	if _, err := a.spool.Save(doc.ID, filename, r); err != nil {
		return domain.Document{}, fmt.Errorf("spool upload: %w", err)
	}
	if err := a.sessions.BeginDocument(sessionID, doc); err != nil {
		_ = a.spool.Delete(doc.ID)
		return domain.Document{}, err
	}
	if err := a.dispatcher.Dispatch(ctx, sessionID, doc.ID); err != nil {
		_ = a.sessions.FailDocument(sessionID, doc.ID, "The document could not be queued for processing.")
		_ = a.spool.Delete(doc.ID)
		return domain.Document{}, fmt.Errorf("dispatch ingest: %w", err)
	}
	a.logger.Info("document queued", "sessionId", sessionID, "documentId", doc.ID, "filename", filename, "mode", doc.Mode)

	st, err := a.sessions.Get(sessionID)
	if err != nil {
		return domain.Document{}, err
	}
	return *st.Document, nil
}

// CurrentDocument returns the session's document state.
func (a *App) CurrentDocument(sessionID string) (domain.Document, error) {
	st, err := a.sessions.Get(sessionID)
	if err != nil {
		return domain.Document{}, err
	}
	if st.Document == nil {
		return domain.Document{}, session.ErrNoDocument
	}
	return *st.Document, nil
}

// Answer is the outcome of one question. Remaining reflects the quota after
// any deduction.
type Answer struct {
	Kind      ai.ResultKind `json:"kind"`
	Text      string        `json:"text"`
	Remaining int           `json:"remaining"`
}

// AskQuestion runs the full question flow: quota gate, readiness check,
// answer engine, then transcript and usage bookkeeping. Only genuinely
// answered questions consume a credit; busy and failed outcomes are free.
func (a *App) AskQuestion(ctx context.Context, sessionID, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	st, err := a.sessions.Get(sessionID)
	if err != nil {
		return Answer{}, err
	}

	creditsUsed, _, err := a.store.GetStats(st.Email)
	if err != nil {
		return Answer{}, fmt.Errorf("load usage: %w", err)
	}
	remaining := a.freeLimit - creditsUsed
	if remaining <= 0 {
		return Answer{}, ErrQuotaExhausted
	}

	handle, doc, err := a.sessions.ReadyHandle(sessionID)
	if err != nil {
		return Answer{}, err
	}

	res := a.engine.Ask(ctx, handle, question)

	// Busy and failure notices are returned to the caller but never enter
	// the transcript or the usage record; only real answers do.
	if res.Answered() {
		if err := a.sessions.AppendExchange(sessionID, question, res.Text); err != nil {
			return Answer{}, err
		}
		if err := a.store.RecordAnswer(st.Email, doc.OriginalFilename, question, res.Text); err != nil {
			return Answer{}, fmt.Errorf("record answer: %w", err)
		}
		remaining--
	} else {
		a.logger.Warn("question not answered", "sessionId", sessionID, "kind", res.Kind, "error", res.Err)
	}
	return Answer{Kind: res.Kind, Text: res.Text, Remaining: remaining}, nil
}

// Stats returns the usage summary for the session's email.
func (a *App) Stats(sessionID string) (domain.Stats, error) {
	st, err := a.sessions.Get(sessionID)
	if err != nil {
		return domain.Stats{}, err
	}
	creditsUsed, history, err := a.store.GetStats(st.Email)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("load usage: %w", err)
	}
	remaining := a.freeLimit - creditsUsed
	if remaining < 0 {
		remaining = 0
	}
	if history == nil {
		history = []domain.QAEntry{}
	}
	return domain.Stats{
		Email:       st.Email,
		CreditsUsed: creditsUsed,
		FreeLimit:   a.freeLimit,
		Remaining:   remaining,
		History:     history,
	}, nil
}

// Transcript returns the session's transient chat history.
func (a *App) Transcript(sessionID string) ([]domain.ChatMessage, error) {
	return a.sessions.Transcript(sessionID)
}
