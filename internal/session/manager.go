package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/st243452-ship-it/smart-analyst-saas/internal/util"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
)

var (
	ErrInvalidEmail     = errors.New("email must not be empty")
	ErrSessionNotFound  = errors.New("session not found")
	ErrNoDocument       = errors.New("no document uploaded")
	ErrDocumentNotReady = errors.New("document is not ready")
)

// State is the in-memory state of one logged-in session. A session starts
// with no document; uploads move it through queued, processing and finally
// ready or failed. The transcript is transient and dies with the session.
type State struct {
	ID         string
	Email      string
	Document   *domain.Document
	Handle     domain.DocumentHandle
	Transcript []domain.ChatMessage
	CreatedAt  time.Time
	LastSeen   time.Time
}

// Manager owns all live sessions and their document state.
type Manager struct {
	tokens *TokenStore

	mu       sync.RWMutex
	sessions map[string]*State
}

func NewManager(tokens *TokenStore) *Manager {
	return &Manager{
		tokens:   tokens,
		sessions: make(map[string]*State),
	}
}

// Login creates a fresh session for the submitted email and returns its
// token. Any non-empty identifier is accepted; the email is recorded after
// trim and lowercase normalization, with no format or ownership check.
func (m *Manager) Login(email string) (string, State, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", State{}, ErrInvalidEmail
	}
	now := time.Now().UTC()
	st := &State{
		ID:        util.NewID(),
		Email:     email,
		CreatedAt: now,
		LastSeen:  now,
	}
	token, err := m.tokens.Issue(st.ID, st.Email)
	if err != nil {
		return "", State{}, err
	}
	m.mu.Lock()
	m.sessions[st.ID] = st
	m.mu.Unlock()
	return token, snapshot(st), nil
}

// Resolve validates a token and returns the live session snapshot.
func (m *Manager) Resolve(token string) (State, error) {
	sessionID, _, err := m.tokens.Verify(token)
	if err != nil {
		return State{}, err
	}
	return m.Get(sessionID)
}

// Get returns a snapshot of the session, updating its last-seen time.
func (m *Manager) Get(sessionID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return State{}, ErrSessionNotFound
	}
	st.LastSeen = time.Now().UTC()
	return snapshot(st), nil
}

// Logout drops the session and its transcript. Unknown IDs are a no-op so
// logout stays idempotent.
func (m *Manager) Logout(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// BeginDocument replaces any previous document with a queued one. The old
// transcript is cleared: questions always refer to the current document.
func (m *Manager) BeginDocument(sessionID string, doc domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	doc.Status = domain.StatusQueued
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	st.Document = &doc
	st.Handle = domain.DocumentHandle{}
	st.Transcript = nil
	return nil
}

// MarkDocumentProcessing flips the current document to processing. Stale
// worker updates for a replaced document are ignored.
func (m *Manager) MarkDocumentProcessing(sessionID, documentID string) error {
	return m.updateDocument(sessionID, documentID, func(doc *domain.Document, st *State) {
		doc.Status = domain.StatusProcessing
	})
}

// CompleteDocument marks the document ready and installs its handle.
func (m *Manager) CompleteDocument(sessionID, documentID string, handle domain.DocumentHandle) error {
	return m.updateDocument(sessionID, documentID, func(doc *domain.Document, st *State) {
		doc.Status = domain.StatusReady
		doc.ErrorMessage = ""
		st.Handle = handle
	})
}

// FailDocument marks the document failed with a reason.
func (m *Manager) FailDocument(sessionID, documentID, reason string) error {
	return m.updateDocument(sessionID, documentID, func(doc *domain.Document, st *State) {
		doc.Status = domain.StatusFailed
		doc.ErrorMessage = reason
		st.Handle = domain.DocumentHandle{}
	})
}

func (m *Manager) updateDocument(sessionID, documentID string, fn func(*domain.Document, *State)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if st.Document == nil || st.Document.ID != documentID {
		return ErrNoDocument
	}
	fn(st.Document, st)
	st.Document.UpdatedAt = time.Now().UTC()
	return nil
}

// ReadyHandle returns the answer-engine handle for the current document.
// It fails while the document is still queued or processing, or after an
// ingestion failure.
func (m *Manager) ReadyHandle(sessionID string) (domain.DocumentHandle, domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return domain.DocumentHandle{}, domain.Document{}, ErrSessionNotFound
	}
	if st.Document == nil {
		return domain.DocumentHandle{}, domain.Document{}, ErrNoDocument
	}
	if st.Document.Status != domain.StatusReady {
		return domain.DocumentHandle{}, domain.Document{}, ErrDocumentNotReady
	}
	return st.Handle, *st.Document, nil
}

// AppendExchange records a question/answer pair on the transcript.
func (m *Manager) AppendExchange(sessionID, question, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	st.Transcript = append(st.Transcript,
		domain.ChatMessage{Role: domain.RoleUser, Content: question},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: answer},
	)
	return nil
}

// Transcript returns a copy of the session transcript.
func (m *Manager) Transcript(sessionID string) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := make([]domain.ChatMessage, len(st.Transcript))
	copy(out, st.Transcript)
	return out, nil
}

// StartJanitor prunes idle sessions until ctx is canceled. Sessions older
// than the token TTL are unreachable anyway since their tokens expired.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.pruneIdle(m.tokens.TTL())
			}
		}
	}()
}

func (m *Manager) pruneIdle(maxIdle time.Duration) {
	cutoff := time.Now().UTC().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, st := range m.sessions {
		if st.LastSeen.Before(cutoff) {
			delete(m.sessions, id)
		}
	}
}

func snapshot(st *State) State {
	out := *st
	if st.Document != nil {
		doc := *st.Document
		out.Document = &doc
	}
	out.Transcript = make([]domain.ChatMessage, len(st.Transcript))
	copy(out.Transcript, st.Transcript)
	return out
}
