package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/st243452-ship-it/smart-analyst-saas/internal/app"
	"github.com/st243452-ship-it/smart-analyst-saas/internal/ratelimit"
	"github.com/st243452-ship-it/smart-analyst-saas/internal/session"
	"github.com/st243452-ship-it/smart-analyst-saas/internal/util"
	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App               *app.App
	Sessions          *session.Manager
	RedisAddr         string
	RedisPassword     string
	LoginRateLimit    int
	QuestionRateLimit int
	MaxUploadBytes    int64
}

// Server exposes the HTTP endpoints.
type Server struct {
	app             *app.App
	sessions        *session.Manager
	mux             *http.ServeMux
	maxUploadBytes  int64
	loginLimiter    *ratelimit.FixedWindowLimiter
	questionLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Rate limiting is only
// active when a Redis address is supplied.
func New(cfg Config) (*Server, error) {
	s := &Server{
		app:            cfg.App,
		sessions:       cfg.Sessions,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		loginLimit := cfg.LoginRateLimit
		if loginLimit <= 0 {
			loginLimit = 10
		}
		questionLimit := cfg.QuestionRateLimit
		if questionLimit <= 0 {
			questionLimit = 30
		}
		rateWindow := time.Minute
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			prefix := "analyst:ratelimit:" + name
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
		if s.questionLimiter, err = newLimiter("question", questionLimit); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/login", s.handleLogin)
	s.mux.Handle("/api/logout", s.authenticated(s.handleLogout))

	s.mux.Handle("/api/documents", s.authenticated(s.handleDocuments))
	s.mux.Handle("/api/documents/current", s.authenticated(s.handleCurrentDocument))

	s.mux.Handle("/api/questions", s.authenticated(s.handleQuestion))
	s.mux.Handle("/api/transcript", s.authenticated(s.handleTranscript))
	s.mux.Handle("/api/me/stats", s.authenticated(s.handleStats))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrapper
type sessionHandler func(http.ResponseWriter, *http.Request, session.State)

func (s *Server) authenticated(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := session.BearerToken(r)
		if !ok {
			s.audit(r, "analyst.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		st, err := s.sessions.Resolve(token)
		if err != nil {
			s.audit(r, "analyst.authorize", "fail", "reason", "invalid_or_expired_session")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, st)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "analyst.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "analyst.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, st, err := s.app.Login(req.Email)
	if err != nil {
		s.audit(r, "analyst.login", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "analyst.login", "success", "email", st.Email)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Email: st.Email})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, st session.State) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.app.Logout(st.ID)
	s.audit(r, "analyst.logout", "success", "email", st.Email)
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/documents — multipart upload of the session document.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, st session.State) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	doc, err := s.app.UploadDocument(r.Context(), st.ID, header.Filename, file, header.Size)
	if err != nil {
		s.audit(r, "analyst.upload", "fail", "email", st.Email, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "analyst.upload", "success", "email", st.Email, "document_id", doc.ID)
	writeJSON(w, http.StatusAccepted, doc)
}

// GET /api/documents/current — poll the document state machine.
func (s *Server) handleCurrentDocument(w http.ResponseWriter, r *http.Request, st session.State) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	doc, err := s.app.CurrentDocument(st.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request, st session.State) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.questionLimiter, "too many questions") {
		s.audit(r, "analyst.question", "rate_limited", "email", st.Email)
		return
	}
	var req questionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ans, err := s.app.AskQuestion(r.Context(), st.ID, req.Question)
	if err != nil {
		s.audit(r, "analyst.question", "fail", "email", st.Email, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request, st session.State) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	transcript, err := s.app.Transcript(st.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if transcript == nil {
		transcript = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": transcript,
		"count": len(transcript),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, st session.State) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats(st.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type questionRequest struct {
	Question string `json:"question"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "email is required")
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, session.ErrNoDocument):
		writeError(w, http.StatusConflict, "no document uploaded")
	case errors.Is(err, session.ErrDocumentNotReady):
		writeError(w, http.StatusConflict, "document is not ready yet")
	case errors.Is(err, app.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "question is required")
	case errors.Is(err, app.ErrQuotaExhausted):
		writeError(w, http.StatusForbidden, "quota_exhausted: free question limit reached, upgrade to Pro to continue")
	case errors.Is(err, app.ErrUnsupportedFileType):
		writeError(w, http.StatusBadRequest, "unsupported file type")
	case errors.Is(err, app.ErrEmptyUpload):
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 32 * 1024 * 1024
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logger := util.LoggerFromContext(r.Context())
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}
