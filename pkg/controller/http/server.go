package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hearth/pkg/model"
	"github.com/m-mizutani/hearth/pkg/utils/logging"
)

// UseCase is the conversation surface served over HTTP
type UseCase interface {
	CreateSession(ctx context.Context) (*model.Session, error)
	HandleTurn(ctx context.Context, sessionID model.SessionID, text string) (*model.ChatResult, error)
	History(ctx context.Context, sessionID model.SessionID) ([]*model.Message, error)
	Memories(ctx context.Context, sessionID model.SessionID, query string) *model.MemoryReport
}

// Server routes the /api endpoints to the use case
type Server struct {
	uc          UseCase
	mux         *http.ServeMux
	handler     http.Handler
	corsOrigins []string
}

type Option func(*Server)

// WithCORSOrigins sets allowed origins. "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

func New(uc UseCase, opts ...Option) *Server {
	s := &Server{
		uc:          uc,
		mux:         http.NewServeMux(),
		corsOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /api/{$}", s.handleHealth)
	s.mux.HandleFunc("POST /api/therapy/session", s.handleCreateSession)
	s.mux.HandleFunc("POST /api/therapy/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/therapy/session/{session_id}/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/therapy/memories/{session_id}", s.handleMemories)
	s.handler = withLogging(withCORS(s.mux, s.corsOrigins))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type chatRequest struct {
	Message   *string `json:"message"`
	SessionID string  `json:"session_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{
		"message": "AI Therapy Webapp API is running",
		"status":  "healthy",
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.uc.CreateSession(r.Context())
	if err != nil {
		writeError(r.Context(), w, "Error creating therapy session", err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]model.SessionID{"session_id": session.ID})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r.Body, &req); err != nil {
		writeError(r.Context(), w, "Invalid request body", err)
		return
	}

	result, err := s.uc.HandleTurn(r.Context(), model.SessionID(req.SessionID), *req.Message)
	if err != nil {
		writeError(r.Context(), w, "Error processing therapy session", err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := model.SessionID(r.PathValue("session_id"))
	msgs, err := s.uc.History(r.Context(), sessionID)
	if err != nil {
		writeError(r.Context(), w, "Error retrieving session history", err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string][]*model.Message{"messages": msgs})
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	sessionID := model.SessionID(r.PathValue("session_id"))
	report := s.uc.Memories(r.Context(), sessionID, r.URL.Query().Get("query"))
	if report.Memories == nil {
		report.Memories = []string{}
	}
	writeJSON(r.Context(), w, http.StatusOK, report)
}

func decodeBody(body io.Reader, req *chatRequest) error {
	dec := json.NewDecoder(io.LimitReader(body, 1<<20))
	if err := dec.Decode(req); err != nil {
		return goerr.Wrap(err, "malformed JSON body", goerr.T(model.ErrTagValidation))
	}
	if req.Message == nil {
		return goerr.New("message is required", goerr.T(model.ErrTagValidation))
	}
	return nil
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.From(ctx).Warn("failed to write response", "error", err)
	}
}

// writeError answers 400 for rejected input and 500 for everything else
func writeError(ctx context.Context, w http.ResponseWriter, summary string, err error) {
	status := http.StatusInternalServerError
	if goerr.HasTag(err, model.ErrTagValidation) {
		status = http.StatusBadRequest
	}

	logging.From(ctx).Error(summary, "error", err, "status", status)

	writeJSON(ctx, w, status, &errorResponse{Detail: summary + ": " + err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		logger := logging.From(r.Context()).With("method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(rec, r.WithContext(logging.With(r.Context(), logger)))

		logger.Info("request",
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func withCORS(next http.Handler, origins []string) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := allowed[origin]; ok || allowAll {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
