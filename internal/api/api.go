package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/joescharf/fixit/internal/identity"
	"github.com/joescharf/fixit/internal/tracker"
)

const maxBodyBytes = 1 << 20

// Authenticator resolves a bearer token to the calling identity.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (*identity.Identity, error)
}

// Server provides the REST API handlers.
type Server struct {
	issues      *tracker.Manager
	suggestions *tracker.Workflow
	auth        Authenticator
	logger      *slog.Logger
}

// NewServer creates a new API server. A nil logger selects slog.Default().
func NewServer(issues *tracker.Manager, suggestions *tracker.Workflow, auth Authenticator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		issues:      issues,
		suggestions: suggestions,
		auth:        auth,
		logger:      logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.health)

	mux.HandleFunc("POST /api/v1/issues", s.requireAuth(s.createIssue))
	mux.HandleFunc("GET /api/v1/issues/{id}", s.requireAuth(s.getIssue))
	mux.HandleFunc("PATCH /api/v1/issues/{id}", s.requireAuth(s.updateIssue))
	mux.HandleFunc("DELETE /api/v1/issues/{id}", s.requireAuth(s.deleteIssue))
	mux.HandleFunc("GET /api/v1/issues/{id}/suggestions", s.requireAuth(s.listIssueSuggestions))

	mux.HandleFunc("GET /api/v1/users/{id}/issues", s.requireAuth(s.listUserIssues))

	mux.HandleFunc("POST /api/v1/suggestions", s.requireAuth(s.createSuggestion))
	mux.HandleFunc("GET /api/v1/suggestions", s.requireAuth(s.listSuggestions))
	mux.HandleFunc("GET /api/v1/suggestions/{id}", s.requireAuth(s.getSuggestion))

	return s.middleware(mux)
}

// middleware wraps h with the shared chain. Recovery sits inside logging so a
// panicking request is still logged with its 500.
func (s *Server) middleware(h http.Handler) http.Handler {
	return s.logMiddleware(s.recoverMiddleware(corsMiddleware(h)))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case rec.status >= 500:
			s.logger.ErrorContext(r.Context(), "request failed", attrs...)
		case rec.status >= 400:
			s.logger.WarnContext(r.Context(), "request error", attrs...)
		default:
			s.logger.InfoContext(r.Context(), "request", attrs...)
		}
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				s.logger.ErrorContext(r.Context(), "panic recovered",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, tracker.KindInternal, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAuth resolves the bearer token and stores the identity in the
// request context. Requests without a valid token get a 401.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := identity.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, tracker.KindUnauthenticated, "authentication required")
			return
		}
		id, err := s.auth.Resolve(r.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, identity.ErrNoSecret):
			s.logger.ErrorContext(r.Context(), "token verification unavailable", "error", err)
			writeError(w, http.StatusInternalServerError, tracker.KindInternal, "internal error")
			return
		case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrUnknownUser):
			writeError(w, http.StatusUnauthorized, tracker.KindUnauthenticated, "invalid or expired token")
			return
		default:
			s.fail(w, r, err)
			return
		}
		next(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, status int, kind tracker.Kind, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: string(kind)})
}

// statusFor maps a failure kind to its HTTP status.
func statusFor(kind tracker.Kind) int {
	switch kind {
	case tracker.KindValidation:
		return http.StatusBadRequest
	case tracker.KindNotFound:
		return http.StatusNotFound
	case tracker.KindForbidden:
		return http.StatusForbidden
	case tracker.KindUnauthenticated:
		return http.StatusUnauthorized
	case tracker.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a structured failure. Server-side faults are logged with
// their cause; the response carries only the typed message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := tracker.KindOf(err)
	status := statusFor(kind)
	if status >= 500 || kind == tracker.KindUpstream {
		s.logger.ErrorContext(r.Context(), "operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", kind,
			"error", err,
		)
	}
	writeError(w, status, kind, tracker.Message(err))
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, tracker.KindValidation, "invalid JSON")
		return false
	}
	return true
}

func actor(r *http.Request) *identity.Identity {
	id, _ := identity.FromContext(r.Context())
	return id
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
