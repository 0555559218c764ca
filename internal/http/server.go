// Package httpapi exposes the ingestion, inspection, streaming and auth
// surface of the gateway.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/trubo/mail-gateway/internal/auth"
	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/dispatch"
	"github.com/trubo/mail-gateway/internal/joblog"
	"github.com/trubo/mail-gateway/internal/queue"
	"github.com/trubo/mail-gateway/internal/stream"
)

type Server struct {
	Ingest *dispatch.Ingestor
	Queues dispatch.Queues
	Log    joblog.Store
	Auth   *auth.Service
	Stream *stream.Reconciler

	// CORSOrigins defaults to allowing any origin.
	CORSOrigins []string

	// GuardAdmin gates /admin behind bearer auth plus the is_admin flag.
	// The worker's out-of-band status reports then need a token too.
	GuardAdmin bool
	Secret     []byte

	// Optional readiness probes; nil skips the check.
	Pool  *pgxpool.Pool
	Redis *redis.Client

	Logger *slog.Logger
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(instrument)

	s.mountHealth(r)
	s.mountMetrics(r)

	r.Post("/messages", s.postMessages)
	r.Get("/jobs", s.listJobs)
	r.Get("/jobs/stream", s.streamJobs)
	r.Get("/jobs/{id}", s.getJob)
	r.Get("/stats", s.stats)

	r.Route("/admin", func(ar chi.Router) {
		if s.GuardAdmin {
			ar.Use(s.requireAuth, s.requireAdmin)
		}
		ar.Get("/jobs", s.adminListJobs)
		ar.Get("/jobs/{id}", s.adminGetJob)
		ar.Get("/jobs/{id}/events", s.adminJobEvents)
		ar.Post("/jobs/{id}/retry", s.adminRetryJob)
		ar.Post("/jobs/{id}/status", s.adminSetStatus)
		ar.Delete("/jobs/{id}", s.adminDeleteJob)
	})

	r.Route("/auth", func(ar chi.Router) {
		ar.Post("/register/request", s.registerRequest)
		ar.Post("/register/verify", s.registerVerify)
		ar.Post("/login/request", s.loginRequest)
		ar.Post("/login/verify", s.loginVerify)
		ar.Post("/forgot/request", s.forgotRequest)
		ar.Post("/forgot/verify", s.forgotVerify)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the stable error kinds onto status codes and the
// {ok:false,error,details?} envelope.
func writeErr(w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": verr.Error(), "details": verr.Details})
		return
	}
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	// A missing auth-code record is a bad verify request, not a missing
	// resource; the check precedes the generic not-found mapping.
	case errors.Is(err, auth.ErrCodeNotFound):
		status, code = http.StatusBadRequest, auth.ErrCodeNotFound.Error()
	case errors.Is(err, core.ErrNotFound), errors.Is(err, queue.ErrUnknownJob):
		status, code = http.StatusNotFound, core.ErrNotFound.Error()
	case errors.Is(err, core.ErrNotRegistered):
		status, code = http.StatusNotFound, core.ErrNotRegistered.Error()
	case errors.Is(err, core.ErrAlreadyRegistered):
		status, code = http.StatusConflict, core.ErrAlreadyRegistered.Error()
	case errors.Is(err, core.ErrInvalidCode):
		status, code = http.StatusBadRequest, core.ErrInvalidCode.Error()
	case errors.Is(err, core.ErrExpired):
		status, code = http.StatusBadRequest, core.ErrExpired.Error()
	case errors.Is(err, core.ErrUnauthorized):
		status, code = http.StatusUnauthorized, core.ErrUnauthorized.Error()
	case errors.Is(err, core.ErrForbidden):
		status, code = http.StatusForbidden, core.ErrForbidden.Error()
	case errors.Is(err, core.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, core.ErrStoreUnavailable.Error()
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": code})
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
