package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/lazypower/daybook/internal/auth"
	"github.com/lazypower/daybook/internal/engine"
	"github.com/lazypower/daybook/internal/idempotency"
	"github.com/lazypower/daybook/internal/metrics"
	"github.com/lazypower/daybook/internal/ratelimit"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the optional middleware. A nil Verifier is not allowed; the
// other fields may be left empty to disable their feature.
type Options struct {
	Verifier    auth.Verifier
	Limiter     *ratelimit.Limiter
	Idempotency *idempotency.Store
	Metrics     bool
}

// Server is the daybook HTTP API server.
type Server struct {
	store   Pinger
	engine  *engine.Engine
	log     zerolog.Logger
	opts    Options
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server serving eng, with store used for health checks.
func New(store Pinger, eng *engine.Engine, log zerolog.Logger, version string, opts Options) *Server {
	s := &Server{
		store:   store,
		engine:  eng,
		log:     log,
		opts:    opts,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(recoverer)
	if s.opts.Metrics {
		r.Use(metrics.Middleware())
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.opts.Verifier, s.log))
			if s.opts.Limiter != nil {
				r.Use(s.opts.Limiter.Middleware())
			}
			if s.opts.Idempotency != nil {
				r.Use(s.opts.Idempotency.Middleware(s.log))
			}

			r.Post("/activity/new", s.handleMutation(engine.OpCreate))
			r.Patch("/activity/edit", s.handleMutation(engine.OpEdit))
			r.Delete("/activity/delete", s.handleMutation(engine.OpDelete))
			r.Get("/activity/day", s.handleDay)
			r.Get("/activity/range", s.handleRange)
			r.Get("/user", s.handleUser)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "validation", "method not allowed")
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.store.Ping(r.Context()); err != nil {
		dbOK = false
		hlog.FromRequest(r).Warn().Err(err).Msg("store ping failed")
	}
	status := "ok"
	if !dbOK {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"version":     s.version,
		"uptime":      time.Since(s.started).Seconds(),
		"db":          dbOK,
		"idempotency": s.opts.Idempotency != nil,
	})
}

// recoverer turns a panic into a logged 500 with the internal envelope.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				hlog.FromRequest(r).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				writeError(w, http.StatusInternalServerError, "internal", internalMessage)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
