package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/logging"
	"github.com/JakeFAU/creator-ingest/internal/metrics"
)

// Runner starts pipeline runs. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Prepare(req ingest.RunRequest) (ingest.RunRequest, error)
	Run(ctx context.Context, req ingest.RunRequest) (ingest.RunReport, error)
	Sources() []string
}

// Config tunes the HTTP surface.
type Config struct {
	// APIKey enables X-API-Key auth on /v1 routes when set.
	APIKey string
	// RequestTimeout bounds non-streaming handlers. Zero selects 60s.
	RequestTimeout time.Duration
	// StreamBuffer is the per-run event buffer between the hub and the response writer.
	StreamBuffer int
}

// Server wires HTTP handlers to the orchestrator and the run registry.
type Server struct {
	router   chi.Router
	runner   Runner
	registry *Registry
	clock    ingest.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, registry *Registry, clock ingest.Clock, cfg Config, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 256
	}
	s := &Server{
		runner:   runner,
		registry: registry,
		clock:    clock,
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("api"),
	}
	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Post("/runs", s.startRun)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.Get("/sources", s.listSources)
			r.Get("/runs", s.listRuns)
			r.Get("/runs/{run_id}", s.getRun)
			r.Post("/runs/{run_id}/cancel", s.cancelRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "active_runs": len(s.registry.Active())})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
