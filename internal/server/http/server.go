// Package httpserver is the HTTP gateway in front of the article pipeline. It
// starts and steers runs through the Temporal client and serves persisted
// articles and run records from PostgreSQL.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/newsroom/content-pipeline/internal/database"
	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/repository"
	"github.com/newsroom/content-pipeline/internal/temporal"
)

// PipelineClient is the subset of temporal.PipelineClient the gateway uses.
type PipelineClient interface {
	StartWorkflow(ctx context.Context, req domain.WorkflowRequest) (string, error)
	GetStatus(ctx context.Context, workflowID string) (*temporal.RunStatus, error)
	GetResult(ctx context.Context, workflowID string) (*domain.WorkflowResult, error)
	QueryProgress(ctx context.Context, workflowID string) (*temporal.PipelineProgress, error)
	Cancel(ctx context.Context, workflowID, reason string) error
	Health(ctx context.Context) error
}

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Deps are the collaborators the gateway needs.
type Deps struct {
	Pipeline PipelineClient
	Articles repository.ArticleRepository
	Runs     repository.RunRepository
	DB       HealthChecker

	// Metrics serves /metrics. Defaults to the Prometheus default registry.
	Metrics http.Handler
}

// Server is the HTTP gateway.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	pipeline   PipelineClient
	articles   repository.ArticleRepository
	runs       repository.RunRepository
	db         HealthChecker
	metrics    http.Handler
	logger     zerolog.Logger

	progressInterval time.Duration
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates the gateway.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		pipeline:         deps.Pipeline,
		articles:         deps.Articles,
		runs:             deps.Runs,
		db:               deps.DB,
		metrics:          deps.Metrics,
		logger:           logger.With().Str("component", "http-server").Logger(),
		progressInterval: sseQueryInterval,
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.healthHandler)
	r.Get("/ready", s.readinessHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Post("/articles", s.startArticle)
		r.Get("/articles", s.listArticles)
		r.Get("/articles/{articleID}", s.getArticle)

		r.Get("/runs", s.listRuns)
		r.Get("/runs/{runID}", s.getRun)
		r.Get("/runs/{runID}/result", s.getRunResult)
		r.Get("/runs/{runID}/progress", s.getRunProgress)
		r.Delete("/runs/{runID}", s.cancelRun)
	})

	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness only.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler checks the database and the Temporal frontend.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ready", "database": "healthy", "temporal": "healthy"}
	code := http.StatusOK

	if s.db != nil {
		if health := s.db.Health(r.Context()); health.Status != "healthy" {
			resp["database"] = health.Status
			resp["status"] = "not_ready"
			code = http.StatusServiceUnavailable
		}
	}
	if err := s.pipeline.Health(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("temporal health check failed")
		resp["temporal"] = "unhealthy"
		resp["status"] = "not_ready"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
