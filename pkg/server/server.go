package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/iddaa-lens/jobscheduler/pkg/handlers/health"
	jobshandler "github.com/iddaa-lens/jobscheduler/pkg/handlers/jobs"
	"github.com/iddaa-lens/jobscheduler/pkg/jobs"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
	"github.com/iddaa-lens/jobscheduler/pkg/metrics"
	"github.com/iddaa-lens/jobscheduler/pkg/middleware"
)

// Options are the dependencies of the admin server
type Options struct {
	Addr       string
	InstanceID string
	Registry   *jobs.Registry
	// Operator and Store may be nil when no coordination store is shared.
	Operator jobshandler.Operator
	Store    health.Pinger
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

// Server represents the admin API server
type Server struct {
	router   *http.ServeMux
	http     *http.Server
	logger   *logger.Logger
	metrics  *metrics.Metrics
	handlers struct {
		health *health.Handler
		jobs   *jobshandler.Handler
	}
}

// New creates a new server instance
func New(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, errors.New("server: registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	s := &Server{
		router:  http.NewServeMux(),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	jobCount := func() int { return len(opts.Registry.Names()) }
	s.handlers.health = health.NewHandler(opts.Store, opts.InstanceID, jobCount, opts.Logger)
	s.handlers.jobs = jobshandler.NewHandler(opts.Registry, opts.Operator, opts.InstanceID, opts.Logger)

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.handle("GET /health", s.handlers.health.HealthCheck)

	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics.Handler())
	}

	// Jobs endpoints
	s.handle("GET /api/jobs", s.handlers.jobs.List)
	s.handle("GET /api/jobs/{name}", s.handlers.jobs.Get)
	s.handle("POST /api/jobs/{name}/trigger", s.handlers.jobs.Trigger)
	s.handle("POST /api/jobs/{name}/stop", s.handlers.jobs.Stop)
	s.handle("POST /api/jobs/{name}/resume", s.handlers.jobs.Resume)
	s.handle("POST /api/jobs/{name}/reschedule", s.handlers.jobs.Reschedule)

	// Preflight for every API path
	s.handle("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {})
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.router.HandleFunc(pattern, middleware.RequestID(s.logger, middleware.CORS(h)))
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("addr", s.http.Addr).
		Msg("Starting admin API server")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed to start on %s: %w", s.http.Addr, err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().
		Str("action", "server_stop").
		Msg("Stopping admin API server")
	return s.http.Shutdown(ctx)
}
