package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mselser95/gridbot/pkg/healthprobe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides the operator API plus metrics and health endpoints.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker

	// Optional. The /api routes are mounted only when Grid is set.
	Grid       GridService
	Reconciler Reconciler
	Guard      GuardStatus
	APIToken   string
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	if cfg.Grid != nil {
		h := NewGridHandler(cfg.Grid, cfg.Reconciler, cfg.Guard, cfg.Logger)
		r.Route("/api", func(api chi.Router) {
			if cfg.APIToken != "" {
				api.Use(bearerAuth(cfg.APIToken))
			}
			h.Routes(api)
		})
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server:        server,
		logger:        cfg.Logger,
		healthChecker: cfg.HealthChecker,
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
