// Package server exposes plan generation and orchestration state over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"planforge/internal/config"
	"planforge/internal/journal"
	"planforge/internal/llm"
	"planforge/internal/logging"
	"planforge/internal/observability"
	"planforge/internal/planner"
)

// PlanGenerator produces plans. *planner.Service implements it.
type PlanGenerator interface {
	Generate(ctx context.Context, req planner.PlanRequest) (*planner.Plan, error)
}

// Deps are the components the handlers serve from.
type Deps struct {
	Planner  PlanGenerator
	Registry *llm.Registry
	// Journal is optional; attempt listing and provider stats are
	// unavailable without it.
	Journal journal.Journal
	// Config supplies provider settings for the providers listing.
	Config *config.Config
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

const (
	defaultMaxBodySize     = 1 << 20
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
)

// Server wraps an http.Server with the planforge routes.
type Server struct {
	httpServer *http.Server
	deps       Deps
	cfg        Config
	logger     *slog.Logger
}

// New creates a server. Nothing listens until ListenAndServe or Serve.
func New(deps Deps, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With("component", "http"),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/plans", s.handleCreatePlan)
	mux.HandleFunc("GET /v1/providers", s.handleProviders)
	mux.HandleFunc("GET /v1/attempts", s.handleAttempts)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return chain(mux,
		recovery(s.logger),
		requestID,
		logRequests(s.logger),
		observability.MetricsMiddleware,
	)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}
	return s.Shutdown(context.Background())
}

// Shutdown stops accepting connections and waits for in-flight requests
// up to the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("graceful shutdown failed", logging.Err(err))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
