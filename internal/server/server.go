// Package server exposes the indexed entities over HTTP and relays live
// entity changes over websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/metrics"
	"github.com/alanyoungcy/omenindexer/internal/server/handler"
	"github.com/alanyoungcy/omenindexer/internal/server/middleware"
	"github.com/alanyoungcy/omenindexer/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication

	// RateLimit requests per RateWindow per client IP; zero disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Entities *handler.EntityHandler
}

// Options are the optional collaborators. Nil fields drop the matching
// route or middleware.
type Options struct {
	Hub     *ws.Hub
	Metrics *metrics.Metrics
	Limiter domain.RateLimiter
}

// Server is the query API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers the routes and wraps them in middleware: CORS, then
// logging, then rate limit, then auth.
func NewServer(cfg Config, handlers Handlers, opts Options, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/markets", handlers.Entities.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Entities.GetMarket)
	mux.HandleFunc("GET /api/tokens/{id}", handlers.Entities.GetToken)
	mux.HandleFunc("GET /api/questions/{id}", handlers.Entities.GetQuestion)
	if opts.Hub != nil {
		mux.HandleFunc("GET /ws", opts.Hub.HandleWS)
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	if opts.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(opts.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger, opts.Metrics)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Run serves until ctx ends, then shuts down with a 10 second grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
