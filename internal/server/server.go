// Package server exposes a read-only HTTP ops API: health, runtime counters,
// calibration, emitted intents and the audit log.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
	"github.com/alanyoungcy/arbengine/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// Limiter, when set, limits each client to RateLimit requests per
	// RateWindow.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the endpoint handlers.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Intents *handler.IntentHandler
}

// Server is the ops API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route behind logging, CORS, auth and the
// optional rate limit. Health stays unauthenticated.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "ops_server"))

	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	api.HandleFunc("GET /api/calibration", handlers.Status.GetCalibration)
	api.HandleFunc("GET /api/intents", handlers.Intents.ListReconciled)
	api.HandleFunc("GET /api/intents/{id}", handlers.Intents.GetIntent)
	api.HandleFunc("GET /api/audit", handlers.Intents.ListAudit)

	var protected http.Handler = api
	protected = middleware.Auth(cfg.APIKey)(protected)
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		protected = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow)(protected)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("/api/", protected)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return ctx.Err()
}
