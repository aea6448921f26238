// Package server exposes the control plane over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/server/handler"
	"github.com/alanyoungcy/orbitflash/internal/server/middleware"
	"github.com/alanyoungcy/orbitflash/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey and APIKeyHash guard every route except health and metrics.
	// Both empty disables authentication.
	APIKey     string
	APIKeyHash string
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Queue     *handler.QueueHandler
	Config    *handler.ConfigHandler
	Blacklist *handler.BlacklistHandler
	Gas       *handler.GasHandler
	Audit     *handler.AuditHandler
	Buffer    *handler.BufferHandler
	Metrics   http.Handler
}

// Server is the control plane API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

const shutdownTimeout = 10 * time.Second

var publicPaths = []string{"/api/health", "/metrics"}

// NewServer registers the routes and wraps them in middleware. limiter may
// be nil, which disables request throttling.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	var root http.Handler = Routes(h, hub)
	root = middleware.Auth(middleware.AuthConfig{Key: cfg.APIKey, Hash: cfg.APIKeyHash, Public: publicPaths})(root)
	root = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the route table without middleware.
func Routes(h Handlers, hub *ws.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)

	mux.HandleFunc("GET /api/queue/stats", h.Queue.Stats)
	mux.HandleFunc("GET /api/queue", h.Queue.List)
	mux.HandleFunc("GET /api/queue/{id}", h.Queue.Get)
	mux.HandleFunc("DELETE /api/queue", h.Queue.Clear)

	mux.HandleFunc("GET /api/config/scorer", h.Config.GetScorer)
	mux.HandleFunc("PUT /api/config/scorer", h.Config.PutScorer)
	mux.HandleFunc("GET /api/config/risk", h.Config.GetRisk)
	mux.HandleFunc("PUT /api/config/risk", h.Config.PutRisk)
	mux.HandleFunc("GET /api/config/gas", h.Config.GetGas)
	mux.HandleFunc("PUT /api/config/gas", h.Config.PutGas)
	mux.HandleFunc("GET /api/config/detector", h.Config.GetDetector)
	mux.HandleFunc("PUT /api/config/detector", h.Config.PutDetector)

	mux.HandleFunc("GET /api/blacklist", h.Blacklist.Get)
	mux.HandleFunc("POST /api/blacklist/tokens/{token}", h.Blacklist.BlockToken)
	mux.HandleFunc("DELETE /api/blacklist/tokens/{token}", h.Blacklist.UnblockToken)
	mux.HandleFunc("POST /api/blacklist/venues/{venue}", h.Blacklist.BlockVenue)
	mux.HandleFunc("DELETE /api/blacklist/venues/{venue}", h.Blacklist.UnblockVenue)

	mux.HandleFunc("GET /api/gas/recommendations", h.Gas.Recommendations)
	mux.HandleFunc("GET /api/gas/network", h.Gas.Network)
	mux.HandleFunc("GET /api/dispatch/contract", h.Gas.GetContract)
	mux.HandleFunc("PUT /api/dispatch/contract", h.Gas.SetContract)

	mux.HandleFunc("GET /api/audit", h.Audit.List)
	mux.HandleFunc("GET /api/executions", h.Audit.Executions)
	mux.HandleFunc("GET /api/buffer", h.Buffer.Status)

	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return <-errCh
}
