// Package app wires the orbitflash stages together and runs the ones the
// configured mode selects.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/config"
)

// App is the root application object. It owns the configuration, logger and
// the cleanup functions run in reverse order on shutdown.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
	closers   []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
}

// Run wires dependencies, starts the stages of the configured mode and
// blocks until ctx is cancelled or a stage fails.
func (a *App) Run(ctx context.Context) error {
	log := a.logger.With(slog.String("component", "app"))
	log.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	st, err := a.build(strings.ToLower(a.cfg.Mode), deps)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	err = a.run(ctx, st, deps)
	log.Info("stopped")
	return err
}

// Close releases resources in reverse registration order. It is safe to
// call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
