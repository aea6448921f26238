package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/orbitflash/internal/config"
	"github.com/alanyoungcy/orbitflash/internal/detector"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/engine"
	"github.com/alanyoungcy/orbitflash/internal/feed"
	"github.com/alanyoungcy/orbitflash/internal/server"
	"github.com/alanyoungcy/orbitflash/internal/server/handler"
	"github.com/alanyoungcy/orbitflash/internal/server/ws"
)

// stages holds the pipeline stages a mode runs. Stages the mode does not
// run stay nil.
type stages struct {
	detector   *detector.Service
	poller     *feed.PoolPoller
	strategy   *engine.StrategyEngine
	dispatcher *engine.Dispatcher
	results    *engine.ResultRecorder
}

// build constructs the stages of mode.
func (a *App) build(mode string, deps *Dependencies) (*stages, error) {
	st := &stages{}
	runDetector := mode == "detector" || mode == "full"
	runStrategy := mode == "strategy" || mode == "full"
	runGas := mode == "gas" || mode == "full"
	if !runDetector && !runStrategy && !runGas {
		return nil, fmt.Errorf("unsupported mode %q", mode)
	}

	if runDetector {
		st.detector = newDetector(a.cfg, deps, a.logger)
		if a.cfg.Feed.Enabled && deps.Chain != nil {
			p, err := newPoller(a.cfg, deps, a.logger)
			if err != nil {
				return nil, err
			}
			st.poller = p
		}
	}
	if runStrategy {
		st.strategy = newStrategyEngine(a.cfg, deps, a.logger)
	}
	if runGas {
		d, err := newDispatcher(a.cfg, deps, a.logger)
		if err != nil {
			return nil, err
		}
		st.dispatcher = d
		if deps.ExecutionStore != nil {
			st.results = engine.NewResultRecorder(deps.SignalBus, deps.ExecutionStore, a.logger)
		}
	}
	return st, nil
}

// run starts every built stage plus the audit writer, the archive loop and
// the control plane, and waits for them.
func (a *App) run(ctx context.Context, st *stages, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	start := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			err := fn(ctx)
			if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	if deps.Audit != nil {
		start("audit", deps.Audit.Run)
	}
	if st.detector != nil {
		start("detector", st.detector.Run)
	}
	if st.poller != nil {
		start("feed", st.poller.Run)
	}
	if st.strategy != nil {
		start("strategy", st.strategy.Run)
	}
	if st.dispatcher != nil {
		start("dispatcher", st.dispatcher.Run)
	}
	if st.results != nil {
		start("results", st.results.Run)
	}
	if deps.Archiver != nil {
		start("archive", func(ctx context.Context) error {
			return a.archiveLoop(ctx, deps)
		})
	}
	if a.cfg.Server.Enabled {
		srv, hub := a.newServer(st, deps)
		start("ws", hub.Run)
		start("server", srv.Run)
	}
	return g.Wait()
}

// archiveLoop moves audit rows past retention to S3, once at startup and
// then every Archive.Interval.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	log := a.logger.With(slog.String("component", "archive"))
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	archive := func() {
		before := time.Now().UTC().Add(-retention)
		n, err := deps.Archiver.ArchiveAudit(ctx, before)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("audit archive failed", slog.String("error", err.Error()))
			_ = deps.Notifier.Alert(ctx, domain.AlertError, "audit archive failed: "+err.Error())
			return
		}
		log.Info("audit archive complete", slog.Int64("archived", n), slog.Time("before", before))
	}

	archive()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			archive()
		}
	}
}

// controls converts the built stages into handler interfaces, leaving the
// interface nil when the stage is absent.
type controls struct {
	strategy handler.StrategyControl
	gas      handler.GasControl
	contract handler.ContractControl
	detector handler.DetectorControl
	audit    handler.ConfigRecorder
}

func controlsFor(st *stages, deps *Dependencies) controls {
	var c controls
	if st.strategy != nil {
		c.strategy = st.strategy
	}
	if st.dispatcher != nil {
		c.gas = st.dispatcher.Optimizer()
		c.contract = st.dispatcher
	}
	if st.detector != nil {
		c.detector = st.detector
	}
	if deps.Audit != nil {
		c.audit = deps.Audit
	}
	return c
}

func (a *App) newServer(st *stages, deps *Dependencies) (*server.Server, *ws.Hub) {
	c := controlsFor(st, deps)
	redacted := config.RedactedConfig(a.cfg)

	h := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Checks),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.startedAt, c.strategy, c.detector, c.contract, redacted),
		Queue:     handler.NewQueueHandler(c.strategy),
		Config:    handler.NewConfigHandler(c.strategy, c.gas, c.detector, c.audit),
		Blacklist: handler.NewBlacklistHandler(c.strategy),
		Gas:       handler.NewGasHandler(c.gas, c.contract, c.audit, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, deps.ExecutionStore),
		Buffer:    handler.NewBufferHandler(c.detector),
		Metrics:   deps.Metrics.Handler(),
	}
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: a.startedAt})
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		APIKeyHash:  a.cfg.Server.APIKeyHash,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, h, hub, deps.RateLimiter, a.logger)
	return srv, hub
}
