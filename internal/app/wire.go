package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/orbitflash/internal/audit"
	s3blob "github.com/alanyoungcy/orbitflash/internal/blob/s3"
	"github.com/alanyoungcy/orbitflash/internal/cache/memory"
	"github.com/alanyoungcy/orbitflash/internal/cache/redis"
	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/config"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/metrics"
	"github.com/alanyoungcy/orbitflash/internal/notify"
	"github.com/alanyoungcy/orbitflash/internal/server/handler"
	"github.com/alanyoungcy/orbitflash/internal/store/postgres"
)

// Dependencies bundles the infrastructure every mode draws from. Optional
// members are nil when their backing service is disabled.
type Dependencies struct {
	Catalog *catalog.Catalog
	Metrics *metrics.Metrics

	// Bus and caches
	SignalBus     domain.SignalBus
	Observations  domain.ObservationCache
	Opportunities domain.OpportunityCache
	LockManager   domain.LockManager
	RateLimiter   domain.RateLimiter

	// Persistence
	AuditStore     domain.AuditStore
	ExecutionStore domain.ExecutionStore
	Audit          *audit.Recorder
	Archiver       *s3blob.AuditArchiver

	Chain    *ethclient.Client
	Notifier *notify.Notifier

	// Checks feed GET /api/health.
	Checks map[string]handler.Check
}

// Wire connects to every backing service the configuration enables and
// returns the dependencies with a cleanup function releasing them.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Check),
	}

	// --- Catalog ---
	deps.Catalog = catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err := catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			return fail(fmt.Errorf("wire: catalog: %w", err))
		}
		deps.Catalog = cat
	}

	// --- Redis, or the in-process bus for a single full-mode process ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		c := redis.NewCache(rc)
		deps.SignalBus = redis.NewSignalBus(rc, redis.BusOptions{StreamMaxLen: cfg.Redis.StreamMaxLen})
		deps.Observations = c
		deps.Opportunities = c
		deps.LockManager = redis.NewLockManager(rc)
		deps.RateLimiter = redis.NewRateLimiter(rc, cfg.Server.RateLimit, cfg.Server.RateWindow.Duration)
		deps.Checks["redis"] = rc.Ping
	} else {
		logger.Warn("redis disabled, using the in-process bus")
		c := memory.NewCache(nil)
		deps.SignalBus = memory.NewBus(0)
		deps.Observations = c
		deps.Opportunities = c
		deps.LockManager = c
	}

	// --- Postgres audit trail ---
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pool := pg.Pool()
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
		deps.Audit = audit.NewRecorder(deps.AuditStore, 0, logger)
		deps.Checks["postgres"] = pg.Ping
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled && deps.AuditStore != nil {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewAuditArchiver(s3blob.NewWriter(sc), deps.AuditStore, cfg.Archive.Prefix, logger)
		deps.Checks["s3"] = sc.Health
	}

	// --- Chain RPC ---
	if cfg.NeedsChain() {
		ec, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fail(fmt.Errorf("wire: dial %s: %w", cfg.Chain.RPCURL, err))
		}
		closers = append(closers, ec.Close)
		deps.Chain = ec
		deps.Checks["chain"] = func(ctx context.Context) error {
			_, err := ec.BlockNumber(ctx)
			return err
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders,
		domain.AlertLevel(strings.ToLower(cfg.Notify.MinLevel)), cfg.Notify.Service, logger)

	return deps, cleanup, nil
}
