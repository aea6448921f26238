package app

import (
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/alanyoungcy/orbitflash/internal/calldata"
	"github.com/alanyoungcy/orbitflash/internal/config"
	"github.com/alanyoungcy/orbitflash/internal/detector"
	"github.com/alanyoungcy/orbitflash/internal/engine"
	"github.com/alanyoungcy/orbitflash/internal/feed"
	"github.com/alanyoungcy/orbitflash/internal/gas"
	"github.com/alanyoungcy/orbitflash/internal/keys"
	"github.com/alanyoungcy/orbitflash/internal/queue"
	"github.com/alanyoungcy/orbitflash/internal/risk"
	"github.com/alanyoungcy/orbitflash/internal/scoring"
)

func detectorConfig(c config.DetectorConfig) detector.Config {
	return detector.Config{
		FlashLoanFee:       c.FlashLoanFee,
		VenueFees:          maps.Clone(c.VenueFees),
		DefaultVenueFee:    c.DefaultVenueFee,
		GasPriceGwei:       c.GasPriceGwei,
		GasLimit:           c.GasLimit,
		SlippageTolerance:  c.SlippageTolerance,
		MinProfitEth:       c.MinProfitEth,
		TradeFraction:      c.TradeFraction,
		ReferenceLiquidity: c.ReferenceLiquidity,
	}
}

func detectorServiceConfig(c config.DetectorConfig) detector.ServiceConfig {
	return detector.ServiceConfig{
		ObservationTTL: c.ObservationTTL.Duration,
		OpportunityTTL: c.OpportunityTTL.Duration,
		BufferSize:     c.BufferSize,
		BufferWindow:   c.BufferWindow.Duration,
	}
}

// riskConfig layers the configured position caps over the built-in ones.
func riskConfig(c config.RiskConfig) risk.Config {
	out := risk.DefaultConfig()
	out.MinProfitEth = c.MinProfitEth
	out.MaxSlippage = c.MaxSlippage
	out.DefaultMaxPositionEth = c.DefaultMaxPositionEth
	out.MaxGasPriceGwei = c.MaxGasPriceGwei
	out.ReferenceGasLimit = c.ReferenceGasLimit
	out.MaxPoolShare = c.MaxPoolShare
	for token, limit := range c.MaxPositionEth {
		out.MaxPositionEth[strings.ToLower(token)] = limit
	}
	return out
}

func scorerConfig(c config.ScorerConfig) scoring.Config {
	return scoring.Config{
		ProfitWeight:      c.ProfitWeight,
		RiskWeight:        c.RiskWeight,
		CompetitionWeight: c.CompetitionWeight,
		MinProfitEth:      c.MinProfitEth,
		MaxSlippage:       c.MaxSlippage,
	}
}

func queueConfig(c config.QueueConfig) queue.Config {
	return queue.Config{
		MaxAge:     c.MaxAge.Duration,
		MaxRetries: c.MaxRetries,
	}
}

func gasConfig(c config.GasConfig) gas.Config {
	return gas.Config{
		BaseFeePremium:   c.BaseFeePremium,
		LowMultiplier:    c.LowMultiplier,
		MediumMultiplier: c.MediumMultiplier,
		HighMultiplier:   c.HighMultiplier,
		MaxGasPriceGwei:  c.MaxGasPriceGwei,
		MinGasPriceGwei:  c.MinGasPriceGwei,
		GasLimitBuffer:   c.GasLimitBuffer,
		MaxGasLimit:      c.MaxGasLimit,
		FeeTimeout:       c.FeeTimeout.Duration,
	}
}

func dispatcherConfig(c config.DispatchConfig) engine.DispatcherConfig {
	return engine.DispatcherConfig{
		ContractAddress: c.ContractAddress,
		DedupTTL:        c.DedupTTL.Duration,
		LockTTL:         c.LockTTL.Duration,
		EstimateGas:     c.EstimateGas,
		GasBufferPct:    uint64(max(c.GasBufferPct, 0)),
	}
}

func pollerConfig(c config.FeedConfig) feed.PollerConfig {
	return feed.PollerConfig{
		Interval:       c.Interval.Duration,
		RequestsPerSec: c.RequestsPerSec,
		Burst:          c.Burst,
		Concurrency:    c.Concurrency,
		CallTimeout:    c.CallTimeout.Duration,
	}
}

func newDetector(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *detector.Service {
	calc := detector.NewCalculator(detectorConfig(cfg.Detector), deps.Catalog)
	sdeps := detector.ServiceDeps{
		Bus:           deps.SignalBus,
		Observations:  deps.Observations,
		Opportunities: deps.Opportunities,
		Metrics:       deps.Metrics,
	}
	if cfg.Detector.DefaultLiquidity > 0 {
		sdeps.Liquidity = detector.ConstantLiquidity(cfg.Detector.DefaultLiquidity)
	}
	return detector.NewService(calc, detectorServiceConfig(cfg.Detector), sdeps, logger)
}

func newStrategyEngine(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *engine.StrategyEngine {
	gate := risk.NewGate(riskConfig(cfg.Risk), deps.Catalog, deps.Catalog, logger)
	for _, t := range cfg.Risk.BlockedTokens {
		gate.BlockToken(t)
	}
	for _, v := range cfg.Risk.BlockedVenues {
		gate.BlockVenue(v)
	}
	return engine.NewStrategyEngine(engine.StrategyConfig{
		DrainInterval:   cfg.Queue.DrainInterval.Duration,
		CleanupInterval: cfg.Queue.CleanupInterval.Duration,
	}, engine.StrategyDeps{
		Bus:     deps.SignalBus,
		Gate:    gate,
		Scorer:  scoring.NewScorer(scorerConfig(cfg.Scorer), deps.Catalog, deps.Catalog, logger),
		Queue:   queue.New(queueConfig(cfg.Queue), logger),
		Audit:   deps.Audit,
		Alerter: deps.Notifier,
		Metrics: deps.Metrics,
	}, logger)
}

// feeSources prefers the ArbGasInfo precompile and falls back to
// eth_gasPrice, each behind its own circuit breaker.
func feeSources(cfg *config.Config, deps *Dependencies, logger *slog.Logger) []gas.FeeSource {
	if deps.Chain == nil {
		return nil
	}
	var sources []gas.FeeSource
	wrap := func(s gas.FeeSource) {
		sources = append(sources, gas.NewBreakerSource(s, cfg.Gas.BreakerFailures, cfg.Gas.BreakerCooldown.Duration, logger))
	}
	if cfg.Chain.ArbGasInfo {
		if src, err := gas.NewArbGasInfoSource(deps.Chain); err != nil {
			logger.Warn("arbgasinfo source disabled", slog.String("error", err.Error()))
		} else {
			wrap(src)
		}
	}
	wrap(gas.NewRPCFeeSource(deps.Chain))
	return sources
}

func newDispatcher(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*engine.Dispatcher, error) {
	gen, err := calldata.NewGenerator(deps.Catalog)
	if err != nil {
		return nil, err
	}
	optimizer := gas.NewOptimizer(gasConfig(cfg.Gas), feeSources(cfg, deps, logger), deps.Catalog, deps.Metrics, logger)
	ddeps := engine.DispatcherDeps{
		Bus:       deps.SignalBus,
		Locks:     deps.LockManager,
		Optimizer: optimizer,
		Calldata:  gen,
		Audit:     deps.Audit,
		Alerter:   deps.Notifier,
		Metrics:   deps.Metrics,
	}
	if deps.Chain != nil {
		ddeps.Estimator = deps.Chain
	}
	dcfg := dispatcherConfig(cfg.Dispatch)
	if src := senderSource(cfg.Dispatch); !src.Empty() {
		sender, err := keys.Sender(src)
		if err != nil {
			return nil, fmt.Errorf("app: resolve dispatch sender: %w", err)
		}
		dcfg.Sender = sender
		logger.Info("gas estimates use sender", slog.String("sender", sender.Hex()))
	}
	return engine.NewDispatcher(dcfg, ddeps, logger)
}

func senderSource(c config.DispatchConfig) keys.Source {
	return keys.Source{
		Address:  c.SenderAddress,
		Key:      c.SenderKey,
		File:     c.SenderKeyFile,
		Password: c.SenderKeyPassword,
	}
}

func newPoller(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*feed.PoolPoller, error) {
	return feed.NewPoolPoller(pollerConfig(cfg.Feed), deps.Chain, feed.PoolsFromCatalog(deps.Catalog),
		deps.Catalog, deps.SignalBus, deps.Metrics, logger)
}
