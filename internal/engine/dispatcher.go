package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/orbitflash/internal/audit"
	"github.com/alanyoungcy/orbitflash/internal/calldata"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/gas"
	"github.com/alanyoungcy/orbitflash/internal/metrics"
)

// ErrDuplicate is returned when an opportunity was already dispatched by this
// process or another replica holds its lock.
var ErrDuplicate = errors.New("engine: duplicate dispatch")

// GasEstimator estimates the gas of a call. *ethclient.Client implements it.
type GasEstimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// DispatcherConfig controls transaction preparation.
type DispatcherConfig struct {
	ContractAddress string
	DedupTTL        time.Duration
	LockTTL         time.Duration
	// EstimateGas enables eth_estimateGas on the final contract call.
	EstimateGas bool
	// Sender is the From of gas estimates. Zero means the node's default.
	Sender          common.Address
	GasBufferPct    uint64
	PublishTimeout  time.Duration
	CleanupInterval time.Duration
}

// DefaultDispatcherConfig returns the standard dispatcher settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		DedupTTL:        2 * time.Minute,
		LockTTL:         30 * time.Second,
		GasBufferPct:    20,
		PublishTimeout:  time.Second,
		CleanupInterval: 30 * time.Second,
	}
}

// DispatcherDeps are the collaborators of a Dispatcher. Locks, Estimator,
// Audit, Alerter and Metrics are optional.
type DispatcherDeps struct {
	Bus       domain.SignalBus
	Locks     domain.LockManager
	Optimizer *gas.Optimizer
	Calldata  *calldata.Generator
	Estimator GasEstimator
	Audit     *audit.Recorder
	Alerter   Alerter
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Dispatcher turns execution payloads into transaction payloads: it derives
// the gas strategy, encodes the arbitrage call and publishes the result on
// "transaction-ready" and its durable stream.
type Dispatcher struct {
	mu       sync.RWMutex
	contract string

	cfg    DispatcherConfig
	deps   DispatcherDeps
	dedup  *Dedup
	logger *slog.Logger
}

// NewDispatcher validates the contract address and creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig, deps DispatcherDeps, logger *slog.Logger) (*Dispatcher, error) {
	def := DefaultDispatcherConfig()
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = def.DedupTTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	d := &Dispatcher{
		cfg:    cfg,
		deps:   deps,
		dedup:  NewDedup(cfg.DedupTTL, deps.Now),
		logger: logger.With(slog.String("component", "dispatcher")),
	}
	if err := d.SetContractAddress(cfg.ContractAddress); err != nil {
		return nil, err
	}
	return d, nil
}

// ContractAddress returns the arbitrage contract address.
func (d *Dispatcher) ContractAddress() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.contract
}

// SetContractAddress replaces the arbitrage contract address.
func (d *Dispatcher) SetContractAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("engine: %w", domain.ErrMissingContract)
	}
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("engine: %w: contract address %q", domain.ErrInvalidConfig, addr)
	}
	d.mu.Lock()
	d.contract = common.HexToAddress(addr).Hex()
	d.mu.Unlock()
	d.logger.Info("contract address set", slog.String("address", addr))
	return nil
}

// Optimizer exposes the gas optimizer for control operations.
func (d *Dispatcher) Optimizer() *gas.Optimizer { return d.deps.Optimizer }

// Run consumes "opportunity-execute" until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ch, err := d.deps.Bus.Subscribe(ctx, domain.ChannelOpportunityExecute)
	if err != nil {
		return fmt.Errorf("engine: subscribe %s: %w", domain.ChannelOpportunityExecute, err)
	}
	cleanup := time.NewTicker(d.cfg.CleanupInterval)
	defer cleanup.Stop()

	d.logger.Info("dispatcher started", slog.String("contract", d.ContractAddress()))
	defer d.logger.Info("dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cleanup.C:
			d.dedup.Cleanup()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := d.HandleMessage(ctx, data); err != nil && !errors.Is(err, ErrDuplicate) {
				d.logger.Warn("dispatch failed", slog.String("error", err.Error()))
			}
		}
	}
}

// HandleMessage decodes an ExecutionPayload and dispatches it.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) (domain.TransactionPayload, error) {
	var p domain.ExecutionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		d.deps.Metrics.BusError(domain.ChannelOpportunityExecute, "decode")
		return domain.TransactionPayload{}, fmt.Errorf("engine: decode execution payload: %w", err)
	}
	return d.Dispatch(ctx, p)
}

// Dispatch prepares and publishes the transaction for one execution payload.
func (d *Dispatcher) Dispatch(ctx context.Context, p domain.ExecutionPayload) (domain.TransactionPayload, error) {
	opp := p.Opportunity
	if err := opp.Validate(); err != nil {
		return domain.TransactionPayload{}, err
	}
	started := d.deps.Now()

	if d.dedup.Seen(opp.ID) {
		d.deps.Metrics.DispatchResult("gas", "duplicate", started)
		return domain.TransactionPayload{}, fmt.Errorf("%w: %s", ErrDuplicate, opp.ID)
	}
	if d.deps.Locks != nil {
		unlock, err := d.deps.Locks.Acquire(ctx, "dispatch:"+opp.ID, d.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			d.deps.Metrics.DispatchResult("gas", "duplicate", started)
			return domain.TransactionPayload{}, fmt.Errorf("%w: %s: lock held", ErrDuplicate, opp.ID)
		}
		if err != nil {
			d.dedup.Forget(opp.ID)
			return domain.TransactionPayload{}, fmt.Errorf("engine: acquire dispatch lock: %w", err)
		}
		// On success the lock is left to expire so other replicas skip the id.
		tx, err := d.prepareAndPublish(ctx, p, started)
		if err != nil {
			unlock()
		}
		return tx, err
	}
	return d.prepareAndPublish(ctx, p, started)
}

func (d *Dispatcher) prepareAndPublish(ctx context.Context, p domain.ExecutionPayload, started time.Time) (domain.TransactionPayload, error) {
	tx, err := d.Prepare(ctx, p.Opportunity)
	if err == nil {
		err = d.publish(ctx, tx)
	}
	if err != nil {
		d.dedup.Forget(p.Opportunity.ID)
		d.deps.Metrics.DispatchResult("gas", "failed", started)
		d.alert(ctx, domain.AlertError, fmt.Sprintf("dispatch of %s failed: %v", p.Opportunity.ID, err))
		return domain.TransactionPayload{}, err
	}

	d.deps.Metrics.DispatchResult("gas", "ready", started)
	d.logger.Info("transaction ready",
		slog.String("id", tx.ID),
		slog.String("opportunity_id", tx.Opportunity.ID),
		slog.String("gas_price_wei", tx.GasStrategy.GasPrice.String()),
		slog.Uint64("gas_limit", tx.GasStrategy.GasLimit),
		slog.String("priority_fee_wei", tx.GasStrategy.PriorityFee.String()),
		slog.Int("retry_count", p.RetryCount),
	)
	detail := audit.OpportunityDetail(tx.Opportunity)
	detail["transaction_id"] = tx.ID
	detail["gas_price_wei"] = tx.GasStrategy.GasPrice.String()
	detail["gas_limit"] = tx.GasStrategy.GasLimit
	detail["contract"] = tx.ContractAddress
	d.deps.Audit.Record(domain.AuditTransactionReady, detail)
	return tx, nil
}

// Prepare builds the TransactionPayload for opp without publishing it.
func (d *Dispatcher) Prepare(ctx context.Context, opp domain.Opportunity) (domain.TransactionPayload, error) {
	contract := d.ContractAddress()
	if contract == "" {
		return domain.TransactionPayload{}, fmt.Errorf("engine: %w", domain.ErrMissingContract)
	}

	strategy, fees := d.deps.Optimizer.Optimize(ctx, opp)
	if fees.Source == domain.FeeSourceDefault {
		d.alert(ctx, domain.AlertWarning, "fee data unavailable, using default network fees")
	}

	now := d.deps.Now()
	params, err := d.deps.Calldata.BuildParams(opp, contract, now)
	if err != nil {
		return domain.TransactionPayload{}, err
	}
	strategy.GasLimit = d.estimateGas(ctx, contract, params, strategy)

	return domain.TransactionPayload{
		ID:              uuid.NewString(),
		Opportunity:     opp,
		GasStrategy:     strategy,
		ContractAddress: contract,
		ArbitrageParams: params,
		EstimatedProfit: opp.ExpectedProfit.String(),
		Timestamp:       now.UnixMilli(),
	}, nil
}

// estimateGas returns the buffered eth_estimateGas result, or the strategy
// gas limit when estimation is disabled or fails.
func (d *Dispatcher) estimateGas(ctx context.Context, contract string, params domain.ArbitrageParams, s domain.GasStrategy) uint64 {
	if !d.cfg.EstimateGas || d.deps.Estimator == nil {
		return s.GasLimit
	}
	data, err := d.deps.Calldata.ExecuteArbitrage(params)
	if err != nil {
		d.logger.Warn("encode executeArbitrage failed", slog.String("error", err.Error()))
		return s.GasLimit
	}
	to := common.HexToAddress(contract)
	est, err := d.deps.Estimator.EstimateGas(ctx, ethereum.CallMsg{
		From:     d.cfg.Sender,
		To:       &to,
		GasPrice: new(big.Int).Set(s.GasPrice),
		Data:     data,
	})
	if err != nil || est == 0 {
		msg := "zero estimate"
		if err != nil {
			msg = err.Error()
		}
		d.logger.Warn("gas estimation failed, using strategy limit", slog.String("error", msg))
		return s.GasLimit
	}
	return est * (100 + d.cfg.GasBufferPct) / 100
}

func (d *Dispatcher) publish(ctx context.Context, tx domain.TransactionPayload) error {
	payload, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("engine: marshal transaction payload: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()
	if err := d.deps.Bus.Publish(pctx, domain.ChannelTransactionReady, payload); err != nil {
		d.deps.Metrics.BusError(domain.ChannelTransactionReady, "publish")
		return fmt.Errorf("engine: publish %s: %w", domain.ChannelTransactionReady, err)
	}
	if err := d.deps.Bus.StreamAppend(pctx, domain.StreamTransactionReady, payload); err != nil {
		// The pub/sub copy already went out; the stream is best effort.
		d.deps.Metrics.BusError(domain.StreamTransactionReady, "append")
		d.logger.Warn("stream append failed", slog.String("error", err.Error()))
	}
	return nil
}

func (d *Dispatcher) alert(ctx context.Context, level domain.AlertLevel, msg string) {
	if d.deps.Alerter == nil {
		return
	}
	if err := d.deps.Alerter.Alert(ctx, level, msg); err != nil {
		d.logger.Warn("alert failed", slog.String("error", err.Error()))
	}
}
