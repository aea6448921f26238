// Package engine runs the decision stages that sit between detection and
// execution: admission and scheduling (StrategyEngine), fee strategy and
// transaction preparation (Dispatcher), and execution result intake
// (ResultRecorder).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/audit"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/metrics"
	"github.com/alanyoungcy/orbitflash/internal/queue"
	"github.com/alanyoungcy/orbitflash/internal/risk"
	"github.com/alanyoungcy/orbitflash/internal/scoring"
)

// Alerter raises operator alerts. *notify.Notifier implements it.
type Alerter interface {
	Alert(ctx context.Context, level domain.AlertLevel, message string) error
}

// StrategyConfig controls the engine loops.
type StrategyConfig struct {
	DrainInterval   time.Duration
	CleanupInterval time.Duration
	PublishTimeout  time.Duration
}

// DefaultStrategyConfig drains every 100ms and cleans up every 30s.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		DrainInterval:   100 * time.Millisecond,
		CleanupInterval: 30 * time.Second,
		PublishTimeout:  time.Second,
	}
}

// StrategyDeps are the collaborators of a StrategyEngine. Audit, Alerter
// and Metrics are optional.
type StrategyDeps struct {
	Bus     domain.SignalBus
	Gate    *risk.Gate
	Scorer  *scoring.Scorer
	Queue   *queue.Queue
	Audit   *audit.Recorder
	Alerter Alerter
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Health is the engine health snapshot.
type Health struct {
	Running    bool              `json:"isRunning"`
	Subscribed bool              `json:"subscriberConnected"`
	QueueSize  int               `json:"queueSize"`
	QueueStats domain.QueueStats `json:"queueStats"`
	Admitted   int64             `json:"admitted"`
	Rejected   int64             `json:"rejected"`
	Dispatched int64             `json:"dispatched"`
}

// StrategyEngine admits opportunities from "opportunity-new" through the
// risk gate and scorer into the scheduling queue, and drains the queue onto
// "opportunity-execute".
type StrategyEngine struct {
	cfg    StrategyConfig
	deps   StrategyDeps
	logger *slog.Logger

	running    atomic.Bool
	subscribed atomic.Bool
	admitted   atomic.Int64
	rejected   atomic.Int64
	dispatched atomic.Int64
}

// NewStrategyEngine creates a StrategyEngine.
func NewStrategyEngine(cfg StrategyConfig, deps StrategyDeps, logger *slog.Logger) *StrategyEngine {
	def := DefaultStrategyConfig()
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = def.DrainInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &StrategyEngine{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "strategy_engine")),
	}
}

// Run consumes opportunities and drives the drain and cleanup ticks until
// ctx is cancelled. The in-flight tick completes before Run returns.
func (e *StrategyEngine) Run(ctx context.Context) error {
	ch, err := e.deps.Bus.Subscribe(ctx, domain.ChannelOpportunityNew)
	if err != nil {
		return fmt.Errorf("engine: subscribe %s: %w", domain.ChannelOpportunityNew, err)
	}
	e.subscribed.Store(true)
	e.running.Store(true)
	defer func() {
		e.running.Store(false)
		e.subscribed.Store(false)
	}()

	drain := time.NewTicker(e.cfg.DrainInterval)
	defer drain.Stop()
	cleanup := time.NewTicker(e.cfg.CleanupInterval)
	defer cleanup.Stop()

	e.logger.Info("strategy engine started",
		slog.Duration("drain_interval", e.cfg.DrainInterval),
	)
	defer e.logger.Info("strategy engine stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				e.subscribed.Store(false)
				ch = nil
				continue
			}
			if _, err := e.HandleMessage(ctx, data); err != nil {
				e.deps.Metrics.BusError(domain.ChannelOpportunityNew, "handle")
				e.logger.Debug("opportunity message discarded", slog.String("error", err.Error()))
			}
		case <-drain.C:
			e.DrainOnce(ctx)
		case <-cleanup.C:
			if n := e.Cleanup(); n > 0 {
				e.logger.Info("cleaned up expired opportunities", slog.Int("removed", n))
			}
		}
	}
}

// HandleMessage decodes and admits one opportunity. Malformed payloads return
// an error and are otherwise ignored.
func (e *StrategyEngine) HandleMessage(ctx context.Context, data []byte) (bool, error) {
	var opp domain.Opportunity
	if err := json.Unmarshal(data, &opp); err != nil {
		return false, fmt.Errorf("engine: decode opportunity: %w", err)
	}
	return e.Admit(ctx, opp)
}

// Admit runs opp through the risk gate and scorer and pushes it onto the
// queue. It reports whether the opportunity was enqueued; the error is
// non-nil only for invalid opportunities.
func (e *StrategyEngine) Admit(ctx context.Context, opp domain.Opportunity) (bool, error) {
	if err := opp.Validate(); err != nil {
		return false, err
	}

	assessment := e.deps.Gate.Assess(ctx, opp)
	if !assessment.Passed() {
		e.rejected.Add(1)
		e.deps.Metrics.OpportunityRejected(assessment.Verdict.Check)
		e.logger.Debug("opportunity rejected",
			slog.String("id", opp.ID),
			slog.String("check", assessment.Verdict.Check),
			slog.String("reason", assessment.Verdict.Reason),
		)
		detail := audit.OpportunityDetail(opp)
		detail["check"] = assessment.Verdict.Check
		detail["reason"] = assessment.Verdict.Reason
		detail["risk_level"] = string(assessment.Verdict.RiskLevel)
		e.deps.Audit.Record(domain.AuditOpportunityRejected, detail)
		return false, nil
	}

	score := e.deps.Scorer.Evaluate(ctx, opp)
	if !e.deps.Queue.Push(opp, score) {
		e.logger.Debug("opportunity not enqueued", slog.String("id", opp.ID))
		return false, nil
	}
	e.admitted.Add(1)
	depth := e.deps.Queue.Size()
	e.deps.Metrics.OpportunityScheduled(depth)
	e.logger.Info("opportunity scheduled",
		slog.String("id", opp.ID),
		slog.Float64("score", score.TotalScore),
		slog.Int("priority", score.Priority),
		slog.String("risk_level", string(assessment.Verdict.RiskLevel)),
		slog.Int("queue_depth", depth),
	)
	detail := audit.OpportunityDetail(opp)
	detail["score"] = score.TotalScore
	detail["priority"] = score.Priority
	e.deps.Audit.Record(domain.AuditOpportunityScheduled, detail)
	return true, nil
}

// DrainOnce pops the best entry and publishes it for execution. On publish
// failure the entry is requeued; once its retries are exhausted it is
// dropped. It reports whether an entry was published.
func (e *StrategyEngine) DrainOnce(ctx context.Context) bool {
	entry := e.deps.Queue.Pop()
	if entry == nil {
		return false
	}
	started := e.deps.Now()
	id := entry.Opportunity.ID

	err := e.publish(ctx, entry)
	e.deps.Metrics.SetQueueDepth(e.deps.Queue.Size())
	if err == nil {
		e.deps.Queue.MarkProcessed(id)
		e.dispatched.Add(1)
		e.deps.Metrics.DispatchResult("strategy", "published", started)
		e.logger.Info("opportunity dispatched",
			slog.String("id", id),
			slog.Int("priority", entry.Score.Priority),
			slog.Int("retry_count", entry.RetryCount),
		)
		detail := audit.OpportunityDetail(entry.Opportunity)
		detail["priority"] = entry.Score.Priority
		detail["retry_count"] = entry.RetryCount
		e.deps.Audit.Record(domain.AuditOpportunityDispatched, detail)
		return true
	}

	e.deps.Metrics.DispatchResult("strategy", "failed", started)
	e.logger.Warn("publish for execution failed",
		slog.String("id", id),
		slog.String("error", err.Error()),
	)
	if e.deps.Queue.Requeue(entry) {
		e.deps.Metrics.EntryRequeued()
		return false
	}

	e.logger.Warn("opportunity dropped after retries", slog.String("id", id))
	detail := audit.OpportunityDetail(entry.Opportunity)
	detail["reason"] = err.Error()
	e.deps.Audit.Record(domain.AuditOpportunityDropped, detail)
	e.alert(ctx, domain.AlertWarning, fmt.Sprintf("opportunity %s dropped after retries: %v", id, err))
	return false
}

func (e *StrategyEngine) publish(ctx context.Context, entry *domain.ScheduledEntry) error {
	payload, err := json.Marshal(domain.ExecutionPayload{
		Opportunity: entry.Opportunity,
		Score:       entry.Score,
		Timestamp:   e.deps.Now().UnixMilli(),
		RetryCount:  entry.RetryCount,
	})
	if err != nil {
		return fmt.Errorf("engine: marshal execution payload: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, e.cfg.PublishTimeout)
	defer cancel()
	if err := e.deps.Bus.Publish(pctx, domain.ChannelOpportunityExecute, payload); err != nil {
		e.deps.Metrics.BusError(domain.ChannelOpportunityExecute, "publish")
		return fmt.Errorf("engine: publish %s: %w", domain.ChannelOpportunityExecute, err)
	}
	return nil
}

func (e *StrategyEngine) alert(ctx context.Context, level domain.AlertLevel, msg string) {
	if e.deps.Alerter == nil {
		return
	}
	if err := e.deps.Alerter.Alert(ctx, level, msg); err != nil {
		e.logger.Warn("alert failed", slog.String("error", err.Error()))
	}
}

// Cleanup removes expired queue entries.
func (e *StrategyEngine) Cleanup() int {
	n := e.deps.Queue.Cleanup()
	e.deps.Metrics.SetQueueDepth(e.deps.Queue.Size())
	return n
}

// Health returns a snapshot of engine state.
func (e *StrategyEngine) Health() Health {
	return Health{
		Running:    e.running.Load(),
		Subscribed: e.subscribed.Load(),
		QueueSize:  e.deps.Queue.Size(),
		QueueStats: e.deps.Queue.Stats(),
		Admitted:   e.admitted.Load(),
		Rejected:   e.rejected.Load(),
		Dispatched: e.dispatched.Load(),
	}
}

// QueueStats summarises the queue.
func (e *StrategyEngine) QueueStats() domain.QueueStats { return e.deps.Queue.Stats() }

// QueueSize returns the queue length.
func (e *StrategyEngine) QueueSize() int { return e.deps.Queue.Size() }

// ClearQueue empties the queue and forgets processed ids.
func (e *StrategyEngine) ClearQueue() {
	e.deps.Queue.Clear()
	e.deps.Metrics.SetQueueDepth(0)
	e.logger.Info("queue cleared")
}

// ByUrgency lists queued entries with urgency u.
func (e *StrategyEngine) ByUrgency(u domain.Urgency) []domain.ScheduledEntry {
	return e.deps.Queue.ByUrgency(u)
}

// Queued returns the queued entry for id.
func (e *StrategyEngine) Queued(id string) (domain.ScheduledEntry, bool) {
	return e.deps.Queue.Get(id)
}

// HasOpportunity reports whether id is queued.
func (e *StrategyEngine) HasOpportunity(id string) bool { return e.deps.Queue.Has(id) }

// ScorerConfig returns the scorer configuration.
func (e *StrategyEngine) ScorerConfig() scoring.Config { return e.deps.Scorer.Config() }

// UpdateScorerConfig applies p to the scorer.
func (e *StrategyEngine) UpdateScorerConfig(p scoring.Patch) (scoring.Config, error) {
	cfg, err := e.deps.Scorer.UpdateConfig(p)
	if err != nil {
		return cfg, err
	}
	e.configChanged("scorer", cfg)
	return cfg, nil
}

// RiskConfig returns the risk gate configuration.
func (e *StrategyEngine) RiskConfig() risk.Config { return e.deps.Gate.Config() }

// UpdateRiskConfig applies p to the risk gate.
func (e *StrategyEngine) UpdateRiskConfig(p risk.Patch) (risk.Config, error) {
	cfg, err := e.deps.Gate.UpdateConfig(p)
	if err != nil {
		return cfg, err
	}
	e.configChanged("risk", cfg)
	return cfg, nil
}

// BlockToken blacklists a token.
func (e *StrategyEngine) BlockToken(token string) {
	e.deps.Gate.BlockToken(token)
	e.logger.Info("token blacklisted", slog.String("token", token))
}

// UnblockToken removes a token from the blacklist.
func (e *StrategyEngine) UnblockToken(token string) {
	e.deps.Gate.UnblockToken(token)
	e.logger.Info("token removed from blacklist", slog.String("token", token))
}

// BlockVenue blacklists a venue.
func (e *StrategyEngine) BlockVenue(venue string) {
	e.deps.Gate.BlockVenue(venue)
	e.logger.Info("venue blacklisted", slog.String("venue", venue))
}

// UnblockVenue removes a venue from the blacklist.
func (e *StrategyEngine) UnblockVenue(venue string) {
	e.deps.Gate.UnblockVenue(venue)
	e.logger.Info("venue removed from blacklist", slog.String("venue", venue))
}

// Blacklist returns the blacklisted tokens and venues.
func (e *StrategyEngine) Blacklist() (tokens, venues []string) { return e.deps.Gate.Blacklist() }

func (e *StrategyEngine) configChanged(component string, cfg any) {
	e.logger.Info("configuration updated", slog.String("target", component))
	e.deps.Audit.Record(domain.AuditConfigChanged, map[string]any{
		"target": component,
		"config": cfg,
	})
}
