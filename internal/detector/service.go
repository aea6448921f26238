package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/metrics"
)

// LiquiditySource supplies pool depth for an observation that carries none.
type LiquiditySource interface {
	Liquidity(ctx context.Context, obs domain.PriceObservation) (float64, error)
}

// ConstantLiquidity reports the same depth for every pool.
type ConstantLiquidity float64

func (c ConstantLiquidity) Liquidity(context.Context, domain.PriceObservation) (float64, error) {
	return float64(c), nil
}

// ServiceConfig controls caching and buffering around the calculator.
type ServiceConfig struct {
	ObservationTTL time.Duration
	OpportunityTTL time.Duration
	BufferSize     int
	BufferWindow   time.Duration
	PruneInterval  time.Duration
}

// DefaultServiceConfig returns the standard detector service settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ObservationTTL: 100 * time.Millisecond,
		OpportunityTTL: 5 * time.Minute,
		BufferSize:     10,
		BufferWindow:   time.Minute,
		PruneInterval:  30 * time.Second,
	}
}

// ServiceDeps are the collaborators of a Service.
type ServiceDeps struct {
	Bus           domain.SignalBus
	Observations  domain.ObservationCache
	Opportunities domain.OpportunityCache
	// Liquidity defaults to ConstantLiquidity(1_000_000).
	Liquidity LiquiditySource
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Service consumes "price-update" messages, compares the latest quote of
// every venue for the updated pair and publishes profitable opportunities on
// "opportunity-new".
type Service struct {
	cfg    ServiceConfig
	calc   *Calculator
	buffer *PriceBuffer
	deps   ServiceDeps
	logger *slog.Logger
}

// NewService creates a detector Service.
func NewService(calc *Calculator, cfg ServiceConfig, deps ServiceDeps, logger *slog.Logger) *Service {
	def := DefaultServiceConfig()
	if cfg.ObservationTTL <= 0 {
		cfg.ObservationTTL = def.ObservationTTL
	}
	if cfg.OpportunityTTL <= 0 {
		cfg.OpportunityTTL = def.OpportunityTTL
	}
	if cfg.BufferWindow <= 0 {
		cfg.BufferWindow = def.BufferWindow
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = def.PruneInterval
	}
	if deps.Liquidity == nil {
		deps.Liquidity = ConstantLiquidity(1_000_000)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		cfg:    cfg,
		calc:   calc,
		buffer: NewPriceBuffer(cfg.BufferSize),
		deps:   deps,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Calculator exposes the profit calculator for configuration.
func (s *Service) Calculator() *Calculator { return s.calc }

// BufferStatus returns buffered observation counts per pair.
func (s *Service) BufferStatus() map[string]int { return s.buffer.Status() }

// Run consumes price updates until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ch, err := s.deps.Bus.Subscribe(ctx, domain.ChannelPriceUpdate)
	if err != nil {
		return fmt.Errorf("detector: subscribe: %w", err)
	}
	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	s.logger.Info("detector started")
	defer s.logger.Info("detector stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Prune(); n > 0 {
				s.logger.Debug("pruned price buffer", slog.Int("dropped", n))
			}
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := s.HandleMessage(ctx, data); err != nil {
				s.deps.Metrics.BusError(domain.ChannelPriceUpdate, "handle")
				s.logger.Debug("price update discarded",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}

// Prune drops buffered observations older than the buffer window.
func (s *Service) Prune() int {
	return s.buffer.Prune(s.deps.Now().Add(-s.cfg.BufferWindow))
}

// HandleMessage decodes one price-update payload and processes it.
func (s *Service) HandleMessage(ctx context.Context, data []byte) ([]domain.Opportunity, error) {
	var obs domain.PriceObservation
	if err := json.Unmarshal(data, &obs); err != nil {
		return nil, fmt.Errorf("detector: decode observation: %w", err)
	}
	return s.HandleObservation(ctx, obs)
}

// HandleObservation caches and buffers obs, then evaluates every venue pair
// of its token pair. Published opportunities are returned.
func (s *Service) HandleObservation(ctx context.Context, obs domain.PriceObservation) ([]domain.Opportunity, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}
	if obs.ObservedAt == 0 {
		obs.ObservedAt = s.deps.Now().UnixMilli()
	}
	s.deps.Metrics.ObservationReceived(obs.Venue)

	if err := s.deps.Observations.SetObservation(ctx, obs, s.cfg.ObservationTTL); err != nil {
		return nil, fmt.Errorf("detector: cache observation: %w", err)
	}
	key := s.buffer.Add(obs)
	latest := s.buffer.LatestPerVenue(key)

	var found []domain.Opportunity
	for i := 0; i < len(latest); i++ {
		for j := i + 1; j < len(latest); j++ {
			opp, ok := s.evaluate(ctx, latest[i], latest[j])
			if !ok {
				continue
			}
			if err := s.publish(ctx, opp); err != nil {
				s.logger.Warn("publish opportunity failed",
					slog.String("id", opp.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			found = append(found, opp)
		}
	}
	return found, nil
}

func (s *Service) evaluate(ctx context.Context, a, b domain.PriceObservation) (domain.Opportunity, bool) {
	if !s.fresh(ctx, a) || !s.fresh(ctx, b) {
		return domain.Opportunity{}, false
	}

	priceB := b.Price
	if b.TokenA != a.TokenA {
		priceB = 1 / b.Price
	}
	liqA, errA := s.liquidity(ctx, a)
	liqB, errB := s.liquidity(ctx, b)
	if err := errors.Join(errA, errB); err != nil {
		s.logger.Debug("liquidity lookup failed", slog.String("error", err.Error()))
		return domain.Opportunity{}, false
	}

	opp, err := s.calc.Calculate(Input{
		TokenA:     a.TokenA,
		TokenB:     a.TokenB,
		PriceA:     a.Price,
		PriceB:     priceB,
		VenueA:     a.Venue,
		VenueB:     b.Venue,
		LiquidityA: liqA,
		LiquidityB: liqB,
		Now:        s.deps.Now(),
	})
	if err != nil {
		return domain.Opportunity{}, false
	}
	return opp, true
}

func (s *Service) fresh(ctx context.Context, obs domain.PriceObservation) bool {
	cached, err := s.deps.Observations.GetObservation(ctx, obs.TokenA, obs.TokenB, obs.Venue)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("observation cache read failed", slog.String("error", err.Error()))
		}
		return false
	}
	return cached.ObservedAt >= obs.ObservedAt
}

func (s *Service) liquidity(ctx context.Context, obs domain.PriceObservation) (float64, error) {
	if obs.Liquidity > 0 {
		return obs.Liquidity, nil
	}
	return s.deps.Liquidity.Liquidity(ctx, obs)
}

func (s *Service) publish(ctx context.Context, opp domain.Opportunity) error {
	payload, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("detector: marshal opportunity: %w", err)
	}
	if err := s.deps.Bus.Publish(ctx, domain.ChannelOpportunityNew, payload); err != nil {
		s.deps.Metrics.BusError(domain.ChannelOpportunityNew, "publish")
		return err
	}
	s.deps.Metrics.OpportunityDetected(string(opp.Urgency))
	s.logger.Info("opportunity detected",
		slog.String("id", opp.ID),
		slog.String("token_in", opp.TokenIn),
		slog.String("token_out", opp.TokenOut),
		slog.String("expected_profit_wei", opp.ExpectedProfit.String()),
		slog.String("urgency", string(opp.Urgency)),
		slog.Float64("confidence", opp.Confidence),
	)
	if s.deps.Opportunities != nil {
		if err := s.deps.Opportunities.SetOpportunity(ctx, opp, s.cfg.OpportunityTTL); err != nil {
			s.logger.Warn("cache opportunity failed", slog.String("error", err.Error()))
		}
	}
	return nil
}
