// Package scoring ranks admitted opportunities by expected profit, risk and
// anticipated MEV competition.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

// Config holds the scoring weights and thresholds.
type Config struct {
	ProfitWeight      float64 `json:"profitWeight"`
	RiskWeight        float64 `json:"riskWeight"`
	CompetitionWeight float64 `json:"competitionWeight"`
	MinProfitEth      float64 `json:"minProfitEth"`
	MaxSlippage       float64 `json:"maxSlippage"`
}

// DefaultConfig returns the standard weights. MinProfitEth matches the risk
// gate's admission floor.
func DefaultConfig() Config {
	return Config{
		ProfitWeight:      0.5,
		RiskWeight:        0.3,
		CompetitionWeight: 0.2,
		MinProfitEth:      0.01,
		MaxSlippage:       0.02,
	}
}

// Validate checks the configuration for values the formulas cannot use.
func (c Config) Validate() error {
	if c.MinProfitEth <= 0 {
		return fmt.Errorf("%w: scorer minProfitEth must be positive", domain.ErrInvalidConfig)
	}
	if c.MaxSlippage <= 0 {
		return fmt.Errorf("%w: scorer maxSlippage must be positive", domain.ErrInvalidConfig)
	}
	if c.ProfitWeight < 0 || c.RiskWeight < 0 || c.CompetitionWeight < 0 {
		return fmt.Errorf("%w: scorer weights must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// Patch is a partial config update; nil fields are left unchanged.
type Patch struct {
	ProfitWeight      *float64 `json:"profitWeight,omitempty"`
	RiskWeight        *float64 `json:"riskWeight,omitempty"`
	CompetitionWeight *float64 `json:"competitionWeight,omitempty"`
	MinProfitEth      *float64 `json:"minProfitEth,omitempty"`
	MaxSlippage       *float64 `json:"maxSlippage,omitempty"`
}

// Apply returns c with the patch merged in.
func (p Patch) Apply(c Config) Config {
	if p.ProfitWeight != nil {
		c.ProfitWeight = *p.ProfitWeight
	}
	if p.RiskWeight != nil {
		c.RiskWeight = *p.RiskWeight
	}
	if p.CompetitionWeight != nil {
		c.CompetitionWeight = *p.CompetitionWeight
	}
	if p.MinProfitEth != nil {
		c.MinProfitEth = *p.MinProfitEth
	}
	if p.MaxSlippage != nil {
		c.MaxSlippage = *p.MaxSlippage
	}
	return c
}

// VolatilityClassifier returns a volatility penalty for a token pair.
type VolatilityClassifier interface {
	VolatilityPenalty(tokenIn, tokenOut string) float64
}

// Scorer computes OpportunityScore values.
type Scorer struct {
	mu         sync.RWMutex
	cfg        Config
	volatility VolatilityClassifier
	valuer     domain.TokenValuer
	logger     *slog.Logger
}

// NewScorer creates a Scorer.
func NewScorer(cfg Config, volatility VolatilityClassifier, valuer domain.TokenValuer, logger *slog.Logger) *Scorer {
	return &Scorer{
		cfg:        cfg,
		volatility: volatility,
		valuer:     valuer,
		logger:     logger.With(slog.String("component", "scorer")),
	}
}

// Config returns a copy of the active configuration.
func (s *Scorer) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateConfig merges p into the active configuration.
func (s *Scorer) UpdateConfig(p Patch) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := p.Apply(s.cfg)
	if err := next.Validate(); err != nil {
		return s.cfg, err
	}
	s.cfg = next
	return next, nil
}

// Evaluate scores opp. Any failure degrades to a zero score.
func (s *Scorer) Evaluate(ctx context.Context, opp domain.Opportunity) domain.OpportunityScore {
	if err := opp.Validate(); err != nil {
		s.logger.Warn("cannot score opportunity", slog.String("error", err.Error()))
		return domain.OpportunityScore{}
	}
	cfg := s.Config()

	profit := ProfitScore(units.WeiToEther(opp.ExpectedProfit), cfg.MinProfitEth)
	risk := s.riskScore(ctx, cfg, opp)
	competition := CompetitionScore(units.WeiToEther(opp.ExpectedProfit), opp.Urgency)

	total := profit*cfg.ProfitWeight + risk*cfg.RiskWeight + competition*cfg.CompetitionWeight
	if math.IsNaN(total) || math.IsInf(total, 0) {
		s.logger.Warn("non-finite score", slog.String("id", opp.ID))
		return domain.OpportunityScore{}
	}
	return domain.OpportunityScore{
		TotalScore: math.Round(total*100) / 100,
		Priority:   int(math.Floor(total * UrgencyMultiplier(opp.Urgency) * 100)),
	}
}

func (s *Scorer) riskScore(ctx context.Context, cfg Config, opp domain.Opportunity) float64 {
	liquidityPenalty := 15.0
	if amount, err := s.valuer.EthEquivalent(ctx, opp.TokenIn, opp.AmountIn); err == nil {
		liquidityPenalty = LiquidityPenalty(amount)
	} else {
		s.logger.Debug("valuation failed, using default liquidity penalty",
			slog.String("id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
	return RiskScore(
		SlippagePenalty(opp.SlippageTolerance, cfg.MaxSlippage),
		liquidityPenalty,
		s.volatility.VolatilityPenalty(opp.TokenIn, opp.TokenOut),
		opp.Confidence,
	)
}

// ProfitScore maps profit (ETH) onto 0..100 on a log scale where 100x the
// minimum profit scores 100.
func ProfitScore(profitEth, minProfitEth float64) float64 {
	if profitEth <= 0 || profitEth < minProfitEth || minProfitEth <= 0 {
		return 0
	}
	score := math.Log10(profitEth/minProfitEth+1) / math.Log10(101) * 100
	return math.Min(100, score)
}

// SlippagePenalty is 50 above the maximum, otherwise linear up to 20.
func SlippagePenalty(slippage, maxSlippage float64) float64 {
	if slippage > maxSlippage {
		return 50
	}
	return slippage / maxSlippage * 20
}

// LiquidityPenalty grows linearly from 0 at 1 ETH to 30 at 10 ETH.
func LiquidityPenalty(amountEth float64) float64 {
	switch {
	case amountEth < 1:
		return 0
	case amountEth > 10:
		return 30
	default:
		return (amountEth - 1) / 9 * 30
	}
}

// RiskScore combines the penalties and a confidence bonus into 0..100.
func RiskScore(slippagePenalty, liquidityPenalty, volatilityPenalty, confidence float64) float64 {
	score := 100 - slippagePenalty - liquidityPenalty - volatilityPenalty + (confidence-0.5)*20
	return clamp(score, 0, 100)
}

// CompetitionScore estimates how contested an opportunity is; higher means
// less competition.
func CompetitionScore(profitEth float64, u domain.Urgency) float64 {
	score := 100.0
	switch {
	case profitEth > 5:
		score -= 30
	case profitEth > 1:
		score -= 15
	}
	switch u {
	case domain.UrgencyHigh:
		score -= 20
	case domain.UrgencyMedium:
		score -= 10
	}
	return clamp(score, 0, 100)
}

// UrgencyMultiplier scales priority by urgency.
func UrgencyMultiplier(u domain.Urgency) float64 {
	switch u {
	case domain.UrgencyHigh:
		return 1.5
	case domain.UrgencyMedium:
		return 1.2
	default:
		return 1.0
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
