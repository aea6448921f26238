// Package gas derives fee strategies for dispatching opportunities on
// Arbitrum.
package gas

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/metrics"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

// Config controls fee aggressiveness and gas limit estimation.
type Config struct {
	BaseFeePremium   float64       `json:"baseFeePremium"`
	LowMultiplier    float64       `json:"lowMultiplier"`
	MediumMultiplier float64       `json:"mediumMultiplier"`
	HighMultiplier   float64       `json:"highMultiplier"`
	MaxGasPriceGwei  float64       `json:"maxGasPriceGwei"`
	MinGasPriceGwei  float64       `json:"minGasPriceGwei"`
	GasLimitBuffer   float64       `json:"gasLimitBuffer"`
	MaxGasLimit      uint64        `json:"maxGasLimit"`
	FeeTimeout       time.Duration `json:"feeTimeout"`
}

// DefaultConfig returns the standard fee settings.
func DefaultConfig() Config {
	return Config{
		BaseFeePremium:   1.1,
		LowMultiplier:    1.0,
		MediumMultiplier: 1.5,
		HighMultiplier:   2.0,
		MaxGasPriceGwei:  100,
		MinGasPriceGwei:  0.1,
		GasLimitBuffer:   0.2,
		MaxGasLimit:      2_000_000,
		FeeTimeout:       2 * time.Second,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.BaseFeePremium < 1:
		return fmt.Errorf("%w: gas baseFeePremium must be >= 1", domain.ErrInvalidConfig)
	case c.LowMultiplier < 0 || c.MediumMultiplier < 0 || c.HighMultiplier < 0:
		return fmt.Errorf("%w: gas urgency multipliers must not be negative", domain.ErrInvalidConfig)
	case c.MinGasPriceGwei <= 0 || c.MaxGasPriceGwei < c.MinGasPriceGwei:
		return fmt.Errorf("%w: gas price bounds must satisfy 0 < min <= max", domain.ErrInvalidConfig)
	case c.GasLimitBuffer < 0:
		return fmt.Errorf("%w: gas limit buffer must not be negative", domain.ErrInvalidConfig)
	case c.MaxGasLimit == 0:
		return fmt.Errorf("%w: gas maxGasLimit must be positive", domain.ErrInvalidConfig)
	case c.FeeTimeout <= 0:
		return fmt.Errorf("%w: gas feeTimeout must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

func (c Config) multiplier(u domain.Urgency) float64 {
	switch u {
	case domain.UrgencyHigh:
		return c.HighMultiplier
	case domain.UrgencyMedium:
		return c.MediumMultiplier
	default:
		return c.LowMultiplier
	}
}

// Patch is a partial config update.
type Patch struct {
	BaseFeePremium   *float64       `json:"baseFeePremium,omitempty"`
	LowMultiplier    *float64       `json:"lowMultiplier,omitempty"`
	MediumMultiplier *float64       `json:"mediumMultiplier,omitempty"`
	HighMultiplier   *float64       `json:"highMultiplier,omitempty"`
	MaxGasPriceGwei  *float64       `json:"maxGasPriceGwei,omitempty"`
	MinGasPriceGwei  *float64       `json:"minGasPriceGwei,omitempty"`
	GasLimitBuffer   *float64       `json:"gasLimitBuffer,omitempty"`
	MaxGasLimit      *uint64        `json:"maxGasLimit,omitempty"`
	FeeTimeout       *time.Duration `json:"feeTimeout,omitempty"`
}

// Apply returns c with the patch merged in.
func (p Patch) Apply(c Config) Config {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.BaseFeePremium, p.BaseFeePremium)
	set(&c.LowMultiplier, p.LowMultiplier)
	set(&c.MediumMultiplier, p.MediumMultiplier)
	set(&c.HighMultiplier, p.HighMultiplier)
	set(&c.MaxGasPriceGwei, p.MaxGasPriceGwei)
	set(&c.MinGasPriceGwei, p.MinGasPriceGwei)
	set(&c.GasLimitBuffer, p.GasLimitBuffer)
	if p.MaxGasLimit != nil {
		c.MaxGasLimit = *p.MaxGasLimit
	}
	if p.FeeTimeout != nil {
		c.FeeTimeout = *p.FeeTimeout
	}
	return c
}

// FallbackStrategy is used when no strategy can be derived at all.
func FallbackStrategy() domain.GasStrategy {
	return domain.GasStrategy{
		GasPrice:    units.GweiToWei(2),
		GasLimit:    800_000,
		PriorityFee: units.GweiToWei(1),
	}
}

// Optimizer derives gas strategies from live network fees.
type Optimizer struct {
	mu      sync.RWMutex
	cfg     Config
	sources []FeeSource
	valuer  domain.TokenValuer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewOptimizer creates an Optimizer. sources are tried in order; when all
// fail DefaultFees is used. valuer may be nil.
func NewOptimizer(cfg Config, sources []FeeSource, valuer domain.TokenValuer, m *metrics.Metrics, logger *slog.Logger) *Optimizer {
	return &Optimizer{
		cfg:     cfg,
		sources: sources,
		valuer:  valuer,
		metrics: m,
		logger:  logger.With(slog.String("component", "gas_optimizer")),
	}
}

// Config returns the active configuration.
func (o *Optimizer) Config() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// UpdateConfig merges p into the active configuration.
func (o *Optimizer) UpdateConfig(p Patch) (Config, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := p.Apply(o.cfg)
	if err := next.Validate(); err != nil {
		return o.cfg, err
	}
	o.cfg = next
	return next, nil
}

// CurrentNetworkFees returns the first fee snapshot any source can provide,
// or DefaultFees. Each source gets its own FeeTimeout.
func (o *Optimizer) CurrentNetworkFees(ctx context.Context) domain.NetworkFees {
	timeout := o.Config().FeeTimeout
	for _, src := range o.sources {
		qctx, cancel := context.WithTimeout(ctx, timeout)
		fees, err := src.NetworkFees(qctx)
		cancel()
		if err == nil && fees.BaseFee != nil && fees.PriorityFee != nil {
			o.metrics.FeeSourceUsed(src.Name())
			return fees
		}
		if err != nil {
			o.logger.Warn("fee source failed",
				slog.String("source", src.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
	o.metrics.FeeSourceUsed(string(domain.FeeSourceDefault))
	return DefaultFees()
}

// Optimize derives the gas strategy for opp and returns it together with the
// fee snapshot it was based on.
func (o *Optimizer) Optimize(ctx context.Context, opp domain.Opportunity) (domain.GasStrategy, domain.NetworkFees) {
	if err := opp.Validate(); err != nil {
		o.logger.Warn("cannot derive gas strategy, using fallback",
			slog.String("error", err.Error()),
		)
		s := FallbackStrategy()
		s.GasPrice = BoundGasPrice(o.Config(), s.GasPrice)
		return s, domain.NetworkFees{Source: domain.FeeSourceDefault}
	}
	cfg := o.Config()
	fees := o.CurrentNetworkFees(ctx)

	priority := PriorityFee(cfg, fees, opp.Urgency)
	price := BoundGasPrice(cfg, new(big.Int).Add(fees.BaseFee, priority))

	amountEth := units.WeiToEther(opp.AmountIn)
	if o.valuer != nil {
		if v, err := o.valuer.EthEquivalent(ctx, opp.TokenIn, opp.AmountIn); err == nil {
			amountEth = v
		}
	}
	return domain.GasStrategy{
		GasPrice:    price,
		GasLimit:    GasLimit(cfg, opp, amountEth),
		PriorityFee: priority,
	}, fees
}

// Strategy is Optimize without the fee snapshot.
func (o *Optimizer) Strategy(ctx context.Context, opp domain.Opportunity) domain.GasStrategy {
	s, _ := o.Optimize(ctx, opp)
	return s
}

// Recommendations returns the gas price for each urgency level. When no fee
// source answered, the fixed 2/3/4 gwei ladder is returned.
func (o *Optimizer) Recommendations(ctx context.Context) map[domain.Urgency]*big.Int {
	fees := o.CurrentNetworkFees(ctx)
	if fees.Source == domain.FeeSourceDefault {
		return map[domain.Urgency]*big.Int{
			domain.UrgencyLow:    units.GweiToWei(2),
			domain.UrgencyMedium: units.GweiToWei(3),
			domain.UrgencyHigh:   units.GweiToWei(4),
		}
	}
	cfg := o.Config()
	out := make(map[domain.Urgency]*big.Int, 3)
	for _, u := range []domain.Urgency{domain.UrgencyLow, domain.UrgencyMedium, domain.UrgencyHigh} {
		out[u] = new(big.Int).Add(fees.BaseFee, PriorityFee(cfg, fees, u))
	}
	return out
}

// PriorityFee is the base fee premium plus the urgency-scaled network
// priority fee, floored at 1 gwei. Multipliers are rounded to the nearest
// whole percent.
func PriorityFee(cfg Config, fees domain.NetworkFees, u domain.Urgency) *big.Int {
	premiumPct := int64(math.Round((cfg.BaseFeePremium - 1) * 100))
	urgencyPct := int64(math.Round(cfg.multiplier(u) * 100))
	fee := units.MulFrac(fees.BaseFee, premiumPct, 100)
	fee.Add(fee, units.MulFrac(fees.PriorityFee, urgencyPct, 100))
	return units.MaxInt(fee, minPriorityFee)
}

// BoundGasPrice clamps price to the configured bounds.
func BoundGasPrice(cfg Config, price *big.Int) *big.Int {
	return units.ClampInt(price, units.GweiToWei(cfg.MinGasPriceGwei), units.GweiToWei(cfg.MaxGasPriceGwei))
}

// Gas components of an arbitrage transaction.
const (
	BaseTxGas        = 21_000
	FlashLoanGas     = 200_000
	SwapGasPerVenue  = 150_000
	LargeTradeGas    = 50_000
	HighUrgencyGas   = 25_000
	LowConfidenceGas = 30_000
)

// GasLimit estimates the gas limit for opp with the configured buffer,
// capped at MaxGasLimit.
func GasLimit(cfg Config, opp domain.Opportunity, amountEth float64) uint64 {
	gas := uint64(BaseTxGas + FlashLoanGas + SwapGasPerVenue*len(opp.Venues))
	if amountEth > 10 {
		gas += LargeTradeGas
	}
	if opp.Urgency == domain.UrgencyHigh {
		gas += HighUrgencyGas
	}
	if opp.Confidence < 0.7 {
		gas += LowConfidenceGas
	}
	buffer := uint64(math.Round(cfg.GasLimitBuffer * 100))
	gas = gas * (100 + buffer) / 100
	return min(gas, cfg.MaxGasLimit)
}
