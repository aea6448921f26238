// Package detector turns cross-venue price observations into arbitrage
// opportunities.
package detector

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

// ErrNoOpportunity is returned when a price pair does not yield a
// profitable trade.
var ErrNoOpportunity = errors.New("no opportunity")

// Config holds the fee model and thresholds of the profit calculation.
type Config struct {
	FlashLoanFee      float64            `json:"flashLoanFee"`
	VenueFees         map[string]float64 `json:"venueFees"`
	DefaultVenueFee   float64            `json:"defaultVenueFee"`
	GasPriceGwei      float64            `json:"gasPriceGwei"`
	GasLimit          uint64             `json:"gasLimit"`
	SlippageTolerance float64            `json:"slippageTolerance"`
	MinProfitEth      float64            `json:"minProfitEth"`
	TradeFraction     float64            `json:"tradeFraction"`

	// ReferenceLiquidity is the depth at which liquidity confidence saturates.
	ReferenceLiquidity float64 `json:"referenceLiquidity"`
}

// DefaultConfig returns the standard fee model.
func DefaultConfig() Config {
	return Config{
		FlashLoanFee: 0.0009,
		VenueFees: map[string]float64{
			"uniswap-v3": 0.003,
			"sushiswap":  0.003,
			"curve":      0.0004,
			"balancer":   0.0025,
		},
		DefaultVenueFee:    0.003,
		GasPriceGwei:       20,
		GasLimit:           500_000,
		SlippageTolerance:  0.005,
		MinProfitEth:       1,
		TradeFraction:      0.1,
		ReferenceLiquidity: 1_000_000,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.FlashLoanFee < 0 || c.DefaultVenueFee < 0 || c.SlippageTolerance < 0:
		return fmt.Errorf("%w: detector fees must not be negative", domain.ErrInvalidConfig)
	case c.GasPriceGwei < 0:
		return fmt.Errorf("%w: detector gasPriceGwei must not be negative", domain.ErrInvalidConfig)
	case c.TradeFraction <= 0 || c.TradeFraction > 1:
		return fmt.Errorf("%w: detector tradeFraction must be in (0,1]", domain.ErrInvalidConfig)
	case c.ReferenceLiquidity <= 0:
		return fmt.Errorf("%w: detector referenceLiquidity must be positive", domain.ErrInvalidConfig)
	case c.MinProfitEth < 0:
		return fmt.Errorf("%w: detector minProfitEth must not be negative", domain.ErrInvalidConfig)
	}
	for venue, fee := range c.VenueFees {
		if fee < 0 {
			return fmt.Errorf("%w: detector fee for %s must not be negative", domain.ErrInvalidConfig, venue)
		}
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.VenueFees = make(map[string]float64, len(c.VenueFees))
	for k, v := range c.VenueFees {
		out.VenueFees[k] = v
	}
	return out
}

// VenueFee returns the swap fee for venue, or DefaultVenueFee if unknown.
func (c Config) VenueFee(venue string) float64 {
	if fee, ok := c.VenueFees[venue]; ok {
		return fee
	}
	return c.DefaultVenueFee
}

// GasCostWei is gasPrice × gasLimit.
func (c Config) GasCostWei() *big.Int {
	return new(big.Int).Mul(units.GweiToWei(c.GasPriceGwei), new(big.Int).SetUint64(c.GasLimit))
}

// Patch is a partial update; venue fees are merged.
type Patch struct {
	FlashLoanFee       *float64           `json:"flashLoanFee,omitempty"`
	VenueFees          map[string]float64 `json:"venueFees,omitempty"`
	DefaultVenueFee    *float64           `json:"defaultVenueFee,omitempty"`
	GasPriceGwei       *float64           `json:"gasPriceGwei,omitempty"`
	GasLimit           *uint64            `json:"gasLimit,omitempty"`
	SlippageTolerance  *float64           `json:"slippageTolerance,omitempty"`
	MinProfitEth       *float64           `json:"minProfitEth,omitempty"`
	TradeFraction      *float64           `json:"tradeFraction,omitempty"`
	ReferenceLiquidity *float64           `json:"referenceLiquidity,omitempty"`
}

// Apply returns c with the patch merged in.
func (p Patch) Apply(c Config) Config {
	c = c.clone()
	if p.FlashLoanFee != nil {
		c.FlashLoanFee = *p.FlashLoanFee
	}
	for k, v := range p.VenueFees {
		c.VenueFees[k] = v
	}
	if p.DefaultVenueFee != nil {
		c.DefaultVenueFee = *p.DefaultVenueFee
	}
	if p.GasPriceGwei != nil {
		c.GasPriceGwei = *p.GasPriceGwei
	}
	if p.GasLimit != nil {
		c.GasLimit = *p.GasLimit
	}
	if p.SlippageTolerance != nil {
		c.SlippageTolerance = *p.SlippageTolerance
	}
	if p.MinProfitEth != nil {
		c.MinProfitEth = *p.MinProfitEth
	}
	if p.TradeFraction != nil {
		c.TradeFraction = *p.TradeFraction
	}
	if p.ReferenceLiquidity != nil {
		c.ReferenceLiquidity = *p.ReferenceLiquidity
	}
	return c
}

// Input is one pair of quotes for the same oriented token pair.
type Input struct {
	TokenA     string
	TokenB     string
	PriceA     float64
	PriceB     float64
	VenueA     string
	VenueB     string
	LiquidityA float64
	LiquidityB float64
	Now        time.Time
}

// TokenDecimals reports a token's decimals.
type TokenDecimals interface {
	Decimals(addr string) int32
}

// Calculator evaluates price pairs.
type Calculator struct {
	mu       sync.RWMutex
	cfg      Config
	decimals TokenDecimals
}

// NewCalculator creates a Calculator. decimals may be nil, in which case
// every token is treated as 18-decimal.
func NewCalculator(cfg Config, decimals TokenDecimals) *Calculator {
	return &Calculator{cfg: cfg.clone(), decimals: decimals}
}

// Config returns a copy of the active configuration.
func (c *Calculator) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.clone()
}

// UpdateConfig merges p into the configuration.
func (c *Calculator) UpdateConfig(p Patch) (Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := p.Apply(c.cfg)
	if err := next.Validate(); err != nil {
		return c.cfg.clone(), err
	}
	c.cfg = next
	return next.clone(), nil
}

// Calculate evaluates in and returns an opportunity, or an error wrapping
// ErrNoOpportunity with the rejection reason.
func (c *Calculator) Calculate(in Input) (domain.Opportunity, error) {
	cfg := c.Config()

	if in.PriceA <= 0 || in.PriceB <= 0 || math.IsNaN(in.PriceA) || math.IsNaN(in.PriceB) {
		return domain.Opportunity{}, fmt.Errorf("%w: non-positive price", ErrNoOpportunity)
	}
	if in.VenueA == in.VenueB {
		return domain.Opportunity{}, fmt.Errorf("%w: same venue", ErrNoOpportunity)
	}

	diff := math.Abs(in.PriceB-in.PriceA) / math.Min(in.PriceA, in.PriceB)
	fees := cfg.FlashLoanFee + cfg.VenueFee(in.VenueA) + cfg.VenueFee(in.VenueB)
	required := fees + cfg.SlippageTolerance
	if diff <= required {
		return domain.Opportunity{}, fmt.Errorf("%w: spread %.6f does not cover %.6f", ErrNoOpportunity, diff, required)
	}

	minLiq := math.Min(in.LiquidityA, in.LiquidityB)
	size := minLiq * cfg.TradeFraction
	if size <= 0 {
		return domain.Opportunity{}, fmt.Errorf("%w: no liquidity", ErrNoOpportunity)
	}

	gasCost := cfg.GasCostWei()
	net := diff*size - required*size - units.WeiToEther(gasCost)
	if net <= 0 {
		return domain.Opportunity{}, fmt.Errorf("%w: net profit %.6f not positive", ErrNoOpportunity, net)
	}
	if net < cfg.MinProfitEth {
		return domain.Opportunity{}, fmt.Errorf("%w: net profit %.6f below minimum %.6f", ErrNoOpportunity, net, cfg.MinProfitEth)
	}

	urgency := domain.UrgencyLow
	switch margin := net / size; {
	case margin > 0.05:
		urgency = domain.UrgencyHigh
	case margin > 0.02:
		urgency = domain.UrgencyMedium
	}

	tokenIn, tokenOut := in.TokenA, in.TokenB
	buyVenue, sellVenue := in.VenueA, in.VenueB
	if in.PriceA >= in.PriceB {
		tokenIn, tokenOut = in.TokenB, in.TokenA
		buyVenue, sellVenue = in.VenueB, in.VenueA
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	return domain.Opportunity{
		ID:                OpportunityID(in.TokenA, in.TokenB, in.VenueA, in.VenueB, now),
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          c.baseUnits(tokenIn, size),
		ExpectedProfit:    units.EtherToWei(net),
		GasEstimate:       gasCost,
		SlippageTolerance: cfg.SlippageTolerance,
		Confidence:        Confidence(in.LiquidityA, in.LiquidityB, diff, cfg.ReferenceLiquidity),
		Path:              []string{tokenIn, tokenOut},
		Venues:            []string{buyVenue, sellVenue},
		Urgency:           urgency,
		CreatedAtMs:       now.UnixMilli(),
	}, nil
}

func (c *Calculator) baseUnits(token string, amount float64) *big.Int {
	if c.decimals == nil {
		return units.EtherToWei(amount)
	}
	return units.ScaleUp(amount, c.decimals.Decimals(token))
}

// EstimateGasCost returns the gas cost in wei of a transaction kind at the
// configured gas price.
func (c *Calculator) EstimateGasCost(kind string) (*big.Int, error) {
	var limit int64
	switch kind {
	case "simple":
		limit = 150_000
	case "flash-loan":
		limit = 500_000
	case "multi-dex":
		limit = 800_000
	default:
		return nil, fmt.Errorf("detector: unknown transaction kind %q", kind)
	}
	price := units.GweiToWei(c.Config().GasPriceGwei)
	return price.Mul(price, big.NewInt(limit)), nil
}

// Confidence blends liquidity depth with price stability, clamped to
// [0.1, 1].
func Confidence(liqA, liqB, diff, reference float64) float64 {
	liquidity := math.Min(math.Min(liqA, liqB)/reference, 1)
	stability := math.Max(0, 1-diff*10)
	return math.Max(0.1, math.Min(1, 0.7*liquidity+0.3*stability))
}

// OpportunityID is "arb-<sorted tokens>-<sorted venues>-<ms>".
func OpportunityID(tokenA, tokenB, venueA, venueB string, at time.Time) string {
	tokens := []string{tokenA, tokenB}
	venues := []string{venueA, venueB}
	slices.Sort(tokens)
	slices.Sort(venues)
	return fmt.Sprintf("arb-%s-%s-%d", strings.Join(tokens, "-"), strings.Join(venues, "-"), at.UnixMilli())
}

// PairKey normalises a token pair into a direction-independent key.
func PairKey(tokenA, tokenB string) string {
	if tokenB < tokenA {
		tokenA, tokenB = tokenB, tokenA
	}
	return tokenA + "-" + tokenB
}
