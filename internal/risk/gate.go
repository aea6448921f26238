// Package risk implements the admission gate that every detected
// opportunity must pass before it is scored and queued.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

// Check names, in verdict order.
const (
	CheckProfit    = "profit_threshold"
	CheckPosition  = "position_size"
	CheckSlippage  = "slippage"
	CheckGasPrice  = "gas_price"
	CheckTokens    = "token_blacklist"
	CheckVenues    = "venue_blacklist"
	CheckLiquidity = "liquidity_depth"
)

// Gate runs the admission checks.
type Gate struct {
	mu            sync.RWMutex
	cfg           Config
	blockedTokens map[string]struct{}
	blockedVenues map[string]struct{}
	valuer        domain.TokenValuer
	pools         domain.PoolSizer
	logger        *slog.Logger
}

// NewGate creates a Gate.
func NewGate(cfg Config, valuer domain.TokenValuer, pools domain.PoolSizer, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:           cfg.clone(),
		blockedTokens: make(map[string]struct{}),
		blockedVenues: make(map[string]struct{}),
		valuer:        valuer,
		pools:         pools,
		logger:        logger.With(slog.String("component", "risk_gate")),
	}
}

type snapshot struct {
	cfg    Config
	tokens map[string]struct{}
	venues map[string]struct{}
}

func (g *Gate) snapshot() snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := snapshot{
		cfg:    g.cfg.clone(),
		tokens: make(map[string]struct{}, len(g.blockedTokens)),
		venues: make(map[string]struct{}, len(g.blockedVenues)),
	}
	for k := range g.blockedTokens {
		s.tokens[k] = struct{}{}
	}
	for k := range g.blockedVenues {
		s.venues[k] = struct{}{}
	}
	return s
}

// Check returns the verdict for opp.
func (g *Gate) Check(ctx context.Context, opp domain.Opportunity) domain.RiskCheckResult {
	return g.Assess(ctx, opp).Verdict
}

// Assess runs every check concurrently and reduces them to a verdict: the
// first failure in check order, or a pass with an overall risk level.
// Failures are reported in the result, never as errors.
func (g *Gate) Assess(ctx context.Context, opp domain.Opportunity) domain.RiskAssessment {
	if err := opp.Validate(); err != nil {
		r := fail("validation", err.Error(), domain.RiskHigh)
		return domain.RiskAssessment{Verdict: r, Checks: []domain.RiskCheckResult{r}}
	}
	s := g.snapshot()

	checks := []func(context.Context) domain.RiskCheckResult{
		func(context.Context) domain.RiskCheckResult { return s.checkProfit(opp.ExpectedProfit) },
		func(ctx context.Context) domain.RiskCheckResult { return g.checkPosition(ctx, s, opp) },
		func(context.Context) domain.RiskCheckResult { return s.checkSlippage(opp.SlippageTolerance) },
		func(context.Context) domain.RiskCheckResult { return s.checkGasPrice(opp.GasEstimate) },
		func(context.Context) domain.RiskCheckResult { return s.checkTokens(opp) },
		func(context.Context) domain.RiskCheckResult { return s.checkVenues(opp) },
		func(ctx context.Context) domain.RiskCheckResult { return g.checkLiquidity(ctx, s, opp) },
	}

	results := make([]domain.RiskCheckResult, len(checks))
	var eg errgroup.Group
	for i, check := range checks {
		eg.Go(func() error {
			results[i] = check(ctx)
			return nil
		})
	}
	_ = eg.Wait()

	for _, r := range results {
		if !r.Passed {
			g.logger.Debug("opportunity rejected",
				slog.String("id", opp.ID),
				slog.String("check", r.Check),
				slog.String("reason", r.Reason),
			)
			return domain.RiskAssessment{Verdict: r, Checks: results}
		}
	}

	amountEth, err := g.valuer.EthEquivalent(ctx, opp.TokenIn, opp.AmountIn)
	if err != nil {
		amountEth = units.WeiToEther(opp.AmountIn)
	}
	return domain.RiskAssessment{
		Verdict: domain.RiskCheckResult{Passed: true, RiskLevel: OverallLevel(opp, amountEth)},
		Checks:  results,
	}
}

func pass(check string) domain.RiskCheckResult {
	return domain.RiskCheckResult{Check: check, Passed: true, RiskLevel: domain.RiskLow}
}

func fail(check, reason string, level domain.RiskLevel) domain.RiskCheckResult {
	return domain.RiskCheckResult{Check: check, Reason: reason, RiskLevel: level}
}

func (s snapshot) checkProfit(profit *big.Int) domain.RiskCheckResult {
	minWei := units.EtherToWei(s.cfg.MinProfitEth)
	if profit.Cmp(minWei) >= 0 {
		return pass(CheckProfit)
	}
	return fail(CheckProfit,
		fmt.Sprintf("profit %s ETH below minimum threshold %s ETH", units.FormatEther(profit), units.FormatEther(minWei)),
		domain.RiskHigh)
}

func (g *Gate) checkPosition(ctx context.Context, s snapshot, opp domain.Opportunity) domain.RiskCheckResult {
	amount, err := g.valuer.EthEquivalent(ctx, opp.TokenIn, opp.AmountIn)
	if err != nil {
		g.logger.Warn("position valuation failed",
			slog.String("id", opp.ID),
			slog.String("error", err.Error()),
		)
		return fail(CheckPosition, "failed to validate position size", domain.RiskHigh)
	}
	limit := s.cfg.positionCap(opp.TokenIn)
	if amount <= limit {
		return pass(CheckPosition)
	}
	return fail(CheckPosition,
		fmt.Sprintf("position size %.4f ETH exceeds maximum %.4f ETH for token %s", amount, limit, opp.TokenIn),
		domain.RiskHigh)
}

func (s snapshot) checkSlippage(slippage float64) domain.RiskCheckResult {
	if slippage <= s.cfg.MaxSlippage {
		return pass(CheckSlippage)
	}
	level := domain.RiskMedium
	if slippage > s.cfg.MaxSlippage*1.5 {
		level = domain.RiskHigh
	}
	return fail(CheckSlippage,
		fmt.Sprintf("slippage %.2f%% exceeds maximum %.2f%%", slippage*100, s.cfg.MaxSlippage*100),
		level)
}

func (s snapshot) checkGasPrice(gasEstimate *big.Int) domain.RiskCheckResult {
	if gasEstimate == nil {
		return pass(CheckGasPrice)
	}
	price := new(big.Int).Quo(gasEstimate, big.NewInt(s.cfg.ReferenceGasLimit))
	limit := units.GweiToWei(s.cfg.MaxGasPriceGwei)
	if price.Cmp(limit) <= 0 {
		return pass(CheckGasPrice)
	}
	return fail(CheckGasPrice,
		fmt.Sprintf("gas price %s gwei exceeds maximum %s gwei", units.FormatGwei(price), units.FormatGwei(limit)),
		domain.RiskMedium)
}

func (s snapshot) checkTokens(opp domain.Opportunity) domain.RiskCheckResult {
	for _, t := range []string{opp.TokenIn, opp.TokenOut} {
		if _, ok := s.tokens[strings.ToLower(t)]; ok {
			return fail(CheckTokens, fmt.Sprintf("token %s is blacklisted", t), domain.RiskHigh)
		}
	}
	return pass(CheckTokens)
}

func (s snapshot) checkVenues(opp domain.Opportunity) domain.RiskCheckResult {
	for _, v := range opp.Venues {
		if _, ok := s.venues[strings.ToLower(v)]; ok {
			return fail(CheckVenues, fmt.Sprintf("venue %s is blacklisted", v), domain.RiskHigh)
		}
	}
	return pass(CheckVenues)
}

func (g *Gate) checkLiquidity(ctx context.Context, s snapshot, opp domain.Opportunity) domain.RiskCheckResult {
	amount, err := g.valuer.EthEquivalent(ctx, opp.TokenIn, opp.AmountIn)
	if err != nil {
		return domain.RiskCheckResult{Check: CheckLiquidity, Passed: true, RiskLevel: domain.RiskMedium}
	}
	pool, err := g.pools.EstimatePoolEth(ctx, opp.TokenIn, opp.TokenOut)
	if err != nil || pool <= 0 {
		return domain.RiskCheckResult{Check: CheckLiquidity, Passed: true, RiskLevel: domain.RiskMedium}
	}

	ratio := amount / pool
	level := domain.RiskLow
	switch {
	case ratio > 2*s.cfg.MaxPoolShare:
		level = domain.RiskHigh
	case ratio > s.cfg.MaxPoolShare:
		level = domain.RiskMedium
	}
	if ratio <= s.cfg.MaxPoolShare {
		return domain.RiskCheckResult{Check: CheckLiquidity, Passed: true, RiskLevel: level}
	}
	return fail(CheckLiquidity,
		fmt.Sprintf("trade size %.4f ETH is too large relative to estimated pool liquidity %.0f ETH", amount, pool),
		level)
}

// OverallLevel grades an admitted opportunity from confidence, slippage,
// urgency and size.
func OverallLevel(opp domain.Opportunity, amountEth float64) domain.RiskLevel {
	points := 0
	switch {
	case opp.Confidence < 0.5:
		points += 2
	case opp.Confidence < 0.8:
		points++
	}
	switch {
	case opp.SlippageTolerance > 0.015:
		points += 2
	case opp.SlippageTolerance > 0.01:
		points++
	}
	if opp.Urgency == domain.UrgencyHigh {
		points++
	}
	switch {
	case amountEth > 20:
		points += 2
	case amountEth > 5:
		points++
	}

	switch {
	case points >= 4:
		return domain.RiskHigh
	case points >= 2:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Config returns a copy of the active configuration.
func (g *Gate) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg.clone()
}

// UpdateConfig merges p into the active configuration.
func (g *Gate) UpdateConfig(p Patch) (Config, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := p.Apply(g.cfg)
	if err := next.Validate(); err != nil {
		return g.cfg.clone(), err
	}
	g.cfg = next
	return next.clone(), nil
}

// BlockToken adds token to the blacklist.
func (g *Gate) BlockToken(token string) {
	g.mu.Lock()
	g.blockedTokens[strings.ToLower(token)] = struct{}{}
	g.mu.Unlock()
}

// UnblockToken removes token from the blacklist.
func (g *Gate) UnblockToken(token string) {
	g.mu.Lock()
	delete(g.blockedTokens, strings.ToLower(token))
	g.mu.Unlock()
}

// BlockVenue adds venue to the blacklist.
func (g *Gate) BlockVenue(venue string) {
	g.mu.Lock()
	g.blockedVenues[strings.ToLower(venue)] = struct{}{}
	g.mu.Unlock()
}

// UnblockVenue removes venue from the blacklist.
func (g *Gate) UnblockVenue(venue string) {
	g.mu.Lock()
	delete(g.blockedVenues, strings.ToLower(venue))
	g.mu.Unlock()
}

// Blacklist returns the sorted blocked tokens and venues.
func (g *Gate) Blacklist() (tokens, venues []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k := range g.blockedTokens {
		tokens = append(tokens, k)
	}
	for k := range g.blockedVenues {
		venues = append(venues, k)
	}
	slices.Sort(tokens)
	slices.Sort(venues)
	return tokens, venues
}
