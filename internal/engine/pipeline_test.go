package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/detector"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/gas"
	"github.com/alanyoungcy/orbitflash/internal/queue"
	"github.com/alanyoungcy/orbitflash/internal/risk"
	"github.com/alanyoungcy/orbitflash/internal/scoring"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

// feeModel splits total into flash loan, two venue fees and slippage so
// that the required spread is exactly total.
func feeModel(total float64) detector.Config {
	cfg := detector.DefaultConfig()
	cfg.FlashLoanFee = total * 0.2
	cfg.SlippageTolerance = total * 0.2
	cfg.VenueFees[catalog.VenueUniswapV3] = total * 0.3
	cfg.VenueFees[catalog.VenueSushiswap] = total * 0.3
	return cfg
}

func TestPipelineScenarios(t *testing.T) {
	cat := catalog.Default()
	now := time.UnixMilli(1_700_000_000_000)
	quotes := detector.Input{
		TokenA:     catalog.USDC,
		TokenB:     catalog.WETH,
		PriceA:     1.00,
		PriceB:     1.01,
		VenueA:     catalog.VenueUniswapV3,
		VenueB:     catalog.VenueSushiswap,
		LiquidityA: 500_000,
		LiquidityB: 500_000,
		Now:        now,
	}

	t.Run("spread covers fees", func(t *testing.T) {
		ctx := context.Background()
		opp, err := detector.NewCalculator(feeModel(0.005), cat).Calculate(quotes)
		require.NoError(t, err)
		assert.Equal(t, domain.UrgencyLow, opp.Urgency)
		assert.Positive(t, opp.ExpectedProfit.Sign())

		verdict := risk.NewGate(risk.DefaultConfig(), cat, cat, discard()).Assess(ctx, opp)
		require.True(t, verdict.Passed(), "rejected: %s", verdict.Verdict.Reason)

		sc := scoring.NewScorer(scoring.DefaultConfig(), cat, cat, discard()).Evaluate(ctx, opp)
		assert.Greater(t, sc.TotalScore, 0.0)

		q := queue.New(queue.DefaultConfig(), discard(), queue.WithClock(func() time.Time { return now }))
		require.True(t, q.Push(opp, sc))
		e := q.Pop()
		require.NotNil(t, e)
		assert.Equal(t, opp.ID, e.Opportunity.ID)

		cfg := gas.DefaultConfig()
		minPrice := units.GweiToWei(cfg.MinGasPriceGwei)
		maxPrice := units.GweiToWei(cfg.MaxGasPriceGwei)
		for name, sources := range map[string][]gas.FeeSource{
			"live fees":  {liveFees()},
			"chain down": nil,
		} {
			s, _ := gas.NewOptimizer(cfg, sources, cat, nil, discard()).Optimize(ctx, e.Opportunity)
			assert.GreaterOrEqual(t, s.GasPrice.Cmp(minPrice), 0, name)
			assert.LessOrEqual(t, s.GasPrice.Cmp(maxPrice), 0, name)
			assert.Positive(t, s.GasLimit, name)
		}
	})

	t.Run("fees exceed spread", func(t *testing.T) {
		_, err := detector.NewCalculator(feeModel(0.015), cat).Calculate(quotes)
		require.ErrorIs(t, err, detector.ErrNoOpportunity)
	})
}
