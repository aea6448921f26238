package scoring

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

const other = "0x00000000000000000000000000000000000000aa"

func newScorer() *Scorer {
	cat := catalog.Default()
	return NewScorer(DefaultConfig(), cat, cat, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleOpp() domain.Opportunity {
	return domain.Opportunity{
		ID:                "arb-1",
		TokenIn:           catalog.WETH,
		TokenOut:          other,
		AmountIn:          units.EtherToWei(0.5),
		ExpectedProfit:    units.EtherToWei(0.1),
		GasEstimate:       units.EtherToWei(0.01),
		SlippageTolerance: 0.005,
		Confidence:        0.8,
		Venues:            []string{"uniswap-v3", "sushiswap"},
		Urgency:           domain.UrgencyLow,
	}
}

func TestEvaluate(t *testing.T) {
	s := newScorer()
	got := s.Evaluate(context.Background(), sampleOpp())

	profit := math.Log10(11) / math.Log10(101) * 100
	total := 0.5*profit + 0.3*91 + 0.2*100
	assert.InDelta(t, math.Round(total*100)/100, got.TotalScore, 1e-9)
	assert.Equal(t, int(math.Floor(total*100)), got.Priority)
}

func TestEvaluateUrgencyRaisesPriority(t *testing.T) {
	s := newScorer()
	low := s.Evaluate(context.Background(), sampleOpp())

	o := sampleOpp()
	o.Urgency = domain.UrgencyHigh
	high := s.Evaluate(context.Background(), o)

	// High urgency costs 20 competition points but multiplies priority by 1.5.
	assert.Less(t, high.TotalScore, low.TotalScore)
	assert.Greater(t, high.Priority, low.Priority)
}

func TestEvaluateInvalidDegradesToZero(t *testing.T) {
	s := newScorer()
	o := sampleOpp()
	o.AmountIn = nil
	assert.Equal(t, domain.OpportunityScore{}, s.Evaluate(context.Background(), o))
}

func TestProfitScore(t *testing.T) {
	assert.Equal(t, 0.0, ProfitScore(0, 0.01))
	assert.Equal(t, 0.0, ProfitScore(0.005, 0.01))
	assert.InDelta(t, 100.0, ProfitScore(1, 0.01), 1e-9)
	assert.Equal(t, 100.0, ProfitScore(50, 0.01))
}

func TestProfitScoreNeverDecreases(t *testing.T) {
	for _, minProfit := range []float64{0.001, DefaultConfig().MinProfitEth, 1, 10} {
		prev := ProfitScore(0, minProfit)
		for p := 0.0; p <= 20*minProfit*100; p += minProfit / 7 {
			cur := ProfitScore(p, minProfit)
			require.GreaterOrEqual(t, cur, prev, "min %g profit %g", minProfit, p)
			require.GreaterOrEqual(t, cur, 0.0)
			require.LessOrEqual(t, cur, 100.0)
			prev = cur
		}
	}
}

func TestDefaultMinProfitMatchesRiskGate(t *testing.T) {
	// 0.01 ETH, the same floor the risk gate admits at.
	assert.Equal(t, 0.01, DefaultConfig().MinProfitEth)
	assert.Greater(t, ProfitScore(0.02, DefaultConfig().MinProfitEth), 0.0)
}

func TestPenalties(t *testing.T) {
	assert.Equal(t, 50.0, SlippagePenalty(0.03, 0.02))
	assert.InDelta(t, 10.0, SlippagePenalty(0.01, 0.02), 1e-9)

	assert.Equal(t, 0.0, LiquidityPenalty(0.5))
	assert.InDelta(t, 15.0, LiquidityPenalty(5.5), 1e-9)
	assert.Equal(t, 30.0, LiquidityPenalty(11))

	assert.Equal(t, 0.0, RiskScore(50, 30, 20, 0))
	assert.Equal(t, 100.0, RiskScore(0, 0, 0, 1))
}

func TestCompetitionScore(t *testing.T) {
	assert.Equal(t, 100.0, CompetitionScore(0.5, domain.UrgencyLow))
	assert.Equal(t, 75.0, CompetitionScore(2, domain.UrgencyMedium))
	assert.Equal(t, 50.0, CompetitionScore(6, domain.UrgencyHigh))
}

func TestUpdateConfig(t *testing.T) {
	s := newScorer()
	minProfit := 0.5
	cfg, err := s.UpdateConfig(Patch{MinProfitEth: &minProfit})
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.MinProfitEth)
	assert.Equal(t, 0.5, s.Config().ProfitWeight)

	bad := -1.0
	_, err = s.UpdateConfig(Patch{MaxSlippage: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Equal(t, 0.02, s.Config().MaxSlippage)

	// Profit under the raised minimum now scores only on risk and competition.
	o := sampleOpp()
	o.ExpectedProfit = big.NewInt(0).Set(units.EtherToWei(0.1))
	got := s.Evaluate(context.Background(), o)
	assert.InDelta(t, 0.3*91+0.2*100, got.TotalScore, 1e-9)
}
