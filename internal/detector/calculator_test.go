package detector

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

const (
	tokA = "0x00000000000000000000000000000000000000a1"
	tokB = "0x00000000000000000000000000000000000000b2"
)

var at = time.UnixMilli(1_700_000_000_123)

func input(pA, pB float64) Input {
	return Input{
		TokenA: tokA, TokenB: tokB,
		PriceA: pA, PriceB: pB,
		VenueA: "uniswap-v3", VenueB: "sushiswap",
		LiquidityA: 1_000_000, LiquidityB: 1_000_000,
		Now: at,
	}
}

func TestCalculateProfitable(t *testing.T) {
	c := NewCalculator(DefaultConfig(), nil)
	opp, err := c.Calculate(input(1.0, 1.02))
	require.NoError(t, err)

	size := 100_000.0
	net := 0.02*size - 0.0119*size - 0.01
	assert.InDelta(t, net, units.WeiToEther(opp.ExpectedProfit), 1e-6)
	assert.Equal(t, units.EtherToWei(size).String(), opp.AmountIn.String())
	assert.Equal(t, "10000000000000000", opp.GasEstimate.String())
	assert.Equal(t, tokA, opp.TokenIn)
	assert.Equal(t, tokB, opp.TokenOut)
	assert.Equal(t, []string{tokA, tokB}, opp.Path)
	assert.Equal(t, []string{"uniswap-v3", "sushiswap"}, opp.Venues)
	assert.Equal(t, domain.UrgencyLow, opp.Urgency)
	assert.InDelta(t, 0.94, opp.Confidence, 1e-9)
	assert.Equal(t, 0.005, opp.SlippageTolerance)
	assert.Equal(t, at.UnixMilli(), opp.CreatedAtMs)
	assert.Equal(t, "arb-"+tokA+"-"+tokB+"-sushiswap-uniswap-v3-1700000000123", opp.ID)
	assert.NoError(t, opp.Validate())
}

func TestCalculateBuysOnCheaperVenue(t *testing.T) {
	c := NewCalculator(DefaultConfig(), nil)
	opp, err := c.Calculate(input(1.02, 1.0))
	require.NoError(t, err)
	assert.Equal(t, tokB, opp.TokenIn)
	assert.Equal(t, []string{tokB, tokA}, opp.Path)
	assert.Equal(t, []string{"sushiswap", "uniswap-v3"}, opp.Venues)
}

func TestCalculateRejections(t *testing.T) {
	c := NewCalculator(DefaultConfig(), nil)

	_, err := c.Calculate(input(1.0, 1.01))
	assert.ErrorIs(t, err, ErrNoOpportunity)
	assert.Contains(t, err.Error(), "spread")

	in := input(1.0, 1.02)
	in.LiquidityA = 10
	_, err = c.Calculate(in)
	assert.ErrorIs(t, err, ErrNoOpportunity)

	in = input(1.0, 1.02)
	in.LiquidityB = 100 // size 10, net ~0.071 < 1 ETH
	_, err = c.Calculate(in)
	assert.ErrorIs(t, err, ErrNoOpportunity)
	assert.Contains(t, err.Error(), "below minimum")

	in = input(1.0, 1.02)
	in.VenueB = in.VenueA
	_, err = c.Calculate(in)
	assert.ErrorIs(t, err, ErrNoOpportunity)

	_, err = c.Calculate(input(0, 1))
	assert.ErrorIs(t, err, ErrNoOpportunity)
}

func TestCalculateUnknownVenueUsesDefaultFee(t *testing.T) {
	c := NewCalculator(DefaultConfig(), nil)
	in := input(1.0, 1.0115)
	in.VenueB = "curve"
	// curve fee 0.0004 lowers the required spread to 0.0093.
	_, err := c.Calculate(in)
	assert.NoError(t, err)

	in.VenueB = "unknown-dex"
	_, err = c.Calculate(in)
	assert.ErrorIs(t, err, ErrNoOpportunity)
}

func TestCalculateUrgencyAndConfidence(t *testing.T) {
	c := NewCalculator(DefaultConfig(), nil)
	opp, err := c.Calculate(input(1.0, 1.1))
	require.NoError(t, err)
	assert.Equal(t, domain.UrgencyHigh, opp.Urgency)
	assert.InDelta(t, 0.7, opp.Confidence, 1e-9)

	opp, err = c.Calculate(input(1.0, 1.04))
	require.NoError(t, err)
	assert.Equal(t, domain.UrgencyMedium, opp.Urgency)
}

func TestCalculateUsesTokenDecimals(t *testing.T) {
	c := NewCalculator(DefaultConfig(), catalog.Default())
	in := input(1.0, 1.02)
	in.TokenA = catalog.USDC
	opp, err := c.Calculate(in)
	require.NoError(t, err)
	require.Equal(t, catalog.USDC, opp.TokenIn)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(100_000), big.NewInt(1_000_000)).String(), opp.AmountIn.String())
}

func TestConfidenceClamp(t *testing.T) {
	assert.Equal(t, 0.1, Confidence(1, 1, 0.5, 1_000_000))
	assert.InDelta(t, 1.0, Confidence(2e6, 2e6, 0, 1_000_000), 1e-12)
}

func TestEstimateGasCost(t *testing.T) {
	c := NewCalculator(DefaultConfig(), nil)
	cost, err := c.EstimateGasCost("multi-dex")
	require.NoError(t, err)
	assert.Equal(t, "16000000000000000", cost.String())

	cost, err = c.EstimateGasCost("simple")
	require.NoError(t, err)
	assert.Equal(t, "3000000000000000", cost.String())

	_, err = c.EstimateGasCost("teleport")
	assert.Error(t, err)
}

func TestUpdateConfig(t *testing.T) {
	c := NewCalculator(DefaultConfig(), nil)
	gas := 10.0
	cfg, err := c.UpdateConfig(Patch{GasPriceGwei: &gas, VenueFees: map[string]float64{"camelot": 0.002}})
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.GasPriceGwei)
	assert.Equal(t, 0.002, cfg.VenueFee("camelot"))
	assert.Equal(t, 0.003, cfg.VenueFee("sushiswap"))

	frac := 2.0
	_, err = c.UpdateConfig(Patch{TradeFraction: &frac})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Equal(t, 0.1, c.Config().TradeFraction)
}

func TestPairKeyIsDirectionless(t *testing.T) {
	assert.Equal(t, PairKey("b", "a"), PairKey("a", "b"))
	assert.True(t, strings.HasPrefix(PairKey("b", "a"), "a-"))
}
