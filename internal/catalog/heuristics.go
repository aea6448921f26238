package catalog

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/orbitflash/internal/units"
)

// StablePerEth is the fixed stablecoin price of one ETH used by the
// valuation heuristic.
const StablePerEth = 2000.0

// EthEquivalent values amount (in the token's base units) in ETH. Stablecoins
// are converted at StablePerEth; every other token counts 1:1.
func (c *Catalog) EthEquivalent(_ context.Context, token string, amount *big.Int) (float64, error) {
	if amount == nil {
		return 0, fmt.Errorf("catalog: value %s: nil amount", token)
	}
	if amount.Sign() < 0 {
		return 0, fmt.Errorf("catalog: value %s: negative amount", token)
	}
	v := units.ScaleDown(amount, c.Decimals(token))
	if c.IsStable(token) {
		v /= StablePerEth
	}
	return v, nil
}

// EstimatePoolEth guesses pool depth from how established the pair is:
// 1000 ETH when both tokens are major, 100 with one, 10 otherwise.
func (c *Catalog) EstimatePoolEth(_ context.Context, tokenA, tokenB string) (float64, error) {
	switch majors := btoi(c.IsMajor(tokenA)) + btoi(c.IsMajor(tokenB)); majors {
	case 2:
		return 1000, nil
	case 1:
		return 100, nil
	default:
		return 10, nil
	}
}

// VolatilityPenalty is 0 for stable pairs, 10 when one leg is the native
// asset and 20 otherwise.
func (c *Catalog) VolatilityPenalty(tokenIn, tokenOut string) float64 {
	switch {
	case c.IsStable(tokenIn) && c.IsStable(tokenOut):
		return 0
	case c.IsNative(tokenIn) || c.IsNative(tokenOut):
		return 10
	default:
		return 20
	}
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
