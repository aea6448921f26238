// Package units converts between wei, gwei and ether amounts.
package units

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	GweiDecimals  = 9
	EtherDecimals = 18
)

var (
	gweiScale  = decimal.New(1, GweiDecimals)
	etherScale = decimal.New(1, EtherDecimals)
)

// EtherToWei converts an ether amount to wei, truncating sub-wei precision.
// Negative and non-finite amounts map to zero.
func EtherToWei(eth float64) *big.Int {
	return toWei(eth, etherScale)
}

// GweiToWei converts a gwei amount to wei.
func GweiToWei(gwei float64) *big.Int {
	return toWei(gwei, gweiScale)
}

func toWei(v float64, scale decimal.Decimal) *big.Int {
	if v != v || v <= 0 || v > 1e30 {
		return new(big.Int)
	}
	return decimal.NewFromFloat(v).Mul(scale).Truncate(0).BigInt()
}

// WeiToEther converts wei to a float ether amount. Nil is zero.
func WeiToEther(wei *big.Int) float64 {
	return ScaleDown(wei, EtherDecimals)
}

// WeiToGwei converts wei to a float gwei amount.
func WeiToGwei(wei *big.Int) float64 {
	return ScaleDown(wei, GweiDecimals)
}

// ScaleDown divides an integer base-unit amount by 10^decimals.
func ScaleDown(amount *big.Int, decimals int32) float64 {
	if amount == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(amount, -decimals).Float64()
	return f
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}

// FormatGwei renders wei as a decimal gwei string.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -GweiDecimals).String()
}

// MulFrac returns amount*num/den using integer arithmetic.
func MulFrac(amount *big.Int, num, den int64) *big.Int {
	if amount == nil || den == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(num))
	return out.Quo(out, big.NewInt(den))
}

// MaxInt returns the larger of a and b.
func MaxInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi *big.Int) *big.Int {
	switch {
	case v.Cmp(lo) < 0:
		return new(big.Int).Set(lo)
	case v.Cmp(hi) > 0:
		return new(big.Int).Set(hi)
	default:
		return new(big.Int).Set(v)
	}
}

// ScaleUp multiplies a decimal amount by 10^decimals, truncating.
func ScaleUp(amount float64, decimals int32) *big.Int {
	if amount != amount || amount <= 0 || amount > 1e30 {
		return new(big.Int)
	}
	return decimal.NewFromFloat(amount).Shift(decimals).Truncate(0).BigInt()
}
