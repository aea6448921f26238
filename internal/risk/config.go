package risk

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/domain"
)

// Config holds admission thresholds. Position caps are ETH-equivalent and
// keyed by lower-cased token address.
type Config struct {
	MinProfitEth          float64            `json:"minProfitEth"`
	MaxSlippage           float64            `json:"maxSlippage"`
	MaxPositionEth        map[string]float64 `json:"maxPositionEth"`
	DefaultMaxPositionEth float64            `json:"defaultMaxPositionEth"`
	MaxGasPriceGwei       float64            `json:"maxGasPriceGwei"`
	// ReferenceGasLimit converts a total gas estimate into a per-unit price.
	ReferenceGasLimit int64   `json:"referenceGasLimit"`
	MaxPoolShare      float64 `json:"maxPoolShare"`
}

// DefaultConfig returns the standard admission thresholds.
func DefaultConfig() Config {
	return Config{
		MinProfitEth: 0.01,
		MaxSlippage:  0.02,
		MaxPositionEth: map[string]float64{
			strings.ToLower(catalog.WETH): 50,
			strings.ToLower(catalog.USDC): 50,
			strings.ToLower(catalog.USDT): 50,
		},
		DefaultMaxPositionEth: 10,
		MaxGasPriceGwei:       50,
		ReferenceGasLimit:     500_000,
		MaxPoolShare:          0.1,
	}
}

// Validate reports the first unusable threshold.
func (c Config) Validate() error {
	switch {
	case c.MinProfitEth < 0:
		return fmt.Errorf("%w: risk minProfitEth must not be negative", domain.ErrInvalidConfig)
	case c.MaxSlippage <= 0:
		return fmt.Errorf("%w: risk maxSlippage must be positive", domain.ErrInvalidConfig)
	case c.DefaultMaxPositionEth <= 0:
		return fmt.Errorf("%w: risk defaultMaxPositionEth must be positive", domain.ErrInvalidConfig)
	case c.MaxGasPriceGwei <= 0:
		return fmt.Errorf("%w: risk maxGasPriceGwei must be positive", domain.ErrInvalidConfig)
	case c.ReferenceGasLimit <= 0:
		return fmt.Errorf("%w: risk referenceGasLimit must be positive", domain.ErrInvalidConfig)
	case c.MaxPoolShare <= 0:
		return fmt.Errorf("%w: risk maxPoolShare must be positive", domain.ErrInvalidConfig)
	}
	for token, limit := range c.MaxPositionEth {
		if limit <= 0 {
			return fmt.Errorf("%w: risk position cap for %s must be positive", domain.ErrInvalidConfig, token)
		}
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.MaxPositionEth = make(map[string]float64, len(c.MaxPositionEth))
	for k, v := range c.MaxPositionEth {
		out.MaxPositionEth[strings.ToLower(k)] = v
	}
	return out
}

// positionCap returns the cap for token, falling back to the default.
func (c Config) positionCap(token string) float64 {
	if v, ok := c.MaxPositionEth[strings.ToLower(token)]; ok {
		return v
	}
	return c.DefaultMaxPositionEth
}

// Patch is a partial config update. Position caps in the patch are merged
// into the existing map.
type Patch struct {
	MinProfitEth          *float64           `json:"minProfitEth,omitempty"`
	MaxSlippage           *float64           `json:"maxSlippage,omitempty"`
	MaxPositionEth        map[string]float64 `json:"maxPositionEth,omitempty"`
	DefaultMaxPositionEth *float64           `json:"defaultMaxPositionEth,omitempty"`
	MaxGasPriceGwei       *float64           `json:"maxGasPriceGwei,omitempty"`
	MaxPoolShare          *float64           `json:"maxPoolShare,omitempty"`
}

// Apply returns c with the patch merged in. c is not modified.
func (p Patch) Apply(c Config) Config {
	c = c.clone()
	if p.MinProfitEth != nil {
		c.MinProfitEth = *p.MinProfitEth
	}
	if p.MaxSlippage != nil {
		c.MaxSlippage = *p.MaxSlippage
	}
	for k, v := range p.MaxPositionEth {
		c.MaxPositionEth[strings.ToLower(k)] = v
	}
	if p.DefaultMaxPositionEth != nil {
		c.DefaultMaxPositionEth = *p.DefaultMaxPositionEth
	}
	if p.MaxGasPriceGwei != nil {
		c.MaxGasPriceGwei = *p.MaxGasPriceGwei
	}
	if p.MaxPoolShare != nil {
		c.MaxPoolShare = *p.MaxPoolShare
	}
	return c
}
