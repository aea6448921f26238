package domain

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

// Urgency is a coarse time-sensitivity classification of an opportunity. It
// drives both scheduling priority and fee aggressiveness.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	default:
		return false
	}
}

// ParseUrgency converts a string into an Urgency.
func ParseUrgency(s string) (Urgency, error) {
	u := Urgency(s)
	if !u.Valid() {
		return "", fmt.Errorf("unknown urgency %q", s)
	}
	return u, nil
}

// PriceObservation is a single venue quote for a token pair. The JSON shape
// matches what the price feed publishes on the "price-update" channel.
type PriceObservation struct {
	TokenA      string  `json:"tokenA"`
	TokenB      string  `json:"tokenB"`
	Price       float64 `json:"price,string"`
	Venue       string  `json:"dex"`
	ObservedAt  int64   `json:"timestamp"` // unix ms
	BlockHeight uint64  `json:"blockNumber"`
	// Liquidity is the venue's depth for this pair in base units, when the
	// feed knows it. Zero means unknown.
	Liquidity float64 `json:"liquidity,omitempty"`
}

// Validate checks that the observation carries everything the detector needs.
func (o PriceObservation) Validate() error {
	switch {
	case o.TokenA == "" || o.TokenB == "":
		return fmt.Errorf("%w: missing token", ErrInvalidObservation)
	case o.TokenA == o.TokenB:
		return fmt.Errorf("%w: identical tokens", ErrInvalidObservation)
	case o.Venue == "":
		return fmt.Errorf("%w: missing venue", ErrInvalidObservation)
	case o.Price <= 0 || math.IsNaN(o.Price) || math.IsInf(o.Price, 0):
		return fmt.Errorf("%w: price %v", ErrInvalidObservation, o.Price)
	}
	return nil
}

// ObservedTime returns the observation time.
func (o PriceObservation) ObservedTime() time.Time {
	return time.UnixMilli(o.ObservedAt)
}

// CacheKey is the per-venue cache key "tokenA-tokenB-venue".
func (o PriceObservation) CacheKey() string {
	return o.TokenA + "-" + o.TokenB + "-" + o.Venue
}

// Opportunity is a detected, not yet validated cross-venue price discrepancy.
// Amounts are denominated in wei.
type Opportunity struct {
	ID                string   `json:"id"`
	TokenIn           string   `json:"tokenIn"`
	TokenOut          string   `json:"tokenOut"`
	AmountIn          *big.Int `json:"amountIn"`
	ExpectedProfit    *big.Int `json:"expectedProfit"`
	GasEstimate       *big.Int `json:"gasEstimate"`
	SlippageTolerance float64  `json:"slippageTolerance"`
	Confidence        float64  `json:"confidence"`
	Path              []string `json:"path"`
	Venues            []string `json:"dexes"`
	Urgency           Urgency  `json:"urgency"`
	CreatedAtMs       int64    `json:"timestamp,omitempty"`
}

// CreatedAt returns the creation time, or the zero time when unknown.
func (o Opportunity) CreatedAt() time.Time {
	if o.CreatedAtMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(o.CreatedAtMs)
}

// Validate rejects opportunities that downstream stages cannot evaluate.
func (o Opportunity) Validate() error {
	switch {
	case o.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidOpportunity)
	case o.TokenIn == "" || o.TokenOut == "":
		return fmt.Errorf("%w: %s: missing token", ErrInvalidOpportunity, o.ID)
	case o.AmountIn == nil || o.AmountIn.Sign() <= 0:
		return fmt.Errorf("%w: %s: amountIn must be positive", ErrInvalidOpportunity, o.ID)
	case o.ExpectedProfit == nil:
		return fmt.Errorf("%w: %s: missing expectedProfit", ErrInvalidOpportunity, o.ID)
	case len(o.Venues) == 0:
		return fmt.Errorf("%w: %s: no venues", ErrInvalidOpportunity, o.ID)
	case !o.Urgency.Valid():
		return fmt.Errorf("%w: %s: urgency %q", ErrInvalidOpportunity, o.ID, o.Urgency)
	case o.Confidence < 0 || o.Confidence > 1 || math.IsNaN(o.Confidence):
		return fmt.Errorf("%w: %s: confidence %v", ErrInvalidOpportunity, o.ID, o.Confidence)
	}
	return nil
}

// Clone returns a deep copy so queue entries never alias caller state.
func (o Opportunity) Clone() Opportunity {
	out := o
	out.AmountIn = cloneInt(o.AmountIn)
	out.ExpectedProfit = cloneInt(o.ExpectedProfit)
	out.GasEstimate = cloneInt(o.GasEstimate)
	out.Path = append([]string(nil), o.Path...)
	out.Venues = append([]string(nil), o.Venues...)
	return out
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
