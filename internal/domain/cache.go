package domain

import (
	"context"
	"math/big"
	"time"
)

// ObservationCache keeps the latest quote per pair and venue for a short TTL.
type ObservationCache interface {
	SetObservation(ctx context.Context, obs PriceObservation, ttl time.Duration) error
	GetObservation(ctx context.Context, tokenA, tokenB, venue string) (PriceObservation, error)
}

// OpportunityCache retains detected opportunities for inspection.
type OpportunityCache interface {
	SetOpportunity(ctx context.Context, opp Opportunity, ttl time.Duration) error
	GetOpportunity(ctx context.Context, id string) (Opportunity, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// TokenValuer converts a base-unit token amount into its ETH equivalent.
type TokenValuer interface {
	EthEquivalent(ctx context.Context, token string, amount *big.Int) (float64, error)
}

// PoolSizer estimates the depth, in ETH, of the pool trading a pair.
type PoolSizer interface {
	EstimatePoolEth(ctx context.Context, tokenA, tokenB string) (float64, error)
}
