package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

// Cache stores observations and opportunities as JSON strings with a TTL.
type Cache struct {
	rdb *redis.Client
}

// NewCache creates a Cache backed by c.
func NewCache(c *Client) *Cache {
	return &Cache{rdb: c.Underlying()}
}

func observationKey(tokenA, tokenB, venue string) string {
	return "price:" + tokenA + "-" + tokenB + "-" + venue
}

func opportunityKey(id string) string {
	return "opportunity:" + id
}

// SetObservation stores obs under its pair and venue.
func (c *Cache) SetObservation(ctx context.Context, obs domain.PriceObservation, ttl time.Duration) error {
	key := observationKey(obs.TokenA, obs.TokenB, obs.Venue)
	return c.setJSON(ctx, key, obs, ttl)
}

// GetObservation returns the cached quote or domain.ErrNotFound once expired.
func (c *Cache) GetObservation(ctx context.Context, tokenA, tokenB, venue string) (domain.PriceObservation, error) {
	var obs domain.PriceObservation
	err := c.getJSON(ctx, observationKey(tokenA, tokenB, venue), &obs)
	return obs, err
}

// SetOpportunity stores opp under its ID.
func (c *Cache) SetOpportunity(ctx context.Context, opp domain.Opportunity, ttl time.Duration) error {
	return c.setJSON(ctx, opportunityKey(opp.ID), opp, ttl)
}

// GetOpportunity returns a cached opportunity.
func (c *Cache) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	var opp domain.Opportunity
	err := c.getJSON(ctx, opportunityKey(id), &opp)
	return opp, err
}

func (c *Cache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) getJSON(ctx context.Context, key string, v any) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis: %s: %w", key, domain.ErrNotFound)
		}
		return fmt.Errorf("redis: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return nil
}

var (
	_ domain.ObservationCache = (*Cache)(nil)
	_ domain.OpportunityCache = (*Cache)(nil)
)
