package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

type item[T any] struct {
	value   T
	expires time.Time
}

// Cache is an in-process ObservationCache, OpportunityCache and
// LockManager with per-entry expiry.
type Cache struct {
	mu            sync.Mutex
	observations  map[string]item[domain.PriceObservation]
	opportunities map[string]item[domain.Opportunity]
	locks         map[string]item[string]
	now           func() time.Time
}

// NewCache creates an empty Cache. now may be nil.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		observations:  make(map[string]item[domain.PriceObservation]),
		opportunities: make(map[string]item[domain.Opportunity]),
		locks:         make(map[string]item[string]),
		now:           now,
	}
}

func (c *Cache) SetObservation(_ context.Context, obs domain.PriceObservation, ttl time.Duration) error {
	c.mu.Lock()
	c.observations[obs.CacheKey()] = item[domain.PriceObservation]{value: obs, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *Cache) GetObservation(_ context.Context, tokenA, tokenB, venue string) (domain.PriceObservation, error) {
	key := tokenA + "-" + tokenB + "-" + venue
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.observations[key]
	if !ok || !c.now().Before(it.expires) {
		delete(c.observations, key)
		return domain.PriceObservation{}, fmt.Errorf("observation %s: %w", key, domain.ErrNotFound)
	}
	return it.value, nil
}

func (c *Cache) SetOpportunity(_ context.Context, opp domain.Opportunity, ttl time.Duration) error {
	c.mu.Lock()
	c.opportunities[opp.ID] = item[domain.Opportunity]{value: opp.Clone(), expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *Cache) GetOpportunity(_ context.Context, id string) (domain.Opportunity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.opportunities[id]
	if !ok || !c.now().Before(it.expires) {
		delete(c.opportunities, id)
		return domain.Opportunity{}, fmt.Errorf("opportunity %s: %w", id, domain.ErrNotFound)
	}
	return it.value.Clone(), nil
}

// Acquire takes an expiring lock on key. It returns domain.ErrLockHeld if
// another holder owns it.
func (c *Cache) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.locks[key]; ok && c.now().Before(it.expires) {
		return nil, domain.ErrLockHeld
	}
	c.locks[key] = item[string]{value: token, expires: c.now().Add(ttl)}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if it, ok := c.locks[key]; ok && it.value == token {
			delete(c.locks, key)
		}
	}, nil
}
