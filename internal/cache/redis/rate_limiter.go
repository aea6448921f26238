package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const waitPollInterval = 50 * time.Millisecond

// RateLimiter is a sliding-window limiter over Redis sorted sets, shared by
// every process pointed at the same Redis.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
	// Wait applies this budget.
	waitLimit  int
	waitWindow time.Duration
	now        func() time.Time
}

// NewRateLimiter creates a RateLimiter whose Wait allows limit calls per
// window. Non-positive values fall back to one per second.
func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
		waitLimit:     limit,
		waitWindow:    window,
		now:           time.Now,
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow records a request for key and reports whether it fits in limit per
// window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := rl.slidingWindow.Run(ctx, rl.rdb,
		[]string{rateLimitKey(key)},
		rl.now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected reply length %d", key, len(result))
	}
	return result[0] == 1, nil
}

// Wait blocks until key is under the limiter's default budget.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
		allowed, err := rl.Allow(ctx, key, rl.waitLimit, rl.waitWindow)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		timer.Reset(waitPollInterval)
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
