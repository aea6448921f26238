package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "price:WETH-USDC-uniswap-v3", observationKey("WETH", "USDC", "uniswap-v3"))
	assert.Equal(t, "opportunity:abc", opportunityKey("abc"))
	assert.Equal(t, "lock:dispatch:abc", lockKey("dispatch:abc"))
	assert.Equal(t, "ratelimit:api:1.2.3.4", rateLimitKey("api:1.2.3.4"))
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("opportunity-*"))
	assert.True(t, hasPattern("price-update?"))
	assert.False(t, hasPattern("transaction-ready"))
}

func TestStreamPayload(t *testing.T) {
	data, ok := streamPayload(map[string]any{"payload": `{"a":1}`})
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), data)

	data, ok = streamPayload(map[string]any{"payload": []byte("x")})
	require.True(t, ok)
	assert.Equal(t, []byte("x"), data)

	_, ok = streamPayload(map[string]any{"other": "x"})
	assert.False(t, ok)
}

func TestClientOptions(t *testing.T) {
	opts, err := ClientConfig{URL: "redis://:secret@cache:6380/2", PoolSize: 20}.options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Nil(t, opts.TLSConfig)

	opts, err = ClientConfig{Addr: "localhost:6379", TLSEnabled: true}.options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.NotNil(t, opts.TLSConfig)

	_, err = ClientConfig{URL: "http://nope"}.options()
	assert.Error(t, err)
}

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(&Client{}, 0, 0)
	assert.Equal(t, 1, rl.waitLimit)
	assert.Equal(t, time.Second, rl.waitWindow)
	assert.NotEmpty(t, slidingWindowLua)
}
