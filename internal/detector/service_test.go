package detector

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orbitflash/internal/cache/memory"
	"github.com/alanyoungcy/orbitflash/internal/domain"
)

type fixture struct {
	svc   *Service
	bus   *memory.Bus
	cache *memory.Cache
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{bus: memory.NewBus(16), now: time.UnixMilli(1_700_000_000_000)}
	clock := func() time.Time { return f.now }
	f.cache = memory.NewCache(clock)
	f.svc = NewService(
		NewCalculator(DefaultConfig(), nil),
		DefaultServiceConfig(),
		ServiceDeps{
			Bus:           f.bus,
			Observations:  f.cache,
			Opportunities: f.cache,
			Now:           clock,
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func (f *fixture) obs(venue string, price float64) domain.PriceObservation {
	return domain.PriceObservation{
		TokenA: tokA, TokenB: tokB,
		Price: price, Venue: venue,
		ObservedAt: f.now.UnixMilli(), BlockHeight: 1,
	}
}

func TestHandleObservationPublishesOpportunity(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := f.bus.Subscribe(ctx, domain.ChannelOpportunityNew)
	require.NoError(t, err)

	found, err := f.svc.HandleObservation(ctx, f.obs("uniswap-v3", 1.0))
	require.NoError(t, err)
	assert.Empty(t, found)

	f.now = f.now.Add(10 * time.Millisecond)
	found, err = f.svc.HandleObservation(ctx, f.obs("sushiswap", 1.02))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, tokA, found[0].TokenIn)

	select {
	case msg := <-sub:
		var got domain.Opportunity
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, found[0].ID, got.ID)
		assert.Equal(t, found[0].ExpectedProfit.String(), got.ExpectedProfit.String())
	case <-time.After(time.Second):
		t.Fatal("opportunity not published")
	}

	cached, err := f.cache.GetOpportunity(ctx, found[0].ID)
	require.NoError(t, err)
	assert.Equal(t, found[0].ID, cached.ID)
}

func TestStaleObservationIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleObservation(ctx, f.obs("uniswap-v3", 1.0))
	require.NoError(t, err)

	f.now = f.now.Add(150 * time.Millisecond)
	found, err := f.svc.HandleObservation(ctx, f.obs("sushiswap", 1.02))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestInvertedOrientationIsNormalised(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleObservation(ctx, f.obs("uniswap-v3", 1.0))
	require.NoError(t, err)

	inv := f.obs("sushiswap", 1/1.02)
	inv.TokenA, inv.TokenB = tokB, tokA
	found, err := f.svc.HandleObservation(ctx, inv)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, tokA, found[0].TokenIn)
	assert.Equal(t, []string{"uniswap-v3", "sushiswap"}, found[0].Venues)
}

func TestObservationLiquidityOverridesSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.obs("uniswap-v3", 1.0)
	a.Liquidity = 100 // trade size 10, profit below the 1 ETH minimum
	_, err := f.svc.HandleObservation(ctx, a)
	require.NoError(t, err)
	found, err := f.svc.HandleObservation(ctx, f.obs("sushiswap", 1.02))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestHandleMessageRejectsMalformed(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleMessage(context.Background(), []byte("{not json"))
	assert.Error(t, err)

	_, err = f.svc.HandleMessage(context.Background(), []byte(`{"tokenA":"a","tokenB":"b","price":"0","dex":"x"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidObservation)
}

func TestHandleMessageDecodesWireFormat(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"tokenA":"` + tokA + `","tokenB":"` + tokB + `","price":"1.5","dex":"curve","timestamp":1700000000000,"blockNumber":42}`)
	_, err := f.svc.HandleMessage(context.Background(), payload)
	require.NoError(t, err)

	got, err := f.cache.GetObservation(context.Background(), tokA, tokB, "curve")
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.Price)
	assert.Equal(t, uint64(42), got.BlockHeight)
}

func TestBufferStatusAndPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := f.svc.HandleObservation(ctx, f.obs("uniswap-v3", 1.0))
		require.NoError(t, err)
	}
	assert.Equal(t, map[string]int{PairKey(tokA, tokB): 10}, f.svc.BufferStatus())

	f.now = f.now.Add(61 * time.Second)
	assert.Equal(t, 10, f.svc.Prune())
	assert.Empty(t, f.svc.BufferStatus())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	require.Eventually(t, func() bool { return f.bus.Subscribers(domain.ChannelPriceUpdate) == 1 }, time.Second, 5*time.Millisecond)
	payload, err := json.Marshal(f.obs("uniswap-v3", 1.0))
	require.NoError(t, err)
	require.NoError(t, f.bus.Publish(ctx, domain.ChannelPriceUpdate, payload))
	require.Eventually(t, func() bool { return len(f.svc.BufferStatus()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
