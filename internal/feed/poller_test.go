package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orbitflash/internal/cache/memory"
	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/domain"
)

const (
	v3Pool     = "0x00000000000000000000000000000000000000a1"
	v2Pool     = "0x00000000000000000000000000000000000000a2"
	brokenPool = "0x00000000000000000000000000000000000000a3"
)

type fakeChain struct {
	mu      sync.Mutex
	block   uint64
	results map[string][]byte
	calls   int
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return f.block, nil }

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out, ok := f.results[strings.ToLower(msg.To.Hex())]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newChain(t *testing.T, p *PoolPoller) *fakeChain {
	t.Helper()
	// sqrtPriceX96 = 2 * 2^96 means a raw price of 4.
	sqrt := new(big.Int).Lsh(big.NewInt(2), 96)
	slot0, err := p.v3.Methods["slot0"].Outputs.Pack(sqrt, big.NewInt(0), uint16(0), uint16(1), uint16(1), uint8(0), true)
	require.NoError(t, err)

	r0 := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	r1 := new(big.Int).Mul(big.NewInt(200_000), big.NewInt(1e6))
	reserves, err := p.v2.Methods["getReserves"].Outputs.Pack(r0, r1, uint32(0))
	require.NoError(t, err)

	return &fakeChain{block: 100, results: map[string][]byte{v3Pool: slot0, v2Pool: reserves}}
}

func pools() []PoolRef {
	return []PoolRef{
		{Venue: catalog.VenueUniswapV3, Pool: catalog.Pool{Address: v3Pool, TokenA: catalog.WETH, TokenB: catalog.DAI, Kind: KindUniswapV3}},
		{Venue: catalog.VenueSushiswap, Pool: catalog.Pool{Address: v2Pool, TokenA: catalog.WETH, TokenB: catalog.USDC, Kind: KindV2}},
		{Venue: catalog.VenueSushiswap, Pool: catalog.Pool{Address: brokenPool, TokenA: catalog.WETH, TokenB: catalog.USDT, Kind: KindV2}},
	}
}

func TestPollOncePublishesObservations(t *testing.T) {
	bus := memory.NewBus(8)
	p, err := NewPoolPoller(PollerConfig{RequestsPerSec: 1000, Burst: 10}, nil, pools(), catalog.Default(), bus, nil, discard())
	require.NoError(t, err)
	chain := newChain(t, p)
	p.client = chain
	p.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx, domain.ChannelPriceUpdate)
	require.NoError(t, err)

	n, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := map[string]domain.PriceObservation{}
	for i := 0; i < 2; i++ {
		var obs domain.PriceObservation
		require.NoError(t, json.Unmarshal(<-sub, &obs))
		got[obs.Venue] = obs
	}
	assert.InDelta(t, 4.0, got[catalog.VenueUniswapV3].Price, 1e-9)
	assert.InDelta(t, 2000.0, got[catalog.VenueSushiswap].Price, 1e-9)
	assert.Equal(t, uint64(100), got[catalog.VenueSushiswap].BlockHeight)
	assert.Equal(t, int64(1_700_000_000_000), got[catalog.VenueUniswapV3].ObservedAt)

	// The same block is not polled twice.
	calls := chain.calls
	n, err = p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, calls, chain.calls)
}

func TestNewPoolPollerRejectsBadPools(t *testing.T) {
	bad := []PoolRef{{Venue: "x", Pool: catalog.Pool{Address: v2Pool, Kind: "v4"}}}
	_, err := NewPoolPoller(PollerConfig{}, nil, bad, catalog.Default(), memory.NewBus(1), nil, discard())
	assert.Error(t, err)

	bad = []PoolRef{{Venue: "x", Pool: catalog.Pool{Address: "pool", Kind: KindV2}}}
	_, err = NewPoolPoller(PollerConfig{}, nil, bad, catalog.Default(), memory.NewBus(1), nil, discard())
	assert.Error(t, err)
}

func TestPriceConversions(t *testing.T) {
	sqrt := new(big.Int).Lsh(big.NewInt(1), 96)
	assert.InDelta(t, 1e12, SqrtPriceX96ToPrice(sqrt, 18, 6), 1e-3)
	assert.InDelta(t, 1e-12, SqrtPriceX96ToPrice(sqrt, 6, 18), 1e-24)
	assert.Zero(t, SqrtPriceX96ToPrice(nil, 18, 18))

	assert.InDelta(t, 0.5, ReservesToPrice(big.NewInt(2), big.NewInt(1), 18, 18), 1e-12)
	assert.Zero(t, ReservesToPrice(big.NewInt(0), big.NewInt(1), 18, 18))
}

func TestPoolsFromCatalog(t *testing.T) {
	cat := catalog.New(nil, []catalog.Venue{
		{Name: "sushiswap", Pools: []catalog.Pool{{Address: v2Pool, Kind: KindV2}}},
		{Name: "uniswap-v3", Pools: []catalog.Pool{{Address: v3Pool, Kind: KindUniswapV3}}},
	})
	refs := PoolsFromCatalog(cat)
	require.Len(t, refs, 2)
	assert.Equal(t, "sushiswap", refs[0].Venue)
	assert.Equal(t, v3Pool, refs[1].Address)
}
