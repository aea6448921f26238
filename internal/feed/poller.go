// Package feed reads pool prices from the chain and publishes them on the
// "price-update" channel.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/metrics"
)

// Pool kinds understood by the poller.
const (
	KindUniswapV3 = "uniswap-v3"
	KindV2        = "v2"
)

const uniswapV3PoolABI = `[{"type":"function","name":"slot0","stateMutability":"view","inputs":[],"outputs":[
  {"name":"sqrtPriceX96","type":"uint160"},
  {"name":"tick","type":"int24"},
  {"name":"observationIndex","type":"uint16"},
  {"name":"observationCardinality","type":"uint16"},
  {"name":"observationCardinalityNext","type":"uint16"},
  {"name":"feeProtocol","type":"uint8"},
  {"name":"unlocked","type":"bool"}]}]`

const v2PairABI = `[{"type":"function","name":"getReserves","stateMutability":"view","inputs":[],"outputs":[
  {"name":"reserve0","type":"uint112"},
  {"name":"reserve1","type":"uint112"},
  {"name":"blockTimestampLast","type":"uint32"}]}]`

// ChainCaller is the subset of ethclient.Client the poller needs.
type ChainCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Decimals resolves token decimals. *catalog.Catalog implements it.
type Decimals interface {
	Decimals(addr string) int32
}

// PoolRef is a pool bound to the venue it trades on. TokenA is the pool's
// token0.
type PoolRef struct {
	Venue string
	catalog.Pool
}

// PoolsFromCatalog lists every pool configured in cat.
func PoolsFromCatalog(cat *catalog.Catalog) []PoolRef {
	var out []PoolRef
	for _, v := range cat.Venues() {
		for _, p := range v.Pools {
			out = append(out, PoolRef{Venue: v.Name, Pool: p})
		}
	}
	return out
}

// PollerConfig controls polling cadence and RPC pacing.
type PollerConfig struct {
	Interval       time.Duration
	RequestsPerSec float64
	Burst          int
	Concurrency    int
	CallTimeout    time.Duration
}

// DefaultPollerConfig polls every second at up to 20 RPC calls per second.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:       time.Second,
		RequestsPerSec: 20,
		Burst:          5,
		Concurrency:    4,
		CallTimeout:    3 * time.Second,
	}
}

// PoolPoller periodically quotes every configured pool and publishes one
// PriceObservation per pool.
type PoolPoller struct {
	cfg      PollerConfig
	client   ChainCaller
	pools    []PoolRef
	decimals Decimals
	bus      domain.SignalBus
	limiter  *rate.Limiter
	v3       abi.ABI
	v2       abi.ABI
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger

	lastBlock atomic.Uint64
}

// NewPoolPoller creates a PoolPoller. m may be nil.
func NewPoolPoller(cfg PollerConfig, client ChainCaller, pools []PoolRef, decimals Decimals, bus domain.SignalBus, m *metrics.Metrics, logger *slog.Logger) (*PoolPoller, error) {
	def := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = def.RequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	v3, err := abi.JSON(strings.NewReader(uniswapV3PoolABI))
	if err != nil {
		return nil, fmt.Errorf("feed: parse slot0 abi: %w", err)
	}
	v2, err := abi.JSON(strings.NewReader(v2PairABI))
	if err != nil {
		return nil, fmt.Errorf("feed: parse getReserves abi: %w", err)
	}
	for _, p := range pools {
		if p.Kind != KindUniswapV3 && p.Kind != KindV2 {
			return nil, fmt.Errorf("feed: pool %s: unknown kind %q", p.Address, p.Kind)
		}
		if !common.IsHexAddress(p.Address) {
			return nil, fmt.Errorf("feed: pool address %q is invalid", p.Address)
		}
	}
	return &PoolPoller{
		cfg:      cfg,
		client:   client,
		pools:    pools,
		decimals: decimals,
		bus:      bus,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		v3:       v3,
		v2:       v2,
		metrics:  m,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "pool_poller")),
	}, nil
}

// Run polls until ctx is cancelled.
func (p *PoolPoller) Run(ctx context.Context) error {
	if len(p.pools) == 0 {
		p.logger.Warn("no pools configured, poller idle")
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("pool poller started",
		slog.Int("pools", len(p.pools)),
		slog.Duration("interval", p.cfg.Interval),
	)
	defer p.logger.Info("pool poller stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Warn("poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// PollOnce quotes every pool at the latest block and publishes the results.
// Pools that fail are logged and skipped; it returns how many observations
// were published.
func (p *PoolPoller) PollOnce(ctx context.Context) (int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	block, err := p.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("feed: block number: %w", err)
	}
	if block <= p.lastBlock.Load() {
		return 0, nil
	}

	var published atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, pool := range p.pools {
		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return err
			}
			obs, err := p.Quote(gctx, pool, block)
			if err != nil {
				p.logger.Debug("quote failed",
					slog.String("pool", pool.Address),
					slog.String("venue", pool.Venue),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if err := p.publish(gctx, obs); err != nil {
				p.logger.Warn("publish observation failed", slog.String("error", err.Error()))
				return nil
			}
			published.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(published.Load()), err
	}
	p.lastBlock.Store(block)
	return int(published.Load()), nil
}

// Quote reads one pool at block and converts the state into a price of
// TokenA in units of TokenB.
func (p *PoolPoller) Quote(ctx context.Context, pool PoolRef, block uint64) (domain.PriceObservation, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	dec0 := p.decimals.Decimals(pool.TokenA)
	dec1 := p.decimals.Decimals(pool.TokenB)
	var price float64
	switch pool.Kind {
	case KindUniswapV3:
		out, err := p.call(cctx, p.v3, "slot0", pool.Address, block)
		if err != nil {
			return domain.PriceObservation{}, err
		}
		sqrt, ok := out[0].(*big.Int)
		if !ok {
			return domain.PriceObservation{}, fmt.Errorf("feed: slot0: unexpected %T", out[0])
		}
		price = SqrtPriceX96ToPrice(sqrt, dec0, dec1)
	case KindV2:
		out, err := p.call(cctx, p.v2, "getReserves", pool.Address, block)
		if err != nil {
			return domain.PriceObservation{}, err
		}
		r0, ok0 := out[0].(*big.Int)
		r1, ok1 := out[1].(*big.Int)
		if !ok0 || !ok1 {
			return domain.PriceObservation{}, fmt.Errorf("feed: getReserves: unexpected %T, %T", out[0], out[1])
		}
		price = ReservesToPrice(r0, r1, dec0, dec1)
	}

	obs := domain.PriceObservation{
		TokenA:      pool.TokenA,
		TokenB:      pool.TokenB,
		Price:       price,
		Venue:       pool.Venue,
		ObservedAt:  p.now().UnixMilli(),
		BlockHeight: block,
	}
	if err := obs.Validate(); err != nil {
		return domain.PriceObservation{}, fmt.Errorf("feed: pool %s: %w", pool.Address, err)
	}
	return obs, nil
}

func (p *PoolPoller) call(ctx context.Context, contract abi.ABI, method, addr string, block uint64) ([]any, error) {
	data, err := contract.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("feed: pack %s: %w", method, err)
	}
	to := common.HexToAddress(addr)
	raw, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, new(big.Int).SetUint64(block))
	if err != nil {
		return nil, fmt.Errorf("feed: call %s on %s: %w", method, addr, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("feed: unpack %s: %w", method, err)
	}
	return out, nil
}

func (p *PoolPoller) publish(ctx context.Context, obs domain.PriceObservation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("feed: marshal observation: %w", err)
	}
	if err := p.bus.Publish(ctx, domain.ChannelPriceUpdate, payload); err != nil {
		p.metrics.BusError(domain.ChannelPriceUpdate, "publish")
		return fmt.Errorf("feed: publish: %w", err)
	}
	return nil
}

var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// SqrtPriceX96ToPrice converts a Uniswap V3 sqrtPriceX96 into the price of
// token0 in token1, adjusted for decimals.
func SqrtPriceX96ToPrice(sqrtPriceX96 *big.Int, dec0, dec1 int32) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0
	}
	r := new(big.Float).SetPrec(256).SetInt(sqrtPriceX96)
	r.Quo(r, q96)
	r.Mul(r, r)
	r.Mul(r, pow10(dec0-dec1))
	f, _ := r.Float64()
	return f
}

// ReservesToPrice converts V2 reserves into the price of token0 in token1,
// adjusted for decimals.
func ReservesToPrice(reserve0, reserve1 *big.Int, dec0, dec1 int32) float64 {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() <= 0 || reserve1.Sign() <= 0 {
		return 0
	}
	r := new(big.Float).SetPrec(256).SetInt(reserve1)
	r.Quo(r, new(big.Float).SetPrec(256).SetInt(reserve0))
	r.Mul(r, pow10(dec0-dec1))
	f, _ := r.Float64()
	return f
}

func pow10(exp int32) *big.Float {
	neg := exp < 0
	if neg {
		exp = -exp
	}
	v := new(big.Float).SetPrec(256).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
	if neg {
		return new(big.Float).SetPrec(256).Quo(big.NewFloat(1).SetPrec(256), v)
	}
	return v
}
