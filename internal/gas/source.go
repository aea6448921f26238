package gas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

// ArbGasInfoAddress is the Arbitrum ArbGasInfo precompile.
var ArbGasInfoAddress = common.HexToAddress("0x000000000000000000000000000000000000006C")

const arbGasInfoABI = `[
  {"type":"function","name":"getPricesInWei","stateMutability":"view","inputs":[],
   "outputs":[{"type":"uint256"},{"type":"uint256"},{"type":"uint256"},{"type":"uint256"},{"type":"uint256"},{"type":"uint256"}]},
  {"type":"function","name":"getL1BaseFeeEstimate","stateMutability":"view","inputs":[],
   "outputs":[{"type":"uint256"}]}
]`

// ChainReader is the subset of ethclient.Client used for fee discovery.
type ChainReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// FeeSource reports current network fees.
type FeeSource interface {
	NetworkFees(ctx context.Context) (domain.NetworkFees, error)
	Name() string
}

var (
	defaultHeaderBaseFee = units.GweiToWei(0.1)
	defaultGasPrice      = units.GweiToWei(2)
	defaultL1BaseFee     = units.GweiToWei(10)
	minPriorityFee       = units.GweiToWei(1)
)

// ArbGasInfoSource reads fees from the ArbGasInfo precompile and the latest
// block header.
type ArbGasInfoSource struct {
	client ChainReader
	abi    abi.ABI
}

// NewArbGasInfoSource creates an ArbGasInfoSource.
func NewArbGasInfoSource(client ChainReader) (*ArbGasInfoSource, error) {
	parsed, err := abi.JSON(strings.NewReader(arbGasInfoABI))
	if err != nil {
		return nil, fmt.Errorf("gas: parse ArbGasInfo abi: %w", err)
	}
	return &ArbGasInfoSource{client: client, abi: parsed}, nil
}

func (s *ArbGasInfoSource) Name() string { return string(domain.FeeSourceChain) }

// NetworkFees queries the precompile. The network priority fee is 10% of the
// base fee with a 1 gwei floor.
func (s *ArbGasInfoSource) NetworkFees(ctx context.Context) (domain.NetworkFees, error) {
	if _, err := s.call(ctx, "getPricesInWei"); err != nil {
		return domain.NetworkFees{}, err
	}
	out, err := s.call(ctx, "getL1BaseFeeEstimate")
	if err != nil {
		return domain.NetworkFees{}, err
	}
	l1, ok := out[0].(*big.Int)
	if !ok {
		return domain.NetworkFees{}, fmt.Errorf("gas: getL1BaseFeeEstimate: unexpected %T", out[0])
	}

	base := new(big.Int).Set(defaultHeaderBaseFee)
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.NetworkFees{}, fmt.Errorf("gas: latest header: %w", err)
	}
	if head != nil && head.BaseFee != nil {
		base.Set(head.BaseFee)
	}

	priority := units.MaxInt(units.MulFrac(base, 10, 100), minPriorityFee)
	return domain.NetworkFees{
		BaseFee:     base,
		L1BaseFee:   l1,
		PriorityFee: priority,
		GasPrice:    new(big.Int).Add(base, priority),
		Source:      domain.FeeSourceChain,
	}, nil
}

func (s *ArbGasInfoSource) call(ctx context.Context, method string) ([]any, error) {
	data, err := s.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("gas: pack %s: %w", method, err)
	}
	raw, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &ArbGasInfoAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("gas: call %s: %w", method, err)
	}
	out, err := s.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("gas: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("gas: %s: empty result", method)
	}
	return out, nil
}

// RPCFeeSource derives fees from eth_gasPrice and the latest header.
type RPCFeeSource struct {
	client ChainReader
}

// NewRPCFeeSource creates an RPCFeeSource.
func NewRPCFeeSource(client ChainReader) *RPCFeeSource {
	return &RPCFeeSource{client: client}
}

func (s *RPCFeeSource) Name() string { return string(domain.FeeSourceStandard) }

// NetworkFees uses the suggested gas price (2 gwei if absent) and the header
// base fee (90% of the gas price if absent).
func (s *RPCFeeSource) NetworkFees(ctx context.Context) (domain.NetworkFees, error) {
	price, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return domain.NetworkFees{}, fmt.Errorf("gas: suggest gas price: %w", err)
	}
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.NetworkFees{}, fmt.Errorf("gas: latest header: %w", err)
	}
	if price == nil || price.Sign() <= 0 {
		price = new(big.Int).Set(defaultGasPrice)
	}

	var base *big.Int
	if head != nil && head.BaseFee != nil {
		base = new(big.Int).Set(head.BaseFee)
	} else {
		base = units.MulFrac(price, 9, 10)
	}
	priority := new(big.Int).Sub(price, base)
	if priority.Sign() < 0 {
		priority.SetInt64(0)
	}
	return domain.NetworkFees{
		BaseFee:     base,
		L1BaseFee:   new(big.Int).Set(defaultL1BaseFee),
		PriorityFee: priority,
		GasPrice:    price,
		Source:      domain.FeeSourceStandard,
	}, nil
}

// DefaultFees is the deterministic last-resort fee snapshot.
func DefaultFees() domain.NetworkFees {
	return domain.NetworkFees{
		BaseFee:     units.GweiToWei(1.8),
		L1BaseFee:   units.GweiToWei(10),
		PriorityFee: units.GweiToWei(0.2),
		GasPrice:    units.GweiToWei(2),
		Source:      domain.FeeSourceDefault,
	}
}

// BreakerSource wraps a FeeSource with a circuit breaker so a failing RPC
// endpoint is skipped quickly.
type BreakerSource struct {
	inner FeeSource
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerSource trips after failures consecutive errors and probes again
// after cooldown.
func NewBreakerSource(inner FeeSource, failures uint32, cooldown time.Duration, logger *slog.Logger) *BreakerSource {
	if failures == 0 {
		failures = 3
	}
	st := gobreaker.Settings{
		Name:    "fee-" + inner.Name(),
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("fee source breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &BreakerSource{inner: inner, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerSource) Name() string { return b.inner.Name() }

// State returns the breaker state.
func (b *BreakerSource) State() gobreaker.State { return b.cb.State() }

func (b *BreakerSource) NetworkFees(ctx context.Context) (domain.NetworkFees, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.NetworkFees(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.NetworkFees{}, fmt.Errorf("gas: %s: %w: %w", b.inner.Name(), domain.ErrFeeDataUnavailable, err)
		}
		return domain.NetworkFees{}, err
	}
	return out.(domain.NetworkFees), nil
}
