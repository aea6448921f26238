// Package calldata encodes per-venue swap calls and the executeArbitrage
// entry point of the on-chain arbitrage contract.
package calldata

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/domain"
)

const (
	// UniswapFeeTier is the pool fee tier used for exactInputSingle (0.3%).
	UniswapFeeTier = 3000
	// SwapDeadline is how long generated swaps stay valid.
	SwapDeadline = 5 * time.Minute
	// MinProfitBps is the share of expected profit the contract must realise.
	MinProfitBps = 9500
)

var supported = []string{
	catalog.VenueUniswapV3,
	catalog.VenueSushiswap,
	catalog.VenueCurve,
	catalog.VenueBalancer,
}

// IsSupported reports whether calldata can be generated for venue.
func IsSupported(venue string) bool {
	v := strings.ToLower(venue)
	for _, s := range supported {
		if s == v {
			return true
		}
	}
	return false
}

// SwapParams describes a single hop.
type SwapParams struct {
	TokenIn      string
	TokenOut     string
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Recipient    string
	Deadline     int64
}

type exactInputSingle struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

type singleSwap struct {
	PoolID   [32]byte `abi:"poolId"`
	Kind     uint8
	AssetIn  common.Address
	AssetOut common.Address
	Amount   *big.Int
	UserData []byte
}

type fundManagement struct {
	Sender              common.Address
	FromInternalBalance bool
	Recipient           common.Address
	ToInternalBalance   bool
}

type arbitrageTuple struct {
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinProfit    *big.Int
	DexAddresses []common.Address
	SwapCalldata [][]byte
}

// Generator builds swap and arbitrage calldata.
type Generator struct {
	catalog  *catalog.Catalog
	uniswap  abi.ABI
	sushi    abi.ABI
	curve    abi.ABI
	balancer abi.ABI
	contract abi.ABI
}

// NewGenerator parses the router ABIs. Router addresses and Curve token
// indices come from cat.
func NewGenerator(cat *catalog.Catalog) (*Generator, error) {
	g := &Generator{catalog: cat}
	for _, p := range []struct {
		dst *abi.ABI
		src string
	}{
		{&g.uniswap, uniswapV3RouterABI},
		{&g.sushi, sushiswapRouterABI},
		{&g.curve, curvePoolABI},
		{&g.balancer, balancerVaultABI},
		{&g.contract, ArbitrageContractABI},
	} {
		parsed, err := abi.JSON(strings.NewReader(p.src))
		if err != nil {
			return nil, fmt.Errorf("calldata: parse abi: %w", err)
		}
		*p.dst = parsed
	}
	return g, nil
}

// RouterAddress returns the contract a venue's swap calldata targets.
func (g *Generator) RouterAddress(venue string) (string, error) {
	if !IsSupported(venue) {
		return "", fmt.Errorf("calldata: %w: %s", domain.ErrUnsupportedVenue, venue)
	}
	addr, ok := g.catalog.Router(strings.ToLower(venue))
	if !ok || addr == "" {
		return "", fmt.Errorf("calldata: no router configured for %s: %w", venue, domain.ErrNotFound)
	}
	return addr, nil
}

// Swap encodes one hop on venue.
func (g *Generator) Swap(venue string, p SwapParams) ([]byte, error) {
	amountIn := orZero(p.AmountIn)
	minOut := orZero(p.AmountOutMin)
	deadline := big.NewInt(p.Deadline)
	tokenIn := common.HexToAddress(p.TokenIn)
	tokenOut := common.HexToAddress(p.TokenOut)
	recipient := common.HexToAddress(p.Recipient)

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(venue) {
	case catalog.VenueUniswapV3:
		data, err = g.uniswap.Pack("exactInputSingle", exactInputSingle{
			TokenIn:           tokenIn,
			TokenOut:          tokenOut,
			Fee:               big.NewInt(UniswapFeeTier),
			Recipient:         recipient,
			Deadline:          deadline,
			AmountIn:          amountIn,
			AmountOutMinimum:  minOut,
			SqrtPriceLimitX96: new(big.Int),
		})
	case catalog.VenueSushiswap:
		data, err = g.sushi.Pack("swapExactTokensForTokens",
			amountIn, minOut, []common.Address{tokenIn, tokenOut}, recipient, deadline)
	case catalog.VenueCurve:
		i, j := g.curveIndices(p.TokenIn, p.TokenOut)
		data, err = g.curve.Pack("exchange", big.NewInt(int64(i)), big.NewInt(int64(j)), amountIn, minOut)
	case catalog.VenueBalancer:
		data, err = g.balancer.Pack("swap",
			singleSwap{AssetIn: tokenIn, AssetOut: tokenOut, Amount: amountIn, UserData: []byte{}},
			fundManagement{Sender: recipient, Recipient: recipient},
			minOut, deadline)
	default:
		return nil, fmt.Errorf("calldata: %w: %s", domain.ErrUnsupportedVenue, venue)
	}
	if err != nil {
		return nil, fmt.Errorf("calldata: encode %s swap: %w", venue, err)
	}
	return data, nil
}

// curveIndices falls back to 0 and 1 for tokens without a known index.
func (g *Generator) curveIndices(tokenIn, tokenOut string) (int, int) {
	i, ok := g.catalog.CurveIndex(tokenIn)
	if !ok {
		i = 0
	}
	j, ok := g.catalog.CurveIndex(tokenOut)
	if !ok {
		j = 1
	}
	return i, j
}

// BuildParams assembles the executeArbitrage arguments for opp. Hop k swaps
// path[k] into path[k+1], wrapping back to path[0] on the last hop so the
// route closes where it started. Swaps pay out to recipient.
func (g *Generator) BuildParams(opp domain.Opportunity, recipient string, now time.Time) (domain.ArbitrageParams, error) {
	if len(opp.Venues) == 0 {
		return domain.ArbitrageParams{}, fmt.Errorf("calldata: %w: %s: no venues", domain.ErrInvalidOpportunity, opp.ID)
	}
	path := opp.Path
	if len(path) < 2 {
		path = []string{opp.TokenIn, opp.TokenOut}
	}
	deadline := now.Add(SwapDeadline).Unix()

	params := domain.ArbitrageParams{
		TokenIn:      opp.TokenIn,
		TokenOut:     opp.TokenOut,
		AmountIn:     orZero(opp.AmountIn).String(),
		MinProfit:    MinProfit(opp.ExpectedProfit).String(),
		DexAddresses: make([]string, 0, len(opp.Venues)),
		SwapCalldata: make([]string, 0, len(opp.Venues)),
	}
	for k, venue := range opp.Venues {
		router, err := g.RouterAddress(venue)
		if err != nil {
			return domain.ArbitrageParams{}, err
		}
		data, err := g.Swap(venue, SwapParams{
			TokenIn:   path[k%len(path)],
			TokenOut:  path[(k+1)%len(path)],
			AmountIn:  opp.AmountIn,
			Recipient: recipient,
			Deadline:  deadline,
		})
		if err != nil {
			return domain.ArbitrageParams{}, err
		}
		params.DexAddresses = append(params.DexAddresses, router)
		params.SwapCalldata = append(params.SwapCalldata, hexutil.Encode(data))
	}
	return params, nil
}

// ExecuteArbitrage encodes the contract call for params.
func (g *Generator) ExecuteArbitrage(params domain.ArbitrageParams) ([]byte, error) {
	amountIn, ok := new(big.Int).SetString(params.AmountIn, 10)
	if !ok {
		return nil, fmt.Errorf("calldata: amountIn %q is not an integer", params.AmountIn)
	}
	minProfit, ok := new(big.Int).SetString(params.MinProfit, 10)
	if !ok {
		return nil, fmt.Errorf("calldata: minProfit %q is not an integer", params.MinProfit)
	}
	tuple := arbitrageTuple{
		TokenIn:      common.HexToAddress(params.TokenIn),
		TokenOut:     common.HexToAddress(params.TokenOut),
		AmountIn:     amountIn,
		MinProfit:    minProfit,
		DexAddresses: make([]common.Address, 0, len(params.DexAddresses)),
		SwapCalldata: make([][]byte, 0, len(params.SwapCalldata)),
	}
	for _, a := range params.DexAddresses {
		tuple.DexAddresses = append(tuple.DexAddresses, common.HexToAddress(a))
	}
	for _, c := range params.SwapCalldata {
		raw, err := hexutil.Decode(c)
		if err != nil {
			return nil, fmt.Errorf("calldata: decode swap calldata: %w", err)
		}
		tuple.SwapCalldata = append(tuple.SwapCalldata, raw)
	}
	data, err := g.contract.Pack("executeArbitrage", tuple)
	if err != nil {
		return nil, fmt.Errorf("calldata: encode executeArbitrage: %w", err)
	}
	return data, nil
}

// MinProfit is 95% of the expected profit, rounded down.
func MinProfit(expected *big.Int) *big.Int {
	if expected == nil || expected.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(expected, big.NewInt(MinProfitBps))
	return out.Quo(out, big.NewInt(10_000))
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
