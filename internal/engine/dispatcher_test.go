package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orbitflash/internal/cache/memory"
	"github.com/alanyoungcy/orbitflash/internal/calldata"
	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/gas"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

const contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

type staticFees struct {
	fees domain.NetworkFees
	err  error
}

func (s staticFees) NetworkFees(context.Context) (domain.NetworkFees, error) { return s.fees, s.err }
func (s staticFees) Name() string                                            { return "static" }

type fakeEstimator struct {
	gas  uint64
	err  error
	msgs []ethereum.CallMsg
}

func (f *fakeEstimator) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.msgs = append(f.msgs, msg)
	return f.gas, f.err
}

type dispatchFixture struct {
	d       *Dispatcher
	bus     *memory.Bus
	locks   *memory.Cache
	alerter *recordingAlerter
	now     time.Time
}

func liveFees() staticFees {
	return staticFees{fees: domain.NetworkFees{
		BaseFee:     units.GweiToWei(0.1),
		L1BaseFee:   units.GweiToWei(10),
		PriorityFee: units.GweiToWei(1),
		GasPrice:    units.GweiToWei(1.1),
		Source:      domain.FeeSourceChain,
	}}
}

func newDispatchFixture(t *testing.T, cfg DispatcherConfig, src gas.FeeSource, est GasEstimator) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		bus:     memory.NewBus(16),
		alerter: &recordingAlerter{},
		now:     time.UnixMilli(1_700_000_000_000),
	}
	clock := func() time.Time { return f.now }
	f.locks = memory.NewCache(clock)
	cat := catalog.Default()
	gen, err := calldata.NewGenerator(cat)
	require.NoError(t, err)
	if cfg.ContractAddress == "" {
		cfg.ContractAddress = contract
	}
	f.d, err = NewDispatcher(cfg, DispatcherDeps{
		Bus:       f.bus,
		Locks:     f.locks,
		Optimizer: gas.NewOptimizer(gas.DefaultConfig(), []gas.FeeSource{src}, cat, nil, discard()),
		Calldata:  gen,
		Estimator: est,
		Alerter:   f.alerter,
		Now:       clock,
	}, discard())
	require.NoError(t, err)
	return f
}

func execPayload(id string) domain.ExecutionPayload {
	opp := opportunity(id)
	opp.TokenOut = catalog.USDC
	opp.Path = []string{catalog.WETH, catalog.USDC}
	return domain.ExecutionPayload{Opportunity: opp, Score: domain.OpportunityScore{TotalScore: 50, Priority: 60}}
}

func TestDispatchPublishesTransaction(t *testing.T) {
	f := newDispatchFixture(t, DispatcherConfig{}, liveFees(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := f.bus.Subscribe(ctx, domain.ChannelTransactionReady)
	require.NoError(t, err)

	tx, err := f.d.Dispatch(ctx, execPayload("arb-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, contract, tx.ContractAddress)
	assert.Equal(t, units.EtherToWei(0.1).String(), tx.EstimatedProfit)
	assert.Equal(t, units.EtherToWei(0.095).String(), tx.ArbitrageParams.MinProfit)
	assert.Equal(t, []string{catalog.UniswapV3Router, catalog.SushiswapRouter}, tx.ArbitrageParams.DexAddresses)
	assert.Len(t, tx.ArbitrageParams.SwapCalldata, 2)
	assert.True(t, tx.GasStrategy.Valid())
	assert.Equal(t, f.now.UnixMilli(), tx.Timestamp)
	assert.Empty(t, f.alerter.alerts)

	var got domain.TransactionPayload
	require.NoError(t, json.Unmarshal(<-sub, &got))
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, tx.GasStrategy.GasPrice.String(), got.GasStrategy.GasPrice.String())

	stream, err := f.bus.StreamRead(ctx, domain.StreamTransactionReady, "0", 10)
	require.NoError(t, err)
	assert.Len(t, stream, 1)
}

func TestDispatchSuppressesDuplicates(t *testing.T) {
	f := newDispatchFixture(t, DispatcherConfig{}, liveFees(), nil)
	ctx := context.Background()

	_, err := f.d.Dispatch(ctx, execPayload("arb-1"))
	require.NoError(t, err)
	_, err = f.d.Dispatch(ctx, execPayload("arb-1"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDispatchSkipsLockedOpportunity(t *testing.T) {
	f := newDispatchFixture(t, DispatcherConfig{}, liveFees(), nil)
	ctx := context.Background()
	_, err := f.locks.Acquire(ctx, "dispatch:arb-1", time.Minute)
	require.NoError(t, err)

	_, err = f.d.Dispatch(ctx, execPayload("arb-1"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDispatchFailureAllowsRetry(t *testing.T) {
	f := newDispatchFixture(t, DispatcherConfig{}, liveFees(), nil)
	ctx := context.Background()
	p := execPayload("arb-1")
	p.Opportunity.Venues = []string{"pancake"}

	_, err := f.d.Dispatch(ctx, p)
	require.ErrorIs(t, err, domain.ErrUnsupportedVenue)
	assert.Equal(t, 1, f.alerter.count())

	// Neither the dedup window nor the lock blocks the retry.
	_, err = f.d.Dispatch(ctx, execPayload("arb-1"))
	assert.NoError(t, err)
}

func TestDispatchUsesGasEstimate(t *testing.T) {
	est := &fakeEstimator{gas: 400_000}
	sender := common.HexToAddress("0x00000000000000000000000000000000000000e0")
	f := newDispatchFixture(t, DispatcherConfig{EstimateGas: true, GasBufferPct: 20, Sender: sender}, liveFees(), est)

	tx, err := f.d.Dispatch(context.Background(), execPayload("arb-1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(480_000), tx.GasStrategy.GasLimit)
	require.Len(t, est.msgs, 1)
	assert.Equal(t, contract, est.msgs[0].To.Hex())
	assert.Equal(t, sender, est.msgs[0].From)
	assert.Equal(t, tx.GasStrategy.GasPrice.String(), est.msgs[0].GasPrice.String())
}

func TestDispatchFallsBackWhenEstimateFails(t *testing.T) {
	est := &fakeEstimator{err: errors.New("execution reverted")}
	f := newDispatchFixture(t, DispatcherConfig{EstimateGas: true}, liveFees(), est)

	tx, err := f.d.Dispatch(context.Background(), execPayload("arb-1"))
	require.NoError(t, err)
	// 21k base + 200k flash loan + 2 x 150k swaps, 20% buffer.
	assert.Equal(t, uint64(625_200), tx.GasStrategy.GasLimit)
}

func TestDispatchAlertsOnDefaultFees(t *testing.T) {
	f := newDispatchFixture(t, DispatcherConfig{}, staticFees{err: errors.New("rpc down")}, nil)
	_, err := f.d.Dispatch(context.Background(), execPayload("arb-1"))
	require.NoError(t, err)
	require.Equal(t, 1, f.alerter.count())
	assert.Equal(t, domain.AlertWarning, f.alerter.alerts[0].Level)
}

func TestContractAddressValidation(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{}, DispatcherDeps{}, discard())
	assert.ErrorIs(t, err, domain.ErrMissingContract)

	_, err = NewDispatcher(DispatcherConfig{ContractAddress: "0x123"}, DispatcherDeps{}, discard())
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	f := newDispatchFixture(t, DispatcherConfig{}, liveFees(), nil)
	next := "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	require.NoError(t, f.d.SetContractAddress(next))
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", f.d.ContractAddress())
	assert.Error(t, f.d.SetContractAddress("nope"))
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", f.d.ContractAddress())
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	f := newDispatchFixture(t, DispatcherConfig{}, liveFees(), nil)
	_, err := f.d.HandleMessage(context.Background(), []byte("nope"))
	assert.Error(t, err)
}

func TestDedupCleanup(t *testing.T) {
	now := time.Unix(0, 0)
	d := NewDedup(time.Minute, func() time.Time { return now })
	assert.False(t, d.Seen("a"))
	assert.True(t, d.Seen("a"))
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, d.Cleanup())
	assert.False(t, d.Seen("a"))
	assert.Equal(t, 1, d.Len())
}
