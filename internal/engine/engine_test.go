package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orbitflash/internal/cache/memory"
	"github.com/alanyoungcy/orbitflash/internal/catalog"
	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/queue"
	"github.com/alanyoungcy/orbitflash/internal/risk"
	"github.com/alanyoungcy/orbitflash/internal/scoring"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

const otherToken = "0x00000000000000000000000000000000000000aa"

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []domain.MonitoringAlert
}

func (r *recordingAlerter) Alert(_ context.Context, level domain.AlertLevel, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, domain.MonitoringAlert{Level: level, Message: msg})
	return nil
}

func (r *recordingAlerter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// failingBus fails every publish on one channel.
type failingBus struct {
	*memory.Bus
	channel string
}

func (f failingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == f.channel {
		return errors.New("connection reset")
	}
	return f.Bus.Publish(ctx, channel, payload)
}

func opportunity(id string) domain.Opportunity {
	return domain.Opportunity{
		ID:                id,
		TokenIn:           catalog.WETH,
		TokenOut:          otherToken,
		AmountIn:          units.EtherToWei(0.5),
		ExpectedProfit:    units.EtherToWei(0.1),
		GasEstimate:       new(big.Int).Mul(units.GweiToWei(20), big.NewInt(500_000)),
		SlippageTolerance: 0.005,
		Confidence:        0.8,
		Path:              []string{catalog.WETH, otherToken},
		Venues:            []string{catalog.VenueUniswapV3, catalog.VenueSushiswap},
		Urgency:           domain.UrgencyMedium,
	}
}

type strategyFixture struct {
	engine  *StrategyEngine
	bus     *memory.Bus
	queue   *queue.Queue
	alerter *recordingAlerter
}

func newStrategyFixture(t *testing.T, bus domain.SignalBus) *strategyFixture {
	t.Helper()
	mem := memory.NewBus(16)
	if bus == nil {
		bus = mem
	}
	now := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return now }
	cat := catalog.Default()
	f := &strategyFixture{
		bus:     mem,
		queue:   queue.New(queue.DefaultConfig(), discard(), queue.WithClock(clock)),
		alerter: &recordingAlerter{},
	}
	f.engine = NewStrategyEngine(StrategyConfig{DrainInterval: 5 * time.Millisecond}, StrategyDeps{
		Bus:     bus,
		Gate:    risk.NewGate(risk.DefaultConfig(), cat, cat, discard()),
		Scorer:  scoring.NewScorer(scoring.DefaultConfig(), cat, cat, discard()),
		Queue:   f.queue,
		Alerter: f.alerter,
		Now:     clock,
	}, discard())
	return f
}

func TestAdmitAndDrain(t *testing.T) {
	f := newStrategyFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := f.bus.Subscribe(ctx, domain.ChannelOpportunityExecute)
	require.NoError(t, err)

	ok, err := f.engine.Admit(ctx, opportunity("arb-1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, f.engine.HasOpportunity("arb-1"))
	assert.Equal(t, 1, f.engine.QueueSize())

	require.True(t, f.engine.DrainOnce(ctx))
	assert.Equal(t, 0, f.engine.QueueSize())

	var p domain.ExecutionPayload
	require.NoError(t, json.Unmarshal(<-sub, &p))
	assert.Equal(t, "arb-1", p.Opportunity.ID)
	assert.Equal(t, 0, p.RetryCount)
	assert.Positive(t, p.Score.Priority)
	assert.Equal(t, int64(1_700_000_000_000), p.Timestamp)

	// Processed ids are not admitted again.
	ok, err = f.engine.Admit(ctx, opportunity("arb-1"))
	require.NoError(t, err)
	assert.False(t, ok)

	h := f.engine.Health()
	assert.Equal(t, int64(1), h.Admitted)
	assert.Equal(t, int64(1), h.Dispatched)
}

func TestAdmitRejectsBlacklistedToken(t *testing.T) {
	f := newStrategyFixture(t, nil)
	f.engine.BlockToken(otherToken)

	ok, err := f.engine.Admit(context.Background(), opportunity("arb-2"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, f.engine.QueueSize())
	assert.Equal(t, int64(1), f.engine.Health().Rejected)

	tokens, _ := f.engine.Blacklist()
	assert.Equal(t, []string{otherToken}, tokens)
	f.engine.UnblockToken(otherToken)
	ok, _ = f.engine.Admit(context.Background(), opportunity("arb-2"))
	assert.True(t, ok)
}

func TestAdmitRejectsInvalidOpportunity(t *testing.T) {
	f := newStrategyFixture(t, nil)
	opp := opportunity("arb-3")
	opp.AmountIn = nil
	_, err := f.engine.Admit(context.Background(), opp)
	assert.ErrorIs(t, err, domain.ErrInvalidOpportunity)

	_, err = f.engine.HandleMessage(context.Background(), []byte("{not json"))
	assert.Error(t, err)
}

func TestDrainRequeuesThenDrops(t *testing.T) {
	f := newStrategyFixture(t, nil)
	f.engine.deps.Bus = failingBus{Bus: f.bus, channel: domain.ChannelOpportunityExecute}
	ctx := context.Background()

	ok, err := f.engine.Admit(ctx, opportunity("arb-4"))
	require.NoError(t, err)
	require.True(t, ok)

	for i := 1; i <= 3; i++ {
		assert.False(t, f.engine.DrainOnce(ctx))
		e, found := f.engine.Queued("arb-4")
		require.True(t, found, "attempt %d", i)
		assert.Equal(t, i, e.RetryCount)
	}
	assert.False(t, f.engine.DrainOnce(ctx))
	assert.False(t, f.engine.HasOpportunity("arb-4"))
	assert.Equal(t, 1, f.alerter.count())
	assert.False(t, f.engine.DrainOnce(ctx))
}

func TestQueueControls(t *testing.T) {
	f := newStrategyFixture(t, nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		ok, err := f.engine.Admit(ctx, opportunity(id))
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Len(t, f.engine.ByUrgency(domain.UrgencyMedium), 2)
	assert.Empty(t, f.engine.ByUrgency(domain.UrgencyHigh))
	assert.Equal(t, 2, f.engine.QueueStats().TotalItems)

	f.engine.ClearQueue()
	assert.Equal(t, 0, f.engine.QueueSize())
}

func TestUpdateScorerConfigValidates(t *testing.T) {
	f := newStrategyFixture(t, nil)
	bad := -1.0
	_, err := f.engine.UpdateScorerConfig(scoring.Patch{ProfitWeight: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	minProfit := 0.05
	cfg, err := f.engine.UpdateRiskConfig(risk.Patch{MinProfitEth: &minProfit})
	require.NoError(t, err)
	assert.Equal(t, 0.05, cfg.MinProfitEth)
	assert.Equal(t, 0.05, f.engine.RiskConfig().MinProfitEth)
}

func TestRunConsumesAndDrains(t *testing.T) {
	f := newStrategyFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := f.bus.Subscribe(ctx, domain.ChannelOpportunityExecute)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()
	require.Eventually(t, func() bool {
		return f.bus.Subscribers(domain.ChannelOpportunityNew) == 1
	}, time.Second, time.Millisecond)
	assert.True(t, f.engine.Health().Running)

	raw, err := json.Marshal(opportunity("arb-run"))
	require.NoError(t, err)
	require.NoError(t, f.bus.Publish(ctx, domain.ChannelOpportunityNew, raw))

	select {
	case msg := <-sub:
		var p domain.ExecutionPayload
		require.NoError(t, json.Unmarshal(msg, &p))
		assert.Equal(t, "arb-run", p.Opportunity.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no execution payload published")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, f.engine.Health().Running)
}
