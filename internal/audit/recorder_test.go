package audit

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

type memStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memStore) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{ID: int64(len(m.entries) + 1), Event: event, Detail: detail})
	return nil
}

func (m *memStore) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEntry(nil), m.entries...), nil
}

func (m *memStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRecorderWritesEvents(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 8, discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Record(domain.AuditOpportunityScheduled, map[string]any{"opportunity_id": "a"})
	r.Record(domain.AuditOpportunityRejected, map[string]any{"opportunity_id": "b"})

	require.Eventually(t, func() bool {
		list, _ := store.List(ctx, domain.ListOpts{})
		return len(list) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	r := NewRecorder(&memStore{}, 1, discard())
	r.Record("a", nil)
	r.Record("b", nil)
	r.Record("c", nil)
	assert.Equal(t, int64(2), r.Dropped())
}

func TestRecorderFlushesOnShutdown(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 4, discard())
	r.Record("a", nil)
	r.Record("b", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = r.Run(ctx)
	list, _ := store.List(context.Background(), domain.ListOpts{})
	assert.Len(t, list, 2)
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Record("a", nil) })
}

func TestOpportunityDetail(t *testing.T) {
	d := OpportunityDetail(domain.Opportunity{ID: "x", ExpectedProfit: big.NewInt(5), Urgency: domain.UrgencyHigh})
	assert.Equal(t, "x", d["opportunity_id"])
	assert.Equal(t, "5", d["expected_profit_wei"])
	assert.Equal(t, "high", d["urgency"])
	_, ok := d["amount_in"]
	assert.False(t, ok)
}
