// Package audit records pipeline decisions without blocking the hot path.
package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

type entry struct {
	event  string
	detail map[string]any
}

// Recorder queues audit events and writes them from a single goroutine.
// Events are dropped when the buffer is full.
type Recorder struct {
	store   domain.AuditStore
	ch      chan entry
	timeout time.Duration
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewRecorder creates a Recorder with the given buffer size.
func NewRecorder(store domain.AuditStore, buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Recorder{
		store:   store,
		ch:      make(chan entry, buffer),
		timeout: 5 * time.Second,
		logger:  logger.With(slog.String("component", "audit")),
	}
}

// Record enqueues an event. A nil Recorder discards it.
func (r *Recorder) Record(event string, detail map[string]any) {
	if r == nil {
		return
	}
	select {
	case r.ch <- entry{event: event, detail: detail}:
	default:
		if n := r.dropped.Add(1); n%100 == 1 {
			r.logger.Warn("audit buffer full, dropping events",
				slog.String("event", event),
				slog.Int64("dropped_total", n),
			)
		}
	}
}

// Dropped reports how many events were discarded.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Run writes queued events until ctx is cancelled, then flushes what is
// already buffered.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		case e := <-r.ch:
			r.write(ctx, e)
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	for {
		select {
		case e := <-r.ch:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e entry) {
	wctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.Log(wctx, e.event, e.detail); err != nil {
		r.logger.Warn("audit write failed",
			slog.String("event", e.event),
			slog.String("error", err.Error()),
		)
	}
}

// OpportunityDetail is the standard detail map for an opportunity event.
func OpportunityDetail(opp domain.Opportunity) map[string]any {
	d := map[string]any{
		"opportunity_id": opp.ID,
		"token_in":       opp.TokenIn,
		"token_out":      opp.TokenOut,
		"venues":         opp.Venues,
		"urgency":        string(opp.Urgency),
		"confidence":     opp.Confidence,
	}
	if opp.ExpectedProfit != nil {
		d["expected_profit_wei"] = opp.ExpectedProfit.String()
	}
	if opp.AmountIn != nil {
		d["amount_in"] = opp.AmountIn.String()
	}
	return d
}
