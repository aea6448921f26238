// Package queue implements the priority scheduling queue that sits between
// admission and dispatch.
package queue

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

// Config controls entry lifetime and retry budget. A non-positive MaxAge
// is taken literally: entries expire as soon as any time has passed.
type Config struct {
	MaxAge     time.Duration `json:"maxAge"`
	MaxRetries int           `json:"maxRetries"`
}

// DefaultConfig returns the standard queue settings.
func DefaultConfig() Config {
	return Config{
		MaxAge:     30 * time.Second,
		MaxRetries: 3,
	}
}

// Queue is a max-heap of scheduled entries ordered by priority, then total
// score, then enqueue time (newest first), with an id index over the heap.
// Processed ids are remembered until Clear. All methods are safe for
// concurrent use.
type Queue struct {
	mu        sync.Mutex
	cfg       Config
	items     entryHeap
	byID      map[string]*domain.ScheduledEntry
	processed map[string]struct{}
	now       func() time.Time
	logger    *slog.Logger
}

// Option customises a Queue.
type Option func(*Queue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates an empty queue.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Queue {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	q := &Queue{
		cfg:       cfg,
		byID:      make(map[string]*domain.ScheduledEntry),
		processed: make(map[string]struct{}),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "queue")),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Push enqueues an admitted opportunity. It returns false when the id was
// already processed, is already queued, or the opportunity is older than
// MaxAge. An opportunity without a creation time is treated as fresh.
func (q *Queue) Push(opp domain.Opportunity, score domain.OpportunityScore) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, done := q.processed[opp.ID]; done {
		q.logger.Debug("already processed", slog.String("id", opp.ID))
		return false
	}
	if _, queued := q.byID[opp.ID]; queued {
		q.logger.Debug("already queued", slog.String("id", opp.ID))
		return false
	}
	now := q.now()
	if created := opp.CreatedAt(); !created.IsZero() {
		if age := now.Sub(created); age > q.cfg.MaxAge {
			q.logger.Debug("opportunity too old",
				slog.String("id", opp.ID),
				slog.Duration("age", age),
			)
			return false
		}
	}

	q.insert(&domain.ScheduledEntry{
		Opportunity: opp.Clone(),
		Score:       score,
		EnqueuedAt:  now,
	})
	return true
}

func (q *Queue) insert(e *domain.ScheduledEntry) {
	heap.Push(&q.items, e)
	q.byID[e.Opportunity.ID] = e
}

// Pop removes and returns the highest-ranked entry. Entries that have waited
// longer than MaxAge are discarded on the way. Returns nil when empty.
func (q *Queue) Pop() *domain.ScheduledEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for q.items.Len() > 0 {
		e := heap.Pop(&q.items).(*domain.ScheduledEntry)
		delete(q.byID, e.Opportunity.ID)
		if age := now.Sub(e.EnqueuedAt); age > q.cfg.MaxAge {
			q.logger.Debug("discarding expired entry",
				slog.String("id", e.Opportunity.ID),
				slog.Duration("age", age),
			)
			continue
		}
		return e
	}
	return nil
}

// Peek returns a copy of the top entry without removing it.
func (q *Queue) Peek() *domain.ScheduledEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil
	}
	e := *q.items[0]
	return &e
}

// Requeue puts a previously popped entry back with one more retry and a
// priority reduced by 10 (floored at 1). Once the retry budget is spent the
// id is marked processed and false is returned.
func (q *Queue) Requeue(e *domain.ScheduledEntry) bool {
	if e == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, queued := q.byID[e.Opportunity.ID]; queued {
		return false
	}
	if e.RetryCount >= q.cfg.MaxRetries {
		q.processed[e.Opportunity.ID] = struct{}{}
		q.logger.Info("retries exhausted",
			slog.String("id", e.Opportunity.ID),
			slog.Int("retries", e.RetryCount),
		)
		return false
	}

	e.RetryCount++
	e.Score.Priority = max(1, e.Score.Priority-10)
	e.EnqueuedAt = q.now()
	q.insert(e)
	return true
}

// MarkProcessed records that id must never be enqueued again. Only Clear
// forgets it.
func (q *Queue) MarkProcessed(id string) {
	q.mu.Lock()
	q.processed[id] = struct{}{}
	q.mu.Unlock()
}

// Size returns the number of queued entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// IsEmpty reports whether the queue has no entries.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// Clear drops every entry and forgets processed ids.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.byID = make(map[string]*domain.ScheduledEntry)
	q.processed = make(map[string]struct{})
	q.mu.Unlock()
}

// Cleanup removes expired entries and returns how many were dropped.
func (q *Queue) Cleanup() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	kept := q.items[:0]
	removed := 0
	for _, e := range q.items {
		if now.Sub(e.EnqueuedAt) > q.cfg.MaxAge {
			delete(q.byID, e.Opportunity.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	heap.Init(&q.items)
	return removed
}

// Stats summarises the queue without modifying it.
func (q *Queue) Stats() domain.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var st domain.QueueStats
	var total float64
	for _, e := range q.items {
		st.TotalItems++
		total += e.Score.TotalScore
		if age := now.Sub(e.EnqueuedAt); age > st.OldestItemAge {
			st.OldestItemAge = age
		}
		switch {
		case e.Score.Priority >= 80:
			st.HighPriorityItems++
		case e.Score.Priority >= 50:
			st.MediumPriorityItems++
		default:
			st.LowPriorityItems++
		}
	}
	if st.TotalItems > 0 {
		st.AverageScore = total / float64(st.TotalItems)
	}
	return st
}

// ByUrgency returns copies of queued entries with the given urgency, in
// heap order.
func (q *Queue) ByUrgency(u domain.Urgency) []domain.ScheduledEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []domain.ScheduledEntry
	for _, e := range q.items {
		if e.Opportunity.Urgency == u {
			out = append(out, *e)
		}
	}
	return out
}

// Get returns a copy of the queued entry with the given id.
func (q *Queue) Get(id string) (domain.ScheduledEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok {
		return domain.ScheduledEntry{}, false
	}
	return *e, true
}

// Has reports whether an entry with the given id is queued.
func (q *Queue) Has(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byID[id]
	return ok
}

// Config returns the active configuration.
func (q *Queue) Config() Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg
}

type entryHeap []*domain.ScheduledEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Score.Priority != b.Score.Priority {
		return a.Score.Priority > b.Score.Priority
	}
	if a.Score.TotalScore != b.Score.TotalScore {
		return a.Score.TotalScore > b.Score.TotalScore
	}
	return a.EnqueuedAt.After(b.EnqueuedAt)
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*domain.ScheduledEntry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
