package engine

import (
	"sync"
	"time"
)

// Dedup suppresses repeated opportunity ids within a TTL window.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewDedup creates a Dedup. now defaults to time.Now.
func NewDedup(ttl time.Duration, now func() time.Time) *Dedup {
	if now == nil {
		now = time.Now
	}
	return &Dedup{seen: make(map[string]time.Time), ttl: ttl, now: now}
}

// Seen records id and reports whether it was already recorded within the TTL.
func (d *Dedup) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if last, ok := d.seen[id]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[id] = now
	return false
}

// Forget removes id so it can be processed again.
func (d *Dedup) Forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

// Cleanup drops expired ids and returns how many were removed.
func (d *Dedup) Cleanup() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	n := 0
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked ids.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
