package detector

import (
	"sync"
	"time"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

// PriceBuffer keeps the most recent observations per normalised pair.
type PriceBuffer struct {
	mu    sync.Mutex
	max   int
	pairs map[string][]domain.PriceObservation
}

// NewPriceBuffer creates a buffer holding at most size observations per pair.
func NewPriceBuffer(size int) *PriceBuffer {
	if size <= 0 {
		size = 10
	}
	return &PriceBuffer{max: size, pairs: make(map[string][]domain.PriceObservation)}
}

// Add appends obs, evicting the oldest entry once the pair is full, and
// returns the pair key.
func (b *PriceBuffer) Add(obs domain.PriceObservation) string {
	key := PairKey(obs.TokenA, obs.TokenB)
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := append(b.pairs[key], obs)
	if len(buf) > b.max {
		buf = append([]domain.PriceObservation(nil), buf[len(buf)-b.max:]...)
	}
	b.pairs[key] = buf
	return key
}

// LatestPerVenue returns the newest observation from each venue for the
// pair, in the order venues first appear in the buffer.
func (b *PriceBuffer) LatestPerVenue(key string) []domain.PriceObservation {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := b.pairs[key]
	if len(buf) < 2 {
		return nil
	}
	idx := make(map[string]int)
	var out []domain.PriceObservation
	for _, obs := range buf {
		i, ok := idx[obs.Venue]
		if !ok {
			idx[obs.Venue] = len(out)
			out = append(out, obs)
			continue
		}
		if obs.ObservedAt > out[i].ObservedAt {
			out[i] = obs
		}
	}
	return out
}

// Prune drops observations at or before cutoff and removes empty pairs. It
// returns the number of observations dropped.
func (b *PriceBuffer) Prune(cutoff time.Time) int {
	ms := cutoff.UnixMilli()
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for key, buf := range b.pairs {
		kept := buf[:0]
		for _, obs := range buf {
			if obs.ObservedAt > ms {
				kept = append(kept, obs)
			}
		}
		dropped += len(buf) - len(kept)
		if len(kept) == 0 {
			delete(b.pairs, key)
			continue
		}
		b.pairs[key] = kept
	}
	return dropped
}

// Status returns the number of buffered observations per pair.
func (b *PriceBuffer) Status() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]int, len(b.pairs))
	for key, buf := range b.pairs {
		out[key] = len(buf)
	}
	return out
}
