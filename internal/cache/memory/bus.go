// Package memory provides in-process implementations of the bus and cache
// interfaces for single-process deployments and tests.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

// Bus is an in-process SignalBus. Slow subscribers drop messages rather than
// block publishers.
type Bus struct {
	mu      sync.Mutex
	subs    map[string][]chan []byte
	streams map[string][]domain.StreamMessage
	seq     int64
	buffer  int
}

// NewBus creates a Bus whose subscriber channels hold buffer messages.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 128
	}
	return &Bus{
		subs:    make(map[string][]chan []byte),
		streams: make(map[string][]domain.StreamMessage),
		buffer:  buffer,
	}
}

// Publish delivers payload to every current subscriber of channel.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads. It is closed when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, b.buffer)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// Subscribers returns the number of live subscribers on channel.
func (b *Bus) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

// StreamAppend adds payload to stream.
func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatInt(b.seq, 10) + "-0",
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

// StreamRead returns up to count entries after lastID ("0" or "" for the
// beginning).
func (b *Bus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var after int64
	if lastID != "" && lastID != "0" {
		n, err := strconv.ParseInt(trimSeq(lastID), 10, 64)
		if err != nil {
			return nil, err
		}
		after = n
	}
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		n, _ := strconv.ParseInt(trimSeq(m.ID), 10, 64)
		if n <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}

func trimSeq(id string) string {
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			return id[:i]
		}
	}
	return id
}
