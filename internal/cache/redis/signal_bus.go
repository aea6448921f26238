package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/orbitflash/internal/domain"
)

const (
	defaultStreamMaxLen int64 = 10000
	defaultSubBuffer          = 256
	payloadField              = "payload"
)

// BusOptions tunes the SignalBus. Zero values take defaults.
type BusOptions struct {
	StreamMaxLen     int64
	SubscriberBuffer int
}

// SignalBus carries pipeline messages over Redis Pub/Sub, with durable
// copies in Redis Streams.
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
	buffer int
}

// NewSignalBus creates a SignalBus backed by c.
func NewSignalBus(c *Client, opts BusOptions) *SignalBus {
	sb := &SignalBus{rdb: c.Underlying(), maxLen: opts.StreamMaxLen, buffer: opts.SubscriberBuffer}
	if sb.maxLen <= 0 {
		sb.maxLen = defaultStreamMaxLen
	}
	if sb.buffer <= 0 {
		sb.buffer = defaultSubBuffer
	}
	return sb
}

// Publish sends payload on a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads published on channel. Glob
// patterns use PSUBSCRIBE. The returned channel closes when ctx ends.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, sb.buffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend adds payload to stream, trimming it to roughly the
// configured length.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.maxLen,
		Approx: true,
		Values: map[string]any{payloadField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID without blocking.
// "0" reads from the start.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	if lastID == "" {
		lastID = "0"
	}
	results, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			if data, ok := streamPayload(msg.Values); ok {
				messages = append(messages, domain.StreamMessage{ID: msg.ID, Payload: data})
			}
		}
	}
	return messages, nil
}

func streamPayload(values map[string]any) ([]byte, bool) {
	switch v := values[payloadField].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)
