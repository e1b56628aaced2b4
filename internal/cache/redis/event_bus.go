package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// payloadField is the stream entry field holding the encoded event.
const payloadField = "payload"

// EventBus implements domain.EventBus. Entity changes fan out to API
// replicas over Pub/Sub. Committed events are relayed through a capped
// stream that follower indexers consume.
type EventBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewEventBus creates an EventBus. Streams are trimmed to about maxLen
// entries; zero keeps them whole.
func NewEventBus(c *Client, maxLen int64) *EventBus {
	return &EventBus{rdb: c.Underlying(), maxLen: maxLen}
}

// Publish announces one entity change.
func (b *EventBus) Publish(ctx context.Context, channel string, change []byte) error {
	if err := b.rdb.Publish(ctx, channel, change).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe follows channel, or every channel matching it when it holds a
// glob. Changes arrive on the returned channel until ctx ends.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.rdb.Subscribe
	if strings.ContainsAny(channel, "*?[") {
		sub = b.rdb.PSubscribe
	}
	ps := sub(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	changes := make(chan []byte, 128)
	go func() {
		defer close(changes)
		defer ps.Close()
		in := ps.Channel()
		for {
			var msg *redis.Message
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				msg = m
			}
			select {
			case changes <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return changes, nil
}

// StreamAppend adds one encoded event to stream.
func (b *EventBus) StreamAppend(ctx context.Context, stream string, event []byte) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{payloadField: event},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: append to %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" for the start of
// the stream). When the stream has nothing new it waits up to block, or
// returns at once when block is zero. An empty result is not an error.
func (b *EventBus) StreamRead(ctx context.Context, stream, lastID string, count int, block time.Duration) ([]domain.StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}
	if block > 0 {
		args.Block = block
	}
	res, err := b.rdb.XRead(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read %s: %w", stream, err)
	}

	var out []domain.StreamMessage
	for _, s := range res {
		for _, entry := range s.Messages {
			switch v := entry.Values[payloadField].(type) {
			case string:
				out = append(out, domain.StreamMessage{ID: entry.ID, Payload: []byte(v)})
			case []byte:
				out = append(out, domain.StreamMessage{ID: entry.ID, Payload: v})
			}
		}
	}
	return out, nil
}

var _ domain.EventBus = (*EventBus)(nil)
