package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// StreamReader reads a durable message stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream, lastID string, count int, block time.Duration) ([]domain.StreamMessage, error)
}

// RedisStream reads JSON event envelopes from a Redis stream written by an
// upstream producer.
type RedisStream struct {
	reader    StreamReader
	stream    string
	lastID    string
	batchSize int
	idle      time.Duration
	logger    *slog.Logger
}

// NewRedisStream creates a RedisStream starting after lastID ("0" reads the
// whole stream). Each read blocks up to idle for new entries.
func NewRedisStream(reader StreamReader, stream, lastID string, batchSize int, idle time.Duration, logger *slog.Logger) *RedisStream {
	if lastID == "" {
		lastID = "0"
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if idle <= 0 {
		idle = time.Second
	}
	return &RedisStream{
		reader:    reader,
		stream:    stream,
		lastID:    lastID,
		batchSize: batchSize,
		idle:      idle,
		logger:    logger.With(slog.String("component", "feed_redis_stream")),
	}
}

func (f *RedisStream) Run(ctx context.Context, h Handler) error {
	for {
		msgs, err := f.reader.StreamRead(ctx, f.stream, f.lastID, f.batchSize, f.idle)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read stream %s: %w", f.stream, err)
		}
		if len(msgs) == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		for _, msg := range msgs {
			f.lastID = msg.ID
			ev, err := decodeEnvelope(msg.Payload)
			if err != nil {
				f.logger.Error("skipping malformed stream entry",
					slog.String("id", msg.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := h(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// LastID is the id of the last entry handed to the handler.
func (f *RedisStream) LastID() string { return f.lastID }
