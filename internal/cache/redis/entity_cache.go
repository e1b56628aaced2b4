package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// EntityCache is a write-through read cache in front of an EntityStore.
// Writes go to the store first; only committed documents are cached.
//
// Key schema:
//
//	entity:{kind}:{id}  - string holding the JSON document
type EntityCache struct {
	domain.EntityStore
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewEntityCache wraps store.
func NewEntityCache(c *Client, store domain.EntityStore, ttl time.Duration, logger *slog.Logger) *EntityCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EntityCache{
		EntityStore: store,
		rdb:         c.Underlying(),
		ttl:         ttl,
		logger:      logger.With(slog.String("component", "entity_cache")),
	}
}

func entityKey(kind domain.EntityKind, id string) string {
	return "entity:" + string(kind) + ":" + id
}

// Get serves from Redis and falls back to the store. A Redis outage degrades
// to store reads.
func (c *EntityCache) Get(ctx context.Context, kind domain.EntityKind, id string) (json.RawMessage, error) {
	key := entityKey(kind, id)
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	doc, err := c.EntityStore.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, key, []byte(doc), c.ttl).Err(); err != nil {
		c.logger.Warn("cache fill failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return doc, nil
}

// Apply commits to the store, then refreshes the cached copies. If the
// refresh fails the stale keys are deleted.
func (c *EntityCache) Apply(ctx context.Context, batch domain.Batch) error {
	if err := c.EntityStore.Apply(ctx, batch); err != nil {
		return err
	}
	if len(batch.Writes) == 0 {
		return nil
	}

	pipe := c.rdb.TxPipeline()
	for _, w := range batch.Writes {
		pipe.Set(ctx, entityKey(w.Kind, w.ID), []byte(w.Data), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		keys := make([]string, len(batch.Writes))
		for i, w := range batch.Writes {
			keys[i] = entityKey(w.Kind, w.ID)
		}
		if delErr := c.rdb.Del(ctx, keys...).Err(); delErr != nil {
			return fmt.Errorf("redis: invalidate %d entities after failed refresh: %w", len(keys), errors.Join(err, delErr))
		}
		c.logger.Warn("cache refresh failed, entries invalidated", slog.String("error", err.Error()))
	}
	return nil
}

var _ domain.EntityStore = (*EntityCache)(nil)
