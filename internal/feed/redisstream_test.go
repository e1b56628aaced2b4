package feed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omenindexer/internal/cache/redis"
	"github.com/alanyoungcy/omenindexer/internal/domain"
)

func envelope(t *testing.T, block uint64, log uint) []byte {
	t.Helper()
	b, err := json.Marshal(domain.Event{
		Kind:        domain.EventSync,
		Address:     "0xa478c2975ab1ea89e8196811f51a7b7ade33eb11",
		BlockNumber: block,
		LogIndex:    log,
		TxHash:      "0xabc",
		Payload:     &domain.Sync{},
	})
	require.NoError(t, err)
	return b
}

var errStop = errors.New("stop")

func TestRedisStreamDeliversAndSkipsMalformed(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := redis.New(t.Context(), redis.ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	bus := redis.NewEventBus(c, 0)

	require.NoError(t, bus.StreamAppend(t.Context(), "omen:events", envelope(t, 5, 0)))
	require.NoError(t, bus.StreamAppend(t.Context(), "omen:events", []byte("{not json")))
	require.NoError(t, bus.StreamAppend(t.Context(), "omen:events", envelope(t, 6, 2)))

	src := NewRedisStream(bus, "omen:events", "0", 10, 10*time.Millisecond, discard())
	var got []domain.Event
	err = src.Run(t.Context(), func(_ context.Context, ev domain.Event) error {
		got = append(got, ev)
		if len(got) == 2 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(5), got[0].BlockNumber)
	assert.Equal(t, uint(2), got[1].LogIndex)
	assert.IsType(t, &domain.Sync{}, got[1].Payload)
	assert.NotEqual(t, "0", src.LastID())
}

func TestRedisStreamIdleUntilCancelled(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := redis.New(t.Context(), redis.ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	src := NewRedisStream(redis.NewEventBus(c, 0), "empty", "", 10, 10*time.Millisecond, discard())
	err = src.Run(ctx, func(context.Context, domain.Event) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
