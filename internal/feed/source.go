// Package feed delivers ordered contract events to the indexer from a node,
// a Redis stream, a NATS JetStream consumer or an S3 archive.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// Handler consumes one event. A returned error stops the source.
type Handler func(ctx context.Context, ev domain.Event) error

// Source produces events in chain order until ctx is cancelled, the source is
// exhausted, or the handler fails.
type Source interface {
	Run(ctx context.Context, h Handler) error
}

// decodeEnvelope parses one JSON event envelope.
func decodeEnvelope(data []byte) (domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("feed: decode envelope: %w", err)
	}
	return ev, nil
}
