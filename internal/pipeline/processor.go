// Package pipeline runs the single-writer indexing loop: it feeds source
// events through the router and dispatcher, commits each event's writes with
// its checkpoint, and archives and announces what was committed.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/indexer"
	"github.com/alanyoungcy/omenindexer/internal/metrics"
)

// ChangeChannelPrefix prefixes the pub/sub channel of each entity kind.
const ChangeChannelPrefix = "omen:entity:"

// Router filters events to the followed contracts.
type Router interface {
	Accept(ctx context.Context, store domain.EntityStore, ev domain.Event) (bool, error)
}

// Dispatcher runs an event's handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, store domain.EntityStore, ev domain.Event) (indexer.Result, error)
}

// Publisher announces committed entity changes.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Appender records committed events for replay.
type Appender interface {
	Append(ev domain.Event) error
}

// StreamAppender hands committed events to follower indexers.
type StreamAppender interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// ProcessorOptions are the optional collaborators of a Processor.
type ProcessorOptions struct {
	Publisher Publisher
	Archive   Appender
	Metrics   *metrics.Metrics

	// Relay receives every committed event on RelayStream.
	Relay       StreamAppender
	RelayStream string
}

// Processor applies events one at a time. It is not safe for concurrent use;
// the orchestrator owns the only instance.
type Processor struct {
	store      domain.EntityStore
	router     Router
	dispatcher Dispatcher
	name       string
	opts       ProcessorOptions
	logger     *slog.Logger

	checkpoint domain.Checkpoint
}

// NewProcessor creates a Processor writing checkpoints under name.
func NewProcessor(store domain.EntityStore, router Router, dispatcher Dispatcher, name string, opts ProcessorOptions, logger *slog.Logger) *Processor {
	return &Processor{
		store:      store,
		router:     router,
		dispatcher: dispatcher,
		name:       name,
		opts:       opts,
		logger:     logger.With(slog.String("component", "processor")),
	}
}

// Resume loads the last committed checkpoint. A missing checkpoint starts
// from the beginning.
func (p *Processor) Resume(ctx context.Context) (domain.Checkpoint, error) {
	cp, err := p.store.Checkpoint(ctx, p.name)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		cp = domain.Checkpoint{Name: p.name}
	default:
		return domain.Checkpoint{}, fmt.Errorf("pipeline: load checkpoint %s: %w", p.name, err)
	}
	p.checkpoint = cp
	if p.opts.Metrics != nil {
		p.opts.Metrics.CheckpointBlock.Set(float64(cp.BlockNumber))
	}
	p.logger.Info("resuming",
		slog.Uint64("block", cp.BlockNumber),
		slog.Uint64("log_index", uint64(cp.LogIndex)),
	)
	return cp, nil
}

// Checkpoint returns the position of the last committed event.
func (p *Processor) Checkpoint() domain.Checkpoint { return p.checkpoint }

// Handle applies ev. Events at or before the checkpoint are dropped, so
// redelivery is harmless. An error means nothing was committed and the
// loop must stop.
func (p *Processor) Handle(ctx context.Context, ev domain.Event) error {
	if !p.checkpoint.After(ev.BlockNumber, ev.LogIndex) {
		p.ignore("duplicate")
		return nil
	}
	ok, err := p.router.Accept(ctx, p.store, ev)
	if err != nil {
		return fmt.Errorf("pipeline: route: %w", err)
	}
	if !ok {
		p.ignore("unfollowed")
		return nil
	}

	start := time.Now()
	res, err := p.dispatcher.Dispatch(ctx, p.store, ev)
	if err != nil {
		return err
	}
	cp := domain.Checkpoint{
		Name:        p.name,
		BlockNumber: ev.BlockNumber,
		LogIndex:    ev.LogIndex,
		TxHash:      ev.TxHash,
	}
	if err := p.store.Apply(ctx, domain.Batch{Writes: res.Writes, Checkpoint: cp}); err != nil {
		return fmt.Errorf("pipeline: commit %s at block %d log %d: %w", ev.Kind, ev.BlockNumber, ev.LogIndex, err)
	}
	p.checkpoint = cp
	p.observe(ev, res, time.Since(start))

	if p.opts.Archive != nil {
		if err := p.opts.Archive.Append(ev); err != nil {
			return fmt.Errorf("pipeline: archive: %w", err)
		}
	}
	if p.opts.Relay != nil {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("pipeline: encode relayed %s: %w", ev.Kind, err)
		}
		if err := p.opts.Relay.StreamAppend(ctx, p.opts.RelayStream, data); err != nil {
			return fmt.Errorf("pipeline: relay: %w", err)
		}
	}
	p.announce(ctx, ev, res.Writes)
	return nil
}

func (p *Processor) ignore(reason string) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.EventsIgnored.WithLabelValues(reason).Inc()
	}
}

func (p *Processor) observe(ev domain.Event, res indexer.Result, took time.Duration) {
	m := p.opts.Metrics
	if m == nil {
		return
	}
	kind := string(ev.Kind)
	if res.Skipped {
		m.EventsSkipped.WithLabelValues(kind).Inc()
	} else {
		m.EventsProcessed.WithLabelValues(kind).Inc()
	}
	m.EventDuration.WithLabelValues(kind).Observe(took.Seconds())
	for _, w := range res.Writes {
		m.EntityWrites.WithLabelValues(string(w.Kind)).Inc()
	}
	m.CheckpointBlock.Set(float64(ev.BlockNumber))
}

// announce publishes one change per written entity. Delivery is best effort;
// subscribers can always read the store.
func (p *Processor) announce(ctx context.Context, ev domain.Event, writes []domain.Write) {
	if p.opts.Publisher == nil {
		return
	}
	for _, w := range writes {
		payload, err := json.Marshal(domain.EntityChange{Kind: w.Kind, ID: w.ID, BlockNumber: ev.BlockNumber})
		if err == nil {
			err = p.opts.Publisher.Publish(ctx, ChangeChannelPrefix+string(w.Kind), payload)
		}
		if err != nil {
			if p.opts.Metrics != nil {
				p.opts.Metrics.PublishFailures.Inc()
			}
			p.logger.Warn("publish entity change failed",
				slog.String("entity", string(w.Kind)),
				slog.String("id", w.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
