package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/feed"
	"github.com/alanyoungcy/omenindexer/internal/notify"
)

// OrchestratorConfig tunes the background loops.
type OrchestratorConfig struct {
	LeaseTTL      time.Duration
	FlushInterval time.Duration
	SnapshotCron  string
}

// Orchestrator runs the source into the processor alongside the lease
// refresher and the archive jobs. The first failure stops everything.
type Orchestrator struct {
	source    feed.Source
	processor *Processor
	lease     domain.Lease
	archiver  *Archiver
	alerter   Alerter
	cfg       OrchestratorConfig
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator. lease, archiver and alerter may
// be nil.
func NewOrchestrator(source feed.Source, processor *Processor, lease domain.Lease, archiver *Archiver, alerter Alerter, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	return &Orchestrator{
		source:    source,
		processor: processor,
		lease:     lease,
		archiver:  archiver,
		alerter:   alerter,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// errSourceDone ends the sibling loops once a finite source is exhausted.
var errSourceDone = errors.New("source exhausted")

// Run blocks until ctx is cancelled, the source is exhausted, or a loop
// fails. Cancellation and exhaustion return nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.processor.Resume(ctx); err != nil {
		return err
	}
	o.logger.Info("orchestrator starting",
		slog.Duration("lease_ttl", o.cfg.LeaseTTL),
		slog.Duration("flush_interval", o.cfg.FlushInterval),
		slog.String("snapshot_cron", o.cfg.SnapshotCron),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := o.source.Run(gctx, o.processor.Handle); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		return errSourceDone
	})
	if o.lease != nil {
		g.Go(func() error { return o.keepLease(gctx) })
	}
	if o.archiver != nil {
		g.Go(func() error { return o.archiver.RunFlush(gctx, o.cfg.FlushInterval) })
		if o.cfg.SnapshotCron != "" {
			g.Go(func() error { return o.archiver.RunCron(gctx, o.cfg.SnapshotCron) })
		}
	}

	err := g.Wait()
	cp := o.processor.Checkpoint()
	switch {
	case errors.Is(err, errSourceDone):
		o.logger.Info("source exhausted", slog.Uint64("block", cp.BlockNumber))
		return nil
	case err == nil, ctx.Err() != nil:
		o.logger.Info("orchestrator stopped", slog.Uint64("block", cp.BlockNumber))
		return nil
	}

	o.logger.Error("indexer halted",
		slog.Uint64("block", cp.BlockNumber),
		slog.Uint64("log_index", uint64(cp.LogIndex)),
		slog.String("error", err.Error()),
	)
	o.alert(err, cp)
	return err
}

func (o *Orchestrator) keepLease(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.LeaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.lease.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("lease: %w", err)
			}
		}
	}
}

func (o *Orchestrator) alert(err error, cp domain.Checkpoint) {
	if o.alerter == nil {
		return
	}
	event, title := notify.EventHalted, "Indexer halted"
	if errors.Is(err, domain.ErrLockLost) {
		event, title = notify.EventLeaseLost, "Indexer lost its lease"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	msg := fmt.Sprintf("block %d log %d: %v", cp.BlockNumber, cp.LogIndex, err)
	if nerr := o.alerter.Notify(ctx, event, title, msg); nerr != nil {
		o.logger.Warn("alert failed", slog.String("error", nerr.Error()))
	}
}
