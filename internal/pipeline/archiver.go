package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/omenindexer/internal/blob/s3"
	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/metrics"
	"github.com/alanyoungcy/omenindexer/internal/notify"
)

// EventFlusher uploads buffered events.
type EventFlusher interface {
	Flush(ctx context.Context) (string, int, error)
	Pending() int
}

// SnapshotWriter uploads a copy of the store.
type SnapshotWriter interface {
	Snapshot(ctx context.Context, store s3blob.EntityLister, block uint64, kinds []domain.EntityKind) (map[domain.EntityKind]int, error)
}

// Alerter raises operator alerts.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Archiver moves committed state to object storage: the event log on a
// fixed interval and entity snapshots on a cron schedule.
type Archiver struct {
	events    EventFlusher
	snapshots SnapshotWriter
	store     domain.EntityStore
	kinds     []domain.EntityKind
	cpName    string
	metrics   *metrics.Metrics
	alerter   Alerter
	logger    *slog.Logger
}

// ArchiverOptions configures an Archiver. Nil collaborators disable the
// matching job.
type ArchiverOptions struct {
	Events     EventFlusher
	Snapshots  SnapshotWriter
	Store      domain.EntityStore
	Kinds      []domain.EntityKind
	Checkpoint string
	Metrics    *metrics.Metrics
	Alerter    Alerter
}

func NewArchiver(opts ArchiverOptions, logger *slog.Logger) *Archiver {
	return &Archiver{
		events:    opts.Events,
		snapshots: opts.Snapshots,
		store:     opts.Store,
		kinds:     opts.Kinds,
		cpName:    opts.Checkpoint,
		metrics:   opts.Metrics,
		alerter:   opts.Alerter,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Flush uploads pending events once.
func (a *Archiver) Flush(ctx context.Context) error {
	if a.events == nil {
		return nil
	}
	path, n, err := a.events.Flush(ctx)
	if err != nil {
		a.count("error")
		return err
	}
	if n == 0 {
		return nil
	}
	a.count("ok")
	if a.metrics != nil {
		a.metrics.ArchivedEvents.Add(float64(n))
	}
	a.logger.Info("events archived", slog.String("path", path), slog.Int("count", n))
	return nil
}

func (a *Archiver) count(result string) {
	if a.metrics != nil {
		a.metrics.ArchiveFlushes.WithLabelValues(result).Inc()
	}
}

// RunFlush flushes every interval until ctx ends, then makes a last attempt
// with a short detached deadline. Upload failures are retried on the next
// tick; events stay buffered meanwhile.
func (a *Archiver) RunFlush(ctx context.Context, interval time.Duration) error {
	if a.events == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := a.Flush(final); err != nil {
				a.logger.Error("final archive flush failed",
					slog.Int("pending", a.events.Pending()),
					slog.String("error", err.Error()),
				)
				a.alert(final, "Final archive flush failed", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				a.logger.Error("archive flush failed",
					slog.Int("pending", a.events.Pending()),
					slog.String("error", err.Error()),
				)
				a.alert(ctx, "Archive flush failed", err)
			}
		}
	}
}

func (a *Archiver) alert(ctx context.Context, title string, err error) {
	if a.alerter == nil {
		return
	}
	if nerr := a.alerter.Notify(ctx, notify.EventArchiveFailed, title, err.Error()); nerr != nil {
		a.logger.Warn("alert failed", slog.String("error", nerr.Error()))
	}
}

// Snapshot writes every entity kind at the current checkpoint block.
func (a *Archiver) Snapshot(ctx context.Context) error {
	if a.snapshots == nil {
		return nil
	}
	cp, err := a.store.Checkpoint(ctx, a.cpName)
	if err != nil {
		return fmt.Errorf("pipeline: snapshot checkpoint: %w", err)
	}
	counts, err := a.snapshots.Snapshot(ctx, a.store, cp.BlockNumber, a.kinds)
	if err != nil {
		return fmt.Errorf("pipeline: snapshot at block %d: %w", cp.BlockNumber, err)
	}
	if a.metrics != nil {
		a.metrics.SnapshotsWritten.Inc()
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	a.logger.Info("snapshot written",
		slog.Uint64("block", cp.BlockNumber),
		slog.Int("kinds", len(counts)),
		slog.Int("entities", total),
	)
	return nil
}

// RunCron takes snapshots on a five-field cron schedule ("minute hour
// day-of-month month day-of-week", UTC) until ctx ends.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("pipeline: cron %q: %w", expr, err)
	}
	for {
		next, err := sched.next(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", expr, err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := a.Snapshot(ctx); err != nil {
				a.logger.Error("snapshot failed", slog.String("error", err.Error()))
				a.alert(ctx, "Snapshot failed", err)
			}
		}
	}
}

// cronField matches one cron position. A nil set is a wildcard.
type cronField map[int]bool

func (f cronField) matches(v int) bool { return f == nil || f[v] }

// parseCronField accepts "*", "*/step", and comma lists of values.
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return nil, nil
	}
	if step, ok := strings.CutPrefix(field, "*/"); ok {
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid step %q", field)
		}
		f := cronField{}
		for v := lo; v <= hi; v += n {
			f[v] = true
		}
		return f, nil
	}
	f := cronField{}
	for _, p := range strings.Split(field, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		if v < lo || v > hi {
			return nil, fmt.Errorf("value %d outside %d-%d", v, lo, hi)
		}
		f[v] = true
	}
	return f, nil
}

type cronSchedule [5]cronField

var cronBounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

func parseCron(expr string) (cronSchedule, error) {
	var s cronSchedule
	fields := strings.Fields(expr)
	if len(fields) != len(s) {
		return s, fmt.Errorf("want 5 fields, got %d", len(fields))
	}
	for i, raw := range fields {
		f, err := parseCronField(raw, cronBounds[i][0], cronBounds[i][1])
		if err != nil {
			return s, fmt.Errorf("field %d: %w", i+1, err)
		}
		s[i] = f
	}
	return s, nil
}

func (s cronSchedule) matches(t time.Time) bool {
	return s[0].matches(t.Minute()) &&
		s[1].matches(t.Hour()) &&
		s[2].matches(t.Day()) &&
		s[3].matches(int(t.Month())) &&
		s[4].matches(int(t.Weekday()))
}

// next returns the first matching minute after t, searching one year ahead.
func (s cronSchedule) next(t time.Time) (time.Time, error) {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if s.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no match within a year")
}
