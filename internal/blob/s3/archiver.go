package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

const (
	// EventsPrefix holds the processed-event archive.
	EventsPrefix = "events/"
	// SnapshotsPrefix holds entity snapshots keyed by block.
	SnapshotsPrefix = "snapshots/"

	jsonlContentType = "application/x-ndjson"
	snapshotPageSize = 1000
)

// EventArchive buffers processed events and uploads them as JSONL objects.
// Object keys carry the (block, logIndex) range they cover, zero padded so
// that lexical order is chain order:
//
//	events/000012345678.000003-000012345690.000017.jsonl
type EventArchive struct {
	writer domain.BlobWriter

	flushMu sync.Mutex
	mu      sync.Mutex
	pending []archived
}

type archived struct {
	block uint64
	log   uint
	line  []byte
}

// NewEventArchive creates an EventArchive uploading through writer.
func NewEventArchive(writer domain.BlobWriter) *EventArchive {
	return &EventArchive{writer: writer}
}

// Append buffers ev. Events must be appended in chain order.
func (a *EventArchive) Append(ev domain.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("s3blob: encode event %s: %w", ev.LedgerID(), err)
	}
	a.mu.Lock()
	a.pending = append(a.pending, archived{block: ev.BlockNumber, log: ev.LogIndex, line: line})
	a.mu.Unlock()
	return nil
}

// Pending returns the number of buffered events.
func (a *EventArchive) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Flush uploads the buffered events as one object. It returns the object
// path and the number of events written; an empty buffer writes nothing.
// Events stay buffered until their upload succeeds.
func (a *EventArchive) Flush(ctx context.Context) (string, int, error) {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	batch := a.pending[:len(a.pending):len(a.pending)]
	a.mu.Unlock()
	if len(batch) == 0 {
		return "", 0, nil
	}

	var buf bytes.Buffer
	for _, e := range batch {
		buf.Write(e.line)
		buf.WriteByte('\n')
	}
	first, last := batch[0], batch[len(batch)-1]
	path := EventObjectPath(first.block, first.log, last.block, last.log)
	if err := a.writer.Put(ctx, path, &buf, jsonlContentType); err != nil {
		return "", 0, fmt.Errorf("s3blob: flush events: %w", err)
	}

	a.mu.Lock()
	a.pending = append([]archived(nil), a.pending[len(batch):]...)
	a.mu.Unlock()
	return path, len(batch), nil
}

// EventObjectPath is the archive key for events in [from, to].
func EventObjectPath(fromBlock uint64, fromLog uint, toBlock uint64, toLog uint) string {
	return fmt.Sprintf("%s%012d.%06d-%012d.%06d.jsonl", EventsPrefix, fromBlock, fromLog, toBlock, toLog)
}

// ParseEventObjectPath returns the last block an archive object covers.
func ParseEventObjectPath(path string) (toBlock uint64, ok bool) {
	name, found := strings.CutPrefix(path, EventsPrefix)
	if !found {
		return 0, false
	}
	name, found = strings.CutSuffix(name, ".jsonl")
	if !found {
		return 0, false
	}
	_, to, found := strings.Cut(name, "-")
	if !found {
		return 0, false
	}
	block, _, _ := strings.Cut(to, ".")
	n, err := strconv.ParseUint(block, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// EntityLister pages through stored entities.
type EntityLister interface {
	List(ctx context.Context, kind domain.EntityKind, opts domain.ListOpts) ([]json.RawMessage, error)
}

// Snapshotter writes every entity of the given kinds to
// snapshots/<block>/<kind>.jsonl.
type Snapshotter struct {
	writer   domain.BlobWriter
	partSize int64
}

// NewSnapshotter creates a Snapshotter. Objects larger than partSize are
// uploaded in parts.
func NewSnapshotter(writer domain.BlobWriter, partSize int64) *Snapshotter {
	if partSize < minPartSize {
		partSize = minPartSize
	}
	return &Snapshotter{writer: writer, partSize: partSize}
}

// Snapshot writes one object per kind and returns the number of entities
// written per kind.
func (s *Snapshotter) Snapshot(ctx context.Context, store EntityLister, block uint64, kinds []domain.EntityKind) (map[domain.EntityKind]int, error) {
	counts := make(map[domain.EntityKind]int, len(kinds))
	for _, kind := range kinds {
		var buf bytes.Buffer
		n := 0
		for offset := 0; ; offset += snapshotPageSize {
			page, err := store.List(ctx, kind, domain.ListOpts{Limit: snapshotPageSize, Offset: offset})
			if err != nil {
				return counts, fmt.Errorf("s3blob: snapshot list %s: %w", kind, err)
			}
			for _, doc := range page {
				buf.Write(doc)
				buf.WriteByte('\n')
			}
			n += len(page)
			if len(page) < snapshotPageSize {
				break
			}
		}

		path := fmt.Sprintf("%s%d/%s.jsonl", SnapshotsPrefix, block, kind)
		var err error
		if int64(buf.Len()) > s.partSize {
			err = s.writer.PutMultipart(ctx, path, &buf, s.partSize)
		} else {
			err = s.writer.Put(ctx, path, &buf, jsonlContentType)
		}
		if err != nil {
			return counts, fmt.Errorf("s3blob: snapshot %s: %w", kind, err)
		}
		counts[kind] = n
	}
	return counts, nil
}
