package feed

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"sort"

	s3blob "github.com/alanyoungcy/omenindexer/internal/blob/s3"
	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// maxArchiveLine bounds one JSONL record.
const maxArchiveLine = 4 << 20

// Archive replays the processed-event archive in key order. Objects that end
// before FromBlock are not downloaded.
type Archive struct {
	reader    domain.BlobReader
	fromBlock uint64
	logger    *slog.Logger
}

// NewArchive creates an Archive source.
func NewArchive(reader domain.BlobReader, fromBlock uint64, logger *slog.Logger) *Archive {
	return &Archive{
		reader:    reader,
		fromBlock: fromBlock,
		logger:    logger.With(slog.String("component", "feed_archive")),
	}
}

// Run returns nil after the last archived event.
func (f *Archive) Run(ctx context.Context, h Handler) error {
	objects, err := f.reader.List(ctx, s3blob.EventsPrefix)
	if err != nil {
		return fmt.Errorf("feed: list archive: %w", err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })

	replayed := 0
	for _, obj := range objects {
		to, ok := s3blob.ParseEventObjectPath(obj.Path)
		if !ok {
			f.logger.Warn("ignoring foreign archive object", slog.String("path", obj.Path))
			continue
		}
		if to < f.fromBlock {
			continue
		}
		n, err := f.replay(ctx, obj.Path, h)
		if err != nil {
			return err
		}
		replayed += n
	}
	f.logger.Info("archive replay finished", slog.Int("events", replayed))
	return nil
}

func (f *Archive) replay(ctx context.Context, path string, h Handler) (int, error) {
	body, err := f.reader.Get(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer body.Close()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), maxArchiveLine)
	n := 0
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		ev, err := decodeEnvelope(sc.Bytes())
		if err != nil {
			return n, fmt.Errorf("feed: %s line %d: %w", path, n+1, err)
		}
		if ev.BlockNumber < f.fromBlock {
			n++
			continue
		}
		if err := h(ctx, ev); err != nil {
			return n, err
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("feed: read %s: %w", path, err)
	}
	return n, nil
}
