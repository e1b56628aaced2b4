package feed

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3blob "github.com/alanyoungcy/omenindexer/internal/blob/s3"
	"github.com/alanyoungcy/omenindexer/internal/domain"
)

type blobStub struct {
	objects map[string][]byte
	gets    []string
}

func (b *blobStub) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = raw
	return nil
}

func (b *blobStub) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return b.Put(ctx, path, data, "")
}

func (b *blobStub) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b.gets = append(b.gets, path)
	data, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *blobStub) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p := range b.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p})
		}
	}
	// Reverse order: the source must sort.
	sort.Slice(out, func(i, j int) bool { return out[i].Path > out[j].Path })
	return out, nil
}

func TestArchiveReplaysWrittenArchive(t *testing.T) {
	blob := &blobStub{objects: map[string][]byte{}}
	arch := s3blob.NewEventArchive(blob)
	for _, pos := range [][2]uint64{{10, 0}, {10, 1}, {20, 0}} {
		require.NoError(t, arch.Append(syncAt(pos[0], uint(pos[1]))))
	}
	_, _, err := arch.Flush(t.Context())
	require.NoError(t, err)
	for _, pos := range [][2]uint64{{30, 0}, {40, 5}} {
		require.NoError(t, arch.Append(syncAt(pos[0], uint(pos[1]))))
	}
	_, _, err = arch.Flush(t.Context())
	require.NoError(t, err)
	blob.objects["events/README"] = []byte("not an archive")

	var got []uint64
	err = NewArchive(blob, 0, discard()).Run(t.Context(), func(_ context.Context, ev domain.Event) error {
		got = append(got, ev.BlockNumber)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 10, 20, 30, 40}, got)

	blob.gets = nil
	got = nil
	err = NewArchive(blob, 25, discard()).Run(t.Context(), func(_ context.Context, ev domain.Event) error {
		got = append(got, ev.BlockNumber)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{30, 40}, got)
	assert.Len(t, blob.gets, 1, "objects ending before the start are not downloaded")
}

func TestArchiveRejectsCorruptObject(t *testing.T) {
	blob := &blobStub{objects: map[string][]byte{
		s3blob.EventObjectPath(1, 0, 2, 0): []byte("{\"kind\":\"Sync\"\n{broken\n"),
	}}
	err := NewArchive(blob, 0, discard()).Run(t.Context(), func(context.Context, domain.Event) error { return nil })
	require.Error(t, err)
}

func syncAt(block uint64, log uint) domain.Event {
	return domain.Event{
		Kind:        domain.EventSync,
		Address:     "0xa478c2975ab1ea89e8196811f51a7b7ade33eb11",
		BlockNumber: block,
		LogIndex:    log,
		TxHash:      "0xabc",
		Payload:     &domain.Sync{},
	}
}
