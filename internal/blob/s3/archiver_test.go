package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/store/memory"
)

type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
	parts   int
}

func newMemBlob() *memBlob { return &memBlob{objects: map[string][]byte{}} }

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.fail != nil {
		return m.fail
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.parts++
	return m.Put(ctx, path, data, "")
}

func lines(t *testing.T, data []byte) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	require.NoError(t, sc.Err())
	return out
}

func syncEvent(block uint64, log uint) domain.Event {
	return domain.Event{
		Kind:        domain.EventSync,
		Address:     "0xa478c2975ab1ea89e8196811f51a7b7ade33eb11",
		BlockNumber: block,
		TxHash:      fmt.Sprintf("0x%064x", block),
		LogIndex:    log,
		Payload:     &domain.Sync{},
	}
}

func TestEventArchiveFlush(t *testing.T) {
	blob := newMemBlob()
	a := NewEventArchive(blob)

	path, n, err := a.Flush(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, path)

	require.NoError(t, a.Append(syncEvent(100, 3)))
	require.NoError(t, a.Append(syncEvent(100, 9)))
	require.NoError(t, a.Append(syncEvent(105, 0)))
	assert.Equal(t, 3, a.Pending())

	path, n, err = a.Flush(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "events/000000000100.000003-000000000105.000000.jsonl", path)
	assert.Zero(t, a.Pending())

	got := lines(t, blob.objects[path])
	require.Len(t, got, 3)
	var ev domain.Event
	require.NoError(t, json.Unmarshal([]byte(got[1]), &ev))
	assert.Equal(t, uint(9), ev.LogIndex)
	assert.IsType(t, &domain.Sync{}, ev.Payload)

	to, ok := ParseEventObjectPath(path)
	require.True(t, ok)
	assert.Equal(t, uint64(105), to)
}

func TestEventArchiveKeepsEventsOnFailure(t *testing.T) {
	blob := newMemBlob()
	blob.fail = errors.New("503 slow down")
	a := NewEventArchive(blob)
	require.NoError(t, a.Append(syncEvent(1, 0)))

	_, _, err := a.Flush(t.Context())
	require.Error(t, err)
	assert.Equal(t, 1, a.Pending())

	blob.fail = nil
	_, n, err := a.Flush(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEventObjectPathsSortInChainOrder(t *testing.T) {
	paths := []string{
		EventObjectPath(1000, 0, 1000, 5),
		EventObjectPath(99, 2, 120, 0),
		EventObjectPath(1000, 6, 2000, 1),
	}
	sort.Strings(paths)
	assert.True(t, strings.HasPrefix(paths[0], "events/000000000099."))
	assert.True(t, strings.Contains(paths[2], "-000000002000."))

	_, ok := ParseEventObjectPath("snapshots/1/Token.jsonl")
	assert.False(t, ok)
}

func TestSnapshot(t *testing.T) {
	store := memory.New()
	var writes []domain.Write
	for i := range 3 {
		id := fmt.Sprintf("0x%040d", i)
		writes = append(writes, domain.Write{Kind: domain.KindToken, ID: id, Data: json.RawMessage(`{"id":"` + id + `"}`)})
	}
	require.NoError(t, store.Apply(t.Context(), domain.Batch{Writes: writes, Checkpoint: domain.Checkpoint{Name: "t", BlockNumber: 7}}))

	blob := newMemBlob()
	counts, err := NewSnapshotter(blob, 0).Snapshot(t.Context(), store, 7, []domain.EntityKind{domain.KindToken, domain.KindMarket})
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.KindToken])
	assert.Equal(t, 0, counts[domain.KindMarket])
	assert.Len(t, lines(t, blob.objects["snapshots/7/Token.jsonl"]), 3)
	assert.Contains(t, blob.objects, "snapshots/7/FixedProductMarketMaker.jsonl")
	assert.Zero(t, blob.parts)
}
