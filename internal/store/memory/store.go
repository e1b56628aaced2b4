// Package memory is an in-process EntityStore used for tests and replays
// that do not need durability.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// Store keeps entities in maps guarded by a single mutex.
type Store struct {
	mu          sync.RWMutex
	entities    map[domain.EntityKind]map[string]json.RawMessage
	checkpoints map[string]domain.Checkpoint
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entities:    make(map[domain.EntityKind]map[string]json.RawMessage),
		checkpoints: make(map[string]domain.Checkpoint),
	}
}

// Get returns a copy of the stored document or domain.ErrNotFound.
func (s *Store) Get(_ context.Context, kind domain.EntityKind, id string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entities[kind][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return bytes.Clone(data), nil
}

// Apply stores every write and the checkpoint under one lock.
func (s *Store) Apply(_ context.Context, batch domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range batch.Writes {
		byID, ok := s.entities[w.Kind]
		if !ok {
			byID = make(map[string]json.RawMessage)
			s.entities[w.Kind] = byID
		}
		byID[w.ID] = bytes.Clone(w.Data)
	}
	if batch.Checkpoint.Name != "" {
		s.checkpoints[batch.Checkpoint.Name] = batch.Checkpoint
	}
	return nil
}

// Checkpoint returns the named checkpoint or domain.ErrNotFound.
func (s *Store) Checkpoint(_ context.Context, name string) (domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[name]
	if !ok {
		return domain.Checkpoint{}, domain.ErrNotFound
	}
	return cp, nil
}

// List returns documents of one kind ordered by id.
func (s *Store) List(_ context.Context, kind domain.EntityKind, opts domain.ListOpts) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := sortedIDs(s.entities[kind])
	ids = page(ids, opts)
	out := make([]json.RawMessage, len(ids))
	for i, id := range ids {
		out[i] = bytes.Clone(s.entities[kind][id])
	}
	return out, nil
}

// RankMarkets orders markets by the requested key, highest first, ties
// broken by id.
func (s *Store) RankMarkets(_ context.Context, q domain.RankQuery) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type ranked struct {
		id  string
		key decimal.Decimal
	}
	markets := s.entities[domain.KindMarket]
	rows := make([]ranked, 0, len(markets))
	for id, data := range markets {
		key, err := rankValue(data, q)
		if err != nil {
			return nil, fmt.Errorf("memory: rank market %s: %w", id, err)
		}
		rows = append(rows, ranked{id: id, key: key})
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].key.Cmp(rows[j].key); c != 0 {
			return c > 0
		}
		return rows[i].id < rows[j].id
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]json.RawMessage, len(rows))
	for i, r := range rows {
		out[i] = bytes.Clone(markets[r.id])
	}
	return out, nil
}

// Dump writes every entity as "kind/id document" lines in a stable order.
func (s *Store) Dump() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var buf bytes.Buffer
	for _, kind := range domain.AllKinds {
		for _, id := range sortedIDs(s.entities[kind]) {
			fmt.Fprintf(&buf, "%s/%s %s\n", kind, id, s.entities[kind][id])
		}
	}
	return buf.Bytes()
}

func sortedIDs(m map[string]json.RawMessage) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func page(ids []string, opts domain.ListOpts) []string {
	if opts.Offset > 0 {
		if opts.Offset >= len(ids) {
			return nil
		}
		ids = ids[opts.Offset:]
	}
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}
	return ids
}

// rankValue reads the ranking field from a market document. Null or missing
// values rank as zero.
func rankValue(data json.RawMessage, q domain.RankQuery) (decimal.Decimal, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return decimal.Zero, err
	}
	raw := doc[string(q.Key)]
	if q.Key == domain.RankSort24HourVolumePfx {
		var keys []json.RawMessage
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &keys); err != nil {
				return decimal.Zero, err
			}
		}
		if q.Hour < 0 || q.Hour >= len(keys) {
			return decimal.Zero, nil
		}
		raw = keys[q.Hour]
	}
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

var _ domain.EntityStore = (*Store)(nil)
