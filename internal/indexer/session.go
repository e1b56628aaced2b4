package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

type entityKey struct {
	kind domain.EntityKind
	id   string
}

// Session is the unit of work for one event. Reads see the session's own
// pending saves; nothing reaches the store until the caller commits Writes.
type Session struct {
	ctx     context.Context
	store   domain.EntityStore
	event   domain.Event
	pending map[entityKey]domain.Entity
	order   []entityKey
}

func newSession(ctx context.Context, store domain.EntityStore, ev domain.Event) *Session {
	return &Session{
		ctx:     ctx,
		store:   store,
		event:   ev,
		pending: make(map[entityKey]domain.Entity),
	}
}

// Context returns the session's context.
func (s *Session) Context() context.Context { return s.ctx }

// Save stages e. Saving the same entity twice keeps its first position.
func (s *Session) Save(e domain.Entity) {
	k := entityKey{kind: e.EntityKind(), id: e.EntityID()}
	if _, ok := s.pending[k]; !ok {
		s.order = append(s.order, k)
	}
	s.pending[k] = e
}

// Writes serializes the staged entities in save order.
func (s *Session) Writes() ([]domain.Write, error) {
	writes := make([]domain.Write, 0, len(s.order))
	for _, k := range s.order {
		data, err := json.Marshal(s.pending[k])
		if err != nil {
			return nil, fmt.Errorf("indexer: encode %s %s: %w", k.kind, k.id, err)
		}
		writes = append(writes, domain.Write{Kind: k.kind, ID: k.id, Data: data})
	}
	return writes, nil
}

// Load fetches the entity of type T with the given id. The boolean is false
// when it does not exist; only infrastructure failures return an error.
func Load[T any, P interface {
	*T
	domain.Entity
}](s *Session, id string) (P, bool, error) {
	kind := P(new(T)).EntityKind()
	if e, ok := s.pending[entityKey{kind: kind, id: id}]; ok {
		p, ok := e.(P)
		if !ok {
			return nil, false, fmt.Errorf("indexer: %s %s staged as %T", kind, id, e)
		}
		return p, true, nil
	}

	raw, err := s.store.Get(s.ctx, kind, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("indexer: load %s %s: %w", kind, id, err)
	}
	p := P(new(T))
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, false, fmt.Errorf("indexer: decode stored %s %s: %w", kind, id, err)
	}
	return p, true, nil
}

// Global loads the singleton, creating it on first use. The caller saves it
// when it changes.
func (s *Session) Global() (*domain.Global, error) {
	g, ok, err := Load[domain.Global](s, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		g = &domain.Global{ID: "", USDVolume: decimal.Zero}
	}
	return g, nil
}

// requireAccount creates the account row if it does not exist yet.
func (s *Session) requireAccount(addr string) error {
	_, ok, err := Load[domain.Account](s, addr)
	if err != nil {
		return err
	}
	if !ok {
		s.Save(&domain.Account{ID: addr})
	}
	return nil
}
