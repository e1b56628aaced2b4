package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// EntityStore implements domain.EntityStore on the entities and checkpoints
// tables.
type EntityStore struct {
	pool *pgxpool.Pool
}

// NewEntityStore creates an EntityStore backed by pool.
func NewEntityStore(pool *pgxpool.Pool) *EntityStore {
	return &EntityStore{pool: pool}
}

const upsertEntity = `
	INSERT INTO entities (kind, id, data, updated_block, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (kind, id) DO UPDATE SET
		data          = EXCLUDED.data,
		updated_block = EXCLUDED.updated_block,
		updated_at    = NOW()`

const upsertCheckpoint = `
	INSERT INTO checkpoints (name, block_number, log_index, tx_hash, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (name) DO UPDATE SET
		block_number = EXCLUDED.block_number,
		log_index    = EXCLUDED.log_index,
		tx_hash      = EXCLUDED.tx_hash,
		updated_at   = NOW()`

// Get returns one document or domain.ErrNotFound.
func (s *EntityStore) Get(ctx context.Context, kind domain.EntityKind, id string) (json.RawMessage, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM entities WHERE kind = $1 AND id = $2`, string(kind), id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get %s %s: %w", kind, id, err)
	}
	return data, nil
}

// Apply upserts every write and the checkpoint in one transaction, queued as
// a single pgx batch. Later writes to the same entity win.
func (s *EntityStore) Apply(ctx context.Context, b domain.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin apply: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, w := range b.Writes {
		batch.Queue(upsertEntity, string(w.Kind), w.ID, []byte(w.Data), int64(b.Checkpoint.BlockNumber))
	}
	if b.Checkpoint.Name != "" {
		cp := b.Checkpoint
		batch.Queue(upsertCheckpoint, cp.Name, int64(cp.BlockNumber), int32(cp.LogIndex), cp.TxHash)
	}
	if batch.Len() == 0 {
		return nil
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: apply item %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close apply batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit apply: %w", err)
	}
	return nil
}

// Checkpoint returns the named checkpoint or domain.ErrNotFound.
func (s *EntityStore) Checkpoint(ctx context.Context, name string) (domain.Checkpoint, error) {
	cp := domain.Checkpoint{Name: name}
	var block int64
	var logIndex int32
	err := s.pool.QueryRow(ctx,
		`SELECT block_number, log_index, tx_hash FROM checkpoints WHERE name = $1`, name,
	).Scan(&block, &logIndex, &cp.TxHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Checkpoint{}, domain.ErrNotFound
		}
		return domain.Checkpoint{}, fmt.Errorf("postgres: get checkpoint %s: %w", name, err)
	}
	cp.BlockNumber = uint64(block)
	cp.LogIndex = uint(logIndex)
	return cp, nil
}

// List returns documents of one kind ordered by id.
func (s *EntityStore) List(ctx context.Context, kind domain.EntityKind, opts domain.ListOpts) ([]json.RawMessage, error) {
	query := `SELECT data FROM entities WHERE kind = $1 ORDER BY id COLLATE "C"`
	args := []any{string(kind)}
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", kind, err)
	}
	return collectDocs(rows)
}

// rankExpr maps each rank key to its SQL sort expression. Keys are never
// interpolated from input.
var rankExpr = map[domain.RankKey]string{
	domain.RankScaledLiquidity:   `data->>'scaledLiquidityParameter'`,
	domain.RankUSDLiquidity:      `data->>'usdLiquidityParameter'`,
	domain.RankUSDVolume:         `data->>'usdVolume'`,
	domain.RankScaledVolume:      `data->>'scaledCollateralVolume'`,
	domain.RankCreationTimestamp: `data->>'creationTimestamp'`,
	domain.RankDailyVolume:       `data->>'lastActiveDayAndRunningDailyVolume'`,
	domain.RankScaledDailyVolume: `data->>'lastActiveDayAndScaledRunningDailyVolume'`,
}

// RankMarkets orders markets by q.Key, highest first, ties broken by id.
// Null or missing values rank as zero.
func (s *EntityStore) RankMarkets(ctx context.Context, q domain.RankQuery) ([]json.RawMessage, error) {
	args := []any{string(domain.KindMarket)}
	var expr string
	switch {
	case q.Key == domain.RankSort24HourVolumePfx && q.Hour >= 0:
		expr = `data->'sort24HourVolume'->>$2::int`
		args = append(args, q.Hour)
	case q.Key == domain.RankSort24HourVolumePfx:
		expr = `NULL`
	default:
		var ok bool
		if expr, ok = rankExpr[q.Key]; !ok {
			return nil, fmt.Errorf("postgres: unknown rank key %q", q.Key)
		}
	}

	query := fmt.Sprintf(`SELECT data FROM entities WHERE kind = $1
		ORDER BY COALESCE((%s)::numeric, 0) DESC, id COLLATE "C"`, expr)
	query, args = paginate(query, args, q.Limit, 0)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: rank markets by %s: %w", q.Key, err)
	}
	return collectDocs(rows)
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func collectDocs(rows pgx.Rows) ([]json.RawMessage, error) {
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (json.RawMessage, error) {
		var data []byte
		err := row.Scan(&data)
		return data, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan documents: %w", err)
	}
	return docs, nil
}

var _ domain.EntityStore = (*EntityStore)(nil)
