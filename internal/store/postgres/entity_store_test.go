package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/store/memory"
)

// setupStore starts a throwaway PostgreSQL container and migrates it.
func setupStore(t *testing.T) *EntityStore {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("omen"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	client, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, client.RunMigrations(ctx))
	require.NoError(t, client.RunMigrations(ctx), "migrations are idempotent")
	return NewEntityStore(client.Pool())
}

func write(kind domain.EntityKind, id, doc string) domain.Write {
	return domain.Write{Kind: kind, ID: id, Data: json.RawMessage(doc)}
}

func TestEntityStoreApplyGetCheckpoint(t *testing.T) {
	s := setupStore(t)
	ctx := t.Context()

	_, err := s.Checkpoint(ctx, "main")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Get(ctx, domain.KindToken, "0xa")
	require.ErrorIs(t, err, domain.ErrNotFound)

	cp := domain.Checkpoint{Name: "main", BlockNumber: 15_000_000, LogIndex: 12, TxHash: "0xabc"}
	require.NoError(t, s.Apply(ctx, domain.Batch{
		Writes: []domain.Write{
			write(domain.KindToken, "0xa", `{"id":"0xa","decimals":6}`),
			write(domain.KindToken, "0xa", `{"id":"0xa","decimals":18}`),
			write(domain.KindGlobal, "", `{"numConditions":1}`),
		},
		Checkpoint: cp,
	}))

	got, err := s.Checkpoint(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, cp, got)

	doc, err := s.Get(ctx, domain.KindToken, "0xa")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"0xa","decimals":18}`, string(doc), "last write wins")
}

func TestEntityStoreApplyIsAtomic(t *testing.T) {
	s := setupStore(t)
	ctx := t.Context()

	err := s.Apply(ctx, domain.Batch{
		Writes: []domain.Write{
			write(domain.KindToken, "0xa", `{"id":"0xa"}`),
			write(domain.KindToken, "0xb", `not json`),
		},
		Checkpoint: domain.Checkpoint{Name: "main", BlockNumber: 1, TxHash: "0x1"},
	})
	require.Error(t, err)

	_, err = s.Get(ctx, domain.KindToken, "0xa")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Checkpoint(ctx, "main")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEntityStoreListPages(t *testing.T) {
	s := setupStore(t)
	ctx := t.Context()
	var writes []domain.Write
	for _, id := range []string{"0xc", "0xa", "0xb"} {
		writes = append(writes, write(domain.KindAccount, id, fmt.Sprintf(`{"id":%q}`, id)))
	}
	require.NoError(t, s.Apply(ctx, domain.Batch{Writes: writes}))

	docs, err := s.List(ctx, domain.KindAccount, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.JSONEq(t, `{"id":"0xb"}`, string(docs[0]))
	assert.JSONEq(t, `{"id":"0xc"}`, string(docs[1]))
}

func TestRankMarketsMatchesMemoryStore(t *testing.T) {
	s := setupStore(t)
	mem := memory.New()
	ctx := t.Context()

	batch := domain.Batch{Writes: []domain.Write{
		write(domain.KindMarket, "0x1", `{"id":"0x1","usdVolume":"12.5","creationTimestamp":100,"sort24HourVolume":[5,7]}`),
		write(domain.KindMarket, "0x2", `{"id":"0x2","usdVolume":"300","creationTimestamp":90,"sort24HourVolume":[9,1]}`),
		write(domain.KindMarket, "0x3", `{"id":"0x3","usdVolume":"12.5","creationTimestamp":110,"sort24HourVolume":null}`),
		write(domain.KindMarket, "0x4", `{"id":"0x4","creationTimestamp":80}`),
	}}
	require.NoError(t, s.Apply(ctx, batch))
	require.NoError(t, mem.Apply(ctx, batch))

	ids := func(docs []json.RawMessage) []string {
		out := make([]string, len(docs))
		for i, d := range docs {
			var m struct{ ID string }
			require.NoError(t, json.Unmarshal(d, &m))
			out[i] = m.ID
		}
		return out
	}

	queries := []domain.RankQuery{
		{Key: domain.RankUSDVolume},
		{Key: domain.RankUSDVolume, Limit: 2},
		{Key: domain.RankCreationTimestamp},
		{Key: domain.RankSort24HourVolumePfx, Hour: 0},
		{Key: domain.RankSort24HourVolumePfx, Hour: 1},
		{Key: domain.RankSort24HourVolumePfx, Hour: 5},
	}
	for _, q := range queries {
		want, err := mem.RankMarkets(ctx, q)
		require.NoError(t, err)
		got, err := s.RankMarkets(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, ids(want), ids(got), "%+v", q)
	}

	got, err := s.RankMarkets(ctx, domain.RankQuery{Key: domain.RankUSDVolume})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x2", "0x1", "0x3", "0x4"}, ids(got))

	_, err = s.RankMarkets(ctx, domain.RankQuery{Key: "id; DROP TABLE entities"})
	assert.Error(t, err)
}
