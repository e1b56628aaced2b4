package domain

import (
	"context"
	"encoding/json"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// Write is one pending entity upsert.
type Write struct {
	Kind EntityKind
	ID   string
	Data json.RawMessage
}

// Batch is everything one event produced: the entity upserts in the order
// they were saved plus the checkpoint that marks the event as applied.
type Batch struct {
	Writes     []Write
	Checkpoint Checkpoint
}

// RankKey is a market field that supports top-N ranking.
type RankKey string

const (
	RankScaledLiquidity     RankKey = "scaledLiquidityParameter"
	RankUSDLiquidity        RankKey = "usdLiquidityParameter"
	RankUSDVolume           RankKey = "usdVolume"
	RankScaledVolume        RankKey = "scaledCollateralVolume"
	RankCreationTimestamp   RankKey = "creationTimestamp"
	RankDailyVolume         RankKey = "lastActiveDayAndRunningDailyVolume"
	RankScaledDailyVolume   RankKey = "lastActiveDayAndScaledRunningDailyVolume"
	RankSort24HourVolumePfx RankKey = "sort24HourVolume"
)

// RankQuery selects the top markets by Key. Hour picks the slot of
// sort24HourVolume and is ignored for other keys.
type RankQuery struct {
	Key   RankKey
	Hour  int
	Limit int
}

// EntityStore holds derived entities as JSON documents keyed by (kind, id).
// Apply must commit all writes and the checkpoint atomically.
type EntityStore interface {
	Get(ctx context.Context, kind EntityKind, id string) (json.RawMessage, error)
	Apply(ctx context.Context, batch Batch) error
	Checkpoint(ctx context.Context, name string) (Checkpoint, error)
	List(ctx context.Context, kind EntityKind, opts ListOpts) ([]json.RawMessage, error)
	RankMarkets(ctx context.Context, q RankQuery) ([]json.RawMessage, error)
}

// ContractReader calls read-only contract functions at a given block so that
// replaying the same events always observes the same chain state. Callers
// default on error.
type ContractReader interface {
	Decimals(ctx context.Context, token string, block uint64) (uint8, error)
	Name(ctx context.Context, token string, block uint64) (string, error)
	Symbol(ctx context.Context, token string, block uint64) (string, error)
	GetPair(ctx context.Context, factory, tokenA, tokenB string, block uint64) (string, error)
	GetItemInfo(ctx context.Context, tcr, itemID string, block uint64) (data []byte, status TCRStatus, err error)
	ExecutorByProvider(ctx context.Context, core, provider string, block uint64) (string, error)
}
