package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

var (
	syncTopic  = common.HexToHash("0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1")
	otherTopic = common.HexToHash("0x01")
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type chainStub struct {
	head    uint64
	logs    []types.Log
	ranges  [][2]uint64
	headers map[uint64]int
}

func (c *chainStub) BlockNumber(context.Context) (uint64, error) { return c.head, nil }

func (c *chainStub) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	c.ranges = append(c.ranges, [2]uint64{from, to})
	var out []types.Log
	// Reverse order: the source must sort.
	for i := len(c.logs) - 1; i >= 0; i-- {
		if lg := c.logs[i]; lg.BlockNumber >= from && lg.BlockNumber <= to {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (c *chainStub) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	c.headers[n.Uint64()]++
	return &types.Header{Number: n, Time: 1_600_000_000 + n.Uint64()*12}, nil
}

type topicDecoder struct{}

func (topicDecoder) Topics() []common.Hash { return []common.Hash{syncTopic} }

func (topicDecoder) Decode(lg types.Log, ts int64) (domain.Event, error) {
	if lg.Topics[0] != syncTopic {
		return domain.Event{}, fmt.Errorf("%w: %s", domain.ErrUnknownEvent, lg.Topics[0].Hex())
	}
	return domain.Event{
		Kind:           domain.EventSync,
		BlockNumber:    lg.BlockNumber,
		BlockTimestamp: ts,
		LogIndex:       lg.Index,
		Payload:        &domain.Sync{},
	}, nil
}

func rawLog(block uint64, index uint, topic common.Hash) types.Log {
	return types.Log{BlockNumber: block, Index: index, Topics: []common.Hash{topic}}
}

func collect(evs *[]domain.Event) Handler {
	return func(_ context.Context, ev domain.Event) error {
		*evs = append(*evs, ev)
		return nil
	}
}

func TestEthLogsDeliversInChainOrder(t *testing.T) {
	removed := rawLog(12, 0, syncTopic)
	removed.Removed = true
	c := &chainStub{
		head:    30,
		headers: map[uint64]int{},
		logs: []types.Log{
			rawLog(10, 1, syncTopic),
			rawLog(10, 4, syncTopic),
			rawLog(11, 0, otherTopic),
			removed,
			rawLog(14, 2, syncTopic),
			rawLog(25, 0, syncTopic),
		},
	}
	src := NewEthLogs(c, topicDecoder{}, EthLogsConfig{StartBlock: 10, EndBlock: 20, ChunkSize: 4, Confirmations: 5}, discard())

	var got []domain.Event
	require.NoError(t, src.Run(t.Context(), collect(&got)))

	require.Len(t, got, 3)
	assert.Equal(t, uint64(10), got[0].BlockNumber)
	assert.Equal(t, uint(1), got[0].LogIndex)
	assert.Equal(t, uint(4), got[1].LogIndex)
	assert.Equal(t, uint64(14), got[2].BlockNumber)
	assert.Equal(t, int64(1_600_000_000+14*12), got[2].BlockTimestamp)

	assert.Equal(t, [][2]uint64{{10, 13}, {14, 17}, {18, 20}}, c.ranges)
	assert.Equal(t, 1, c.headers[10], "one header fetch per block")
	assert.NotContains(t, c.headers, uint64(12), "removed logs are never timestamped")
}

func TestEthLogsWaitsForConfirmations(t *testing.T) {
	c := &chainStub{head: 12, headers: map[uint64]int{}, logs: []types.Log{rawLog(10, 0, syncTopic)}}
	src := NewEthLogs(c, topicDecoder{}, EthLogsConfig{StartBlock: 10, Confirmations: 5, PollInterval: 5 * time.Millisecond}, discard())

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	err := src.Run(ctx, func(context.Context, domain.Event) error {
		t.Fatal("unconfirmed block delivered")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, c.ranges)
}

func TestEthLogsStopsOnHandlerError(t *testing.T) {
	c := &chainStub{head: 100, headers: map[uint64]int{}, logs: []types.Log{rawLog(1, 0, syncTopic), rawLog(2, 0, syncTopic)}}
	src := NewEthLogs(c, topicDecoder{}, EthLogsConfig{StartBlock: 1, EndBlock: 10}, discard())

	boom := fmt.Errorf("store down")
	calls := 0
	err := src.Run(t.Context(), func(context.Context, domain.Event) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
