package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// LogClient is the subset of ethclient.Client the log poller needs.
type LogClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// LogDecoder turns raw logs into events.
type LogDecoder interface {
	Topics() []common.Hash
	Decode(lg types.Log, blockTimestamp int64) (domain.Event, error)
}

// EthLogsConfig tunes the log poller.
type EthLogsConfig struct {
	StartBlock    uint64
	EndBlock      uint64 // 0 follows the head forever
	ChunkSize     uint64
	Confirmations uint64
	PollInterval  time.Duration
}

// EthLogs polls eth_getLogs over confirmed block ranges. Logs are filtered by
// topic only: markets, pairs and distributions are created at runtime, so the
// emitter check happens against the store when each event is processed.
type EthLogs struct {
	client  LogClient
	decoder LogDecoder
	cfg     EthLogsConfig
	logger  *slog.Logger
}

// NewEthLogs creates an EthLogs source.
func NewEthLogs(client LogClient, decoder LogDecoder, cfg EthLogsConfig, logger *slog.Logger) *EthLogs {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 12 * time.Second
	}
	return &EthLogs{
		client:  client,
		decoder: decoder,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "feed_ethlogs")),
	}
}

// Run streams events from StartBlock onwards. It returns nil once EndBlock
// has been delivered.
func (f *EthLogs) Run(ctx context.Context, h Handler) error {
	topics := f.decoder.Topics()
	next := f.cfg.StartBlock
	for {
		if f.cfg.EndBlock > 0 && next > f.cfg.EndBlock {
			return nil
		}
		head, err := f.client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("feed: block number: %w", err)
		}
		if head < f.cfg.Confirmations || head-f.cfg.Confirmations < next {
			if err := sleep(ctx, f.cfg.PollInterval); err != nil {
				return err
			}
			continue
		}
		safe := head - f.cfg.Confirmations
		to := min(next+f.cfg.ChunkSize-1, safe)
		if f.cfg.EndBlock > 0 {
			to = min(to, f.cfg.EndBlock)
		}

		n, err := f.deliver(ctx, h, topics, next, to)
		if err != nil {
			return err
		}
		f.logger.Debug("range delivered",
			slog.Uint64("from", next),
			slog.Uint64("to", to),
			slog.Int("events", n),
		)
		next = to + 1
	}
}

func (f *EthLogs) deliver(ctx context.Context, h Handler, topics []common.Hash, from, to uint64) (int, error) {
	logs, err := f.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Topics:    [][]common.Hash{topics},
	})
	if err != nil {
		return 0, fmt.Errorf("feed: filter logs %d-%d: %w", from, to, err)
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	timestamps := make(map[uint64]int64)
	delivered := 0
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ts, ok := timestamps[lg.BlockNumber]
		if !ok {
			header, err := f.client.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
			if err != nil {
				return delivered, fmt.Errorf("feed: header %d: %w", lg.BlockNumber, err)
			}
			ts = int64(header.Time)
			timestamps[lg.BlockNumber] = ts
		}
		ev, err := f.decoder.Decode(lg, ts)
		if err != nil {
			// Another contract emitting an event with a followed signature.
			if errors.Is(err, domain.ErrDecode) || errors.Is(err, domain.ErrUnknownEvent) {
				f.logger.Debug("skipping undecodable log",
					slog.String("address", lg.Address.Hex()),
					slog.String("tx_hash", lg.TxHash.Hex()),
					slog.String("error", err.Error()),
				)
				continue
			}
			return delivered, err
		}
		if err := h(ctx, ev); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
