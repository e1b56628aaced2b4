// Package indexer turns ordered contract events into entity writes. Every
// event runs in its own Session; a handler either completes and its writes
// are committed together, or is skipped and nothing it staged survives.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// DefaultFanOutCap bounds how many markets one question keeps in sync.
const DefaultFanOutCap = 100

// Config holds the deployment constants the handlers depend on. Addresses
// are lowercase hex.
type Config struct {
	ConditionalTokens       string
	UniswapFactory          string
	StakingRewardsFactory   string
	WETH                    string
	Stablecoins             []string
	FanOutCap               int
	CurationListID          int64
	NuancedBinaryTemplateID int64
}

func (c Config) normalized() Config {
	c.ConditionalTokens = strings.ToLower(c.ConditionalTokens)
	c.UniswapFactory = strings.ToLower(c.UniswapFactory)
	c.StakingRewardsFactory = strings.ToLower(c.StakingRewardsFactory)
	c.WETH = strings.ToLower(c.WETH)
	stables := make([]string, len(c.Stablecoins))
	for i, a := range c.Stablecoins {
		stables[i] = strings.ToLower(a)
	}
	c.Stablecoins = stables
	if c.FanOutCap <= 0 {
		c.FanOutCap = DefaultFanOutCap
	}
	return c
}

func (c Config) isStablecoin(addr string) bool {
	for _, a := range c.Stablecoins {
		if a == addr {
			return true
		}
	}
	return false
}

// Result is the outcome of one event.
type Result struct {
	Writes  []domain.Write
	Skipped bool
	Reason  string
}

type handlerFunc func(s *Session, ev domain.Event) error

// Dispatcher routes events to their handlers.
type Dispatcher struct {
	cfg      Config
	reader   domain.ContractReader
	logger   *slog.Logger
	handlers map[domain.EventKind]handlerFunc
}

// New creates a Dispatcher. reader serves the on-chain view calls handlers
// make while indexing.
func New(cfg Config, reader domain.ContractReader, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:    cfg.normalized(),
		reader: reader,
		logger: logger.With(slog.String("component", "indexer")),
	}
	d.handlers = map[domain.EventKind]handlerFunc{
		domain.EventFPMMCreation:           d.handleMarketCreation,
		domain.EventFundingAdded:           d.handleFundingAdded,
		domain.EventFundingRemoved:         d.handleFundingRemoved,
		domain.EventBuy:                    d.handleBuy,
		domain.EventSell:                   d.handleSell,
		domain.EventPoolShareTransfer:      d.handlePoolShareTransfer,
		domain.EventConditionPreparation:   d.handleConditionPreparation,
		domain.EventConditionResolution:    d.handleConditionResolution,
		domain.EventNewQuestion:            d.handleNewQuestion,
		domain.EventNewAnswer:              d.handleNewAnswer,
		domain.EventAnswerReveal:           d.handleAnswerReveal,
		domain.EventArbitrationRequest:     d.handleArbitrationRequest,
		domain.EventFinalize:               d.handleFinalize,
		domain.EventQuestionIDAnnouncement: d.handleScalarQuestionAnnouncement,
		domain.EventAddToken:               d.handleAddToken,
		domain.EventRemoveToken:            d.handleRemoveToken,
		domain.EventItemStatusChange:       d.handleItemStatusChange,
		domain.EventPairCreated:            d.handlePairCreated,
		domain.EventSync:                   d.handleSync,
		domain.EventDistributionCreated:    d.handleDistributionCreated,
		domain.EventInitialized:            d.handleDistributionInitialized,
		domain.EventCanceled:               d.handleDistributionCanceled,
		domain.EventStaked:                 d.handleStaked,
		domain.EventWithdrawn:              d.handleWithdrawn,
		domain.EventClaimed:                d.handleClaimed,
		domain.EventRecovered:              d.handleRecovered,
		domain.EventUpdatedRewards:         d.handleUpdatedRewards,
		domain.EventTaskSubmitted:          d.handleTaskSubmitted,
	}
	return d
}

// Kinds returns the event kinds the dispatcher handles.
func (d *Dispatcher) Kinds() []domain.EventKind {
	kinds := make([]domain.EventKind, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Dispatch runs the handler for ev against store and returns the writes to
// commit. Missing references, invariant violations and undecodable input
// skip the event; any other error is returned and must stop processing.
func (d *Dispatcher) Dispatch(ctx context.Context, store domain.EntityStore, ev domain.Event) (Result, error) {
	ev.Address = strings.ToLower(ev.Address)
	h, ok := d.handlers[ev.Kind]
	if !ok {
		d.logger.Error("skipping event: no handler",
			slog.String("kind", string(ev.Kind)),
			slog.String("tx_hash", ev.TxHash),
		)
		return Result{Skipped: true, Reason: domain.ErrUnknownEvent.Error()}, nil
	}

	s := newSession(ctx, store, ev)
	if err := h(s, ev); err != nil {
		var se *skipError
		switch {
		case errors.As(err, &se):
			d.logger.Log(ctx, se.level, se.msg, append(eventAttrs(ev), se.args...)...)
			return Result{Skipped: true, Reason: se.msg}, nil
		case errors.Is(err, domain.ErrNotFound),
			errors.Is(err, domain.ErrInvariant),
			errors.Is(err, domain.ErrDecode):
			d.logger.Error("skipping event",
				append(eventAttrs(ev), slog.String("error", err.Error()))...)
			return Result{Skipped: true, Reason: err.Error()}, nil
		default:
			return Result{}, fmt.Errorf("indexer: %s at block %d log %d: %w", ev.Kind, ev.BlockNumber, ev.LogIndex, err)
		}
	}

	writes, err := s.Writes()
	if err != nil {
		return Result{}, err
	}
	return Result{Writes: writes}, nil
}

func eventAttrs(ev domain.Event) []any {
	return []any{
		slog.String("kind", string(ev.Kind)),
		slog.String("address", ev.Address),
		slog.Uint64("block", ev.BlockNumber),
		slog.String("tx_hash", ev.TxHash),
	}
}

// skipError drops the event and logs msg at level.
type skipError struct {
	level slog.Level
	msg   string
	args  []any
}

func (e *skipError) Error() string { return e.msg }

func skip(level slog.Level, msg string, args ...any) error {
	return &skipError{level: level, msg: msg, args: args}
}

func payload[T any](ev domain.Event) (*T, error) {
	p, ok := ev.Payload.(*T)
	if !ok {
		return nil, fmt.Errorf("%w: %s payload is %T", domain.ErrDecode, ev.Kind, ev.Payload)
	}
	return p, nil
}
