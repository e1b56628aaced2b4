package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// Addresses are the deployment's fixed contracts.
type Addresses struct {
	FPMMFactories         []string
	ConditionalTokens     string
	Realitio              string
	ScalarAdapters        []string
	TokenRegistry         string
	GTCR                  string
	UniswapFactory        string
	StakingRewardsFactory string
	GelatoCore            string
}

// Router decides whether an event came from a followed contract. Events of
// fixed contracts must come from a configured address; events of contracts
// created at runtime (markets, pairs, distributions) must come from an
// address the store already knows.
type Router struct {
	static   map[domain.EventKind]map[string]bool
	template map[domain.EventKind]domain.EntityKind
}

// NewRouter builds a Router for addrs.
func NewRouter(addrs Addresses) *Router {
	r := &Router{
		static:   make(map[domain.EventKind]map[string]bool),
		template: make(map[domain.EventKind]domain.EntityKind),
	}
	r.fixed(domain.EventFPMMCreation, addrs.FPMMFactories...)
	r.fixed(domain.EventConditionPreparation, addrs.ConditionalTokens)
	r.fixed(domain.EventConditionResolution, addrs.ConditionalTokens)
	for _, k := range []domain.EventKind{
		domain.EventNewQuestion, domain.EventNewAnswer, domain.EventAnswerReveal,
		domain.EventArbitrationRequest, domain.EventFinalize,
	} {
		r.fixed(k, addrs.Realitio)
	}
	r.fixed(domain.EventQuestionIDAnnouncement, addrs.ScalarAdapters...)
	r.fixed(domain.EventAddToken, addrs.TokenRegistry)
	r.fixed(domain.EventRemoveToken, addrs.TokenRegistry)
	r.fixed(domain.EventItemStatusChange, addrs.GTCR)
	r.fixed(domain.EventPairCreated, addrs.UniswapFactory)
	r.fixed(domain.EventDistributionCreated, addrs.StakingRewardsFactory)
	r.fixed(domain.EventTaskSubmitted, addrs.GelatoCore)

	for _, k := range []domain.EventKind{
		domain.EventFundingAdded, domain.EventFundingRemoved, domain.EventBuy,
		domain.EventSell, domain.EventPoolShareTransfer,
	} {
		r.template[k] = domain.KindMarket
	}
	r.template[domain.EventSync] = domain.KindUniswapPair
	for _, k := range []domain.EventKind{
		domain.EventInitialized, domain.EventCanceled, domain.EventStaked,
		domain.EventWithdrawn, domain.EventClaimed, domain.EventRecovered,
		domain.EventUpdatedRewards,
	} {
		r.template[k] = domain.KindDistribution
	}
	return r
}

func (r *Router) fixed(kind domain.EventKind, addrs ...string) {
	set, ok := r.static[kind]
	if !ok {
		set = make(map[string]bool)
		r.static[kind] = set
	}
	for _, a := range addrs {
		if a != "" {
			set[strings.ToLower(a)] = true
		}
	}
}

// Accept reports whether ev should reach the indexer. It must run against
// the store state right before ev is applied, so that a contract created
// earlier in the same block is already known.
func (r *Router) Accept(ctx context.Context, store domain.EntityStore, ev domain.Event) (bool, error) {
	addr := strings.ToLower(ev.Address)
	if set, ok := r.static[ev.Kind]; ok {
		return set[addr], nil
	}
	kind, ok := r.template[ev.Kind]
	if !ok {
		return false, nil
	}
	_, err := store.Get(ctx, kind, addr)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("chain: route %s from %s: %w", ev.Kind, addr, err)
	}
}
