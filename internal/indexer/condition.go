package indexer

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/fixedpoint"
)

// handleConditionPreparation registers a condition and links it to the
// Realitio question that will resolve it, either directly or through a
// scalar adapter announcement.
func (d *Dispatcher) handleConditionPreparation(s *Session, ev domain.Event) error {
	if ev.Address != d.cfg.ConditionalTokens {
		return skip(slog.LevelInfo, "ignoring condition from foreign conditional tokens")
	}
	p, err := payload[domain.ConditionPreparation](ev)
	if err != nil {
		return err
	}
	id := strings.ToLower(p.ConditionID)
	if _, ok, err := Load[domain.Condition](s, id); err != nil {
		return err
	} else if ok {
		return skip(slog.LevelWarn, "condition already prepared", slog.String("condition", id))
	}

	c := &domain.Condition{
		ID:                       id,
		Oracle:                   strings.ToLower(p.Oracle),
		QuestionID:               strings.ToLower(p.QuestionID),
		OutcomeSlotCount:         p.OutcomeSlotCount,
		FixedProductMarketMakers: []string{},
	}

	link, ok, err := Load[domain.ScalarQuestionLink](s, c.QuestionID)
	if err != nil {
		return err
	}
	switch {
	case ok:
		if err := assignQuestionToCondition(s, c, link.Question); err != nil {
			return err
		}
		c.ScalarLow = fixedpoint.Clone(link.ScalarLow)
		c.ScalarHigh = fixedpoint.Clone(link.ScalarHigh)
	default:
		if _, ok, err := Load[domain.Question](s, c.QuestionID); err != nil {
			return err
		} else if ok {
			if err := assignQuestionToCondition(s, c, c.QuestionID); err != nil {
				return err
			}
		}
	}
	s.Save(c)

	g, err := s.Global()
	if err != nil {
		return err
	}
	g.NumConditions++
	g.NumOpenConditions++
	s.Save(g)
	return nil
}

// handleConditionResolution records the payout vector on the condition and
// every market built on it, and moves the condition from open to closed.
func (d *Dispatcher) handleConditionResolution(s *Session, ev domain.Event) error {
	if ev.Address != d.cfg.ConditionalTokens {
		return skip(slog.LevelInfo, "ignoring resolution from foreign conditional tokens")
	}
	p, err := payload[domain.ConditionResolution](ev)
	if err != nil {
		return err
	}
	id := strings.ToLower(p.ConditionID)
	c, ok, err := Load[domain.Condition](s, id)
	if err != nil {
		return err
	}
	if !ok {
		return skip(slog.LevelError, "resolved condition not found", slog.String("condition", id))
	}
	if c.Resolved {
		return skip(slog.LevelWarn, "condition already resolved", slog.String("condition", id))
	}
	payouts, err := payoutFractions(p.PayoutNumerators)
	if err != nil {
		return err
	}

	ts := ev.BlockTimestamp
	c.Resolved = true
	c.ResolutionTimestamp = int64Ptr(ts)
	c.Payouts = payouts
	s.Save(c)

	for _, mid := range c.FixedProductMarketMakers {
		m, ok, err := Load[domain.Market](s, mid)
		if err != nil {
			return err
		}
		if !ok {
			d.logger.Error("market of resolved condition not found",
				slog.String("fpmm", mid), slog.String("condition", id))
			continue
		}
		m.ResolutionTimestamp = int64Ptr(ts)
		m.Payouts = payouts
		s.Save(m)
	}

	g, err := s.Global()
	if err != nil {
		return err
	}
	g.NumOpenConditions--
	g.NumClosedConditions++
	s.Save(g)

	if c.Question == "" {
		return nil
	}
	q, ok, err := Load[domain.Question](s, c.Question)
	if err != nil || !ok || q.Category == "" {
		return err
	}
	cat, ok, err := Load[domain.Category](s, q.Category)
	if err != nil || !ok {
		return err
	}
	cat.NumOpenConditions--
	cat.NumClosedConditions++
	s.Save(cat)
	return nil
}

// payoutFractions divides each numerator by their sum.
func payoutFractions(numerators []*big.Int) ([]decimal.Decimal, error) {
	if err := requireAmounts(domain.Event{Kind: domain.EventConditionResolution}, numerators...); err != nil {
		return nil, err
	}
	den := new(big.Int)
	for _, n := range numerators {
		den.Add(den, n)
	}
	if den.Sign() <= 0 {
		return nil, fmt.Errorf("%w: payout denominator %s", domain.ErrInvariant, den)
	}
	out := make([]decimal.Decimal, len(numerators))
	for i, n := range numerators {
		out[i] = fixedpoint.Ratio(n, den)
	}
	return out, nil
}
