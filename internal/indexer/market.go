package indexer

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/fixedpoint"
	"github.com/alanyoungcy/omenindexer/internal/market"
)

func (d *Dispatcher) handleMarketCreation(s *Session, ev domain.Event) error {
	p, err := payload[domain.FPMMCreation](ev)
	if err != nil {
		return err
	}
	id := strings.ToLower(p.FixedProductMarketMaker)
	if ct := strings.ToLower(p.ConditionalTokens); ct != d.cfg.ConditionalTokens {
		return skip(slog.LevelInfo, "cannot index market maker: foreign conditional tokens",
			slog.String("fpmm", id), slog.String("conditional_tokens", ct))
	}

	conditions := make([]*domain.Condition, 0, len(p.ConditionIDs))
	ids := make([]string, 0, len(p.ConditionIDs))
	slots := 1
	for _, cid := range p.ConditionIDs {
		cid = strings.ToLower(cid)
		c, ok, err := Load[domain.Condition](s, cid)
		if err != nil {
			return err
		}
		if !ok {
			return skip(slog.LevelError, "failed to create market maker: condition not prepared",
				slog.String("fpmm", id), slog.String("condition", cid))
		}
		slots *= c.OutcomeSlotCount
		conditions = append(conditions, c)
		ids = append(ids, cid)
	}

	m := &domain.Market{
		ID:                id,
		Creator:           strings.ToLower(p.Creator),
		CreationTimestamp: ev.BlockTimestamp,
		CollateralToken:   strings.ToLower(p.CollateralToken),
		Fee:               fixedpoint.Clone(p.Fee),
		Factory:           ev.Address,
		Conditions:        ids,
		OutcomeSlotCount:  slots,
		SubmissionIDs:     []string{},
	}

	if len(conditions) == 1 {
		c := conditions[0]
		m.Condition = c.ID
		m.Question = c.QuestionID
		m.ScalarLow = fixedpoint.Clone(c.ScalarLow)
		m.ScalarHigh = fixedpoint.Clone(c.ScalarHigh)
		if c.Question != "" {
			m.Question = c.Question
		}
		if err := d.linkQuestion(s, m); err != nil {
			return err
		}
	}

	collateral, err := d.requireToken(s, m.CollateralToken, false)
	if err != nil {
		return err
	}
	usdPrice, err := d.collateralUSDPrice(s, collateral)
	if err != nil {
		return err
	}
	zeros := make([]*big.Int, slots)
	for i := range zeros {
		zeros[i] = new(big.Int)
	}
	if err := market.SetLiquidity(m, zeros, collateral.Scale, usdPrice); err != nil {
		return err
	}
	if err := market.InitVolume(m, ev.BlockTimestamp, collateral.Scale); err != nil {
		return err
	}

	for _, c := range conditions {
		c.FixedProductMarketMakers = appendUnique(c.FixedProductMarketMakers, id)
		s.Save(c)
	}
	s.Save(m)
	return nil
}

// linkQuestion copies the question's template fields onto m. The live
// answer fields are only copied, and kept in sync later, while the question
// tracks fewer markets than the fan-out cap.
func (d *Dispatcher) linkQuestion(s *Session, m *domain.Market) error {
	q, ok, err := Load[domain.Question](s, m.Question)
	if err != nil || !ok {
		return err
	}
	m.QuestionDetails = q.QuestionDetails
	m.Outcomes = append([]string(nil), q.Outcomes...)

	if len(q.IndexedFixedProductMarketMakers) >= d.cfg.FanOutCap {
		d.logger.Warn("cannot continue updating live question properties on market",
			slog.String("question", q.ID), slog.String("fpmm", m.ID))
		return nil
	}
	m.AnswerState = q.AnswerState
	m.CurrentAnswerBond = fixedpoint.Clone(q.CurrentAnswerBond)
	q.IndexedFixedProductMarketMakers = append(q.IndexedFixedProductMarketMakers, m.ID)
	m.IndexedOnQuestion = true
	s.Save(q)
	return nil
}

// loadMarket returns the market emitting ev together with its collateral
// token and the collateral's current USD price.
func (d *Dispatcher) loadMarket(s *Session, id string) (*domain.Market, *domain.Token, decimal.Decimal, error) {
	m, ok, err := Load[domain.Market](s, id)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	if !ok {
		return nil, nil, decimal.Zero, skip(slog.LevelError, "could not find market maker", slog.String("fpmm", id))
	}
	collateral, err := d.requireToken(s, m.CollateralToken, false)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	price, err := d.collateralUSDPrice(s, collateral)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}
	return m, collateral, price, nil
}

func (d *Dispatcher) handleFundingAdded(s *Session, ev domain.Event) error {
	p, err := payload[domain.FundingAdded](ev)
	if err != nil {
		return err
	}
	return d.applyFunding(s, ev, domain.LiquidityAdd, p.Funder, p.AmountsAdded, p.SharesMinted, 1)
}

func (d *Dispatcher) handleFundingRemoved(s *Session, ev domain.Event) error {
	p, err := payload[domain.FundingRemoved](ev)
	if err != nil {
		return err
	}
	return d.applyFunding(s, ev, domain.LiquidityRemove, p.Funder, p.AmountsRemoved, p.SharesBurnt, -1)
}

func (d *Dispatcher) applyFunding(s *Session, ev domain.Event, typ domain.LiquidityType, funder string, amounts []*big.Int, shares *big.Int, sign int) error {
	if err := requireAmounts(ev, amounts...); err != nil {
		return err
	}
	m, collateral, price, err := d.loadMarket(s, ev.Address)
	if err != nil {
		return err
	}
	reserves, err := market.ApplyDeltas(m.OutcomeTokenAmounts, amounts, sign)
	if err != nil {
		return err
	}
	if err := market.SetLiquidity(m, reserves, collateral.Scale, price); err != nil {
		return err
	}
	s.Save(m)

	funder = strings.ToLower(funder)
	if err := s.requireAccount(funder); err != nil {
		return err
	}
	s.Save(&domain.LiquidityEvent{
		ID:                  ev.LedgerID(),
		Market:              m.ID,
		Type:                typ,
		Funder:              funder,
		CreationTimestamp:   ev.BlockTimestamp,
		OutcomeTokenAmounts: fixedpoint.CloneAll(amounts),
		SharesAmount:        fixedpoint.Clone(shares),
		TransactionHash:     ev.TxHash,
	})
	return nil
}

func (d *Dispatcher) handleBuy(s *Session, ev domain.Event) error {
	p, err := payload[domain.Buy](ev)
	if err != nil {
		return err
	}
	m, collateral, price, err := d.loadMarket(s, ev.Address)
	if err != nil {
		return err
	}
	if err := requireAmounts(ev, p.InvestmentAmount, p.FeeAmount, p.OutcomeTokensBought); err != nil {
		return err
	}
	net := new(big.Int).Sub(p.InvestmentAmount, p.FeeAmount)
	reserves, err := market.BuyReserves(m.OutcomeTokenAmounts, p.OutcomeIndex, net, p.OutcomeTokensBought)
	if err != nil {
		return err
	}
	return d.applyTrade(s, ev, m, collateral, price, reserves, tradeInput{
		typ:     domain.TradeBuy,
		trader:  p.Buyer,
		amount:  net,
		gross:   p.InvestmentAmount,
		fee:     p.FeeAmount,
		outcome: p.OutcomeIndex,
		tokens:  p.OutcomeTokensBought,
	})
}

func (d *Dispatcher) handleSell(s *Session, ev domain.Event) error {
	p, err := payload[domain.Sell](ev)
	if err != nil {
		return err
	}
	m, collateral, price, err := d.loadMarket(s, ev.Address)
	if err != nil {
		return err
	}
	if err := requireAmounts(ev, p.ReturnAmount, p.FeeAmount, p.OutcomeTokensSold); err != nil {
		return err
	}
	gross := new(big.Int).Add(p.ReturnAmount, p.FeeAmount)
	reserves, err := market.SellReserves(m.OutcomeTokenAmounts, p.OutcomeIndex, gross, p.OutcomeTokensSold)
	if err != nil {
		return err
	}
	return d.applyTrade(s, ev, m, collateral, price, reserves, tradeInput{
		typ:     domain.TradeSell,
		trader:  p.Seller,
		amount:  gross,
		gross:   p.ReturnAmount,
		fee:     p.FeeAmount,
		outcome: p.OutcomeIndex,
		tokens:  p.OutcomeTokensSold,
	})
}

type tradeInput struct {
	typ     domain.TradeType
	trader  string
	amount  *big.Int // volume contribution
	gross   *big.Int // collateral amount recorded on the ledger row
	fee     *big.Int
	outcome int
	tokens  *big.Int
}

// applyTrade runs the shared tail of buys and sells. IncreaseVolume runs
// before anything is staged so a rejected trade leaves no partial writes.
func (d *Dispatcher) applyTrade(s *Session, ev domain.Event, m *domain.Market, collateral *domain.Token, price decimal.Decimal, reserves []*big.Int, in tradeInput) error {
	usdAmount := fixedpoint.MulRound(fixedpoint.Scale(in.amount, collateral.Scale), price)
	if err := market.IncreaseVolume(m, in.amount, usdAmount, ev.BlockTimestamp, collateral.Scale); err != nil {
		return err
	}
	if err := market.SetLiquidity(m, reserves, collateral.Scale, price); err != nil {
		return err
	}
	s.Save(m)

	g, err := s.Global()
	if err != nil {
		return err
	}
	g.USDVolume = g.USDVolume.Add(usdAmount)
	s.Save(g)

	trader := strings.ToLower(in.trader)
	if err := s.requireAccount(trader); err != nil {
		return err
	}
	s.Save(&domain.Trade{
		ID:                  ev.LedgerID(),
		Market:              m.ID,
		Type:                in.typ,
		Creator:             trader,
		CreationTimestamp:   ev.BlockTimestamp,
		CollateralToken:     collateral.ID,
		CollateralAmount:    fixedpoint.Clone(in.gross),
		FeeAmount:           fixedpoint.Clone(in.fee),
		CollateralAmountUSD: usdAmount,
		OutcomeIndex:        in.outcome,
		OutcomeTokensTraded: fixedpoint.Clone(in.tokens),
		TransactionHash:     ev.TxHash,
	})
	return recordParticipation(s, m, trader)
}

func recordParticipation(s *Session, m *domain.Market, account string) error {
	id := m.ID + account
	_, ok, err := Load[domain.Participation](s, id)
	if err != nil || ok {
		return err
	}
	s.Save(&domain.Participation{
		ID:                id,
		Market:            m.ID,
		Participant:       account,
		CreationTimestamp: m.CreationTimestamp,
		CollateralToken:   m.CollateralToken,
		Fee:               fixedpoint.Clone(m.Fee),
		Category:          m.Category,
		Language:          m.Language,
		Arbitrator:        m.Arbitrator,
		OpeningTimestamp:  m.OpeningTimestamp,
		Timeout:           m.Timeout,
	})
	return nil
}

// handlePoolShareTransfer moves pool shares between memberships. Mints and
// burns come from and go to the zero address, which is tracked like any
// other account.
func (d *Dispatcher) handlePoolShareTransfer(s *Session, ev domain.Event) error {
	p, err := payload[domain.PoolShareTransfer](ev)
	if err != nil {
		return err
	}
	if err := requireAmounts(ev, p.Value); err != nil {
		return err
	}
	if _, ok, err := Load[domain.Market](s, ev.Address); err != nil {
		return err
	} else if !ok {
		return skip(slog.LevelError, "could not find market maker", slog.String("fpmm", ev.Address))
	}

	from, to := strings.ToLower(p.From), strings.ToLower(p.To)
	if err := adjustMembership(s, ev.Address, from, new(big.Int).Neg(p.Value)); err != nil {
		return err
	}
	return adjustMembership(s, ev.Address, to, p.Value)
}

func adjustMembership(s *Session, pool, funder string, delta *big.Int) error {
	if err := s.requireAccount(funder); err != nil {
		return err
	}
	id := pool + funder
	pm, ok, err := Load[domain.PoolMembership](s, id)
	if err != nil {
		return err
	}
	if !ok {
		pm = &domain.PoolMembership{ID: id, Pool: pool, Funder: funder, Amount: new(big.Int)}
	}
	pm.Amount = new(big.Int).Add(pm.Amount, delta)
	s.Save(pm)
	return nil
}

// requireAmounts rejects payloads with missing numeric fields.
func requireAmounts(ev domain.Event, xs ...*big.Int) error {
	for i, x := range xs {
		if x == nil {
			return fmt.Errorf("%w: %s amount %d missing", domain.ErrDecode, ev.Kind, i)
		}
	}
	return nil
}
