package indexer

import (
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return v
}

const e18 = "1000000000000000000"

func (h *harness) newQuestion(id string, ts int64) {
	h.emit(domain.EventNewQuestion, realitioAddr, ts, &domain.NewQuestion{
		QuestionID: id,
		TemplateID: 2,
		Question:   "Who wins?␟\"A\",\"B\",\"C\"␟sports␟en",
		Arbitrator: oracleAddr,
		Timeout:    86400,
		OpeningTs:  created + 100_000,
	})
}

func (h *harness) prepareCondition(id, question string, slots int) {
	h.emit(domain.EventConditionPreparation, ctAddr, created, &domain.ConditionPreparation{
		ConditionID:      id,
		Oracle:           oracleAddr,
		QuestionID:       question,
		OutcomeSlotCount: slots,
	})
}

func (h *harness) createMarket(addr string, collateral string, conditions ...string) Result {
	return h.emit(domain.EventFPMMCreation, fpmmFactory, created, &domain.FPMMCreation{
		Creator:                 funderAddr,
		FixedProductMarketMaker: addr,
		ConditionalTokens:       ctAddr,
		CollateralToken:         collateral,
		ConditionIDs:            conditions,
		Fee:                     bi("20000000000000000"),
	})
}

// setupMarket creates a three-outcome DAI market on a categorized question.
func (h *harness) setupMarket() {
	h.newQuestion(questionID, created)
	h.prepareCondition(conditionID, questionID, 3)
	h.createMarket(fpmmAddr, dai, conditionID)
}

func marketLifecycle(h *harness) {
	h.setupMarket()
	one := bi(e18)
	h.emit(domain.EventFundingAdded, fpmmAddr, created, &domain.FundingAdded{
		Funder:       funderAddr,
		AmountsAdded: []*big.Int{one, one, one},
		SharesMinted: one,
	})
	h.emit(domain.EventPoolShareTransfer, fpmmAddr, created, &domain.PoolShareTransfer{
		From:  zeroAddress,
		To:    funderAddr,
		Value: one,
	})
	h.emit(domain.EventBuy, fpmmAddr, created+3600, &domain.Buy{
		Buyer:               buyerAddr,
		InvestmentAmount:    bi("100000000000000000"),
		FeeAmount:           bi("1000000000000000"),
		OutcomeIndex:        0,
		OutcomeTokensBought: bi("200000000000000000"),
	})
}

func TestMarketLifecycle(t *testing.T) {
	h := newHarness(t, testConfig())
	marketLifecycle(h)
	buyTx := h.lastTx()

	m := get[domain.Market](h, fpmmAddr)
	assert.Equal(t, 3, m.OutcomeSlotCount)
	assert.Equal(t, fpmmFactory, m.Factory)
	assert.Equal(t, conditionID, m.Condition)
	assert.Equal(t, questionID, m.Question)
	assert.Equal(t, "Who wins?", m.Title)
	assert.Equal(t, []string{"A", "B", "C"}, m.Outcomes)
	assert.Equal(t, "sports", m.Category)
	assert.True(t, m.IndexedOnQuestion)

	require.Len(t, m.OutcomeTokenAmounts, 3)
	assert.Equal(t, "899000000000000000", m.OutcomeTokenAmounts[0].String())
	assert.Equal(t, "1099000000000000000", m.OutcomeTokenAmounts[1].String())
	assert.Equal(t, "1099000000000000000", m.OutcomeTokenAmounts[2].String())
	assert.Len(t, m.OutcomeTokenMarginalPrices, 3)

	assert.Equal(t, "99000000000000000", m.CollateralVolume.String())
	assert.True(t, m.USDVolume.Equal(decimal.RequireFromString("0.099")), m.USDVolume.String())
	assert.True(t, m.ScaledCollateralVolume.Equal(decimal.RequireFromString("0.099")))
	assert.Equal(t, "99000000000000000", m.RunningDailyVolume.String())

	g := get[domain.Global](h, "")
	assert.True(t, g.USDVolume.Equal(decimal.RequireFromString("0.099")))
	assert.Equal(t, 1, g.NumConditions)
	assert.Equal(t, 1, g.NumOpenConditions)

	trade := get[domain.Trade](h, buyTx+"-0")
	assert.Equal(t, domain.TradeBuy, trade.Type)
	assert.Equal(t, buyerAddr, trade.Creator)
	assert.Equal(t, "100000000000000000", trade.CollateralAmount.String())
	assert.True(t, trade.CollateralAmountUSD.Equal(decimal.RequireFromString("0.099")))

	p := get[domain.Participation](h, fpmmAddr+buyerAddr)
	assert.Equal(t, "sports", p.Category)
	assert.True(t, h.exists(domain.KindAccount, buyerAddr))

	assert.Equal(t, "-"+e18, get[domain.PoolMembership](h, fpmmAddr+zeroAddress).Amount.String())
	assert.Equal(t, e18, get[domain.PoolMembership](h, fpmmAddr+funderAddr).Amount.String())

	q := get[domain.Question](h, questionID)
	assert.Equal(t, []string{fpmmAddr}, q.IndexedFixedProductMarketMakers)
	cat := get[domain.Category](h, "sports")
	assert.Equal(t, 1, cat.NumConditions)
	assert.Equal(t, 1, cat.NumOpenConditions)
	assert.Equal(t, []string{fpmmAddr}, get[domain.Condition](h, conditionID).FixedProductMarketMakers)
}

func TestFundingRemovedRecordsLedgerRow(t *testing.T) {
	h := newHarness(t, testConfig())
	marketLifecycle(h)
	h.emit(domain.EventFundingRemoved, fpmmAddr, created+7200, &domain.FundingRemoved{
		Funder:                       funderAddr,
		AmountsRemoved:               []*big.Int{bi("899000000000000000"), bi("1099000000000000000"), bi("1099000000000000000")},
		CollateralRemovedFromFeePool: bi("1000000000000000"),
		SharesBurnt:                  bi(e18),
	})

	m := get[domain.Market](h, fpmmAddr)
	for _, a := range m.OutcomeTokenAmounts {
		assert.Equal(t, 0, a.Sign())
	}
	assert.Nil(t, m.OutcomeTokenMarginalPrices)
	assert.False(t, m.ScaledLiquidityMeasure.Valid)

	l := get[domain.LiquidityEvent](h, h.lastTx()+"-0")
	assert.Equal(t, domain.LiquidityRemove, l.Type)
	assert.Equal(t, e18, l.SharesAmount.String())
}

func TestSellAddsGrossReturnToVolume(t *testing.T) {
	h := newHarness(t, testConfig())
	marketLifecycle(h)
	h.emit(domain.EventSell, fpmmAddr, created+7200, &domain.Sell{
		Seller:            buyerAddr,
		ReturnAmount:      bi("50000000000000000"),
		FeeAmount:         bi("1000000000000000"),
		OutcomeIndex:      1,
		OutcomeTokensSold: bi("60000000000000000"),
	})

	m := get[domain.Market](h, fpmmAddr)
	assert.Equal(t, "150000000000000000", m.CollateralVolume.String())
	assert.Equal(t, "848000000000000000", m.OutcomeTokenAmounts[0].String())
	assert.Equal(t, "1108000000000000000", m.OutcomeTokenAmounts[1].String())
	assert.Equal(t, domain.TradeSell, get[domain.Trade](h, h.lastTx()+"-0").Type)
}

func TestTradeOnUnknownMarketIsSkipped(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.emit(domain.EventBuy, fpmmAddr, created, &domain.Buy{
		Buyer:               buyerAddr,
		InvestmentAmount:    bi("10"),
		FeeAmount:           bi("1"),
		OutcomeTokensBought: bi("5"),
	})
	assert.True(t, res.Skipped)
	assert.Empty(t, res.Writes)
	assert.False(t, h.exists(domain.KindAccount, buyerAddr))
}

func TestTradeWithBadOutcomeIndexLeavesMarketUntouched(t *testing.T) {
	h := newHarness(t, testConfig())
	marketLifecycle(h)
	before, err := h.store.Get(t.Context(), domain.KindMarket, fpmmAddr)
	require.NoError(t, err)

	res := h.emit(domain.EventBuy, fpmmAddr, created+7200, &domain.Buy{
		Buyer:               buyerAddr,
		InvestmentAmount:    bi("10"),
		FeeAmount:           bi("1"),
		OutcomeIndex:        7,
		OutcomeTokensBought: bi("5"),
	})
	assert.True(t, res.Skipped)
	after, err := h.store.Get(t.Context(), domain.KindMarket, fpmmAddr)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestCreationRequiresCanonicalConditionalTokens(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepareCondition(conditionID, questionID, 2)
	res := h.emit(domain.EventFPMMCreation, fpmmFactory, created, &domain.FPMMCreation{
		FixedProductMarketMaker: fpmmAddr,
		ConditionalTokens:       "0x" + strings.Repeat("9", 40),
		CollateralToken:         dai,
		ConditionIDs:            []string{conditionID},
		Fee:                     big.NewInt(0),
	})
	assert.True(t, res.Skipped)
	assert.False(t, h.exists(domain.KindMarket, fpmmAddr))
}

func TestCreationWithUnpreparedConditionWritesNothing(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepareCondition(conditionID, questionID, 2)
	res := h.createMarket(fpmmAddr, dai, conditionID, "0x"+strings.Repeat("d", 64))
	assert.True(t, res.Skipped)
	assert.Empty(t, res.Writes)
	assert.False(t, h.exists(domain.KindToken, dai))
}

func TestMultiConditionMarketMultipliesSlots(t *testing.T) {
	h := newHarness(t, testConfig())
	other := "0x" + strings.Repeat("d", 64)
	h.prepareCondition(conditionID, questionID, 2)
	h.prepareCondition(other, "0x"+strings.Repeat("b", 64), 3)
	h.createMarket(fpmmAddr, dai, conditionID, other)

	m := get[domain.Market](h, fpmmAddr)
	assert.Equal(t, 6, m.OutcomeSlotCount)
	assert.Len(t, m.OutcomeTokenAmounts, 6)
	assert.Empty(t, m.Question)
	assert.False(t, m.IndexedOnQuestion)
}

func TestReplayIsDeterministic(t *testing.T) {
	a := newHarness(t, testConfig())
	marketLifecycle(a)
	b := newHarness(t, testConfig())
	marketLifecycle(b)
	assert.Equal(t, string(a.store.Dump()), string(b.store.Dump()))
}
