package indexer

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

var yes = "0x" + strings.Repeat("0", 63) + "1"

func TestAnswerArbitrationFinalizeFanOut(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setupMarket()

	answeredAt := created + 500
	h.emit(domain.EventNewAnswer, realitioAddr, answeredAt, &domain.NewAnswer{
		Answer: yes, QuestionID: questionID, Bond: bi("10"), Ts: answeredAt,
	})
	h.emit(domain.EventNewAnswer, realitioAddr, answeredAt+1, &domain.NewAnswer{
		Answer: yes, QuestionID: questionID, Bond: bi("20"), Ts: answeredAt + 1,
	})

	q := get[domain.Question](h, questionID)
	assert.Equal(t, yes, q.CurrentAnswer)
	assert.Equal(t, "20", q.CurrentAnswerBond.String())
	require.NotNil(t, q.AnswerFinalizedTimestamp)
	assert.Equal(t, answeredAt+1+86400, *q.AnswerFinalizedTimestamp)

	a := get[domain.Answer](h, questionID+"_"+yes)
	assert.Equal(t, "30", a.BondAggregate.String())
	assert.Equal(t, answeredAt+1, a.Timestamp)

	m := get[domain.Market](h, fpmmAddr)
	assert.Equal(t, yes, m.CurrentAnswer)
	assert.Equal(t, *q.AnswerFinalizedTimestamp, *m.AnswerFinalizedTimestamp)

	h.emit(domain.EventArbitrationRequest, realitioAddr, answeredAt+2, &domain.ArbitrationRequest{QuestionID: questionID})
	m = get[domain.Market](h, fpmmAddr)
	assert.True(t, m.IsPendingArbitration)
	assert.Nil(t, m.AnswerFinalizedTimestamp)

	h.emit(domain.EventFinalize, realitioAddr, answeredAt+3, &domain.Finalize{QuestionID: questionID, Answer: yes})
	m = get[domain.Market](h, fpmmAddr)
	assert.False(t, m.IsPendingArbitration)
	assert.True(t, m.ArbitrationOccurred)

	// After arbitration an answer finalizes immediately.
	h.emit(domain.EventAnswerReveal, realitioAddr, answeredAt+4, &domain.AnswerReveal{
		QuestionID: questionID, Answer: yes, Bond: bi("1"),
	})
	q = get[domain.Question](h, questionID)
	assert.Equal(t, answeredAt+4, *q.AnswerFinalizedTimestamp)
}

func TestCommitmentAnswersAreIgnored(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setupMarket()
	res := h.emit(domain.EventNewAnswer, realitioAddr, created, &domain.NewAnswer{
		Answer: yes, QuestionID: questionID, Bond: bi("10"), Ts: created, IsCommitment: true,
	})
	assert.Empty(t, res.Writes)
	assert.Empty(t, get[domain.Question](h, questionID).CurrentAnswer)
}

func TestUnknownQuestionIsANoOp(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.emit(domain.EventFinalize, realitioAddr, created, &domain.Finalize{QuestionID: questionID})
	assert.True(t, res.Skipped)
	assert.Empty(t, res.Writes)
}

func TestUnsupportedTemplateIsIgnored(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.emit(domain.EventNewQuestion, realitioAddr, created, &domain.NewQuestion{
		QuestionID: questionID, TemplateID: 9, Question: "x",
	})
	assert.True(t, res.Skipped)
	assert.False(t, h.exists(domain.KindQuestion, questionID))
}

func TestBinaryQuestionCreatesCategory(t *testing.T) {
	h := newHarness(t, testConfig())
	h.emit(domain.EventNewQuestion, realitioAddr, created, &domain.NewQuestion{
		QuestionID: questionID, TemplateID: 0, Question: "Will it rain?␟weather␟en", Timeout: 60,
	})
	q := get[domain.Question](h, questionID)
	assert.Equal(t, "Will it rain?", q.Title)
	assert.Equal(t, "weather", q.Category)
	assert.Equal(t, "en", q.Language)
	assert.True(t, h.exists(domain.KindCategory, "weather"))
}

func TestFanOutCapStopsLiveUpdates(t *testing.T) {
	cfg := testConfig()
	cfg.FanOutCap = 1
	h := newHarness(t, cfg)
	second := "0x5555555555555555555555555555555555555555"
	otherCondition := "0x" + strings.Repeat("d", 64)

	h.newQuestion(questionID, created)
	h.prepareCondition(conditionID, questionID, 3)
	h.prepareCondition(otherCondition, questionID, 3)
	h.createMarket(fpmmAddr, dai, conditionID)
	h.createMarket(second, dai, otherCondition)

	assert.True(t, get[domain.Market](h, fpmmAddr).IndexedOnQuestion)
	m2 := get[domain.Market](h, second)
	assert.False(t, m2.IndexedOnQuestion)
	assert.Equal(t, "Who wins?", m2.Title)
	assert.Equal(t, []string{fpmmAddr}, get[domain.Question](h, questionID).IndexedFixedProductMarketMakers)

	h.emit(domain.EventNewAnswer, realitioAddr, created+1, &domain.NewAnswer{
		Answer: yes, QuestionID: questionID, Bond: bi("1"), Ts: created + 1,
	})
	assert.Equal(t, yes, get[domain.Market](h, fpmmAddr).CurrentAnswer)
	assert.Empty(t, get[domain.Market](h, second).CurrentAnswer)
	assert.Equal(t, 2, get[domain.Category](h, "sports").NumConditions)
}

func TestScalarConditionIDMatchesPackedEncoding(t *testing.T) {
	adapter := "0x5555555555555555555555555555555555555555"
	cq := "0x" + strings.Repeat("b", 64)
	packed := common.FromHex(adapter[2:] + cq[2:] + strings.Repeat("0", 63) + "2")
	require.Len(t, packed, 84)
	assert.Equal(t, crypto.Keccak256Hash(packed).Hex(), scalarConditionID(adapter, cq))
}

func TestScalarAnnouncementLinksCondition(t *testing.T) {
	adapter := "0x5555555555555555555555555555555555555555"
	cq := "0x" + strings.Repeat("b", 64)
	cid := scalarConditionID(adapter, cq)

	h := newHarness(t, testConfig())
	h.newQuestion(questionID, created)
	h.emit(domain.EventConditionPreparation, ctAddr, created, &domain.ConditionPreparation{
		ConditionID: cid, Oracle: adapter, QuestionID: cq, OutcomeSlotCount: 2,
	})
	h.emit(domain.EventQuestionIDAnnouncement, adapter, created, &domain.QuestionIDAnnouncement{
		RealitioQuestionID:  questionID,
		ConditionQuestionID: cq,
		Low:                 big.NewInt(0),
		High:                big.NewInt(1000),
	})

	c := get[domain.Condition](h, cid)
	assert.Equal(t, questionID, c.Question)
	assert.Equal(t, "1000", c.ScalarHigh.String())
	link := get[domain.ScalarQuestionLink](h, cq)
	assert.Equal(t, questionID, link.RealityEthQuestionID)
	assert.Equal(t, 1, get[domain.Category](h, "sports").NumOpenConditions)

	h.createMarket(fpmmAddr, dai, cid)
	m := get[domain.Market](h, fpmmAddr)
	assert.Equal(t, questionID, m.Question)
	assert.Equal(t, "1000", m.ScalarHigh.String())
}

func TestScalarLinkAppliesToLaterCondition(t *testing.T) {
	adapter := "0x5555555555555555555555555555555555555555"
	cq := "0x" + strings.Repeat("b", 64)
	cid := scalarConditionID(adapter, cq)

	h := newHarness(t, testConfig())
	h.emit(domain.EventQuestionIDAnnouncement, adapter, created, &domain.QuestionIDAnnouncement{
		RealitioQuestionID: questionID, ConditionQuestionID: cq, Low: big.NewInt(5), High: big.NewInt(10),
	})
	h.emit(domain.EventConditionPreparation, ctAddr, created, &domain.ConditionPreparation{
		ConditionID: cid, Oracle: adapter, QuestionID: cq, OutcomeSlotCount: 2,
	})
	c := get[domain.Condition](h, cid)
	assert.Equal(t, questionID, c.Question)
	assert.Equal(t, "5", c.ScalarLow.String())
}

func TestConditionResolutionMirrorsPayouts(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setupMarket()
	h.emit(domain.EventConditionResolution, ctAddr, created+900, &domain.ConditionResolution{
		ConditionID:      conditionID,
		Oracle:           oracleAddr,
		QuestionID:       questionID,
		OutcomeSlotCount: 3,
		PayoutNumerators: []*big.Int{big.NewInt(1), big.NewInt(0), big.NewInt(1)},
	})

	half := decimal.RequireFromString("0.5")
	m := get[domain.Market](h, fpmmAddr)
	require.Len(t, m.Payouts, 3)
	assert.True(t, m.Payouts[0].Equal(half))
	assert.True(t, m.Payouts[1].IsZero())
	assert.Equal(t, created+900, *m.ResolutionTimestamp)

	g := get[domain.Global](h, "")
	assert.Equal(t, 0, g.NumOpenConditions)
	assert.Equal(t, 1, g.NumClosedConditions)
	cat := get[domain.Category](h, "sports")
	assert.Equal(t, 0, cat.NumOpenConditions)
	assert.Equal(t, 1, cat.NumClosedConditions)

	res := h.emit(domain.EventConditionResolution, ctAddr, created+901, &domain.ConditionResolution{
		ConditionID: conditionID, PayoutNumerators: []*big.Int{big.NewInt(1)},
	})
	assert.True(t, res.Skipped)
}
