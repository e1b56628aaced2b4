package indexer

import (
	"errors"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/fixedpoint"
	"github.com/alanyoungcy/omenindexer/internal/realitio"
)

func (d *Dispatcher) handleNewQuestion(s *Session, ev domain.Event) error {
	p, err := payload[domain.NewQuestion](ev)
	if err != nil {
		return err
	}
	id := strings.ToLower(p.QuestionID)
	details, err := realitio.Parse(p.TemplateID, p.Question, d.cfg.NuancedBinaryTemplateID)
	if errors.Is(err, realitio.ErrUnsupportedTemplate) {
		return skip(slog.LevelInfo, "ignoring question with unsupported template",
			slog.String("question", id), slog.Int64("template_id", p.TemplateID))
	}
	if err != nil {
		return err
	}

	q := &domain.Question{
		ID: id,
		QuestionDetails: domain.QuestionDetails{
			TemplateID:       p.TemplateID,
			Data:             p.Question,
			Title:            details.Title,
			Outcomes:         details.Outcomes,
			Category:         details.Category,
			Language:         details.Language,
			Arbitrator:       strings.ToLower(p.Arbitrator),
			OpeningTimestamp: p.OpeningTs,
			Timeout:          p.Timeout,
		},
		IndexedFixedProductMarketMakers: []string{},
	}
	if q.Category != "" {
		if _, err := requireCategory(s, q.Category); err != nil {
			return err
		}
	}
	s.Save(q)
	return nil
}

func requireCategory(s *Session, id string) (*domain.Category, error) {
	c, ok, err := Load[domain.Category](s, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		c = &domain.Category{ID: id}
		s.Save(c)
	}
	return c, nil
}

// loadQuestion returns the question or an info-level skip when it was never
// indexed, which is normal for templates the indexer ignores.
func loadQuestion(s *Session, id, action string) (*domain.Question, error) {
	id = strings.ToLower(id)
	q, ok, err := Load[domain.Question](s, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, skip(slog.LevelInfo, "cannot find question to "+action, slog.String("question", id))
	}
	return q, nil
}

// fanOut applies update to every market that tracks q. Missing markets are
// logged and passed over.
func (d *Dispatcher) fanOut(s *Session, q *domain.Question, update func(*domain.AnswerState)) error {
	for _, id := range q.IndexedFixedProductMarketMakers {
		m, ok, err := Load[domain.Market](s, id)
		if err != nil {
			return err
		}
		if !ok {
			d.logger.Error("indexed market not found for question",
				slog.String("fpmm", id), slog.String("question", q.ID))
			continue
		}
		update(&m.AnswerState)
		s.Save(m)
	}
	return nil
}

func (d *Dispatcher) handleNewAnswer(s *Session, ev domain.Event) error {
	p, err := payload[domain.NewAnswer](ev)
	if err != nil {
		return err
	}
	if p.IsCommitment {
		return nil
	}
	return d.saveAnswer(s, p.QuestionID, p.Answer, p.Bond, p.Ts)
}

// handleAnswerReveal records a revealed commitment. The reveal carries no
// answer timestamp, so the block time is used.
func (d *Dispatcher) handleAnswerReveal(s *Session, ev domain.Event) error {
	p, err := payload[domain.AnswerReveal](ev)
	if err != nil {
		return err
	}
	return d.saveAnswer(s, p.QuestionID, p.Answer, p.Bond, ev.BlockTimestamp)
}

func (d *Dispatcher) saveAnswer(s *Session, questionID, answer string, bond *big.Int, ts int64) error {
	if err := requireAmounts(s.event, bond); err != nil {
		return err
	}
	q, err := loadQuestion(s, questionID, "answer")
	if err != nil {
		return err
	}
	answer = strings.ToLower(answer)

	answerID := q.ID + "_" + answer
	a, ok, err := Load[domain.Answer](s, answerID)
	if err != nil {
		return err
	}
	if !ok {
		a = &domain.Answer{ID: answerID, Question: q.ID, Answer: answer, BondAggregate: new(big.Int)}
	}
	a.BondAggregate = new(big.Int).Add(a.BondAggregate, bond)
	a.Timestamp = ts
	s.Save(a)

	finalized := ts + q.Timeout
	if q.ArbitrationOccurred {
		finalized = ts
	}
	set := func(st *domain.AnswerState) {
		st.CurrentAnswer = answer
		st.CurrentAnswerBond = fixedpoint.Clone(bond)
		st.CurrentAnswerTimestamp = int64Ptr(ts)
		st.AnswerFinalizedTimestamp = int64Ptr(finalized)
	}
	set(&q.AnswerState)
	s.Save(q)
	return d.fanOut(s, q, set)
}

func (d *Dispatcher) handleArbitrationRequest(s *Session, ev domain.Event) error {
	p, err := payload[domain.ArbitrationRequest](ev)
	if err != nil {
		return err
	}
	q, err := loadQuestion(s, p.QuestionID, "begin arbitration")
	if err != nil {
		return err
	}
	set := func(st *domain.AnswerState) {
		st.IsPendingArbitration = true
		st.AnswerFinalizedTimestamp = nil
	}
	set(&q.AnswerState)
	s.Save(q)
	return d.fanOut(s, q, set)
}

func (d *Dispatcher) handleFinalize(s *Session, ev domain.Event) error {
	p, err := payload[domain.Finalize](ev)
	if err != nil {
		return err
	}
	q, err := loadQuestion(s, p.QuestionID, "finalize")
	if err != nil {
		return err
	}
	set := func(st *domain.AnswerState) {
		st.IsPendingArbitration = false
		st.ArbitrationOccurred = true
	}
	set(&q.AnswerState)
	s.Save(q)
	return d.fanOut(s, q, set)
}

// handleScalarQuestionAnnouncement links a scalar adapter's condition
// question to the Realitio question it resolves from. The adapter is the
// oracle of the condition, so the condition id is derived from the emitting
// address with a fixed outcome slot count of two.
func (d *Dispatcher) handleScalarQuestionAnnouncement(s *Session, ev domain.Event) error {
	p, err := payload[domain.QuestionIDAnnouncement](ev)
	if err != nil {
		return err
	}
	linkID := strings.ToLower(p.ConditionQuestionID)
	realitioID := strings.ToLower(p.RealitioQuestionID)

	_, ok, err := Load[domain.ScalarQuestionLink](s, linkID)
	if err != nil {
		return err
	}
	if ok {
		d.logger.Info("scalar link already announced", slog.String("link", linkID))
	} else {
		s.Save(&domain.ScalarQuestionLink{
			ID:                   linkID,
			ConditionQuestionID:  linkID,
			RealityEthQuestionID: realitioID,
			Question:             realitioID,
			ScalarLow:            fixedpoint.Clone(p.Low),
			ScalarHigh:           fixedpoint.Clone(p.High),
		})
	}

	conditionID := scalarConditionID(ev.Address, linkID)
	c, ok, err := Load[domain.Condition](s, conditionID)
	if err != nil || !ok {
		return err
	}
	if err := assignQuestionToCondition(s, c, realitioID); err != nil {
		return err
	}
	c.ScalarLow = fixedpoint.Clone(p.Low)
	c.ScalarHigh = fixedpoint.Clone(p.High)
	s.Save(c)
	return nil
}

// scalarConditionID is keccak256(oracle ‖ questionId ‖ uint256(2)), the
// ConditionalTokens id of a two-slot condition.
func scalarConditionID(oracle, questionID string) string {
	slots := make([]byte, common.HashLength)
	slots[common.HashLength-1] = 2
	return crypto.Keccak256Hash(
		common.HexToAddress(oracle).Bytes(),
		common.HexToHash(questionID).Bytes(),
		slots,
	).Hex()
}

// assignQuestionToCondition points c at the question and counts the
// condition as open in the question's category.
func assignQuestionToCondition(s *Session, c *domain.Condition, questionID string) error {
	c.Question = questionID
	q, ok, err := Load[domain.Question](s, questionID)
	if err != nil || !ok || q.Category == "" {
		return err
	}
	cat, ok, err := Load[domain.Category](s, q.Category)
	if err != nil || !ok {
		return err
	}
	cat.NumConditions++
	cat.NumOpenConditions++
	s.Save(cat)
	return nil
}

func int64Ptr(v int64) *int64 { return &v }
