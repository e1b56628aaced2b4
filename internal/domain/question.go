package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Question is a Realitio question keyed by its question ID.
type Question struct {
	ID string `json:"id"`
	QuestionDetails
	AnswerState
	IndexedFixedProductMarketMakers []string `json:"indexedFixedProductMarketMakers"`
}

func (q *Question) EntityKind() EntityKind { return KindQuestion }
func (q *Question) EntityID() string       { return q.ID }

// Category counts the conditions whose question carries this category.
type Category struct {
	ID                  string `json:"id"`
	NumConditions       int    `json:"numConditions"`
	NumOpenConditions   int    `json:"numOpenConditions"`
	NumClosedConditions int    `json:"numClosedConditions"`
}

func (c *Category) EntityKind() EntityKind { return KindCategory }
func (c *Category) EntityID() string       { return c.ID }

// Answer aggregates the bonds posted on one answer value.
type Answer struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Answer        string   `json:"answer"`
	BondAggregate *big.Int `json:"bondAggregate"`
	Timestamp     int64    `json:"timestamp"`
}

func (a *Answer) EntityKind() EntityKind { return KindAnswer }
func (a *Answer) EntityID() string       { return a.ID }

// ScalarQuestionLink ties a scalar adapter condition question to the
// Realitio question it wraps.
type ScalarQuestionLink struct {
	ID                   string   `json:"id"`
	ConditionQuestionID  string   `json:"conditionQuestionId"`
	RealityEthQuestionID string   `json:"realityEthQuestionId"`
	Question             string   `json:"question"`
	ScalarLow            *big.Int `json:"scalarLow"`
	ScalarHigh           *big.Int `json:"scalarHigh"`
}

func (l *ScalarQuestionLink) EntityKind() EntityKind { return KindScalarQuestionLink }
func (l *ScalarQuestionLink) EntityID() string       { return l.ID }

// Condition is a ConditionalTokens condition.
type Condition struct {
	ID                       string            `json:"id"`
	Oracle                   string            `json:"oracle"`
	QuestionID               string            `json:"questionId"`
	OutcomeSlotCount         int               `json:"outcomeSlotCount"`
	Question                 string            `json:"question,omitempty"`
	ScalarLow                *big.Int          `json:"scalarLow"`
	ScalarHigh               *big.Int          `json:"scalarHigh"`
	Resolved                 bool              `json:"resolved"`
	ResolutionTimestamp      *int64            `json:"resolutionTimestamp"`
	Payouts                  []decimal.Decimal `json:"payouts"`
	FixedProductMarketMakers []string          `json:"fixedProductMarketMakers"`
}

func (c *Condition) EntityKind() EntityKind { return KindCondition }
func (c *Condition) EntityID() string       { return c.ID }
