package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// HoursPerDay is the length of the per-hour volume rings.
const HoursPerDay = 24

// TCRStatus is the Generalized TCR item status.
type TCRStatus int

const (
	TCRAbsent TCRStatus = iota
	TCRRegistered
	TCRRegistrationRequested
	TCRClearingRequested
)

func (s TCRStatus) String() string {
	switch s {
	case TCRAbsent:
		return "Absent"
	case TCRRegistered:
		return "Registered"
	case TCRRegistrationRequested:
		return "RegistrationRequested"
	case TCRClearingRequested:
		return "ClearingRequested"
	default:
		return "Unknown"
	}
}

// Accepted reports whether the item counts as listed. An item awaiting
// removal is still listed until the removal resolves.
func (s TCRStatus) Accepted() bool {
	return s == TCRRegistered || s == TCRClearingRequested
}

// QuestionDetails are the decoded template fields of a Realitio question.
type QuestionDetails struct {
	TemplateID       int64    `json:"templateId"`
	Data             string   `json:"data"`
	Title            string   `json:"title"`
	Outcomes         []string `json:"outcomes"`
	Category         string   `json:"category"`
	Language         string   `json:"language"`
	Arbitrator       string   `json:"arbitrator"`
	OpeningTimestamp int64    `json:"openingTimestamp"`
	Timeout          int64    `json:"timeout"`
}

// AnswerState is the live answer and arbitration state of a question.
type AnswerState struct {
	CurrentAnswer            string   `json:"currentAnswer"`
	CurrentAnswerBond        *big.Int `json:"currentAnswerBond"`
	CurrentAnswerTimestamp   *int64   `json:"currentAnswerTimestamp"`
	IsPendingArbitration     bool     `json:"isPendingArbitration"`
	ArbitrationOccurred      bool     `json:"arbitrationOccurred"`
	AnswerFinalizedTimestamp *int64   `json:"answerFinalizedTimestamp"`
}

// Market is a FixedProductMarketMaker aggregate keyed by its lowercase address.
type Market struct {
	ID                string   `json:"id"`
	Creator           string   `json:"creator"`
	CreationTimestamp int64    `json:"creationTimestamp"`
	CollateralToken   string   `json:"collateralToken"`
	Fee               *big.Int `json:"fee"`
	Factory           string   `json:"factory"`
	Conditions        []string `json:"conditions"`
	OutcomeSlotCount  int      `json:"outcomeSlotCount"`
	Condition         string   `json:"condition,omitempty"`
	Question          string   `json:"question,omitempty"`
	ScalarLow         *big.Int `json:"scalarLow"`
	ScalarHigh        *big.Int `json:"scalarHigh"`

	OutcomeTokenAmounts        []*big.Int        `json:"outcomeTokenAmounts"`
	OutcomeTokenMarginalPrices []decimal.Decimal `json:"outcomeTokenMarginalPrices"`

	LiquidityParameter       *big.Int            `json:"liquidityParameter"`
	ScaledLiquidityParameter decimal.Decimal     `json:"scaledLiquidityParameter"`
	USDLiquidityParameter    decimal.Decimal     `json:"usdLiquidityParameter"`
	LiquidityMeasure         *big.Int            `json:"liquidityMeasure"`
	ScaledLiquidityMeasure   decimal.NullDecimal `json:"scaledLiquidityMeasure"`
	USDLiquidityMeasure      decimal.NullDecimal `json:"usdLiquidityMeasure"`

	CollateralVolume         *big.Int        `json:"collateralVolume"`
	ScaledCollateralVolume   decimal.Decimal `json:"scaledCollateralVolume"`
	USDVolume                decimal.Decimal `json:"usdVolume"`
	RunningDailyVolume       *big.Int        `json:"runningDailyVolume"`
	ScaledRunningDailyVolume decimal.Decimal `json:"scaledRunningDailyVolume"`
	USDRunningDailyVolume    decimal.Decimal `json:"usdRunningDailyVolume"`

	CollateralVolumeBeforeLastActiveDayByHour []*big.Int        `json:"collateralVolumeBeforeLastActiveDayByHour"`
	USDVolumeBeforeLastActiveDayByHour        []decimal.Decimal `json:"usdVolumeBeforeLastActiveDayByHour"`
	LastActiveHour                            int64             `json:"lastActiveHour"`
	LastActiveDay                             int64             `json:"lastActiveDay"`
	LastActiveDayAndRunningDailyVolume        *big.Int          `json:"lastActiveDayAndRunningDailyVolume"`
	LastActiveDayAndScaledRunningDailyVolume  *big.Int          `json:"lastActiveDayAndScaledRunningDailyVolume"`
	Sort24HourVolume                          []*big.Int        `json:"sort24HourVolume"`

	CuratedByDxDao         bool      `json:"curatedByDxDao"`
	KlerosTCRRegistered    bool      `json:"klerosTCRregistered"`
	CuratedByDxDaoOrKleros bool      `json:"curatedByDxDaoOrKleros"`
	KlerosTCRStatus        TCRStatus `json:"klerosTCRstatus"`
	SubmissionIDs          []string  `json:"submissionIDs"`

	QuestionDetails
	AnswerState
	IndexedOnQuestion bool `json:"indexedOnQuestion"`

	ResolutionTimestamp *int64            `json:"resolutionTimestamp"`
	Payouts             []decimal.Decimal `json:"payouts"`
}

func (m *Market) EntityKind() EntityKind { return KindMarket }
func (m *Market) EntityID() string       { return m.ID }

// RecomputeCuration derives the combined curation flag.
func (m *Market) RecomputeCuration() {
	m.CuratedByDxDaoOrKleros = m.CuratedByDxDao || m.KlerosTCRRegistered
}

// Account is any address that traded or held pool shares.
type Account struct {
	ID string `json:"id"`
}

func (a *Account) EntityKind() EntityKind { return KindAccount }
func (a *Account) EntityID() string       { return a.ID }

// PoolMembership is a signed pool-share balance for one funder of one market.
type PoolMembership struct {
	ID     string   `json:"id"`
	Pool   string   `json:"pool"`
	Funder string   `json:"funder"`
	Amount *big.Int `json:"amount"`
}

func (p *PoolMembership) EntityKind() EntityKind { return KindPoolMembership }
func (p *PoolMembership) EntityID() string       { return p.ID }

// Participation records that an account traded on a market.
type Participation struct {
	ID                string   `json:"id"`
	Market            string   `json:"fpmm"`
	Participant       string   `json:"participant"`
	CreationTimestamp int64    `json:"creationTimestamp"`
	CollateralToken   string   `json:"collateralToken"`
	Fee               *big.Int `json:"fee"`
	Category          string   `json:"category"`
	Language          string   `json:"language"`
	Arbitrator        string   `json:"arbitrator"`
	OpeningTimestamp  int64    `json:"openingTimestamp"`
	Timeout           int64    `json:"timeout"`
}

func (p *Participation) EntityKind() EntityKind { return KindParticipation }
func (p *Participation) EntityID() string       { return p.ID }

// TradeType distinguishes buys from sells.
type TradeType string

const (
	TradeBuy  TradeType = "Buy"
	TradeSell TradeType = "Sell"
)

// Trade is an immutable buy or sell ledger row.
type Trade struct {
	ID                  string          `json:"id"`
	Market              string          `json:"fpmm"`
	Type                TradeType       `json:"type"`
	Creator             string          `json:"creator"`
	CreationTimestamp   int64           `json:"creationTimestamp"`
	CollateralToken     string          `json:"collateralToken"`
	CollateralAmount    *big.Int        `json:"collateralAmount"`
	FeeAmount           *big.Int        `json:"feeAmount"`
	CollateralAmountUSD decimal.Decimal `json:"collateralAmountUSD"`
	OutcomeIndex        int             `json:"outcomeIndex"`
	OutcomeTokensTraded *big.Int        `json:"outcomeTokensTraded"`
	TransactionHash     string          `json:"transactionHash"`
}

func (t *Trade) EntityKind() EntityKind { return KindTrade }
func (t *Trade) EntityID() string       { return t.ID }

// LiquidityType distinguishes funding from defunding.
type LiquidityType string

const (
	LiquidityAdd    LiquidityType = "Add"
	LiquidityRemove LiquidityType = "Remove"
)

// LiquidityEvent is an immutable funding ledger row.
type LiquidityEvent struct {
	ID                  string        `json:"id"`
	Market              string        `json:"fpmm"`
	Type                LiquidityType `json:"type"`
	Funder              string        `json:"funder"`
	CreationTimestamp   int64         `json:"creationTimestamp"`
	OutcomeTokenAmounts []*big.Int    `json:"outcomeTokenAmounts"`
	SharesAmount        *big.Int      `json:"sharesAmount"`
	TransactionHash     string        `json:"transactionHash"`
}

func (l *LiquidityEvent) EntityKind() EntityKind { return KindLiquidityEvent }
func (l *LiquidityEvent) EntityID() string       { return l.ID }
