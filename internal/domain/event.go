package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// EventKind names a contract log the indexer understands.
type EventKind string

const (
	EventFPMMCreation           EventKind = "FixedProductMarketMakerCreation"
	EventFundingAdded           EventKind = "FPMMFundingAdded"
	EventFundingRemoved         EventKind = "FPMMFundingRemoved"
	EventBuy                    EventKind = "FPMMBuy"
	EventSell                   EventKind = "FPMMSell"
	EventPoolShareTransfer      EventKind = "Transfer"
	EventConditionPreparation   EventKind = "ConditionPreparation"
	EventConditionResolution    EventKind = "ConditionResolution"
	EventNewQuestion            EventKind = "LogNewQuestion"
	EventNewAnswer              EventKind = "LogNewAnswer"
	EventAnswerReveal           EventKind = "LogAnswerReveal"
	EventArbitrationRequest     EventKind = "LogNotifyOfArbitrationRequest"
	EventFinalize               EventKind = "LogFinalize"
	EventQuestionIDAnnouncement EventKind = "QuestionIdAnnouncement"
	EventAddToken               EventKind = "AddToken"
	EventRemoveToken            EventKind = "RemoveToken"
	EventItemStatusChange       EventKind = "ItemStatusChange"
	EventPairCreated            EventKind = "PairCreated"
	EventSync                   EventKind = "Sync"
	EventDistributionCreated    EventKind = "DistributionCreated"
	EventInitialized            EventKind = "Initialized"
	EventCanceled               EventKind = "Canceled"
	EventStaked                 EventKind = "Staked"
	EventWithdrawn              EventKind = "Withdrawn"
	EventClaimed                EventKind = "Claimed"
	EventRecovered              EventKind = "Recovered"
	EventUpdatedRewards         EventKind = "UpdatedRewards"
	EventTaskSubmitted          EventKind = "LogTaskSubmitted"
)

// Event is one decoded contract log with its block metadata. Address is the
// lowercase hex address of the emitting contract.
type Event struct {
	Kind           EventKind `json:"kind"`
	Address        string    `json:"address"`
	BlockNumber    uint64    `json:"blockNumber"`
	BlockTimestamp int64     `json:"blockTimestamp"`
	TxHash         string    `json:"txHash"`
	LogIndex       uint      `json:"logIndex"`
	Payload        any       `json:"payload"`
}

// LedgerID is the id of an append-only row produced by this event.
func (e Event) LedgerID() string {
	return fmt.Sprintf("%s-%d", e.TxHash, e.LogIndex)
}

// UnmarshalJSON decodes the payload into the typed struct for Kind.
func (e *Event) UnmarshalJSON(b []byte) error {
	type envelope Event
	var raw struct {
		envelope
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: event envelope: %w", ErrDecode, err)
	}
	*e = Event(raw.envelope)
	p, err := NewPayload(e.Kind)
	if err != nil {
		return err
	}
	if len(raw.Payload) > 0 && string(raw.Payload) != "null" {
		if err := json.Unmarshal(raw.Payload, p); err != nil {
			return fmt.Errorf("%w: %s payload: %w", ErrDecode, e.Kind, err)
		}
	}
	e.Payload = p
	return nil
}

// NewPayload returns a pointer to the zero payload for kind.
func NewPayload(kind EventKind) (any, error) {
	switch kind {
	case EventFPMMCreation:
		return &FPMMCreation{}, nil
	case EventFundingAdded:
		return &FundingAdded{}, nil
	case EventFundingRemoved:
		return &FundingRemoved{}, nil
	case EventBuy:
		return &Buy{}, nil
	case EventSell:
		return &Sell{}, nil
	case EventPoolShareTransfer:
		return &PoolShareTransfer{}, nil
	case EventConditionPreparation:
		return &ConditionPreparation{}, nil
	case EventConditionResolution:
		return &ConditionResolution{}, nil
	case EventNewQuestion:
		return &NewQuestion{}, nil
	case EventNewAnswer:
		return &NewAnswer{}, nil
	case EventAnswerReveal:
		return &AnswerReveal{}, nil
	case EventArbitrationRequest:
		return &ArbitrationRequest{}, nil
	case EventFinalize:
		return &Finalize{}, nil
	case EventQuestionIDAnnouncement:
		return &QuestionIDAnnouncement{}, nil
	case EventAddToken, EventRemoveToken:
		return &CurationListChange{}, nil
	case EventItemStatusChange:
		return &ItemStatusChange{}, nil
	case EventPairCreated:
		return &PairCreated{}, nil
	case EventSync:
		return &Sync{}, nil
	case EventDistributionCreated:
		return &DistributionCreated{}, nil
	case EventInitialized:
		return &Initialized{}, nil
	case EventCanceled:
		return &Canceled{}, nil
	case EventStaked:
		return &Staked{}, nil
	case EventWithdrawn:
		return &Withdrawn{}, nil
	case EventClaimed:
		return &Claimed{}, nil
	case EventRecovered:
		return &Recovered{}, nil
	case EventUpdatedRewards:
		return &UpdatedRewards{}, nil
	case EventTaskSubmitted:
		return &TaskSubmitted{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
}

// FPMM factory and market events.

type FPMMCreation struct {
	Creator                 string   `json:"creator"`
	FixedProductMarketMaker string   `json:"fixedProductMarketMaker"`
	ConditionalTokens       string   `json:"conditionalTokens"`
	CollateralToken         string   `json:"collateralToken"`
	ConditionIDs            []string `json:"conditionIds"`
	Fee                     *big.Int `json:"fee"`
}

type FundingAdded struct {
	Funder       string     `json:"funder"`
	AmountsAdded []*big.Int `json:"amountsAdded"`
	SharesMinted *big.Int   `json:"sharesMinted"`
}

type FundingRemoved struct {
	Funder                       string     `json:"funder"`
	AmountsRemoved               []*big.Int `json:"amountsRemoved"`
	CollateralRemovedFromFeePool *big.Int   `json:"collateralRemovedFromFeePool"`
	SharesBurnt                  *big.Int   `json:"sharesBurnt"`
}

type Buy struct {
	Buyer               string   `json:"buyer"`
	InvestmentAmount    *big.Int `json:"investmentAmount"`
	FeeAmount           *big.Int `json:"feeAmount"`
	OutcomeIndex        int      `json:"outcomeIndex"`
	OutcomeTokensBought *big.Int `json:"outcomeTokensBought"`
}

type Sell struct {
	Seller            string   `json:"seller"`
	ReturnAmount      *big.Int `json:"returnAmount"`
	FeeAmount         *big.Int `json:"feeAmount"`
	OutcomeIndex      int      `json:"outcomeIndex"`
	OutcomeTokensSold *big.Int `json:"outcomeTokensSold"`
}

type PoolShareTransfer struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Value *big.Int `json:"value"`
}

// ConditionalTokens events.

type ConditionPreparation struct {
	ConditionID      string `json:"conditionId"`
	Oracle           string `json:"oracle"`
	QuestionID       string `json:"questionId"`
	OutcomeSlotCount int    `json:"outcomeSlotCount"`
}

type ConditionResolution struct {
	ConditionID      string     `json:"conditionId"`
	Oracle           string     `json:"oracle"`
	QuestionID       string     `json:"questionId"`
	OutcomeSlotCount int        `json:"outcomeSlotCount"`
	PayoutNumerators []*big.Int `json:"payoutNumerators"`
}

// Realitio and scalar adapter events.

type NewQuestion struct {
	QuestionID  string   `json:"questionId"`
	User        string   `json:"user"`
	TemplateID  int64    `json:"templateId"`
	Question    string   `json:"question"`
	ContentHash string   `json:"contentHash"`
	Arbitrator  string   `json:"arbitrator"`
	Timeout     int64    `json:"timeout"`
	OpeningTs   int64    `json:"openingTs"`
	Nonce       *big.Int `json:"nonce"`
	Created     int64    `json:"created"`
}

type NewAnswer struct {
	Answer       string   `json:"answer"`
	QuestionID   string   `json:"questionId"`
	HistoryHash  string   `json:"historyHash"`
	User         string   `json:"user"`
	Bond         *big.Int `json:"bond"`
	Ts           int64    `json:"ts"`
	IsCommitment bool     `json:"isCommitment"`
}

type AnswerReveal struct {
	QuestionID string   `json:"questionId"`
	User       string   `json:"user"`
	AnswerHash string   `json:"answerHash"`
	Answer     string   `json:"answer"`
	Nonce      *big.Int `json:"nonce"`
	Bond       *big.Int `json:"bond"`
}

type ArbitrationRequest struct {
	QuestionID string `json:"questionId"`
	User       string `json:"user"`
}

type Finalize struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type QuestionIDAnnouncement struct {
	RealitioQuestionID  string   `json:"realitioQuestionId"`
	ConditionQuestionID string   `json:"conditionQuestionId"`
	Low                 *big.Int `json:"low"`
	High                *big.Int `json:"high"`
}

// Curation events.

// CurationListChange is the payload of both AddToken and RemoveToken.
type CurationListChange struct {
	ListID *big.Int `json:"listId"`
	Token  string   `json:"token"`
}

type ItemStatusChange struct {
	ItemID       string   `json:"itemId"`
	RequestIndex *big.Int `json:"requestIndex"`
	RoundIndex   *big.Int `json:"roundIndex"`
	Disputed     bool     `json:"disputed"`
	Resolved     bool     `json:"resolved"`
}

// Uniswap V2 events.

type PairCreated struct {
	Token0 string   `json:"token0"`
	Token1 string   `json:"token1"`
	Pair   string   `json:"pair"`
	Index  *big.Int `json:"index"`
}

type Sync struct {
	Reserve0 *big.Int `json:"reserve0"`
	Reserve1 *big.Int `json:"reserve1"`
}

// Staking rewards events.

type DistributionCreated struct {
	Owner      string `json:"owner"`
	DeployedAt string `json:"deployedAt"`
}

type Initialized struct {
	RewardsTokenAddresses []string   `json:"rewardsTokenAddresses"`
	StakableTokenAddress  string     `json:"stakableTokenAddress"`
	RewardsAmounts        []*big.Int `json:"rewardsAmounts"`
	StartingTimestamp     int64      `json:"startingTimestamp"`
	EndingTimestamp       int64      `json:"endingTimestamp"`
	Locked                bool       `json:"locked"`
	StakingCap            *big.Int   `json:"stakingCap"`
}

type Canceled struct{}

type Staked struct {
	Staker string   `json:"staker"`
	Amount *big.Int `json:"amount"`
}

type Withdrawn struct {
	Withdrawer string   `json:"withdrawer"`
	Amount     *big.Int `json:"amount"`
}

type Claimed struct {
	Claimer string     `json:"claimer"`
	Amounts []*big.Int `json:"amounts"`
}

type Recovered struct {
	Amounts []*big.Int `json:"amounts"`
}

type UpdatedRewards struct {
	Amounts []*big.Int `json:"amounts"`
}

// Gelato automation events. Byte fields are 0x-prefixed hex.

type TaskSubmitted struct {
	TaskReceiptID   *big.Int         `json:"taskReceiptId"`
	TaskReceiptHash string           `json:"taskReceiptHash"`
	Receipt         SubmittedReceipt `json:"taskReceipt"`
}

type SubmittedReceipt struct {
	ID              *big.Int          `json:"id"`
	UserProxy       string            `json:"userProxy"`
	Provider        SubmittedProvider `json:"provider"`
	Index           *big.Int          `json:"index"`
	Tasks           []SubmittedTask   `json:"tasks"`
	ExpiryDate      *big.Int          `json:"expiryDate"`
	CycleID         *big.Int          `json:"cycleId"`
	SubmissionsLeft *big.Int          `json:"submissionsLeft"`
}

type SubmittedProvider struct {
	Addr   string `json:"addr"`
	Module string `json:"module"`
}

type SubmittedTask struct {
	Conditions               []SubmittedCondition `json:"conditions"`
	Actions                  []SubmittedAction    `json:"actions"`
	SelfProviderGasLimit     *big.Int             `json:"selfProviderGasLimit"`
	SelfProviderGasPriceCeil *big.Int             `json:"selfProviderGasPriceCeil"`
}

type SubmittedCondition struct {
	Inst string `json:"inst"`
	Data string `json:"data"`
}

type SubmittedAction struct {
	Addr         string   `json:"addr"`
	Data         string   `json:"data"`
	Operation    uint8    `json:"operation"`
	DataFlow     uint8    `json:"dataFlow"`
	Value        *big.Int `json:"value"`
	TermsOkCheck bool     `json:"termsOkCheck"`
}
