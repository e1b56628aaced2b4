// Package chain talks to an Ethereum JSON-RPC node: it decodes the logs of
// the followed contracts into domain events and serves the view calls the
// indexer needs.
package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

type decodeFunc func(f *fields) any

type binding struct {
	kind    domain.EventKind
	event   abi.Event
	indexed abi.Arguments
	decode  decodeFunc
}

// Decoder maps raw logs to typed events by their first topic.
type Decoder struct {
	byTopic map[common.Hash]*binding
}

// NewDecoder builds the topic table for every followed event.
func NewDecoder() *Decoder {
	d := &Decoder{byTopic: make(map[common.Hash]*binding)}
	d.bind(fpmmFactoryContract, domain.EventFPMMCreation, func(f *fields) any {
		return &domain.FPMMCreation{
			Creator:                 f.address("creator"),
			FixedProductMarketMaker: f.address("fixedProductMarketMaker"),
			ConditionalTokens:       f.address("conditionalTokens"),
			CollateralToken:         f.address("collateralToken"),
			ConditionIDs:            f.hashes("conditionIds"),
			Fee:                     f.bigint("fee"),
		}
	})
	d.bind(fpmmContract, domain.EventFundingAdded, func(f *fields) any {
		return &domain.FundingAdded{
			Funder:       f.address("funder"),
			AmountsAdded: f.bigints("amountsAdded"),
			SharesMinted: f.bigint("sharesMinted"),
		}
	})
	d.bind(fpmmContract, domain.EventFundingRemoved, func(f *fields) any {
		return &domain.FundingRemoved{
			Funder:                       f.address("funder"),
			AmountsRemoved:               f.bigints("amountsRemoved"),
			CollateralRemovedFromFeePool: f.bigint("collateralRemovedFromFeePool"),
			SharesBurnt:                  f.bigint("sharesBurnt"),
		}
	})
	d.bind(fpmmContract, domain.EventBuy, func(f *fields) any {
		return &domain.Buy{
			Buyer:               f.address("buyer"),
			InvestmentAmount:    f.bigint("investmentAmount"),
			FeeAmount:           f.bigint("feeAmount"),
			OutcomeIndex:        f.int("outcomeIndex"),
			OutcomeTokensBought: f.bigint("outcomeTokensBought"),
		}
	})
	d.bind(fpmmContract, domain.EventSell, func(f *fields) any {
		return &domain.Sell{
			Seller:            f.address("seller"),
			ReturnAmount:      f.bigint("returnAmount"),
			FeeAmount:         f.bigint("feeAmount"),
			OutcomeIndex:      f.int("outcomeIndex"),
			OutcomeTokensSold: f.bigint("outcomeTokensSold"),
		}
	})
	d.bind(fpmmContract, domain.EventPoolShareTransfer, func(f *fields) any {
		return &domain.PoolShareTransfer{
			From:  f.address("from"),
			To:    f.address("to"),
			Value: f.bigint("value"),
		}
	})
	d.bind(conditionalTokensContract, domain.EventConditionPreparation, func(f *fields) any {
		return &domain.ConditionPreparation{
			ConditionID:      f.hash("conditionId"),
			Oracle:           f.address("oracle"),
			QuestionID:       f.hash("questionId"),
			OutcomeSlotCount: f.int("outcomeSlotCount"),
		}
	})
	d.bind(conditionalTokensContract, domain.EventConditionResolution, func(f *fields) any {
		return &domain.ConditionResolution{
			ConditionID:      f.hash("conditionId"),
			Oracle:           f.address("oracle"),
			QuestionID:       f.hash("questionId"),
			OutcomeSlotCount: f.int("outcomeSlotCount"),
			PayoutNumerators: f.bigints("payoutNumerators"),
		}
	})
	d.bind(realitioContract, domain.EventNewQuestion, func(f *fields) any {
		return &domain.NewQuestion{
			QuestionID:  f.hash("question_id"),
			User:        f.address("user"),
			TemplateID:  f.int64("template_id"),
			Question:    f.str("question"),
			ContentHash: f.hash("content_hash"),
			Arbitrator:  f.address("arbitrator"),
			Timeout:     f.int64("timeout"),
			OpeningTs:   f.int64("opening_ts"),
			Nonce:       f.bigint("nonce"),
			Created:     f.int64("created"),
		}
	})
	d.bind(realitioContract, domain.EventNewAnswer, func(f *fields) any {
		return &domain.NewAnswer{
			Answer:       f.hash("answer"),
			QuestionID:   f.hash("question_id"),
			HistoryHash:  f.hash("history_hash"),
			User:         f.address("user"),
			Bond:         f.bigint("bond"),
			Ts:           f.int64("ts"),
			IsCommitment: f.boolean("is_commitment"),
		}
	})
	d.bind(realitioContract, domain.EventAnswerReveal, func(f *fields) any {
		return &domain.AnswerReveal{
			QuestionID: f.hash("question_id"),
			User:       f.address("user"),
			AnswerHash: f.hash("answer_hash"),
			Answer:     f.hash("answer"),
			Nonce:      f.bigint("nonce"),
			Bond:       f.bigint("bond"),
		}
	})
	d.bind(realitioContract, domain.EventArbitrationRequest, func(f *fields) any {
		return &domain.ArbitrationRequest{
			QuestionID: f.hash("question_id"),
			User:       f.address("user"),
		}
	})
	d.bind(realitioContract, domain.EventFinalize, func(f *fields) any {
		return &domain.Finalize{
			QuestionID: f.hash("question_id"),
			Answer:     f.hash("answer"),
		}
	})
	d.bind(scalarAdapterContract, domain.EventQuestionIDAnnouncement, func(f *fields) any {
		return &domain.QuestionIDAnnouncement{
			RealitioQuestionID:  f.hash("realitioQuestionId"),
			ConditionQuestionID: f.hash("conditionQuestionId"),
			Low:                 f.bigint("low"),
			High:                f.bigint("high"),
		}
	})
	listChange := func(f *fields) any {
		return &domain.CurationListChange{
			ListID: f.bigint("listId"),
			Token:  f.address("token"),
		}
	}
	d.bind(tokenRegistryContract, domain.EventAddToken, listChange)
	d.bind(tokenRegistryContract, domain.EventRemoveToken, listChange)
	d.bind(gtcrContract, domain.EventItemStatusChange, func(f *fields) any {
		return &domain.ItemStatusChange{
			ItemID:       f.hash("_itemID"),
			RequestIndex: f.bigint("_requestIndex"),
			RoundIndex:   f.bigint("_roundIndex"),
			Disputed:     f.boolean("_disputed"),
			Resolved:     f.boolean("_resolved"),
		}
	})
	d.bind(uniswapFactoryContract, domain.EventPairCreated, func(f *fields) any {
		return &domain.PairCreated{
			Token0: f.address("token0"),
			Token1: f.address("token1"),
			Pair:   f.address("pair"),
			Index:  f.bigint("allPairsLength"),
		}
	})
	d.bind(uniswapPairContract, domain.EventSync, func(f *fields) any {
		return &domain.Sync{
			Reserve0: f.bigint("reserve0"),
			Reserve1: f.bigint("reserve1"),
		}
	})
	d.bind(stakingFactoryContract, domain.EventDistributionCreated, func(f *fields) any {
		return &domain.DistributionCreated{
			Owner:      f.address("owner"),
			DeployedAt: f.address("deployedAt"),
		}
	})
	d.bind(distributionContract, domain.EventInitialized, func(f *fields) any {
		return &domain.Initialized{
			RewardsTokenAddresses: f.addresses("rewardsTokenAddresses"),
			StakableTokenAddress:  f.address("stakableTokenAddress"),
			RewardsAmounts:        f.bigints("rewardsAmounts"),
			StartingTimestamp:     f.int64("startingTimestamp"),
			EndingTimestamp:       f.int64("endingTimestamp"),
			Locked:                f.boolean("locked"),
			StakingCap:            f.bigint("stakingCap"),
		}
	})
	d.bind(distributionContract, domain.EventCanceled, func(*fields) any { return &domain.Canceled{} })
	d.bind(distributionContract, domain.EventStaked, func(f *fields) any {
		return &domain.Staked{Staker: f.address("staker"), Amount: f.bigint("amount")}
	})
	d.bind(distributionContract, domain.EventWithdrawn, func(f *fields) any {
		return &domain.Withdrawn{Withdrawer: f.address("withdrawer"), Amount: f.bigint("amount")}
	})
	d.bind(distributionContract, domain.EventClaimed, func(f *fields) any {
		return &domain.Claimed{Claimer: f.address("claimer"), Amounts: f.bigints("amounts")}
	})
	d.bind(distributionContract, domain.EventRecovered, func(f *fields) any {
		return &domain.Recovered{Amounts: f.bigints("amounts")}
	})
	d.bind(distributionContract, domain.EventUpdatedRewards, func(f *fields) any {
		return &domain.UpdatedRewards{Amounts: f.bigints("amounts")}
	})
	d.bind(gelatoCoreContract, domain.EventTaskSubmitted, func(f *fields) any {
		var r gelatoReceipt
		f.tuple("taskReceipt", &r)
		return &domain.TaskSubmitted{
			TaskReceiptID:   f.bigint("taskReceiptId"),
			TaskReceiptHash: f.hash("taskReceiptHash"),
			Receipt:         r.toDomain(),
		}
	})
	return d
}

func (d *Decoder) bind(contract abi.ABI, kind domain.EventKind, decode decodeFunc) {
	ev, ok := contract.Events[string(kind)]
	if !ok {
		panic(fmt.Sprintf("chain: abi has no event %s", kind))
	}
	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	d.byTopic[ev.ID] = &binding{kind: kind, event: ev, indexed: indexed, decode: decode}
}

// Topics returns the first topic of every followed event.
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.byTopic))
	for t := range d.byTopic {
		out = append(out, t)
	}
	return out
}

// Decode converts lg into an event. Logs of unknown events return
// domain.ErrUnknownEvent; malformed logs return domain.ErrDecode.
func (d *Decoder) Decode(lg types.Log, blockTimestamp int64) (domain.Event, error) {
	if len(lg.Topics) == 0 {
		return domain.Event{}, fmt.Errorf("%w: anonymous log", domain.ErrUnknownEvent)
	}
	b, ok := d.byTopic[lg.Topics[0]]
	if !ok {
		return domain.Event{}, fmt.Errorf("%w: topic %s", domain.ErrUnknownEvent, lg.Topics[0].Hex())
	}
	if len(lg.Topics)-1 != len(b.indexed) {
		return domain.Event{}, fmt.Errorf("%w: %s has %d topics, want %d",
			domain.ErrDecode, b.kind, len(lg.Topics)-1, len(b.indexed))
	}

	m := make(map[string]any)
	if err := b.event.Inputs.UnpackIntoMap(m, lg.Data); err != nil {
		return domain.Event{}, fmt.Errorf("%w: %s data: %w", domain.ErrDecode, b.kind, err)
	}
	if err := abi.ParseTopicsIntoMap(m, b.indexed, lg.Topics[1:]); err != nil {
		return domain.Event{}, fmt.Errorf("%w: %s topics: %w", domain.ErrDecode, b.kind, err)
	}
	f := &fields{event: string(b.kind), m: m}
	p := b.decode(f)
	if f.err != nil {
		return domain.Event{}, f.err
	}

	return domain.Event{
		Kind:           b.kind,
		Address:        strings.ToLower(lg.Address.Hex()),
		BlockNumber:    lg.BlockNumber,
		BlockTimestamp: blockTimestamp,
		TxHash:         lg.TxHash.Hex(),
		LogIndex:       lg.Index,
		Payload:        p,
	}, nil
}
