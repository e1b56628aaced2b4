package domain

// EntityKind names a table of derived entities.
type EntityKind string

const (
	KindToken                 EntityKind = "Token"
	KindGlobal                EntityKind = "Global"
	KindUniswapPair           EntityKind = "UniswapPair"
	KindMarket                EntityKind = "FixedProductMarketMaker"
	KindQuestion              EntityKind = "Question"
	KindCategory              EntityKind = "Category"
	KindAnswer                EntityKind = "Answer"
	KindScalarQuestionLink    EntityKind = "ScalarQuestionLink"
	KindCondition             EntityKind = "Condition"
	KindAccount               EntityKind = "Account"
	KindPoolMembership        EntityKind = "FpmmPoolMembership"
	KindParticipation         EntityKind = "FpmmParticipation"
	KindTrade                 EntityKind = "FpmmTrade"
	KindLiquidityEvent        EntityKind = "FpmmLiquidity"
	KindCampaign              EntityKind = "LiquidityMiningCampaign"
	KindStakingRewardsFactory EntityKind = "StakingRewardsFactory"
	KindDistribution          EntityKind = "Distribution"
	KindLMDeposit             EntityKind = "LMDeposit"
	KindLMWithdrawal          EntityKind = "LMWithdrawal"
	KindLMClaim               EntityKind = "LMClaim"
	KindLMRecovery            EntityKind = "LMRecovery"
	KindTaskUser              EntityKind = "User"
	KindTaskProvider          EntityKind = "Provider"
	KindTaskReceipt           EntityKind = "TaskReceipt"
	KindTaskReceiptWrapper    EntityKind = "TaskReceiptWrapper"
	KindTask                  EntityKind = "Task"
	KindTaskCondition         EntityKind = "TaskCondition"
	KindTaskAction            EntityKind = "Action"
	KindTaskCycle             EntityKind = "TaskCycle"
)

// AllKinds lists every kind in a stable order.
var AllKinds = []EntityKind{
	KindToken, KindGlobal, KindUniswapPair, KindMarket, KindQuestion,
	KindCategory, KindAnswer, KindScalarQuestionLink, KindCondition,
	KindAccount, KindPoolMembership, KindParticipation, KindTrade,
	KindLiquidityEvent, KindCampaign, KindStakingRewardsFactory,
	KindDistribution, KindLMDeposit, KindLMWithdrawal, KindLMClaim,
	KindLMRecovery, KindTaskUser, KindTaskProvider, KindTaskReceipt,
	KindTaskReceiptWrapper, KindTask, KindTaskCondition, KindTaskAction,
	KindTaskCycle,
}

// Entity is implemented by every stored aggregate and ledger row.
type Entity interface {
	EntityKind() EntityKind
	EntityID() string
}

// Checkpoint is the position of the last event whose effects are committed.
type Checkpoint struct {
	Name        string `json:"name"`
	BlockNumber uint64 `json:"blockNumber"`
	LogIndex    uint   `json:"logIndex"`
	TxHash      string `json:"txHash"`
}

// After reports whether the event position (block, logIndex) is strictly
// later than the checkpoint.
func (c Checkpoint) After(block uint64, logIndex uint) bool {
	if c.TxHash == "" && c.BlockNumber == 0 && c.LogIndex == 0 {
		return true
	}
	if block != c.BlockNumber {
		return block > c.BlockNumber
	}
	return logIndex > c.LogIndex
}
