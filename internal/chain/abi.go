package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// Event and view-function fragments of the contracts the indexer follows.
const (
	fpmmFactoryABI = `[
	{"type":"event","name":"FixedProductMarketMakerCreation","inputs":[
		{"name":"creator","type":"address","indexed":true},
		{"name":"fixedProductMarketMaker","type":"address","indexed":false},
		{"name":"conditionalTokens","type":"address","indexed":true},
		{"name":"collateralToken","type":"address","indexed":true},
		{"name":"conditionIds","type":"bytes32[]","indexed":false},
		{"name":"fee","type":"uint256","indexed":false}]}
]`

	fpmmABI = `[
	{"type":"event","name":"FPMMFundingAdded","inputs":[
		{"name":"funder","type":"address","indexed":true},
		{"name":"amountsAdded","type":"uint256[]","indexed":false},
		{"name":"sharesMinted","type":"uint256","indexed":false}]},
	{"type":"event","name":"FPMMFundingRemoved","inputs":[
		{"name":"funder","type":"address","indexed":true},
		{"name":"amountsRemoved","type":"uint256[]","indexed":false},
		{"name":"collateralRemovedFromFeePool","type":"uint256","indexed":false},
		{"name":"sharesBurnt","type":"uint256","indexed":false}]},
	{"type":"event","name":"FPMMBuy","inputs":[
		{"name":"buyer","type":"address","indexed":true},
		{"name":"investmentAmount","type":"uint256","indexed":false},
		{"name":"feeAmount","type":"uint256","indexed":false},
		{"name":"outcomeIndex","type":"uint256","indexed":true},
		{"name":"outcomeTokensBought","type":"uint256","indexed":false}]},
	{"type":"event","name":"FPMMSell","inputs":[
		{"name":"seller","type":"address","indexed":true},
		{"name":"returnAmount","type":"uint256","indexed":false},
		{"name":"feeAmount","type":"uint256","indexed":false},
		{"name":"outcomeIndex","type":"uint256","indexed":true},
		{"name":"outcomeTokensSold","type":"uint256","indexed":false}]},
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]}
]`

	conditionalTokensABI = `[
	{"type":"event","name":"ConditionPreparation","inputs":[
		{"name":"conditionId","type":"bytes32","indexed":true},
		{"name":"oracle","type":"address","indexed":true},
		{"name":"questionId","type":"bytes32","indexed":true},
		{"name":"outcomeSlotCount","type":"uint256","indexed":false}]},
	{"type":"event","name":"ConditionResolution","inputs":[
		{"name":"conditionId","type":"bytes32","indexed":true},
		{"name":"oracle","type":"address","indexed":true},
		{"name":"questionId","type":"bytes32","indexed":true},
		{"name":"outcomeSlotCount","type":"uint256","indexed":false},
		{"name":"payoutNumerators","type":"uint256[]","indexed":false}]}
]`

	realitioABI = `[
	{"type":"event","name":"LogNewQuestion","inputs":[
		{"name":"question_id","type":"bytes32","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"template_id","type":"uint256","indexed":false},
		{"name":"question","type":"string","indexed":false},
		{"name":"content_hash","type":"bytes32","indexed":true},
		{"name":"arbitrator","type":"address","indexed":false},
		{"name":"timeout","type":"uint32","indexed":false},
		{"name":"opening_ts","type":"uint32","indexed":false},
		{"name":"nonce","type":"uint256","indexed":false},
		{"name":"created","type":"uint256","indexed":false}]},
	{"type":"event","name":"LogNewAnswer","inputs":[
		{"name":"answer","type":"bytes32","indexed":false},
		{"name":"question_id","type":"bytes32","indexed":true},
		{"name":"history_hash","type":"bytes32","indexed":false},
		{"name":"user","type":"address","indexed":true},
		{"name":"bond","type":"uint256","indexed":false},
		{"name":"ts","type":"uint256","indexed":false},
		{"name":"is_commitment","type":"bool","indexed":false}]},
	{"type":"event","name":"LogAnswerReveal","inputs":[
		{"name":"question_id","type":"bytes32","indexed":true},
		{"name":"user","type":"address","indexed":true},
		{"name":"answer_hash","type":"bytes32","indexed":true},
		{"name":"answer","type":"bytes32","indexed":false},
		{"name":"nonce","type":"uint256","indexed":false},
		{"name":"bond","type":"uint256","indexed":false}]},
	{"type":"event","name":"LogNotifyOfArbitrationRequest","inputs":[
		{"name":"question_id","type":"bytes32","indexed":true},
		{"name":"user","type":"address","indexed":true}]},
	{"type":"event","name":"LogFinalize","inputs":[
		{"name":"question_id","type":"bytes32","indexed":true},
		{"name":"answer","type":"bytes32","indexed":true}]}
]`

	scalarAdapterABI = `[
	{"type":"event","name":"QuestionIdAnnouncement","inputs":[
		{"name":"realitioQuestionId","type":"bytes32","indexed":true},
		{"name":"conditionQuestionId","type":"bytes32","indexed":true},
		{"name":"low","type":"uint256","indexed":false},
		{"name":"high","type":"uint256","indexed":false}]}
]`

	tokenRegistryABI = `[
	{"type":"event","name":"AddToken","inputs":[
		{"name":"listId","type":"uint256","indexed":false},
		{"name":"token","type":"address","indexed":false}]},
	{"type":"event","name":"RemoveToken","inputs":[
		{"name":"listId","type":"uint256","indexed":false},
		{"name":"token","type":"address","indexed":false}]}
]`

	gtcrABI = `[
	{"type":"event","name":"ItemStatusChange","inputs":[
		{"name":"_itemID","type":"bytes32","indexed":true},
		{"name":"_requestIndex","type":"uint256","indexed":true},
		{"name":"_roundIndex","type":"uint256","indexed":true},
		{"name":"_disputed","type":"bool","indexed":false},
		{"name":"_resolved","type":"bool","indexed":false}]},
	{"type":"function","name":"getItemInfo","stateMutability":"view",
		"inputs":[{"name":"_itemID","type":"bytes32"}],
		"outputs":[{"name":"data","type":"bytes"},{"name":"status","type":"uint8"},{"name":"numberOfRequests","type":"uint256"}]}
]`

	uniswapFactoryABI = `[
	{"type":"event","name":"PairCreated","inputs":[
		{"name":"token0","type":"address","indexed":true},
		{"name":"token1","type":"address","indexed":true},
		{"name":"pair","type":"address","indexed":false},
		{"name":"allPairsLength","type":"uint256","indexed":false}]},
	{"type":"function","name":"getPair","stateMutability":"view",
		"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],
		"outputs":[{"name":"pair","type":"address"}]}
]`

	uniswapPairABI = `[
	{"type":"event","name":"Sync","inputs":[
		{"name":"reserve0","type":"uint112","indexed":false},
		{"name":"reserve1","type":"uint112","indexed":false}]}
]`

	stakingFactoryABI = `[
	{"type":"event","name":"DistributionCreated","inputs":[
		{"name":"owner","type":"address","indexed":false},
		{"name":"deployedAt","type":"address","indexed":false}]}
]`

	distributionABI = `[
	{"type":"event","name":"Initialized","inputs":[
		{"name":"rewardsTokenAddresses","type":"address[]","indexed":false},
		{"name":"stakableTokenAddress","type":"address","indexed":false},
		{"name":"rewardsAmounts","type":"uint256[]","indexed":false},
		{"name":"startingTimestamp","type":"uint64","indexed":false},
		{"name":"endingTimestamp","type":"uint64","indexed":false},
		{"name":"locked","type":"bool","indexed":false},
		{"name":"stakingCap","type":"uint256","indexed":false}]},
	{"type":"event","name":"Canceled","inputs":[]},
	{"type":"event","name":"Staked","inputs":[
		{"name":"staker","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Withdrawn","inputs":[
		{"name":"withdrawer","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Claimed","inputs":[
		{"name":"claimer","type":"address","indexed":true},
		{"name":"amounts","type":"uint256[]","indexed":false}]},
	{"type":"event","name":"Recovered","inputs":[
		{"name":"amounts","type":"uint256[]","indexed":false}]},
	{"type":"event","name":"UpdatedRewards","inputs":[
		{"name":"amounts","type":"uint256[]","indexed":false}]}
]`

	gelatoCoreABI = `[
	{"type":"event","name":"LogTaskSubmitted","inputs":[
		{"name":"taskReceiptId","type":"uint256","indexed":true},
		{"name":"taskReceiptHash","type":"bytes32","indexed":true},
		{"name":"taskReceipt","type":"tuple","indexed":false,"components":[
			{"name":"id","type":"uint256"},
			{"name":"userProxy","type":"address"},
			{"name":"provider","type":"tuple","components":[
				{"name":"addr","type":"address"},
				{"name":"module","type":"address"}]},
			{"name":"index","type":"uint256"},
			{"name":"tasks","type":"tuple[]","components":[
				{"name":"conditions","type":"tuple[]","components":[
					{"name":"inst","type":"address"},
					{"name":"data","type":"bytes"}]},
				{"name":"actions","type":"tuple[]","components":[
					{"name":"addr","type":"address"},
					{"name":"data","type":"bytes"},
					{"name":"operation","type":"uint8"},
					{"name":"dataFlow","type":"uint8"},
					{"name":"value","type":"uint256"},
					{"name":"termsOkCheck","type":"bool"}]},
				{"name":"selfProviderGasLimit","type":"uint256"},
				{"name":"selfProviderGasPriceCeil","type":"uint256"}]},
			{"name":"expiryDate","type":"uint256"},
			{"name":"cycleId","type":"uint256"},
			{"name":"submissionsLeft","type":"uint256"}]}]},
	{"type":"function","name":"executorByProvider","stateMutability":"view",
		"inputs":[{"name":"_provider","type":"address"}],
		"outputs":[{"name":"","type":"address"}]}
]`

	erc20ABI = `[
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`
)

var (
	fpmmFactoryContract       = mustParse("fpmm factory", fpmmFactoryABI)
	fpmmContract              = mustParse("fpmm", fpmmABI)
	conditionalTokensContract = mustParse("conditional tokens", conditionalTokensABI)
	realitioContract          = mustParse("realitio", realitioABI)
	scalarAdapterContract     = mustParse("scalar adapter", scalarAdapterABI)
	tokenRegistryContract     = mustParse("token registry", tokenRegistryABI)
	gtcrContract              = mustParse("gtcr", gtcrABI)
	uniswapFactoryContract    = mustParse("uniswap factory", uniswapFactoryABI)
	uniswapPairContract       = mustParse("uniswap pair", uniswapPairABI)
	stakingFactoryContract    = mustParse("staking factory", stakingFactoryABI)
	distributionContract      = mustParse("distribution", distributionABI)
	gelatoCoreContract        = mustParse("gelato core", gelatoCoreABI)
	erc20Contract             = mustParse("erc20", erc20ABI)
)

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parse %s abi: %v", name, err))
	}
	return parsed
}

// Go mirrors of the Gelato receipt tuple. Field order follows the ABI
// components.
type gelatoReceipt struct {
	ID              *big.Int `abi:"id"`
	UserProxy       common.Address
	Provider        gelatoProvider
	Index           *big.Int
	Tasks           []gelatoTask
	ExpiryDate      *big.Int
	CycleID         *big.Int `abi:"cycleId"`
	SubmissionsLeft *big.Int
}

type gelatoProvider struct {
	Addr   common.Address
	Module common.Address
}

type gelatoTask struct {
	Conditions               []gelatoCondition
	Actions                  []gelatoAction
	SelfProviderGasLimit     *big.Int
	SelfProviderGasPriceCeil *big.Int
}

type gelatoCondition struct {
	Inst common.Address
	Data []byte
}

type gelatoAction struct {
	Addr         common.Address
	Data         []byte
	Operation    uint8
	DataFlow     uint8
	Value        *big.Int
	TermsOkCheck bool
}

func (r gelatoReceipt) toDomain() domain.SubmittedReceipt {
	tasks := make([]domain.SubmittedTask, len(r.Tasks))
	for i, t := range r.Tasks {
		conds := make([]domain.SubmittedCondition, len(t.Conditions))
		for j, c := range t.Conditions {
			conds[j] = domain.SubmittedCondition{Inst: lowerHex(c.Inst), Data: hexutil.Encode(c.Data)}
		}
		actions := make([]domain.SubmittedAction, len(t.Actions))
		for j, a := range t.Actions {
			actions[j] = domain.SubmittedAction{
				Addr:         lowerHex(a.Addr),
				Data:         hexutil.Encode(a.Data),
				Operation:    a.Operation,
				DataFlow:     a.DataFlow,
				Value:        a.Value,
				TermsOkCheck: a.TermsOkCheck,
			}
		}
		tasks[i] = domain.SubmittedTask{
			Conditions:               conds,
			Actions:                  actions,
			SelfProviderGasLimit:     t.SelfProviderGasLimit,
			SelfProviderGasPriceCeil: t.SelfProviderGasPriceCeil,
		}
	}
	return domain.SubmittedReceipt{
		ID:        r.ID,
		UserProxy: lowerHex(r.UserProxy),
		Provider: domain.SubmittedProvider{
			Addr:   lowerHex(r.Provider.Addr),
			Module: lowerHex(r.Provider.Module),
		},
		Index:           r.Index,
		Tasks:           tasks,
		ExpiryDate:      r.ExpiryDate,
		CycleID:         r.CycleID,
		SubmissionsLeft: r.SubmissionsLeft,
	}
}
