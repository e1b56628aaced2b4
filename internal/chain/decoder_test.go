package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

var (
	marketAddr = common.HexToAddress("0x9C2f3D1e0F0a4B6E3a2c1d7E8F9A0b1C2D3E4F50")
	buyer      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	txHash     = common.HexToHash("0xabc1")
)

func packLog(t *testing.T, contract abi.ABI, name string, addr common.Address, topics []common.Hash, data ...any) types.Log {
	t.Helper()
	ev := contract.Events[name]
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	require.NoError(t, err)
	return types.Log{
		Address:     addr,
		Topics:      append([]common.Hash{ev.ID}, topics...),
		Data:        packed,
		BlockNumber: 42,
		TxHash:      txHash,
		Index:       7,
	}
}

func TestDecodeBuy(t *testing.T) {
	lg := packLog(t, fpmmContract, "FPMMBuy", marketAddr,
		[]common.Hash{common.BytesToHash(buyer.Bytes()), common.BigToHash(big.NewInt(1))},
		big.NewInt(100), big.NewInt(2), big.NewInt(180))

	ev, err := NewDecoder().Decode(lg, 1_600_000_000)
	require.NoError(t, err)

	assert.Equal(t, domain.EventBuy, ev.Kind)
	assert.Equal(t, strings.ToLower(marketAddr.Hex()), ev.Address)
	assert.Equal(t, uint64(42), ev.BlockNumber)
	assert.Equal(t, int64(1_600_000_000), ev.BlockTimestamp)
	assert.Equal(t, uint(7), ev.LogIndex)
	assert.Equal(t, txHash.Hex(), ev.TxHash)

	p, ok := ev.Payload.(*domain.Buy)
	require.True(t, ok)
	assert.Equal(t, strings.ToLower(buyer.Hex()), p.Buyer)
	assert.Equal(t, 1, p.OutcomeIndex)
	assert.Equal(t, "100", p.InvestmentAmount.String())
	assert.Equal(t, "2", p.FeeAmount.String())
	assert.Equal(t, "180", p.OutcomeTokensBought.String())
}

func TestDecodeNewQuestion(t *testing.T) {
	qid := common.HexToHash("0x" + strings.Repeat("a", 64))
	content := common.HexToHash("0x" + strings.Repeat("b", 64))
	arbitrator := common.HexToAddress("0x4444444444444444444444444444444444444444")
	lg := packLog(t, realitioContract, "LogNewQuestion", marketAddr,
		[]common.Hash{qid, common.BytesToHash(buyer.Bytes()), content},
		big.NewInt(2), "Who wins?␟\"A\",\"B\"␟sports␟en", arbitrator,
		uint32(86400), uint32(1_700_000_000), big.NewInt(0), big.NewInt(1_600_000_000))

	ev, err := NewDecoder().Decode(lg, 1)
	require.NoError(t, err)
	p := ev.Payload.(*domain.NewQuestion)
	assert.Equal(t, "0x"+strings.Repeat("a", 64), p.QuestionID)
	assert.Equal(t, int64(2), p.TemplateID)
	assert.Equal(t, int64(86400), p.Timeout)
	assert.Equal(t, int64(1_700_000_000), p.OpeningTs)
	assert.Equal(t, strings.ToLower(arbitrator.Hex()), p.Arbitrator)
	assert.Contains(t, p.Question, "Who wins?")
}

func TestDecodeConditionResolution(t *testing.T) {
	cid := common.HexToHash("0x" + strings.Repeat("c", 64))
	qid := common.HexToHash("0x" + strings.Repeat("a", 64))
	lg := packLog(t, conditionalTokensContract, "ConditionResolution", marketAddr,
		[]common.Hash{cid, common.BytesToHash(buyer.Bytes()), qid},
		big.NewInt(3), []*big.Int{big.NewInt(1), big.NewInt(0), big.NewInt(1)})

	ev, err := NewDecoder().Decode(lg, 1)
	require.NoError(t, err)
	p := ev.Payload.(*domain.ConditionResolution)
	assert.Equal(t, 3, p.OutcomeSlotCount)
	require.Len(t, p.PayoutNumerators, 3)
	assert.Equal(t, "1", p.PayoutNumerators[2].String())
}

func TestDecodeSync(t *testing.T) {
	reserve := new(big.Int).Lsh(big.NewInt(1), 100)
	lg := packLog(t, uniswapPairContract, "Sync", marketAddr, nil, reserve, big.NewInt(5))

	ev, err := NewDecoder().Decode(lg, 1)
	require.NoError(t, err)
	p := ev.Payload.(*domain.Sync)
	assert.Zero(t, reserve.Cmp(p.Reserve0))
	assert.Equal(t, "5", p.Reserve1.String())
}

func TestDecodeTaskSubmitted(t *testing.T) {
	module := common.HexToAddress("0x5555555555555555555555555555555555555555")
	receipt := gelatoReceipt{
		ID:        big.NewInt(9),
		UserProxy: buyer,
		Provider:  gelatoProvider{Addr: buyer, Module: module},
		Index:     big.NewInt(0),
		Tasks: []gelatoTask{{
			Conditions: []gelatoCondition{{Inst: module, Data: []byte{0xde, 0xad}}},
			Actions: []gelatoAction{
				{Addr: marketAddr, Data: []byte{0x01}, Operation: 1, DataFlow: 2, Value: big.NewInt(3), TermsOkCheck: true},
				{Addr: module, Data: nil, Value: big.NewInt(0)},
			},
			SelfProviderGasLimit:     big.NewInt(21000),
			SelfProviderGasPriceCeil: big.NewInt(0),
		}},
		ExpiryDate:      big.NewInt(0),
		CycleID:         big.NewInt(4),
		SubmissionsLeft: big.NewInt(1),
	}
	receiptHash := common.HexToHash("0x" + strings.Repeat("d", 64))
	lg := packLog(t, gelatoCoreContract, "LogTaskSubmitted", marketAddr,
		[]common.Hash{common.BigToHash(big.NewInt(9)), receiptHash}, receipt)

	ev, err := NewDecoder().Decode(lg, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.EventTaskSubmitted, ev.Kind)
	p := ev.Payload.(*domain.TaskSubmitted)
	assert.Equal(t, "9", p.TaskReceiptID.String())
	assert.Equal(t, receiptHash.Hex(), p.TaskReceiptHash)

	r := p.Receipt
	assert.Equal(t, strings.ToLower(buyer.Hex()), r.UserProxy)
	assert.Equal(t, strings.ToLower(module.Hex()), r.Provider.Module)
	assert.Equal(t, "4", r.CycleID.String())
	require.Len(t, r.Tasks, 1)
	require.Len(t, r.Tasks[0].Conditions, 1)
	assert.Equal(t, "0xdead", r.Tasks[0].Conditions[0].Data)
	require.Len(t, r.Tasks[0].Actions, 2)
	a := r.Tasks[0].Actions[0]
	assert.Equal(t, uint8(1), a.Operation)
	assert.Equal(t, uint8(2), a.DataFlow)
	assert.Equal(t, "3", a.Value.String())
	assert.True(t, a.TermsOkCheck)
	assert.Equal(t, "0x", r.Tasks[0].Actions[1].Data)
	assert.Equal(t, "21000", r.Tasks[0].SelfProviderGasLimit.String())
}

func TestDecodeRejectsMalformedLogs(t *testing.T) {
	d := NewDecoder()

	_, err := d.Decode(types.Log{}, 0)
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)

	_, err = d.Decode(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}, 0)
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)

	lg := packLog(t, fpmmContract, "FPMMBuy", marketAddr,
		[]common.Hash{common.BytesToHash(buyer.Bytes())},
		big.NewInt(100), big.NewInt(2), big.NewInt(180))
	_, err = d.Decode(lg, 0)
	assert.ErrorIs(t, err, domain.ErrDecode, "missing indexed topic")

	lg = packLog(t, uniswapPairContract, "Sync", marketAddr, nil, big.NewInt(1), big.NewInt(2))
	lg.Data = lg.Data[:40]
	_, err = d.Decode(lg, 0)
	assert.ErrorIs(t, err, domain.ErrDecode, "truncated data")
}

func TestTopicsCoverEveryKind(t *testing.T) {
	d := NewDecoder()
	assert.Len(t, d.Topics(), 28)
}
