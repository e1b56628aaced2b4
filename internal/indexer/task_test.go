package indexer

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

const (
	gelatoCore   = "0x025030bdaa159f281cae63873e68313a703725a5"
	userProxy    = "0x5555555555555555555555555555555555555555"
	taskProvider = "0x6666666666666666666666666666666666666666"
	providerMod  = "0x7777777777777777777777777777777777777777"
	executorAddr = "0x8888888888888888888888888888888888888888"
)

func submission(id int64, provider string, cycle int64) *domain.TaskSubmitted {
	return &domain.TaskSubmitted{
		TaskReceiptID: big.NewInt(id),
		Receipt: domain.SubmittedReceipt{
			ID:        big.NewInt(id),
			UserProxy: userProxy,
			Provider:  domain.SubmittedProvider{Addr: provider, Module: providerMod},
			Index:     big.NewInt(0),
			Tasks: []domain.SubmittedTask{{
				Conditions: []domain.SubmittedCondition{{Inst: providerMod, Data: "0x00"}},
				Actions: []domain.SubmittedAction{
					{Addr: fpmmAddr, Data: "0x01", Operation: 1, Value: big.NewInt(0), TermsOkCheck: true},
					{Addr: fpmmAddr, Data: "0x02", DataFlow: 2, Value: big.NewInt(5)},
				},
				SelfProviderGasLimit:     big.NewInt(0),
				SelfProviderGasPriceCeil: big.NewInt(0),
			}},
			ExpiryDate:      big.NewInt(0),
			CycleID:         big.NewInt(cycle),
			SubmissionsLeft: big.NewInt(1),
		},
	}
}

func TestTaskSubmittedBuildsReceipt(t *testing.T) {
	h := newHarness(t, testConfig())
	h.reader.executor[taskProvider] = executorAddr

	res := h.emit(domain.EventTaskSubmitted, gelatoCore, created, submission(7, taskProvider, 3))
	require.False(t, res.Skipped)

	user := get[domain.TaskUser](h, userProxy)
	assert.Equal(t, created, user.SignUpDate)

	p := get[domain.TaskProvider](h, taskProvider)
	assert.Equal(t, int64(1), p.TaskCount)
	assert.Equal(t, providerMod, p.Module)

	r := get[domain.TaskReceipt](h, "7")
	assert.Equal(t, userProxy, r.UserProxy)
	assert.Equal(t, taskProvider, r.Provider)
	assert.Equal(t, []string{"7.0"}, r.Tasks)

	task := get[domain.Task](h, "7.0")
	assert.Equal(t, []string{"7.0.0"}, task.Conditions)
	assert.Equal(t, []string{"7.0.0", "7.0.1"}, task.Actions)
	assert.Equal(t, "0x00", get[domain.TaskCondition](h, "7.0.0").Data)
	a := get[domain.TaskAction](h, "7.0.1")
	assert.Equal(t, 2, a.DataFlow)
	assert.Equal(t, "5", a.Value.String())

	w := get[domain.TaskReceiptWrapper](h, "7")
	assert.Equal(t, domain.TaskStatusAwaitingExec, w.Status)
	assert.Equal(t, executorAddr, w.SelectedExecutor)
	assert.Equal(t, h.lastTx(), w.SubmissionHash)
	assert.False(t, w.SelfProvided)

	assert.Equal(t, []string{"7"}, get[domain.TaskCycle](h, "3").TaskReceiptWrappers)
}

func TestTaskSubmittedAccumulatesPerProviderAndCycle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.emit(domain.EventTaskSubmitted, gelatoCore, created, submission(1, userProxy, 3))
	h.emit(domain.EventTaskSubmitted, gelatoCore, created+60, submission(2, userProxy, 3))

	assert.Equal(t, int64(2), get[domain.TaskProvider](h, userProxy).TaskCount)
	assert.Equal(t, created, get[domain.TaskUser](h, userProxy).SignUpDate, "sign-up date is kept")
	assert.Equal(t, []string{"1", "2"}, get[domain.TaskCycle](h, "3").TaskReceiptWrappers)

	w := get[domain.TaskReceiptWrapper](h, "2")
	assert.True(t, w.SelfProvided)
	assert.Empty(t, w.SelectedExecutor, "a reverting executor lookup leaves it unset")
}
