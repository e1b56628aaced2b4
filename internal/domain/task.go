package domain

import "math/big"

// TaskStatusAwaitingExec is the status of a freshly submitted task receipt.
const TaskStatusAwaitingExec = "awaitingExec"

// TaskUser is a Gelato user proxy, created on its first submission.
type TaskUser struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	SignUpDate int64  `json:"signUpDate"`
}

func (u *TaskUser) EntityKind() EntityKind { return KindTaskUser }
func (u *TaskUser) EntityID() string       { return u.ID }

// TaskProvider pays for the tasks it backs and counts them.
type TaskProvider struct {
	ID        string `json:"id"`
	Addr      string `json:"addr"`
	Module    string `json:"module"`
	TaskCount int64  `json:"taskCount"`
}

func (p *TaskProvider) EntityKind() EntityKind { return KindTaskProvider }
func (p *TaskProvider) EntityID() string       { return p.ID }

// TaskReceipt mirrors the receipt emitted on submission. Tasks holds Task ids.
type TaskReceipt struct {
	ID              string   `json:"id"`
	UserProxy       string   `json:"userProxy"`
	Provider        string   `json:"provider"`
	Index           *big.Int `json:"index"`
	Tasks           []string `json:"tasks"`
	ExpiryDate      *big.Int `json:"expiryDate"`
	CycleID         *big.Int `json:"cycleId"`
	SubmissionsLeft *big.Int `json:"submissionsLeft"`
}

func (r *TaskReceipt) EntityKind() EntityKind { return KindTaskReceipt }
func (r *TaskReceipt) EntityID() string       { return r.ID }

// Task is one task of a receipt, keyed receiptId.taskIndex.
type Task struct {
	ID                       string   `json:"id"`
	Conditions               []string `json:"conditions"`
	Actions                  []string `json:"actions"`
	SelfProviderGasLimit     *big.Int `json:"selfProviderGasLimit"`
	SelfProviderGasPriceCeil *big.Int `json:"selfProviderGasPriceCeil"`
}

func (t *Task) EntityKind() EntityKind { return KindTask }
func (t *Task) EntityID() string       { return t.ID }

type TaskCondition struct {
	ID   string `json:"id"`
	Inst string `json:"inst"`
	Data string `json:"data"`
}

func (c *TaskCondition) EntityKind() EntityKind { return KindTaskCondition }
func (c *TaskCondition) EntityID() string       { return c.ID }

type TaskAction struct {
	ID           string   `json:"id"`
	Addr         string   `json:"addr"`
	Data         string   `json:"data"`
	Operation    int      `json:"operation"`
	DataFlow     int      `json:"dataFlow"`
	Value        *big.Int `json:"value"`
	TermsOkCheck bool     `json:"termsOkCheck"`
}

func (a *TaskAction) EntityKind() EntityKind { return KindTaskAction }
func (a *TaskAction) EntityID() string       { return a.ID }

// TaskReceiptWrapper tracks a receipt's lifecycle after submission.
type TaskReceiptWrapper struct {
	ID               string `json:"id"`
	User             string `json:"user"`
	TaskReceipt      string `json:"taskReceipt"`
	SubmissionHash   string `json:"submissionHash"`
	Status           string `json:"status"`
	SubmissionDate   int64  `json:"submissionDate"`
	SelectedExecutor string `json:"selectedExecutor"`
	SelfProvided     bool   `json:"selfProvided"`
}

func (w *TaskReceiptWrapper) EntityKind() EntityKind { return KindTaskReceiptWrapper }
func (w *TaskReceiptWrapper) EntityID() string       { return w.ID }

// TaskCycle groups the receipt wrappers submitted under one cycle id.
type TaskCycle struct {
	ID                  string   `json:"id"`
	TaskReceiptWrappers []string `json:"taskReceiptWrappers"`
}

func (c *TaskCycle) EntityKind() EntityKind { return KindTaskCycle }
func (c *TaskCycle) EntityID() string       { return c.ID }
