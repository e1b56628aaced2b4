package indexer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/omenindexer/internal/domain"
)

// handleTaskSubmitted records a Gelato task receipt with its user, provider,
// tasks, conditions and actions, and files it under its cycle.
func (d *Dispatcher) handleTaskSubmitted(s *Session, ev domain.Event) error {
	p, err := payload[domain.TaskSubmitted](ev)
	if err != nil {
		return err
	}
	if p.TaskReceiptID == nil {
		return fmt.Errorf("%w: task receipt without id", domain.ErrDecode)
	}
	r := p.Receipt

	user, ok, err := Load[domain.TaskUser](s, r.UserProxy)
	if err != nil {
		return err
	}
	if !ok {
		user = &domain.TaskUser{ID: r.UserProxy, Address: r.UserProxy, SignUpDate: ev.BlockTimestamp}
		s.Save(user)
	}

	provider, ok, err := Load[domain.TaskProvider](s, r.Provider.Addr)
	if err != nil {
		return err
	}
	if !ok {
		provider = &domain.TaskProvider{ID: r.Provider.Addr}
	}
	provider.Addr = r.Provider.Addr
	provider.Module = r.Provider.Module
	provider.TaskCount++
	s.Save(provider)

	receiptID := p.TaskReceiptID.String()
	taskIDs := make([]string, 0, len(r.Tasks))
	for i, t := range r.Tasks {
		taskID := fmt.Sprintf("%s.%d", receiptID, i)
		task := &domain.Task{
			ID:                       taskID,
			Conditions:               make([]string, 0, len(t.Conditions)),
			Actions:                  make([]string, 0, len(t.Actions)),
			SelfProviderGasLimit:     t.SelfProviderGasLimit,
			SelfProviderGasPriceCeil: t.SelfProviderGasPriceCeil,
		}
		// Conditions and actions share the taskId.index id space but live
		// in separate tables.
		for j, a := range t.Actions {
			id := fmt.Sprintf("%s.%d", taskID, j)
			s.Save(&domain.TaskAction{
				ID:           id,
				Addr:         a.Addr,
				Data:         a.Data,
				Operation:    int(a.Operation),
				DataFlow:     int(a.DataFlow),
				Value:        a.Value,
				TermsOkCheck: a.TermsOkCheck,
			})
			task.Actions = append(task.Actions, id)
		}
		for j, c := range t.Conditions {
			id := fmt.Sprintf("%s.%d", taskID, j)
			s.Save(&domain.TaskCondition{ID: id, Inst: c.Inst, Data: c.Data})
			task.Conditions = append(task.Conditions, id)
		}
		s.Save(task)
		taskIDs = append(taskIDs, taskID)
	}

	s.Save(&domain.TaskReceipt{
		ID:              receiptID,
		UserProxy:       user.Address,
		Provider:        provider.ID,
		Index:           r.Index,
		Tasks:           taskIDs,
		ExpiryDate:      r.ExpiryDate,
		CycleID:         r.CycleID,
		SubmissionsLeft: r.SubmissionsLeft,
	})

	executor, err := d.reader.ExecutorByProvider(s.ctx, ev.Address, provider.Addr, ev.BlockNumber)
	if err != nil {
		if !errors.Is(err, domain.ErrReverted) {
			return err
		}
		d.logger.Warn("could not read executor of provider",
			slog.String("provider", provider.Addr),
			slog.String("error", err.Error()),
		)
	}
	wrapper := &domain.TaskReceiptWrapper{
		ID:               receiptID,
		User:             user.ID,
		TaskReceipt:      receiptID,
		SubmissionHash:   ev.TxHash,
		Status:           domain.TaskStatusAwaitingExec,
		SubmissionDate:   ev.BlockTimestamp,
		SelectedExecutor: executor,
		SelfProvided:     provider.Addr == user.Address,
	}
	s.Save(wrapper)

	cycleID := "0"
	if r.CycleID != nil {
		cycleID = r.CycleID.String()
	}
	cycle, ok, err := Load[domain.TaskCycle](s, cycleID)
	if err != nil {
		return err
	}
	if !ok {
		cycle = &domain.TaskCycle{ID: cycleID, TaskReceiptWrappers: []string{}}
	}
	cycle.TaskReceiptWrappers = appendUnique(cycle.TaskReceiptWrappers, wrapper.ID)
	s.Save(cycle)
	return nil
}
