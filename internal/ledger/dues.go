package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paisa/internal/core"
	"paisa/internal/store"
)

// DuesStateMachine drives an informal IOU through its settlement lifecycle:
//
//	pending -> completed | partially_paid | payment_scheduled | rejected
//
// partially_paid may transition again; completed and rejected are terminal,
// except that completed (and a partial payment) can be undone one level. The
// due itself never touches a balance; only the repayment transactions it
// generates through the recorder do.
type DuesStateMachine struct {
	recorder *Recorder
	txs      store.TransactionStore
	now      func() time.Time
}

func NewDuesStateMachine(recorder *Recorder, txs store.TransactionStore) *DuesStateMachine {
	return &DuesStateMachine{recorder: recorder, txs: txs, now: time.Now}
}

// Create records a new due in the pending state. remaining_balance starts
// equal to the amount; no ledger delta is applied.
func (d *DuesStateMachine) Create(ctx context.Context, due core.Transaction) (core.Transaction, error) {
	if strings.TrimSpace(due.Counterparty) == "" {
		return core.Transaction{}, core.ErrEmptyCounterparty
	}
	if due.RepaymentDate.IsZero() {
		return core.Transaction{}, core.ErrInvalidDate
	}
	due.Status = core.StatusPending
	due.PreviousStatus = ""
	due.RemainingBalance = due.Amount
	due.ReferenceKind = core.RefDue
	due.ReferenceID = ""
	due.LastRepaymentID = ""

	created, err := d.recorder.Add(ctx, due)
	if err != nil {
		return core.Transaction{}, err
	}
	return created, nil
}

// Complete settles the outstanding remainder in one repayment and marks the
// due completed.
func (d *DuesStateMachine) Complete(ctx context.Context, dueID, sourceID string) (core.Transaction, error) {
	due, err := d.loadOpen(ctx, dueID)
	if err != nil {
		return core.Transaction{}, err
	}
	return d.settle(ctx, due, due.RemainingBalance, sourceID, core.StatusCompleted, "due completed")
}

// PartialPay settles part of the due. The amount must be strictly between
// zero and the remaining balance; paying it off entirely goes through
// Complete.
func (d *DuesStateMachine) PartialPay(ctx context.Context, dueID string, amount decimal.Decimal, sourceID string) (core.Transaction, error) {
	due, err := d.loadOpen(ctx, dueID)
	if err != nil {
		return core.Transaction{}, err
	}
	if !amount.IsPositive() || amount.GreaterThanOrEqual(due.RemainingBalance) {
		return core.Transaction{}, fmt.Errorf("partial payment of %s against remaining %s: %w",
			amount, due.RemainingBalance, core.ErrInvalidAmount)
	}
	return d.settle(ctx, due, amount, sourceID, core.StatusPartiallyPaid, "partial payment recorded")
}

// Reschedule moves the repayment target date, recording the reason.
func (d *DuesStateMachine) Reschedule(ctx context.Context, dueID, reason string, newDate time.Time) (core.Transaction, error) {
	due, err := d.loadOpen(ctx, dueID)
	if err != nil {
		return core.Transaction{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return core.Transaction{}, core.ErrEmptyReason
	}
	if newDate.IsZero() || !newDate.After(d.now()) {
		return core.Transaction{}, fmt.Errorf("reschedule date %s is not in the future: %w", newDate, core.ErrInvalidDate)
	}

	due.PreviousStatus = due.Status
	due.Status = core.StatusPaymentScheduled
	// Rescheduling generates no repayment, so it must not stay undoable
	// through an earlier settlement's link.
	due.LastRepaymentID = ""
	due.RescheduleReason = reason
	due.RepaymentDate = newDate.UTC()
	due.AppendAudit("repayment rescheduled: "+reason, d.now())
	if err := d.txs.UpdateTransaction(ctx, due); err != nil {
		return core.Transaction{}, fmt.Errorf("update due: %w", err)
	}
	return due, nil
}

// Reject marks the due rejected. Dues carry no ledger effect, so nothing is
// reversed.
func (d *DuesStateMachine) Reject(ctx context.Context, dueID string) (core.Transaction, error) {
	due, err := d.loadOpen(ctx, dueID)
	if err != nil {
		return core.Transaction{}, err
	}
	due.PreviousStatus = due.Status
	due.Status = core.StatusRejected
	// Rejection is terminal; drop any settlement link so the due cannot be
	// revived through Undo.
	due.LastRepaymentID = ""
	due.AppendAudit("due rejected", d.now())
	if err := d.txs.UpdateTransaction(ctx, due); err != nil {
		return core.Transaction{}, fmt.Errorf("update due: %w", err)
	}
	return due, nil
}

// Undo reverts the most recent settlement: it deletes the repayment the due
// explicitly links to (reversing its ledger effect), restores the previous
// status and resets the remaining balance to the original amount. Undo is
// single-level; with no linked repayment there is no prior state to restore.
func (d *DuesStateMachine) Undo(ctx context.Context, dueID string) (core.Transaction, error) {
	due, err := d.load(ctx, dueID)
	if err != nil {
		return core.Transaction{}, err
	}
	if due.PreviousStatus == "" || due.LastRepaymentID == "" {
		return core.Transaction{}, core.ErrNothingToUndo
	}

	if err := d.recorder.Delete(ctx, due.LastRepaymentID); err != nil {
		return core.Transaction{}, fmt.Errorf("remove repayment %s: %w", due.LastRepaymentID, err)
	}

	due.Status = due.PreviousStatus
	due.PreviousStatus = ""
	due.RemainingBalance = due.Amount
	due.LastRepaymentID = ""
	due.AppendAudit("settlement undone", d.now())
	if err := d.txs.UpdateTransaction(ctx, due); err != nil {
		return core.Transaction{}, fmt.Errorf("update due: %w", err)
	}

	slog.InfoContext(ctx, "Due settlement undone", "due_id", dueID, "status", due.Status)
	return due, nil
}

// Delete removes a due that has not entered settlement yet.
func (d *DuesStateMachine) Delete(ctx context.Context, dueID string) error {
	due, err := d.load(ctx, dueID)
	if err != nil {
		return err
	}
	if due.Status != "" && due.Status != core.StatusPending {
		return fmt.Errorf("delete due in state %s: %w", due.Status, core.ErrInvalidStateTransition)
	}
	return d.recorder.Delete(ctx, dueID)
}

// settle generates the repayment transaction and advances the due. The
// repayment carries the due's own kind, so settling an expense due debits the
// paying source and settling an income due credits it, through the ordinary
// decision table.
func (d *DuesStateMachine) settle(ctx context.Context, due core.Transaction, amount decimal.Decimal, sourceID string, next core.DueStatus, audit string) (core.Transaction, error) {
	if strings.TrimSpace(sourceID) == "" {
		return core.Transaction{}, core.ErrEmptySource
	}

	repayment := core.Transaction{
		Kind:            due.Kind,
		Amount:          amount,
		Category:        due.Category,
		DisplaySourceID: sourceID,
		Description:     repaymentDescription(due),
		ReferenceKind:   core.RefDueRepayment,
		ReferenceID:     due.ID,
	}
	recorded, err := d.recorder.Add(ctx, repayment)
	if err != nil {
		return core.Transaction{}, err
	}

	due.PreviousStatus = due.Status
	due.Status = next
	due.RemainingBalance = due.RemainingBalance.Sub(amount)
	due.LastRepaymentID = recorded.ID
	due.AppendAudit(audit, d.now())
	if err := d.txs.UpdateTransaction(ctx, due); err != nil {
		// The repayment committed but the due did not advance; take the
		// repayment back out so the pair stays consistent.
		if cerr := d.recorder.Delete(ctx, recorded.ID); cerr != nil {
			return core.Transaction{}, fmt.Errorf("%w: orphaned repayment %s for due %s: %v",
				core.ErrLedgerInconsistency, recorded.ID, due.ID, cerr)
		}
		return core.Transaction{}, fmt.Errorf("update due: %w", err)
	}

	slog.InfoContext(ctx, "Due settled",
		"due_id", due.ID,
		"repayment_id", recorded.ID,
		"amount", amount.String(),
		"status", due.Status,
		"remaining", due.RemainingBalance.String())
	return due, nil
}

func (d *DuesStateMachine) load(ctx context.Context, dueID string) (core.Transaction, error) {
	due, err := d.txs.GetTransaction(ctx, dueID)
	if err != nil {
		return core.Transaction{}, err
	}
	if !due.IsDue() {
		return core.Transaction{}, fmt.Errorf("transaction %s is not a due: %w", dueID, core.ErrInvalidStateTransition)
	}
	return due, nil
}

// loadOpen loads a due that can still be settled.
func (d *DuesStateMachine) loadOpen(ctx context.Context, dueID string) (core.Transaction, error) {
	due, err := d.load(ctx, dueID)
	if err != nil {
		return core.Transaction{}, err
	}
	if due.Status.Terminal() {
		return core.Transaction{}, fmt.Errorf("due %s is %s: %w", dueID, due.Status, core.ErrInvalidStateTransition)
	}
	return due, nil
}

func repaymentDescription(due core.Transaction) string {
	if due.Counterparty == "" {
		return "due repayment"
	}
	return "repayment: " + due.Counterparty
}
