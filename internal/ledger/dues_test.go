package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"paisa/internal/core"
	"paisa/internal/store"
	"paisa/internal/store/memory"
)

type duesEnv struct {
	store    *memory.Store
	recorder *Recorder
	dues     *DuesStateMachine
}

func newDuesEnv() duesEnv {
	s := memory.New()
	l := NewLedger(s)
	rec := NewRecorder(l, s)
	return duesEnv{store: s, recorder: rec, dues: NewDuesStateMachine(rec, s)}
}

func (e duesEnv) newDue(t *testing.T, kind core.TransactionKind, amount, sourceID string) core.Transaction {
	t.Helper()
	due, err := e.dues.Create(context.Background(), core.Transaction{
		Kind:          kind,
		Amount:        dec(amount),
		Category:      "Dues",
		SourceID:      sourceID,
		Counterparty:  "Ravi",
		RepaymentDate: time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create due: %v", err)
	}
	return due
}

func repaymentsOf(t *testing.T, s *memory.Store, dueID string) []core.Transaction {
	t.Helper()
	txs, err := s.QueryTransactions(context.Background(), store.TransactionFilter{
		ReferenceKind: core.RefDueRepayment,
		ReferenceID:   dueID,
	})
	if err != nil {
		t.Fatalf("query repayments: %v", err)
	}
	return txs
}

func TestCreateDueHasNoLedgerEffect(t *testing.T) {
	env := newDuesEnv()
	id := newBank(t, env.store, "A", "1000")

	due := env.newDue(t, core.Expense, "800", id)
	if got := balanceOf(t, env.store, id); !got.Equal(dec("1000")) {
		t.Fatalf("due creation must not move money, balance %s", got)
	}
	if due.Status != core.StatusPending {
		t.Fatalf("status = %s, want pending", due.Status)
	}
	if !due.RemainingBalance.Equal(dec("800")) {
		t.Fatalf("remaining = %s, want the full amount", due.RemainingBalance)
	}
	if !due.IsDue() {
		t.Fatal("created record must be marked as a due")
	}
}

func TestCreateDueValidation(t *testing.T) {
	env := newDuesEnv()
	id := newBank(t, env.store, "A", "1000")

	_, err := env.dues.Create(context.Background(), core.Transaction{
		Kind: core.Expense, Amount: dec("10"), SourceID: id,
		RepaymentDate: time.Now().AddDate(0, 1, 0),
	})
	if !errors.Is(err, core.ErrEmptyCounterparty) {
		t.Fatalf("expected ErrEmptyCounterparty, got %v", err)
	}
	_, err = env.dues.Create(context.Background(), core.Transaction{
		Kind: core.Expense, Amount: dec("10"), SourceID: id, Counterparty: "Ravi",
	})
	if !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestPartialPayBounds(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "5000")
	due := env.newDue(t, core.Expense, "1000", id)

	for _, amt := range []string{"1000", "1200", "0", "-5"} {
		if _, err := env.dues.PartialPay(ctx, due.ID, dec(amt), id); !errors.Is(err, core.ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amt, err)
		}
	}
	if got := balanceOf(t, env.store, id); !got.Equal(dec("5000")) {
		t.Fatalf("rejected payments must not move money, balance %s", got)
	}
}

func TestPartialPayAdvancesDue(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")
	due := env.newDue(t, core.Expense, "800", id)

	after, err := env.dues.PartialPay(ctx, due.ID, dec("300"), id)
	if err != nil {
		t.Fatalf("partial pay: %v", err)
	}
	if after.Status != core.StatusPartiallyPaid {
		t.Fatalf("status = %s, want partially_paid", after.Status)
	}
	if !after.RemainingBalance.Equal(dec("500")) {
		t.Fatalf("remaining = %s, want 500", after.RemainingBalance)
	}
	if after.PreviousStatus != core.StatusPending {
		t.Fatalf("previous status = %s, want pending", after.PreviousStatus)
	}

	// Paying down an expense due sends money out through the ordinary
	// decision table.
	if got := balanceOf(t, env.store, id); !got.Equal(dec("700")) {
		t.Fatalf("balance = %s, want 700", got)
	}
	reps := repaymentsOf(t, env.store, due.ID)
	if len(reps) != 1 {
		t.Fatalf("want one repayment, got %d", len(reps))
	}
	if reps[0].Kind != core.Expense || !reps[0].Amount.Equal(dec("300")) {
		t.Fatalf("repayment must carry the due's kind for the paid amount: %+v", reps[0])
	}
	if after.LastRepaymentID != reps[0].ID {
		t.Fatal("due must link its latest repayment")
	}
}

func TestCompleteSettlesRemainder(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")
	due := env.newDue(t, core.Expense, "800", id)

	if _, err := env.dues.PartialPay(ctx, due.ID, dec("300"), id); err != nil {
		t.Fatalf("partial pay: %v", err)
	}
	after, err := env.dues.Complete(ctx, due.ID, id)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if after.Status != core.StatusCompleted || !after.RemainingBalance.IsZero() {
		t.Fatalf("due not completed: %+v", after)
	}
	if after.PreviousStatus != core.StatusPartiallyPaid {
		t.Fatalf("previous status = %s", after.PreviousStatus)
	}
	// 1000 - 300 - 500
	if got := balanceOf(t, env.store, id); !got.Equal(dec("200")) {
		t.Fatalf("balance = %s, want 200", got)
	}
	if reps := repaymentsOf(t, env.store, due.ID); len(reps) != 2 {
		t.Fatalf("want two repayments, got %d", len(reps))
	}
}

func TestIncomeDueSettlesByCredit(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")
	due := env.newDue(t, core.Income, "400", id)

	if _, err := env.dues.Complete(ctx, due.ID, id); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// Collecting an income due brings money in.
	if got := balanceOf(t, env.store, id); !got.Equal(dec("1400")) {
		t.Fatalf("balance = %s, want 1400", got)
	}
}

func TestUndoAfterComplete(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")
	due := env.newDue(t, core.Expense, "800", id)

	if _, err := env.dues.Complete(ctx, due.ID, id); err != nil {
		t.Fatalf("complete: %v", err)
	}
	undone, err := env.dues.Undo(ctx, due.ID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if undone.Status != core.StatusPending {
		t.Fatalf("status = %s, want the pre-complete status", undone.Status)
	}
	if !undone.RemainingBalance.Equal(dec("800")) {
		t.Fatalf("remaining = %s, want the original amount", undone.RemainingBalance)
	}
	if got := balanceOf(t, env.store, id); !got.Equal(dec("1000")) {
		t.Fatalf("repayment reversal must restore the balance, got %s", got)
	}
	if reps := repaymentsOf(t, env.store, due.ID); len(reps) != 0 {
		t.Fatalf("exactly one repayment must be removed, %d left", len(reps))
	}

	// Undo is single-level.
	if _, err := env.dues.Undo(ctx, due.ID); !errors.Is(err, core.ErrInvalidStateTransition) {
		t.Fatalf("second undo: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestUndoWithoutSettlement(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")
	due := env.newDue(t, core.Expense, "800", id)

	if _, err := env.dues.Undo(ctx, due.ID); !errors.Is(err, core.ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}

	// Reschedule and reject record a previous status but generate no
	// repayment, so they are not undoable either.
	if _, err := env.dues.Reject(ctx, due.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := env.dues.Undo(ctx, due.ID); !errors.Is(err, core.ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo after reject, got %v", err)
	}
}

func TestUndoBlockedAfterReject(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")
	due := env.newDue(t, core.Expense, "800", id)

	if _, err := env.dues.PartialPay(ctx, due.ID, dec("300"), id); err != nil {
		t.Fatalf("partial pay: %v", err)
	}
	if _, err := env.dues.Reject(ctx, due.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// Rejection is terminal even when a repayment was made earlier.
	if _, err := env.dues.Undo(ctx, due.ID); !errors.Is(err, core.ErrInvalidStateTransition) {
		t.Fatalf("undo of rejected due: expected ErrInvalidStateTransition, got %v", err)
	}
	after, err := env.store.GetTransaction(ctx, due.ID)
	if err != nil {
		t.Fatalf("get due: %v", err)
	}
	if after.Status != core.StatusRejected {
		t.Fatalf("status = %s, rejection must stick", after.Status)
	}
	if got := balanceOf(t, env.store, id); !got.Equal(dec("700")) {
		t.Fatalf("balance = %s, the partial payment must stay applied", got)
	}
	if reps := repaymentsOf(t, env.store, due.ID); len(reps) != 1 {
		t.Fatalf("repayment count = %d, want 1", len(reps))
	}
}

func TestUndoBlockedAfterReschedule(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")
	due := env.newDue(t, core.Expense, "500", id)

	if _, err := env.dues.PartialPay(ctx, due.ID, dec("100"), id); err != nil {
		t.Fatalf("partial pay: %v", err)
	}
	if _, err := env.dues.Reschedule(ctx, due.ID, "travelling", time.Now().AddDate(0, 1, 0)); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	if _, err := env.dues.Undo(ctx, due.ID); !errors.Is(err, core.ErrNothingToUndo) {
		t.Fatalf("undo of rescheduled due: expected ErrNothingToUndo, got %v", err)
	}
	if got := balanceOf(t, env.store, id); !got.Equal(dec("900")) {
		t.Fatalf("balance = %s, the partial payment must stay applied", got)
	}
}

func TestRescheduleDue(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")
	due := env.newDue(t, core.Expense, "800", id)
	newDate := time.Now().AddDate(0, 2, 0)

	if _, err := env.dues.Reschedule(ctx, due.ID, "", newDate); !errors.Is(err, core.ErrEmptyReason) {
		t.Fatalf("empty reason: got %v", err)
	}
	if _, err := env.dues.Reschedule(ctx, due.ID, "travelling", time.Now().AddDate(0, 0, -1)); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("past date: got %v", err)
	}

	after, err := env.dues.Reschedule(ctx, due.ID, "travelling", newDate)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if after.Status != core.StatusPaymentScheduled || after.RescheduleReason != "travelling" {
		t.Fatalf("reschedule not recorded: %+v", after)
	}
	if !after.RepaymentDate.Equal(newDate.UTC()) {
		t.Fatalf("repayment date = %s, want %s", after.RepaymentDate, newDate.UTC())
	}
	if after.PreviousStatus != core.StatusPending {
		t.Fatalf("previous status = %s", after.PreviousStatus)
	}

	// A scheduled due can still be settled.
	if _, err := env.dues.Complete(ctx, due.ID, id); err != nil {
		t.Fatalf("complete after reschedule: %v", err)
	}
}

func TestRejectDueIsTerminal(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")
	due := env.newDue(t, core.Expense, "800", id)

	rejected, err := env.dues.Reject(ctx, due.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != core.StatusRejected {
		t.Fatalf("status = %s", rejected.Status)
	}
	if got := balanceOf(t, env.store, id); !got.Equal(dec("1000")) {
		t.Fatalf("reject must have no ledger effect, balance %s", got)
	}
	if _, err := env.dues.Complete(ctx, due.ID, id); !errors.Is(err, core.ErrInvalidStateTransition) {
		t.Fatalf("complete after reject: got %v", err)
	}
	if _, err := env.dues.PartialPay(ctx, due.ID, dec("10"), id); !errors.Is(err, core.ErrInvalidStateTransition) {
		t.Fatalf("partial pay after reject: got %v", err)
	}
}

func TestDeleteDueOnlyWhilePending(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")

	due := env.newDue(t, core.Expense, "800", id)
	if err := env.dues.Delete(ctx, due.ID); err != nil {
		t.Fatalf("delete pending due: %v", err)
	}
	if got := balanceOf(t, env.store, id); !got.Equal(dec("1000")) {
		t.Fatalf("delete must have no ledger effect, balance %s", got)
	}

	due = env.newDue(t, core.Expense, "500", id)
	if _, err := env.dues.PartialPay(ctx, due.ID, dec("100"), id); err != nil {
		t.Fatalf("partial pay: %v", err)
	}
	if err := env.dues.Delete(ctx, due.ID); !errors.Is(err, core.ErrInvalidStateTransition) {
		t.Fatalf("delete of settled due: got %v", err)
	}
}

func TestDueOperationsRejectNonDues(t *testing.T) {
	env := newDuesEnv()
	ctx := context.Background()
	id := newBank(t, env.store, "A", "1000")

	tx, err := env.recorder.Add(ctx, core.Transaction{Kind: core.Expense, Amount: dec("10"), SourceID: id})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := env.dues.Complete(ctx, tx.ID, id); !errors.Is(err, core.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := env.dues.Complete(ctx, "missing", id); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}
