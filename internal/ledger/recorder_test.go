package ledger

import (
	"context"
	"errors"
	"testing"

	"paisa/internal/core"
	"paisa/internal/store"
	"paisa/internal/store/memory"
)

// failingTxStore wraps the memory store to force record-layer failures.
type failingTxStore struct {
	*memory.Store
	failInsert bool
	failDelete bool
	failUpdate bool
}

var errStoreDown = errors.New("store unavailable")

func (f *failingTxStore) InsertTransaction(ctx context.Context, tx core.Transaction) (string, error) {
	if f.failInsert {
		return "", errStoreDown
	}
	return f.Store.InsertTransaction(ctx, tx)
}

func (f *failingTxStore) DeleteTransaction(ctx context.Context, id string) error {
	if f.failDelete {
		return errStoreDown
	}
	return f.Store.DeleteTransaction(ctx, id)
}

func (f *failingTxStore) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	if f.failUpdate {
		return errStoreDown
	}
	return f.Store.UpdateTransaction(ctx, tx)
}

func countTxs(t *testing.T, s store.TransactionStore) int {
	t.Helper()
	txs, err := s.QueryTransactions(context.Background(), store.TransactionFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	return len(txs)
}

func TestRecorderAddIncomeAndExpense(t *testing.T) {
	s := memory.New()
	rec := NewRecorder(NewLedger(s), s)
	ctx := context.Background()
	id := newBank(t, s, "A", "100")

	income, err := rec.Add(ctx, core.Transaction{Kind: core.Income, Amount: dec("50"), Category: "Salary", SourceID: id})
	if err != nil {
		t.Fatalf("add income: %v", err)
	}
	if got := balanceOf(t, s, id); !got.Equal(dec("150")) {
		t.Fatalf("balance after income = %s, want 150", got)
	}
	if income.ID == "" || income.Date.IsZero() || len(income.AuditTrail) != 1 {
		t.Fatalf("income record not initialized: %+v", income)
	}

	if _, err := rec.Add(ctx, core.Transaction{Kind: core.Expense, Amount: dec("30"), Category: "Food", SourceID: id}); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if got := balanceOf(t, s, id); !got.Equal(dec("120")) {
		t.Fatalf("balance after expense = %s, want 120", got)
	}
}

func TestRecorderAddResolvesCompositeSource(t *testing.T) {
	s := memory.New()
	rec := NewRecorder(NewLedger(s), s)
	ctx := context.Background()
	id := newBank(t, s, "A", "100")

	tx, err := rec.Add(ctx, core.Transaction{
		Kind:            core.Expense,
		Amount:          dec("10"),
		Category:        "Food",
		DisplaySourceID: core.LinkedID(id, "gpay"),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if tx.SourceID != id {
		t.Fatalf("canonical id = %s, want %s", tx.SourceID, id)
	}
	if tx.DisplaySourceID != core.LinkedID(id, "gpay") {
		t.Fatalf("display id = %s", tx.DisplaySourceID)
	}
	if got := balanceOf(t, s, id); !got.Equal(dec("90")) {
		t.Fatalf("the owning source must be debited: %s", got)
	}
}

func TestRecorderAddInsufficientBalance(t *testing.T) {
	s := memory.New()
	rec := NewRecorder(NewLedger(s), s)
	ctx := context.Background()
	id := newBank(t, s, "A", "40")

	_, err := rec.Add(ctx, core.Transaction{Kind: core.Expense, Amount: dec("100"), Category: "Food", SourceID: id})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := balanceOf(t, s, id); !got.Equal(dec("40")) {
		t.Fatalf("balance must be untouched, got %s", got)
	}
	if n := countTxs(t, s); n != 0 {
		t.Fatalf("no transaction may be created, found %d", n)
	}
}

func TestRecorderAddUnknownSourceLeavesNoRecord(t *testing.T) {
	s := memory.New()
	rec := NewRecorder(NewLedger(s), s)

	_, err := rec.Add(context.Background(), core.Transaction{Kind: core.Income, Amount: dec("5"), SourceID: "missing"})
	if !errors.Is(err, core.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	if n := countTxs(t, s); n != 0 {
		t.Fatalf("no orphaned transaction allowed, found %d", n)
	}
}

func TestRecorderAddRejectsTransfers(t *testing.T) {
	s := memory.New()
	rec := NewRecorder(NewLedger(s), s)
	_, err := rec.Add(context.Background(), core.Transaction{Kind: core.Transfer, Amount: dec("5"), SourceID: "a"})
	if !errors.Is(err, core.ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestRecorderAddCompensatesFailedInsert(t *testing.T) {
	mem := memory.New()
	fs := &failingTxStore{Store: mem, failInsert: true}
	rec := NewRecorder(NewLedger(mem), fs)
	ctx := context.Background()
	id := newBank(t, mem, "A", "100")

	if _, err := rec.Add(ctx, core.Transaction{Kind: core.Income, Amount: dec("50"), SourceID: id}); err == nil {
		t.Fatal("expected insert failure")
	}
	if got := balanceOf(t, mem, id); !got.Equal(dec("100")) {
		t.Fatalf("delta must be compensated after insert failure, balance %s", got)
	}
}

func TestRecorderAddRejectedStateSkipsLedger(t *testing.T) {
	s := memory.New()
	rec := NewRecorder(NewLedger(s), s)
	ctx := context.Background()
	id := newBank(t, s, "A", "100")

	_, err := rec.Add(ctx, core.Transaction{
		Kind:     core.Expense,
		Amount:   dec("60"),
		SourceID: id,
		Status:   core.StatusRejected,
	})
	if err != nil {
		t.Fatalf("add rejected: %v", err)
	}
	if got := balanceOf(t, s, id); !got.Equal(dec("100")) {
		t.Fatalf("rejected transaction must have zero net effect, balance %s", got)
	}
}

func TestRecorderDeleteReversesEffect(t *testing.T) {
	s := memory.New()
	rec := NewRecorder(NewLedger(s), s)
	ctx := context.Background()
	id := newBank(t, s, "A", "100")

	tx, err := rec.Add(ctx, core.Transaction{Kind: core.Expense, Amount: dec("25"), SourceID: id})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := rec.Delete(ctx, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := balanceOf(t, s, id); !got.Equal(dec("100")) {
		t.Fatalf("delete must reverse the delta, balance %s", got)
	}
	if _, err := s.GetTransaction(ctx, tx.ID); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("record must be gone, got %v", err)
	}
}

func TestRecorderDeleteRejectedSkipsLedger(t *testing.T) {
	s := memory.New()
	rec := NewRecorder(NewLedger(s), s)
	ctx := context.Background()
	id := newBank(t, s, "A", "100")

	tx, err := rec.Add(ctx, core.Transaction{Kind: core.Expense, Amount: dec("25"), SourceID: id, Status: core.StatusRejected})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := rec.Delete(ctx, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := balanceOf(t, s, id); !got.Equal(dec("100")) {
		t.Fatalf("rejected delete must not touch the balance, got %s", got)
	}
}

func TestRecorderDeleteCompensatesFailedDelete(t *testing.T) {
	mem := memory.New()
	fs := &failingTxStore{Store: mem}
	rec := NewRecorder(NewLedger(mem), fs)
	ctx := context.Background()
	id := newBank(t, mem, "A", "100")

	tx, err := rec.Add(ctx, core.Transaction{Kind: core.Expense, Amount: dec("25"), SourceID: id})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	fs.failDelete = true
	if err := rec.Delete(ctx, tx.ID); err == nil {
		t.Fatal("expected delete failure")
	}
	if got := balanceOf(t, mem, id); !got.Equal(dec("75")) {
		t.Fatalf("reversal must be compensated after delete failure, balance %s", got)
	}
}

func TestRecorderDeleteUnknown(t *testing.T) {
	s := memory.New()
	rec := NewRecorder(NewLedger(s), s)
	if err := rec.Delete(context.Background(), "missing"); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}
