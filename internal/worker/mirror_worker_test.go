package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"paisa/internal/core"
	"paisa/internal/events"
	"paisa/internal/store/memory"
)

type fakeMirror struct {
	rows     map[string]core.Transaction
	failWith error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{rows: make(map[string]core.Transaction)}
}

func (m *fakeMirror) UpsertTransaction(_ context.Context, tx core.Transaction) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.rows[tx.ID] = tx
	return nil
}

func (m *fakeMirror) DeleteTransaction(_ context.Context, id string) error {
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.rows[id]; !ok {
		return core.ErrTransactionNotFound
	}
	delete(m.rows, id)
	return nil
}

func insertTransaction(t *testing.T, s *memory.Store, id string) core.Transaction {
	t.Helper()
	tx := core.Transaction{
		ID:       id,
		Kind:     core.Expense,
		Amount:   decimal.NewFromInt(42),
		SourceID: "src-1",
		Date:     time.Now().UTC(),
	}
	if _, err := s.InsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
	return tx
}

func TestUpsertEventMirrorsCurrentRecord(t *testing.T) {
	primary := memory.New()
	mirror := newFakeMirror()
	w := NewMirrorWorker(primary, mirror)

	insertTransaction(t, primary, "tx-1")

	ev := events.NewTransactionEvent(events.OpUpsert, "tx-1")
	if err := w.HandleTransactionEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleTransactionEvent() error = %v", err)
	}

	mirrored, ok := mirror.rows["tx-1"]
	if !ok {
		t.Fatal("transaction not mirrored")
	}
	if !mirrored.Amount.Equal(decimal.NewFromInt(42)) {
		t.Errorf("mirrored amount = %s, want 42", mirrored.Amount)
	}
}

func TestUpsertEventForDeletedRecordRemovesMirrorRow(t *testing.T) {
	primary := memory.New()
	mirror := newFakeMirror()
	w := NewMirrorWorker(primary, mirror)

	mirror.rows["gone"] = core.Transaction{ID: "gone"}

	ev := events.NewTransactionEvent(events.OpUpsert, "gone")
	if err := w.HandleTransactionEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleTransactionEvent() error = %v", err)
	}
	if _, ok := mirror.rows["gone"]; ok {
		t.Error("mirror row should have been removed")
	}
}

func TestDeleteEventIsIdempotent(t *testing.T) {
	primary := memory.New()
	mirror := newFakeMirror()
	w := NewMirrorWorker(primary, mirror)

	ev := events.NewTransactionEvent(events.OpDelete, "never-mirrored")
	if err := w.HandleTransactionEvent(context.Background(), ev); err != nil {
		t.Errorf("delete of unknown row should succeed, got %v", err)
	}
}

func TestMirrorFailureRequeues(t *testing.T) {
	primary := memory.New()
	mirror := newFakeMirror()
	mirror.failWith = errors.New("sheets unavailable")
	w := NewMirrorWorker(primary, mirror)

	insertTransaction(t, primary, "tx-2")

	ev := events.NewTransactionEvent(events.OpUpsert, "tx-2")
	if err := w.HandleTransactionEvent(context.Background(), ev); err == nil {
		t.Error("expected error so the event gets requeued")
	}
}

func TestUnknownOpIsDropped(t *testing.T) {
	w := NewMirrorWorker(memory.New(), newFakeMirror())

	ev := events.NewTransactionEvent("compact", "tx-3")
	if err := w.HandleTransactionEvent(context.Background(), ev); err != nil {
		t.Errorf("unknown op should be dropped without error, got %v", err)
	}
}
