package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Kind:     Expense,
		Amount:   decimal.NewFromInt(100),
		Category: "Food",
		SourceID: "src-1",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Kind: "loan", Amount: decimal.NewFromInt(1), SourceID: "s"},
		{Kind: Income, Amount: decimal.Zero, SourceID: "s"},
		{Kind: Income, Amount: decimal.NewFromInt(-5), SourceID: "s"},
		{Kind: Income, Amount: decimal.NewFromInt(1), SourceID: "  "},
		{Kind: Income, Amount: decimal.NewFromInt(1), SourceID: "s", Status: "paused"},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestPaymentSourceValidate(t *testing.T) {
	good := PaymentSource{Name: "HDFC Savings", Kind: Bank}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (PaymentSource{Name: "", Kind: Bank}).Validate(); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := (PaymentSource{Name: "x", Kind: "wallet"}).Validate(); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	bad := PaymentSource{Name: "Card", Kind: CreditCard, CreditLimit: decimal.NewFromInt(-1)}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for negative credit limit")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []DueStatus{StatusPending, StatusPartiallyPaid, StatusPaymentScheduled} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	for _, s := range []DueStatus{StatusCompleted, StatusRejected} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}

func TestNothingToUndoMatchesTaxonomy(t *testing.T) {
	if !errors.Is(ErrNothingToUndo, ErrInvalidStateTransition) {
		t.Fatal("ErrNothingToUndo must match ErrInvalidStateTransition")
	}
}

func TestAppendAudit(t *testing.T) {
	tx := Transaction{}
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tx.AppendAudit("recorded", at)
	tx.AppendAudit("edited", at.Add(time.Hour))
	if len(tx.AuditTrail) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(tx.AuditTrail))
	}
	if tx.AuditTrail[0].Action != "recorded" || !tx.AuditTrail[1].At.After(tx.AuditTrail[0].At) {
		t.Fatal("audit trail must preserve order")
	}
}
