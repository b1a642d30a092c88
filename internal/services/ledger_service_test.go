package services

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

type recordedEvent struct {
	op            string
	transactionID string
}

// capturePublisher records published events and can simulate broker failure.
type capturePublisher struct {
	events []recordedEvent
	fail   bool
}

func (p *capturePublisher) PublishTransactionEvent(_ context.Context, op, transactionID string) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, recordedEvent{op: op, transactionID: transactionID})
	return nil
}

var _ events.Publisher = (*capturePublisher)(nil)

type serviceEnv struct {
	store     *memory.Store
	publisher *capturePublisher
	service   *LedgerService
}

func newServiceEnv() serviceEnv {
	s := memory.New()
	pub := &capturePublisher{}
	return serviceEnv{store: s, publisher: pub, service: NewLedgerService(s, pub)}
}

func (e serviceEnv) newBank(t *testing.T, name, balance string) string {
	t.Helper()
	src, err := e.service.CreateSource(context.Background(), core.PaymentSource{
		Name:    name,
		Kind:    core.Bank,
		Balance: decimal.RequireFromString(balance),
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	return src.ID
}

func TestAddTransactionPublishesUpsert(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	id := env.newBank(t, "Checking", "1000")

	tx, err := env.service.AddTransaction(ctx, core.Transaction{
		Kind:     core.Expense,
		Amount:   decimal.RequireFromString("50"),
		Category: "Food",
		SourceID: id,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if len(env.publisher.events) != 1 {
		t.Fatalf("want 1 event, got %d", len(env.publisher.events))
	}
	got := env.publisher.events[0]
	if got.op != events.OpUpsert || got.transactionID != tx.ID {
		t.Errorf("event = %+v, want upsert of %s", got, tx.ID)
	}

	src, err := env.service.GetSource(ctx, id)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if !src.Balance.Equal(decimal.RequireFromString("950")) {
		t.Errorf("balance = %s, want 950", src.Balance)
	}
}

func TestDeleteTransactionPublishesDelete(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	id := env.newBank(t, "Checking", "1000")

	tx, err := env.service.AddTransaction(ctx, core.Transaction{
		Kind: core.Expense, Amount: decimal.RequireFromString("50"), SourceID: id,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := env.service.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	last := env.publisher.events[len(env.publisher.events)-1]
	if last.op != events.OpDelete || last.transactionID != tx.ID {
		t.Errorf("last event = %+v, want delete of %s", last, tx.ID)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	env := newServiceEnv()
	env.publisher.fail = true
	ctx := context.Background()
	id := env.newBank(t, "Checking", "1000")

	tx, err := env.service.AddTransaction(ctx, core.Transaction{
		Kind: core.Income, Amount: decimal.RequireFromString("25"), SourceID: id,
	})
	if err != nil {
		t.Fatalf("add should survive a broker failure: %v", err)
	}
	if _, err := env.service.GetTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("transaction should be persisted: %v", err)
	}
}

func TestNilPublisherIsValid(t *testing.T) {
	s := memory.New()
	service := NewLedgerService(s, nil)
	ctx := context.Background()

	src, err := service.CreateSource(ctx, core.PaymentSource{
		Name: "Checking", Kind: core.Bank, Balance: decimal.RequireFromString("100"),
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	if _, err := service.AddTransaction(ctx, core.Transaction{
		Kind: core.Expense, Amount: decimal.RequireFromString("10"), SourceID: src.ID,
	}); err != nil {
		t.Fatalf("add with nil publisher: %v", err)
	}
}

func TestDueSettlementPublishesBothSides(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	id := env.newBank(t, "Checking", "1000")

	due, err := env.service.CreateDue(ctx, core.Transaction{
		Kind:          core.Expense,
		Amount:        decimal.RequireFromString("200"),
		Category:      "Dues",
		SourceID:      id,
		Counterparty:  "Ravi",
		RepaymentDate: time.Now().AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("create due: %v", err)
	}

	env.publisher.events = nil
	settled, err := env.service.CompleteDue(ctx, due.ID, id)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if len(env.publisher.events) != 2 {
		t.Fatalf("want events for the due and its repayment, got %d", len(env.publisher.events))
	}
	if env.publisher.events[0].transactionID != due.ID {
		t.Errorf("first event should be the due, got %s", env.publisher.events[0].transactionID)
	}
	if env.publisher.events[1].transactionID != settled.LastRepaymentID {
		t.Errorf("second event should be the repayment, got %s", env.publisher.events[1].transactionID)
	}
}

func TestLinkAndResolveAppIdentity(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	id := env.newBank(t, "Checking", "1000")

	src, err := env.service.LinkApp(ctx, id, "PhonePe")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if len(src.LinkedApps) != 1 || src.LinkedApps[0] != "PhonePe" {
		t.Fatalf("linked apps = %v", src.LinkedApps)
	}

	// Linking the same app twice is a no-op.
	src, err = env.service.LinkApp(ctx, id, "PhonePe")
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if len(src.LinkedApps) != 1 {
		t.Fatalf("duplicate link, apps = %v", src.LinkedApps)
	}

	// The composite identity resolves to the same source.
	composite := core.LinkedID(id, "PhonePe")
	resolved, err := env.service.GetSource(ctx, composite)
	if err != nil {
		t.Fatalf("resolve %s: %v", composite, err)
	}
	if resolved.ID != id {
		t.Errorf("resolved %s, want %s", resolved.ID, id)
	}

	ids, err := env.service.SourceIdentities(ctx, id)
	if err != nil {
		t.Fatalf("identities: %v", err)
	}
	if len(ids) != 2 || ids[0] != id || ids[1] != composite {
		t.Errorf("identities = %v", ids)
	}

	// A transaction through the app identity debits the canonical balance.
	if _, err := env.service.AddTransaction(ctx, core.Transaction{
		Kind:            core.Expense,
		Amount:          decimal.RequireFromString("100"),
		DisplaySourceID: composite,
	}); err != nil {
		t.Fatalf("add via app identity: %v", err)
	}
	after, _ := env.service.GetSource(ctx, id)
	if !after.Balance.Equal(decimal.RequireFromString("900")) {
		t.Errorf("balance = %s, want 900", after.Balance)
	}
}

func TestLinkAppRejectsBadLabels(t *testing.T) {
	env := newServiceEnv()
	id := env.newBank(t, "Checking", "1000")

	for _, label := range []string{"", "  ", "a::b"} {
		if _, err := env.service.LinkApp(context.Background(), id, label); err == nil {
			t.Errorf("label %q should be rejected", label)
		}
	}
}

func TestUnlinkAppKeepsHistoricalIdentity(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	id := env.newBank(t, "Checking", "1000")

	if _, err := env.service.LinkApp(ctx, id, "GPay"); err != nil {
		t.Fatalf("link: %v", err)
	}
	src, err := env.service.UnlinkApp(ctx, id, "GPay")
	if err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if len(src.LinkedApps) != 0 {
		t.Fatalf("apps = %v", src.LinkedApps)
	}

	// Old composite ids still resolve through the canonical part.
	if _, err := env.service.GetSource(ctx, core.LinkedID(id, "GPay")); err != nil {
		t.Errorf("historical identity should still resolve: %v", err)
	}
}

func TestDeleteSourceRefusedWhileReferenced(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	id := env.newBank(t, "Checking", "1000")

	if _, err := env.service.AddTransaction(ctx, core.Transaction{
		Kind: core.Expense, Amount: decimal.RequireFromString("10"), SourceID: id,
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := env.service.DeleteSource(ctx, id); !errors.Is(err, core.ErrInvalidStateTransition) {
		t.Fatalf("delete of referenced source: got %v", err)
	}

	empty := env.newBank(t, "Spare", "0")
	if err := env.service.DeleteSource(ctx, empty); err != nil {
		t.Fatalf("delete of unused source: %v", err)
	}
}

func TestTransferThroughService(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	from := env.newBank(t, "A", "500")
	to := env.newBank(t, "B", "0")

	tx, err := env.service.Transfer(ctx, from, to, decimal.RequireFromString("200"), "monthly sweep")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if tx.Kind != core.Transfer {
		t.Errorf("kind = %s", tx.Kind)
	}
	last := env.publisher.events[len(env.publisher.events)-1]
	if last.op != events.OpUpsert || last.transactionID != tx.ID {
		t.Errorf("last event = %+v", last)
	}
}
