package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paisa/internal/core"
	"paisa/internal/events"
	"paisa/internal/ledger"
	"paisa/internal/store"
)

// LedgerService is the single entry point the transport layers use. It owns
// the ledger engine, resolves source identities, and publishes a change event
// after every successful mutation. Event publishing is best-effort: the
// mutation already committed, so a broker failure is logged and swallowed.
type LedgerService struct {
	store     store.Store
	recorder  *ledger.Recorder
	transfers *ledger.TransferCoordinator
	edits     *ledger.EditReconciler
	dues      *ledger.DuesStateMachine
	publisher events.Publisher
}

func NewLedgerService(s store.Store, publisher events.Publisher) *LedgerService {
	l := ledger.NewLedger(s)
	rec := ledger.NewRecorder(l, s)
	return &LedgerService{
		store:     s,
		recorder:  rec,
		transfers: ledger.NewTransferCoordinator(l, s),
		edits:     ledger.NewEditReconciler(l, s),
		dues:      ledger.NewDuesStateMachine(rec, s),
		publisher: publisher,
	}
}

// CreateSource registers a new payment source with its opening balance.
func (s *LedgerService) CreateSource(ctx context.Context, src core.PaymentSource) (core.PaymentSource, error) {
	if err := src.Validate(); err != nil {
		return core.PaymentSource{}, err
	}
	id, err := s.store.InsertPaymentSource(ctx, src)
	if err != nil {
		return core.PaymentSource{}, fmt.Errorf("insert source: %w", err)
	}
	src.ID = id
	slog.InfoContext(ctx, "Payment source created",
		"source_id", id,
		"name", src.Name,
		"kind", src.Kind,
		"opening_balance", src.Balance.String())
	return src, nil
}

// GetSource resolves either a canonical id or a composite "canonical::app"
// identity to the underlying payment source.
func (s *LedgerService) GetSource(ctx context.Context, id string) (core.PaymentSource, error) {
	ref := core.ParseSourceRef(id)
	return s.store.GetPaymentSource(ctx, ref.Canonical)
}

func (s *LedgerService) ListSources(ctx context.Context) ([]core.PaymentSource, error) {
	return s.store.ListPaymentSources(ctx)
}

// SourceIdentities returns every id a source answers to: its canonical id
// plus one composite id per linked app.
func (s *LedgerService) SourceIdentities(ctx context.Context, id string) ([]string, error) {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(src.LinkedApps)+1)
	ids = append(ids, src.ID)
	for _, app := range src.LinkedApps {
		ids = append(ids, core.LinkedID(src.ID, app))
	}
	return ids, nil
}

// LinkApp attaches a payment-app label to the source. The label is a
// display-only alias; it carries no balance of its own.
func (s *LedgerService) LinkApp(ctx context.Context, sourceID, app string) (core.PaymentSource, error) {
	app = strings.TrimSpace(app)
	if app == "" || strings.Contains(app, "::") {
		return core.PaymentSource{}, fmt.Errorf("invalid app label %q: %w", app, core.ErrInvalidKind)
	}
	src, err := s.GetSource(ctx, sourceID)
	if err != nil {
		return core.PaymentSource{}, err
	}
	if slices.Contains(src.LinkedApps, app) {
		return src, nil
	}
	src.LinkedApps = append(src.LinkedApps, app)
	if err := s.store.UpdatePaymentSource(ctx, src); err != nil {
		return core.PaymentSource{}, fmt.Errorf("update source: %w", err)
	}
	slog.InfoContext(ctx, "App linked to source", "source_id", src.ID, "app", app)
	return src, nil
}

// UnlinkApp removes a payment-app label. Historical transactions keep their
// composite display id; they still resolve through the canonical part.
func (s *LedgerService) UnlinkApp(ctx context.Context, sourceID, app string) (core.PaymentSource, error) {
	src, err := s.GetSource(ctx, sourceID)
	if err != nil {
		return core.PaymentSource{}, err
	}
	idx := slices.Index(src.LinkedApps, app)
	if idx < 0 {
		return src, nil
	}
	src.LinkedApps = slices.Delete(src.LinkedApps, idx, idx+1)
	if err := s.store.UpdatePaymentSource(ctx, src); err != nil {
		return core.PaymentSource{}, fmt.Errorf("update source: %w", err)
	}
	return src, nil
}

// DeleteSource removes a source that no transaction references.
func (s *LedgerService) DeleteSource(ctx context.Context, id string) error {
	ref := core.ParseSourceRef(id)
	txs, err := s.store.QueryTransactions(ctx, store.TransactionFilter{SourceID: ref.Canonical, Limit: 1})
	if err != nil {
		return fmt.Errorf("check source usage: %w", err)
	}
	if len(txs) > 0 {
		return fmt.Errorf("source %s still has transactions: %w", ref.Canonical, core.ErrInvalidStateTransition)
	}
	return s.store.DeletePaymentSource(ctx, ref.Canonical)
}

func (s *LedgerService) AddTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	recorded, err := s.recorder.Add(ctx, tx)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, events.OpUpsert, recorded.ID)
	return recorded, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *LedgerService) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	return s.store.QueryTransactions(ctx, f)
}

func (s *LedgerService) EditTransaction(ctx context.Context, id string, req ledger.EditRequest) (core.Transaction, error) {
	updated, err := s.edits.Edit(ctx, id, req)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, events.OpUpsert, updated.ID)
	return updated, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	if err := s.recorder.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.OpDelete, id)
	return nil
}

func (s *LedgerService) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, description string) (core.Transaction, error) {
	tx, err := s.transfers.Transfer(ctx, fromID, toID, amount, description)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, events.OpUpsert, tx.ID)
	return tx, nil
}

func (s *LedgerService) CreateDue(ctx context.Context, due core.Transaction) (core.Transaction, error) {
	created, err := s.dues.Create(ctx, due)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, events.OpUpsert, created.ID)
	return created, nil
}

func (s *LedgerService) CompleteDue(ctx context.Context, dueID, sourceID string) (core.Transaction, error) {
	due, err := s.dues.Complete(ctx, dueID, sourceID)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publishDueSettlement(ctx, due)
	return due, nil
}

func (s *LedgerService) PartialPayDue(ctx context.Context, dueID string, amount decimal.Decimal, sourceID string) (core.Transaction, error) {
	due, err := s.dues.PartialPay(ctx, dueID, amount, sourceID)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publishDueSettlement(ctx, due)
	return due, nil
}

func (s *LedgerService) RescheduleDue(ctx context.Context, dueID, reason string, newDate time.Time) (core.Transaction, error) {
	due, err := s.dues.Reschedule(ctx, dueID, reason, newDate)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, events.OpUpsert, due.ID)
	return due, nil
}

func (s *LedgerService) RejectDue(ctx context.Context, dueID string) (core.Transaction, error) {
	due, err := s.dues.Reject(ctx, dueID)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, events.OpUpsert, due.ID)
	return due, nil
}

func (s *LedgerService) UndoDue(ctx context.Context, dueID string) (core.Transaction, error) {
	due, err := s.dues.Undo(ctx, dueID)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, events.OpUpsert, due.ID)
	return due, nil
}

func (s *LedgerService) DeleteDue(ctx context.Context, dueID string) error {
	if err := s.dues.Delete(ctx, dueID); err != nil {
		return err
	}
	s.publish(ctx, events.OpDelete, dueID)
	return nil
}

// publishDueSettlement emits events for both sides of a settlement: the
// advanced due and the repayment it generated.
func (s *LedgerService) publishDueSettlement(ctx context.Context, due core.Transaction) {
	s.publish(ctx, events.OpUpsert, due.ID)
	if due.LastRepaymentID != "" {
		s.publish(ctx, events.OpUpsert, due.LastRepaymentID)
	}
}

func (s *LedgerService) publish(ctx context.Context, op, transactionID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, op, transactionID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"op", op,
			"transaction_id", transactionID,
			"error", err)
	}
}
