// Package store defines the row-oriented persistence ports consumed by the
// ledger engine. Backends expose canonical per-row CRUD only; there is no
// multi-row transaction primitive, which is why the engine layers saga-style
// compensation on top of these operations.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"paisa/internal/core"
)

type (
	PaymentSourceStore interface {
		InsertPaymentSource(ctx context.Context, src core.PaymentSource) (string, error)
		GetPaymentSource(ctx context.Context, id string) (core.PaymentSource, error)
		// UpdatePaymentSourceBalance writes the new running balance. It is the
		// only mutation path for a balance.
		UpdatePaymentSourceBalance(ctx context.Context, id string, balance decimal.Decimal) error
		// UpdatePaymentSource replaces the stored record identified by src.ID.
		// Used for identity changes (name, linked apps, credit limit), not for
		// balance movements.
		UpdatePaymentSource(ctx context.Context, src core.PaymentSource) error
		ListPaymentSources(ctx context.Context) ([]core.PaymentSource, error)
		DeletePaymentSource(ctx context.Context, id string) error
	}

	TransactionStore interface {
		InsertTransaction(ctx context.Context, tx core.Transaction) (string, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		// UpdateTransaction replaces the stored record identified by tx.ID.
		// Callers read-modify-write, matching the single-writer-per-request
		// model; there is no server-side compare-and-swap.
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
		QueryTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	}

	// RecurringRuleStore backs the recurring-transaction materializer. Not
	// every backend implements it; the worker requires one that does.
	RecurringRuleStore interface {
		InsertRecurringRule(ctx context.Context, rule core.RecurringRule) (string, error)
		ListRecurringRules(ctx context.Context) ([]core.RecurringRule, error)
		MarkRecurringRuleRun(ctx context.Context, id string, at time.Time) error
		DeleteRecurringRule(ctx context.Context, id string) error
	}

	// Store is the full surface the service wires against.
	Store interface {
		PaymentSourceStore
		TransactionStore
	}
)

// TransactionFilter narrows QueryTransactions. Zero values mean "any".
type TransactionFilter struct {
	Kind            core.TransactionKind
	Status          core.DueStatus
	SourceID        string // canonical
	ReferenceKind   core.ReferenceKind
	ReferenceID     string
	OrderByDateDesc bool
	Limit           int
}

// Matches reports whether tx passes the filter. Backends without a query
// engine of their own (memory, sheets) filter rows with it.
func (f TransactionFilter) Matches(tx core.Transaction) bool {
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.SourceID != "" && tx.SourceID != f.SourceID {
		return false
	}
	if f.ReferenceKind != "" && tx.ReferenceKind != f.ReferenceKind {
		return false
	}
	if f.ReferenceID != "" && tx.ReferenceID != f.ReferenceID {
		return false
	}
	return true
}
