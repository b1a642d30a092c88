// Package ledger implements the transaction ledger and dues-settlement
// engine: balance application, transaction recording, two-sided transfers
// with compensation, edit reconciliation and the due lifecycle.
//
// The persistence layer offers per-row operations only, so every multi-step
// operation here is a small saga: forward steps run in order, and on failure
// already-committed steps are compensated in reverse order. A compensation
// failure is escalated as core.ErrLedgerInconsistency instead of being
// retried.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"paisa/internal/core"
	"paisa/internal/store"
)

// Direction is the resolved sign of a balance delta. Callers never pass a raw
// transaction kind to Apply; they translate kind plus an is-reversal flag
// through DirectionFor first, so the credit/debit decision table exists in
// exactly one place.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

func (d Direction) Reversed() Direction {
	if d == Credit {
		return Debit
	}
	return Credit
}

// DirectionFor maps a transaction kind to its balance direction. Income
// credits, expense debits; a reversal flips the result. Transfer legs do not
// go through this table: the debit leg debits the source and the credit leg
// credits the destination, applied explicitly by their coordinators.
func DirectionFor(kind core.TransactionKind, reversal bool) Direction {
	dir := Debit
	if kind == core.Income {
		dir = Credit
	}
	if reversal {
		dir = dir.Reversed()
	}
	return dir
}

// Ledger applies signed deltas to canonical payment sources. It is a pure
// delta application: read the running balance, add or subtract, write back.
// It never reads the transaction log.
type Ledger struct {
	sources store.PaymentSourceStore
}

func NewLedger(sources store.PaymentSourceStore) *Ledger {
	return &Ledger{sources: sources}
}

// Apply mutates the balance of the canonical source by amount in the given
// direction and returns the new balance. amount must be positive.
func (l *Ledger) Apply(ctx context.Context, canonicalID string, amount decimal.Decimal, dir Direction) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("apply %s to %s: %w", amount, canonicalID, core.ErrInvalidAmount)
	}
	src, err := l.sources.GetPaymentSource(ctx, canonicalID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("apply %s %s to %s: %w", dir, amount, canonicalID, err)
	}

	newBalance := src.Balance.Add(amount)
	if dir == Debit {
		newBalance = src.Balance.Sub(amount)
	}
	if err := l.sources.UpdatePaymentSourceBalance(ctx, canonicalID, newBalance); err != nil {
		return decimal.Zero, fmt.Errorf("write balance of %s: %w", canonicalID, err)
	}

	slog.DebugContext(ctx, "Balance delta applied",
		"source_id", canonicalID,
		"direction", dir,
		"amount", amount.String(),
		"new_balance", newBalance.String())
	return newBalance, nil
}

// CheckDebit validates, before any mutation, that debiting amount keeps the
// source within its spendable funds: banks cannot go below zero, credit cards
// with a limit cannot exceed it. Sources without a limit are unconstrained.
func (l *Ledger) CheckDebit(ctx context.Context, canonicalID string, amount decimal.Decimal) error {
	src, err := l.sources.GetPaymentSource(ctx, canonicalID)
	if err != nil {
		return err
	}
	switch src.Kind {
	case core.Bank:
		if amount.GreaterThan(src.Balance) {
			return fmt.Errorf("debit %s from %s (balance %s): %w",
				amount, canonicalID, src.Balance, core.ErrInsufficientBalance)
		}
	case core.CreditCard:
		if src.CreditLimit.IsPositive() {
			// Card balances run negative as usage grows.
			usage := src.Balance.Sub(amount).Neg()
			if usage.GreaterThan(src.CreditLimit) {
				return fmt.Errorf("debit %s from card %s (limit %s): %w",
					amount, canonicalID, src.CreditLimit, core.ErrInsufficientBalance)
			}
		}
	}
	return nil
}

// hasLedgerEffect reports whether tx currently holds a live balance delta.
// Dues never do; rejected transactions have had theirs reversed (or never
// applied).
func hasLedgerEffect(tx core.Transaction) bool {
	return !tx.IsDue() && tx.Status != core.StatusRejected
}

// applyEffect applies (reversal=false) or reverses (reversal=true) the full
// ledger effect of tx. Transfers touch both legs; if the second leg fails the
// first is compensated, and a failed compensation escalates as
// core.ErrLedgerInconsistency.
func (l *Ledger) applyEffect(ctx context.Context, tx core.Transaction, reversal bool) error {
	if tx.Kind != core.Transfer {
		_, err := l.Apply(ctx, tx.SourceID, tx.Amount, DirectionFor(tx.Kind, reversal))
		return err
	}

	from, to, ok := core.ParseTransferRoute(tx.DisplaySourceID)
	if !ok {
		return fmt.Errorf("transaction %s has no transfer route: %w", tx.ID, core.ErrTransactionNotFound)
	}
	firstDir, secondDir := Debit, Credit
	if reversal {
		firstDir, secondDir = Credit, Debit
	}
	if _, err := l.Apply(ctx, from, tx.Amount, firstDir); err != nil {
		return err
	}
	if _, err := l.Apply(ctx, to, tx.Amount, secondDir); err != nil {
		if _, cerr := l.Apply(ctx, from, tx.Amount, firstDir.Reversed()); cerr != nil {
			return l.inconsistency(ctx, cerr, "undo "+string(firstDir)+" of transfer leg", tx.ID)
		}
		return err
	}
	return nil
}

// inconsistency wraps a failed compensation as the fatal taxonomy error and
// logs it prominently.
func (l *Ledger) inconsistency(ctx context.Context, err error, step, txID string) error {
	slog.ErrorContext(ctx, "Compensating rollback failed, balances may have diverged",
		"step", step,
		"transaction_id", txID,
		"error", err)
	return fmt.Errorf("%w: %s for transaction %s: %v", core.ErrLedgerInconsistency, step, txID, err)
}
