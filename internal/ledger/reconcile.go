package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"paisa/internal/core"
	"paisa/internal/store"
)

// EditRequest carries the fields an edit may change. Nil means "leave as is".
type EditRequest struct {
	Amount      *decimal.Decimal
	SourceID    *string // composite or canonical; for transfers, the debit leg
	Destination *string // transfers only: the credit leg
	Category    *string
	Description *string
	Date        *time.Time
	Status      *core.DueStatus
}

// EditReconciler reverses a transaction's prior ledger effect and applies its
// new one when a transaction is edited, rejected or un-rejected. Exactly one
// reversing/applying pair of ledger operations runs per edit, and a ledger
// failure aborts the edit before any record mutation.
type EditReconciler struct {
	ledger *Ledger
	txs    store.TransactionStore
	now    func() time.Time
}

func NewEditReconciler(ledger *Ledger, txs store.TransactionStore) *EditReconciler {
	return &EditReconciler{ledger: ledger, txs: txs, now: time.Now}
}

func (e *EditReconciler) Edit(ctx context.Context, id string, req EditRequest) (core.Transaction, error) {
	orig, err := e.txs.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}

	updated, err := applyUpdates(orig, req)
	if err != nil {
		return core.Transaction{}, err
	}

	becomingRejected := req.Status != nil && *req.Status == core.StatusRejected && orig.Status != core.StatusRejected
	leavingRejected := orig.Status == core.StatusRejected && req.Status != nil && *req.Status != core.StatusRejected
	financialChanged := !updated.Amount.Equal(orig.Amount) ||
		updated.SourceID != orig.SourceID ||
		updated.DisplaySourceID != orig.DisplaySourceID

	// Exactly one of the four reconciliation cases applies. Dues carry no
	// ledger effect at any point, so they always fall through to the
	// record-only case.
	var undoLedger func(context.Context) error
	switch {
	case orig.IsDue():
		// record-only

	case becomingRejected:
		if err := e.ledger.applyEffect(ctx, orig, true); err != nil {
			return core.Transaction{}, err
		}
		undoLedger = func(ctx context.Context) error { return e.ledger.applyEffect(ctx, orig, false) }

	case leavingRejected:
		// A rejected transaction has no live effect; apply the edited one as
		// if newly created.
		if err := e.checkAndApply(ctx, updated); err != nil {
			return core.Transaction{}, err
		}
		undoLedger = func(ctx context.Context) error { return e.ledger.applyEffect(ctx, updated, true) }

	case financialChanged && orig.Status != core.StatusRejected:
		// Reverse the old effect at the old source(s), then apply the new
		// effect at the new source(s). Four ledger calls for transfers.
		if err := e.ledger.applyEffect(ctx, orig, true); err != nil {
			return core.Transaction{}, err
		}
		if err := e.checkAndApply(ctx, updated); err != nil {
			if cerr := e.ledger.applyEffect(ctx, orig, false); cerr != nil {
				return core.Transaction{}, e.ledger.inconsistency(ctx, cerr, "restore old effect after failed re-apply", id)
			}
			return core.Transaction{}, err
		}
		undoLedger = func(ctx context.Context) error {
			if err := e.ledger.applyEffect(ctx, updated, true); err != nil {
				return err
			}
			return e.ledger.applyEffect(ctx, orig, false)
		}

	default:
		// No amount/source change, or already rejected: non-financial fields only.
	}

	if req.Status != nil && *req.Status != orig.Status {
		updated.PreviousStatus = orig.Status
	}
	updated.AppendAudit(auditAction(becomingRejected, leavingRejected), e.now())

	if err := e.txs.UpdateTransaction(ctx, updated); err != nil {
		if undoLedger != nil {
			if cerr := undoLedger(ctx); cerr != nil {
				return core.Transaction{}, e.ledger.inconsistency(ctx, cerr, "undo ledger step after failed record update", id)
			}
		}
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction edited",
		"transaction_id", id,
		"rejected", becomingRejected,
		"unrejected", leavingRejected,
		"financial_change", financialChanged)
	return updated, nil
}

// checkAndApply guards the debit side of a fresh application, then applies
// the full effect of tx.
func (e *EditReconciler) checkAndApply(ctx context.Context, tx core.Transaction) error {
	debited := tx.SourceID
	if tx.Kind == core.Transfer {
		from, _, ok := core.ParseTransferRoute(tx.DisplaySourceID)
		if !ok {
			return fmt.Errorf("transaction %s has no transfer route: %w", tx.ID, core.ErrTransactionNotFound)
		}
		debited = from
	} else if DirectionFor(tx.Kind, false) != Debit {
		debited = ""
	}
	if debited != "" {
		if err := e.ledger.CheckDebit(ctx, debited, tx.Amount); err != nil {
			return err
		}
	}
	return e.ledger.applyEffect(ctx, tx, false)
}

// applyUpdates merges the request into a copy of the original record,
// re-deriving the canonical/display source fields when the source changed.
func applyUpdates(orig core.Transaction, req EditRequest) (core.Transaction, error) {
	tx := orig
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return core.Transaction{}, core.ErrInvalidAmount
		}
		tx.Amount = *req.Amount
	}
	if req.Category != nil {
		tx.Category = *req.Category
	}
	if req.Description != nil {
		tx.Description = *req.Description
	}
	if req.Date != nil {
		tx.Date = req.Date.UTC()
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return core.Transaction{}, core.ErrInvalidStateTransition
		}
		tx.Status = *req.Status
	}

	if orig.Kind == core.Transfer {
		from, to, ok := core.ParseTransferRoute(orig.DisplaySourceID)
		if !ok {
			return core.Transaction{}, fmt.Errorf("transaction %s has no transfer route: %w", orig.ID, core.ErrTransactionNotFound)
		}
		if req.SourceID != nil {
			from = core.CanonicalID(*req.SourceID)
		}
		if req.Destination != nil {
			to = core.CanonicalID(*req.Destination)
		}
		if from == "" || to == "" {
			return core.Transaction{}, core.ErrEmptySource
		}
		if from == to {
			return core.Transaction{}, fmt.Errorf("transfer to the same source %s: %w", from, core.ErrInvalidAmount)
		}
		tx.SourceID = from
		tx.DisplaySourceID = core.TransferRoute(from, to)
		return tx, nil
	}

	if req.SourceID != nil {
		ref := core.ParseSourceRef(*req.SourceID)
		if ref.Canonical == "" {
			return core.Transaction{}, core.ErrEmptySource
		}
		tx.SourceID = ref.Canonical
		tx.DisplaySourceID = ref.String()
	}
	return tx, nil
}

func auditAction(becomingRejected, leavingRejected bool) string {
	switch {
	case becomingRejected:
		return "transaction rejected"
	case leavingRejected:
		return "rejection reverted"
	default:
		return "transaction edited"
	}
}
