package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"paisa/internal/core"
	"paisa/internal/store"
)

// Recorder creates and deletes transaction records, keeping the owning
// source's balance in step. The ledger call always precedes the record
// mutation, so a ledger failure leaves no orphaned transaction.
type Recorder struct {
	ledger *Ledger
	txs    store.TransactionStore
	now    func() time.Time
}

func NewRecorder(ledger *Ledger, txs store.TransactionStore) *Recorder {
	return &Recorder{ledger: ledger, txs: txs, now: time.Now}
}

// Add resolves the canonical source, applies the ledger delta (unless the
// record carries no live effect) and persists the transaction with both its
// composite display id and its canonical id.
//
// Transfers are not accepted here; they go through the TransferCoordinator.
func (r *Recorder) Add(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if tx.Kind == core.Transfer {
		return core.Transaction{}, fmt.Errorf("transfers go through the coordinator: %w", core.ErrInvalidKind)
	}

	ref := core.ParseSourceRef(firstNonEmpty(tx.DisplaySourceID, tx.SourceID))
	tx.SourceID = ref.Canonical
	tx.DisplaySourceID = ref.String()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Date.IsZero() {
		tx.Date = r.now().UTC()
	}

	applied := false
	if hasLedgerEffect(tx) {
		dir := DirectionFor(tx.Kind, false)
		if dir == Debit {
			if err := r.ledger.CheckDebit(ctx, tx.SourceID, tx.Amount); err != nil {
				return core.Transaction{}, err
			}
		}
		if _, err := r.ledger.Apply(ctx, tx.SourceID, tx.Amount, dir); err != nil {
			return core.Transaction{}, err
		}
		applied = true
	}

	tx.AppendAudit("transaction recorded", r.now())
	if _, err := r.txs.InsertTransaction(ctx, tx); err != nil {
		if applied {
			if _, cerr := r.ledger.Apply(ctx, tx.SourceID, tx.Amount, DirectionFor(tx.Kind, true)); cerr != nil {
				return core.Transaction{}, r.ledger.inconsistency(ctx, cerr, "undo delta after insert failure", tx.ID)
			}
		}
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction recorded",
		"transaction_id", tx.ID,
		"kind", tx.Kind,
		"amount", tx.Amount.String(),
		"source_id", tx.SourceID)
	return tx, nil
}

// Delete reverses the transaction's live ledger effect, then removes the
// record. Rejected transactions and dues have no live effect and are removed
// as-is.
func (r *Recorder) Delete(ctx context.Context, id string) error {
	tx, err := r.txs.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	reversed := false
	if hasLedgerEffect(tx) {
		if err := r.ledger.applyEffect(ctx, tx, true); err != nil {
			return err
		}
		reversed = true
	}

	if err := r.txs.DeleteTransaction(ctx, id); err != nil {
		if reversed {
			if cerr := r.ledger.applyEffect(ctx, tx, false); cerr != nil {
				return r.ledger.inconsistency(ctx, cerr, "re-apply delta after delete failure", id)
			}
		}
		return fmt.Errorf("delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"transaction_id", id,
		"kind", tx.Kind,
		"reversed", reversed)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
