// Package worker mirrors committed ledger transactions to a secondary row
// store. Mirroring is driven by transaction events and is strictly
// best-effort: the primary store already committed, so the mirror may lag but
// never influences ledger state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paisa/internal/core"
	"paisa/internal/events"
	"paisa/internal/store"
)

// MirrorTarget is the write surface of the mirror. The Google Sheets client
// satisfies it.
type MirrorTarget interface {
	UpsertTransaction(ctx context.Context, tx core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
}

// MirrorWorker consumes transaction events and replays the referenced record
// against the mirror. Events carry only the transaction id; the worker always
// fetches the current record, so stale or reordered events converge on the
// latest state.
type MirrorWorker struct {
	primary store.TransactionStore
	mirror  MirrorTarget
}

func NewMirrorWorker(primary store.TransactionStore, mirror MirrorTarget) *MirrorWorker {
	return &MirrorWorker{primary: primary, mirror: mirror}
}

// HandleTransactionEvent processes one event. Returning an error requeues the
// event for another attempt.
func (w *MirrorWorker) HandleTransactionEvent(ctx context.Context, ev *events.TransactionEvent) error {
	switch ev.Op {
	case events.OpDelete:
		return w.handleDelete(ctx, ev.TransactionID)
	case events.OpUpsert:
		return w.handleUpsert(ctx, ev.TransactionID)
	default:
		// Unknown ops are dropped; requeueing would loop forever.
		slog.WarnContext(ctx, "Dropping event with unknown op",
			"op", ev.Op,
			"transaction_id", ev.TransactionID)
		return nil
	}
}

func (w *MirrorWorker) handleUpsert(ctx context.Context, id string) error {
	tx, err := w.primary.GetTransaction(ctx, id)
	if errors.Is(err, core.ErrTransactionNotFound) {
		// Deleted since the event was published. Make sure the mirror
		// does not keep a row the primary no longer has.
		return w.handleDelete(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", id, err)
	}

	if err := w.mirror.UpsertTransaction(ctx, tx); err != nil {
		return fmt.Errorf("mirror transaction %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Transaction mirrored",
		"transaction_id", id,
		"kind", tx.Kind,
		"amount", tx.Amount.String())
	return nil
}

func (w *MirrorWorker) handleDelete(ctx context.Context, id string) error {
	err := w.mirror.DeleteTransaction(ctx, id)
	if errors.Is(err, core.ErrTransactionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete mirrored transaction %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Mirrored transaction deleted", "transaction_id", id)
	return nil
}
