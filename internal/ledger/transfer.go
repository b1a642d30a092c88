package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paisa/internal/core"
	"paisa/internal/store"
)

// TransferCoordinator moves money between two canonical sources as a
// three-step saga: debit the source, credit the destination, insert one
// transfer record whose display source encodes both legs. Any failure after
// the first step is compensated in reverse order, so a transfer never
// partially succeeds from the caller's point of view.
type TransferCoordinator struct {
	ledger *Ledger
	txs    store.TransactionStore
	now    func() time.Time
}

func NewTransferCoordinator(ledger *Ledger, txs store.TransactionStore) *TransferCoordinator {
	return &TransferCoordinator{ledger: ledger, txs: txs, now: time.Now}
}

// Transfer debits amount from the source, credits it to the destination and
// records the transfer. Either all three steps commit, or both balances are
// restored to their pre-call values (barring a fatal compensation failure,
// reported as core.ErrLedgerInconsistency).
func (c *TransferCoordinator) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, description string) (core.Transaction, error) {
	from := core.CanonicalID(fromID)
	to := core.CanonicalID(toID)
	if !amount.IsPositive() {
		return core.Transaction{}, fmt.Errorf("transfer of %s: %w", amount, core.ErrInvalidAmount)
	}
	if from == "" || to == "" {
		return core.Transaction{}, core.ErrEmptySource
	}
	if from == to {
		return core.Transaction{}, fmt.Errorf("transfer to the same source %s: %w", from, core.ErrInvalidAmount)
	}
	if err := c.ledger.CheckDebit(ctx, from, amount); err != nil {
		return core.Transaction{}, err
	}
	// The destination must exist before the source is debited.
	if _, err := c.ledger.sources.GetPaymentSource(ctx, to); err != nil {
		return core.Transaction{}, fmt.Errorf("transfer destination %s: %w", to, err)
	}

	txID := uuid.NewString()

	// Step 1: debit the source.
	if _, err := c.ledger.Apply(ctx, from, amount, Debit); err != nil {
		return core.Transaction{}, err
	}

	// Step 2: credit the destination.
	if _, err := c.ledger.Apply(ctx, to, amount, Credit); err != nil {
		if _, cerr := c.ledger.Apply(ctx, from, amount, Credit); cerr != nil {
			return core.Transaction{}, c.ledger.inconsistency(ctx, cerr, "re-credit source after failed credit leg", txID)
		}
		return core.Transaction{}, err
	}

	// Step 3: record the transfer.
	tx := core.Transaction{
		ID:              txID,
		Kind:            core.Transfer,
		Amount:          amount,
		SourceID:        from,
		DisplaySourceID: core.TransferRoute(from, to),
		Description:     description,
		Date:            c.now().UTC(),
	}
	tx.AppendAudit("transfer recorded", c.now())
	if _, err := c.txs.InsertTransaction(ctx, tx); err != nil {
		// Compensate in reverse order of the forward steps.
		if _, cerr := c.ledger.Apply(ctx, to, amount, Debit); cerr != nil {
			return core.Transaction{}, c.ledger.inconsistency(ctx, cerr, "re-debit destination after failed insert", txID)
		}
		if _, cerr := c.ledger.Apply(ctx, from, amount, Credit); cerr != nil {
			return core.Transaction{}, c.ledger.inconsistency(ctx, cerr, "re-credit source after failed insert", txID)
		}
		return core.Transaction{}, fmt.Errorf("insert transfer record: %w", err)
	}

	slog.InfoContext(ctx, "Transfer committed",
		"transaction_id", txID,
		"from", from,
		"to", to,
		"amount", amount.String())
	return tx, nil
}
