package core

import (
	"errors"
	"fmt"
)

// Cross-component error taxonomy. The ledger engine, stores and HTTP layer
// all classify failures against these sentinels with errors.Is.
var (
	ErrSourceNotFound         = errors.New("payment source not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrLedgerInconsistency reports a failed compensating rollback. It is the
	// one fatal condition: both sides of a transfer or reversal can no longer
	// be proven balanced, so it is surfaced loudly and never retried.
	ErrLedgerInconsistency = errors.New("ledger inconsistency")

	// ErrNothingToUndo is returned for an undo with no prior state to restore.
	// It matches ErrInvalidStateTransition under errors.Is.
	ErrNothingToUndo = fmt.Errorf("%w: nothing to undo", ErrInvalidStateTransition)
)

// Field-level validation errors.
var (
	ErrEmptyDescription  = errors.New("empty description")
	ErrEmptyCategory     = errors.New("empty category")
	ErrEmptySource       = errors.New("empty payment source id")
	ErrEmptyCounterparty = errors.New("empty counterparty")
	ErrEmptyReason       = errors.New("empty reschedule reason")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidKind       = errors.New("invalid transaction kind")
)
