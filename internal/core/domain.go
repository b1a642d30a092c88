package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Bank       SourceKind = "bank"
	CreditCard SourceKind = "credit_card"
)

const (
	Income   TransactionKind = "income"
	Expense  TransactionKind = "expense"
	Transfer TransactionKind = "transfer"
)

// Due lifecycle states. Pending is the initial state; Completed and Rejected
// are terminal, except that Completed can be undone one level.
const (
	StatusPending          DueStatus = "pending"
	StatusPartiallyPaid    DueStatus = "partially_paid"
	StatusPaymentScheduled DueStatus = "payment_scheduled"
	StatusCompleted        DueStatus = "completed"
	StatusRejected         DueStatus = "rejected"
)

const (
	RefDue            ReferenceKind = "due"
	RefDueRepayment   ReferenceKind = "due_repayment"
	RefTransferDebit  ReferenceKind = "transfer_debit"
	RefTransferCredit ReferenceKind = "transfer_credit"
)

type (
	SourceKind      string
	TransactionKind string
	DueStatus       string
	ReferenceKind   string

	// PaymentSource is the canonical balance-holding account record. Its
	// balance changes only through signed deltas applied by the ledger.
	PaymentSource struct {
		ID          string
		Name        string
		Kind        SourceKind
		Balance     decimal.Decimal
		CreditLimit decimal.Decimal // zero when unset; only meaningful for credit cards
		LinkedApps  []string        // display-only alternate identities, no balances
	}

	// AuditEntry is one line of a transaction's append-only audit trail.
	AuditEntry struct {
		Action string    `json:"action"`
		At     time.Time `json:"at"`
	}

	// Transaction is a single ledger record. Dues reuse the same record with
	// the Status/RemainingBalance/Counterparty fields populated.
	Transaction struct {
		ID              string
		Kind            TransactionKind
		Amount          decimal.Decimal
		Category        string
		SourceID        string // canonical, owns the balance
		DisplaySourceID string // composite id, or the transfer route
		Description     string
		Date            time.Time

		// Due-only fields.
		Status           DueStatus
		PreviousStatus   DueStatus
		RemainingBalance decimal.Decimal
		Counterparty     string
		RepaymentDate    time.Time
		RescheduleReason string
		LastRepaymentID  string // explicit link to the latest generated repayment

		ReferenceKind ReferenceKind
		ReferenceID   string

		AuditTrail []AuditEntry
	}
)

func (k TransactionKind) Valid() bool {
	switch k {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (s DueStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPartiallyPaid, StatusPaymentScheduled, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further settlement may happen from s.
func (s DueStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

func (p PaymentSource) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyDescription
	}
	if p.Kind != Bank && p.Kind != CreditCard {
		return ErrInvalidKind
	}
	if p.CreditLimit.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.SourceID) == "" {
		return ErrEmptySource
	}
	if len(t.Description) > 200 {
		return ErrEmptyDescription
	}
	if t.Status != "" && !t.Status.Valid() {
		return ErrInvalidStateTransition
	}
	return nil
}

// IsDue reports whether t is an informal IOU rather than an ordinary
// transaction. Dues never carry a ledger effect themselves; only their
// generated repayments do.
func (t Transaction) IsDue() bool {
	return t.ReferenceKind == RefDue
}

// AppendAudit adds an entry to the append-only audit trail.
func (t *Transaction) AppendAudit(action string, at time.Time) {
	t.AuditTrail = append(t.AuditTrail, AuditEntry{Action: action, At: at.UTC()})
}
