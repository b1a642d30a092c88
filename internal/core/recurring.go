package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Daily   RepetitionType = "daily"
	Weekly  RepetitionType = "weekly"
	Monthly RepetitionType = "monthly"
	Yearly  RepetitionType = "yearly"
)

type (
	RepetitionType string

	// RecurringRule materializes an ordinary transaction on a schedule. Rules
	// are just another caller of the transaction recorder; they carry no
	// ledger semantics of their own.
	RecurringRule struct {
		ID          string
		Kind        TransactionKind
		Amount      decimal.Decimal
		Category    string
		SourceID    string // may be composite
		Description string
		Every       RepetitionType
		StartDate   time.Time
		EndDate     time.Time // zero means open-ended
		LastRun     time.Time // zero when never materialized
	}
)

func (rt RepetitionType) Valid() bool {
	switch rt {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (r RecurringRule) Validate() error {
	if r.Kind != Income && r.Kind != Expense {
		return ErrInvalidKind
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(r.SourceID) == "" {
		return ErrEmptySource
	}
	if !r.Every.Valid() {
		return ErrInvalidKind
	}
	if r.StartDate.IsZero() {
		return ErrInvalidDate
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return ErrInvalidDate
	}
	return nil
}

// Active reports whether the rule should still fire at the given time.
func (r RecurringRule) Active(now time.Time) bool {
	if now.Before(r.StartDate) {
		return false
	}
	return r.EndDate.IsZero() || !now.After(r.EndDate)
}
