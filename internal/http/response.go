package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"paisa/internal/core"
	applog "paisa/internal/log"
)

// sourceResponse is the JSON shape of a payment source. Amounts travel as
// decimal strings end to end.
type sourceResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Balance     string   `json:"balance"`
	CreditLimit string   `json:"credit_limit,omitempty"`
	LinkedApps  []string `json:"linked_apps,omitempty"`
}

type transactionResponse struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Amount          string `json:"amount"`
	Category        string `json:"category,omitempty"`
	SourceID        string `json:"source_id"`
	DisplaySourceID string `json:"display_source_id,omitempty"`
	Description     string `json:"description,omitempty"`
	Date            string `json:"date"`

	Status           string `json:"status,omitempty"`
	RemainingBalance string `json:"remaining_balance,omitempty"`
	Counterparty     string `json:"counterparty,omitempty"`
	RepaymentDate    string `json:"repayment_date,omitempty"`
	RescheduleReason string `json:"reschedule_reason,omitempty"`
	LastRepaymentID  string `json:"last_repayment_id,omitempty"`

	ReferenceKind string `json:"reference_kind,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`

	AuditTrail []core.AuditEntry `json:"audit_trail,omitempty"`
}

func toSourceResponse(src core.PaymentSource) sourceResponse {
	resp := sourceResponse{
		ID:         src.ID,
		Name:       src.Name,
		Kind:       string(src.Kind),
		Balance:    src.Balance.String(),
		LinkedApps: src.LinkedApps,
	}
	if !src.CreditLimit.IsZero() {
		resp.CreditLimit = src.CreditLimit.String()
	}
	return resp
}

func toTransactionResponse(tx core.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:               tx.ID,
		Kind:             string(tx.Kind),
		Amount:           tx.Amount.String(),
		Category:         tx.Category,
		SourceID:         tx.SourceID,
		DisplaySourceID:  tx.DisplaySourceID,
		Description:      tx.Description,
		Date:             formatTime(tx.Date),
		Status:           string(tx.Status),
		Counterparty:     tx.Counterparty,
		RepaymentDate:    formatTime(tx.RepaymentDate),
		RescheduleReason: tx.RescheduleReason,
		LastRepaymentID:  tx.LastRepaymentID,
		ReferenceKind:    string(tx.ReferenceKind),
		ReferenceID:      tx.ReferenceID,
		AuditTrail:       tx.AuditTrail,
	}
	if tx.IsDue() {
		resp.RemainingBalance = tx.RemainingBalance.String()
	}
	return resp
}

func toTransactionResponses(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// writeJSON writes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps a domain error to its HTTP status and writes the JSON
// error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"url", r.URL.Path,
			"error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusForError classifies an error against the domain taxonomy. Order
// matters: ErrNothingToUndo matches ErrInvalidStateTransition, and the
// conflict check must run before the generic validation bucket.
func statusForError(err error) int {
	switch {
	case errors.Is(err, errBadRequestBody):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSourceNotFound),
		errors.Is(err, core.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, core.ErrLedgerInconsistency):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrEmptySource),
		errors.Is(err, core.ErrEmptyCounterparty),
		errors.Is(err, core.ErrEmptyReason):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
