package http

import (
	"net/http"
	"time"

	"paisa/internal/core"
)

type createDueRequest struct {
	Kind          string `json:"kind"`
	Amount        string `json:"amount"`
	Category      string `json:"category"`
	SourceID      string `json:"source_id"`
	Counterparty  string `json:"counterparty"`
	Description   string `json:"description"`
	RepaymentDate string `json:"repayment_date"`
}

func (s *Server) handleCreateDue(w http.ResponseWriter, r *http.Request) {
	var req createDueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	due := core.Transaction{
		Kind:            core.TransactionKind(req.Kind),
		Amount:          amount,
		Category:        sanitizeInput(req.Category),
		DisplaySourceID: sanitizeInput(req.SourceID),
		Counterparty:    sanitizeInput(req.Counterparty),
		Description:     sanitizeInput(req.Description),
		Date:            time.Now().UTC(),
	}
	if req.RepaymentDate != "" {
		date, err := parseDate(req.RepaymentDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		due.RepaymentDate = date
	}

	created, err := s.service.CreateDue(r.Context(), due)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(created))
}

type settleDueRequest struct {
	SourceID string `json:"source_id"`
}

func (s *Server) handleCompleteDue(w http.ResponseWriter, r *http.Request) {
	var req settleDueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	due, err := s.service.CompleteDue(r.Context(), r.PathValue("id"), sanitizeInput(req.SourceID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(due))
}

type partialPayRequest struct {
	Amount   string `json:"amount"`
	SourceID string `json:"source_id"`
}

func (s *Server) handlePartialPayDue(w http.ResponseWriter, r *http.Request) {
	var req partialPayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	due, err := s.service.PartialPayDue(r.Context(), r.PathValue("id"), amount, sanitizeInput(req.SourceID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(due))
}

type rescheduleDueRequest struct {
	Reason  string `json:"reason"`
	NewDate string `json:"new_date"`
}

func (s *Server) handleRescheduleDue(w http.ResponseWriter, r *http.Request) {
	var req rescheduleDueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	newDate, err := parseDate(req.NewDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	due, err := s.service.RescheduleDue(r.Context(), r.PathValue("id"), sanitizeInput(req.Reason), newDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(due))
}

func (s *Server) handleRejectDue(w http.ResponseWriter, r *http.Request) {
	due, err := s.service.RejectDue(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(due))
}

func (s *Server) handleUndoDue(w http.ResponseWriter, r *http.Request) {
	due, err := s.service.UndoDue(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(due))
}

func (s *Server) handleDeleteDue(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDue(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
