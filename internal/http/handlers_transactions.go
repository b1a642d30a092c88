package http

import (
	"net/http"
	"time"

	"paisa/internal/core"
	"paisa/internal/ledger"
)

type createTransactionRequest struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	SourceID    string `json:"source_id"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx := core.Transaction{
		Kind:            core.TransactionKind(req.Kind),
		Amount:          amount,
		Category:        sanitizeInput(req.Category),
		DisplaySourceID: sanitizeInput(req.SourceID),
		Description:     sanitizeInput(req.Description),
		Date:            time.Now().UTC(),
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tx.Date = date
	}

	recorded, err := s.service.AddTransaction(r.Context(), tx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(recorded))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.service.ListTransactions(r.Context(), parseTransactionFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponses(txs))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.service.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

type editTransactionRequest struct {
	Amount      *string `json:"amount"`
	SourceID    *string `json:"source_id"`
	Destination *string `json:"destination"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	Status      *string `json:"status"`
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	var req editTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	edit := ledger.EditRequest{
		SourceID:    req.SourceID,
		Destination: req.Destination,
		Category:    req.Category,
		Description: req.Description,
	}
	if req.Amount != nil {
		amount, err := core.ParseAmount(*req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		edit.Amount = &amount
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		edit.Date = &date
	}
	if req.Status != nil {
		status := core.DueStatus(*req.Status)
		edit.Status = &status
	}

	updated, err := s.service.EditTransaction(r.Context(), r.PathValue("id"), edit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type transferRequest struct {
	FromSourceID string `json:"from_source_id"`
	ToSourceID   string `json:"to_source_id"`
	Amount       string `json:"amount"`
	Description  string `json:"description"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.service.Transfer(r.Context(), sanitizeInput(req.FromSourceID), sanitizeInput(req.ToSourceID), amount, sanitizeInput(req.Description))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}
