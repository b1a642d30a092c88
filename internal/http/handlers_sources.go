package http

import (
	"fmt"
	"net/http"

	"paisa/internal/core"
)

type createSourceRequest struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Balance     string   `json:"balance"`
	CreditLimit string   `json:"credit_limit"`
	LinkedApps  []string `json:"linked_apps"`
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	src := core.PaymentSource{
		Name:       sanitizeInput(req.Name),
		Kind:       core.SourceKind(req.Kind),
		LinkedApps: req.LinkedApps,
	}
	if req.Balance != "" {
		balance, err := core.ParseBalance(req.Balance)
		if err != nil {
			writeError(w, r, err)
			return
		}
		src.Balance = balance
	}
	if req.CreditLimit != "" {
		limit, err := core.ParseBalance(req.CreditLimit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		src.CreditLimit = limit
	}

	created, err := s.service.CreateSource(r.Context(), src)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSourceResponse(created))
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.service.ListSources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]sourceResponse, 0, len(sources))
	for _, src := range sources {
		out = append(out, toSourceResponse(src))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.service.GetSource(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSourceResponse(src))
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteSource(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSourceIdentities(w http.ResponseWriter, r *http.Request) {
	ids, err := s.service.SourceIdentities(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"identities": ids})
}

type linkAppRequest struct {
	App string `json:"app"`
}

func (s *Server) handleLinkApp(w http.ResponseWriter, r *http.Request) {
	var req linkAppRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.App == "" {
		writeError(w, r, fmt.Errorf("%w: missing app", errBadRequestBody))
		return
	}

	src, err := s.service.LinkApp(r.Context(), r.PathValue("id"), req.App)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSourceResponse(src))
}

func (s *Server) handleUnlinkApp(w http.ResponseWriter, r *http.Request) {
	src, err := s.service.UnlinkApp(r.Context(), r.PathValue("id"), r.PathValue("app"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSourceResponse(src))
}
