// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/sportsdvr/internal/dvr"
)

// AliasList is the answer of GET /api/aliases.
type AliasList struct {
	Aliases []dvr.AliasEntry `json:"aliases"`
}

// AliasRequest is the body of PUT /api/aliases/{name}.
type AliasRequest struct {
	Aliases []string `json:"aliases"`
}

func (s *Server) handleListAliases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AliasList{Aliases: s.deps.Service.ListAliases()})
}

// handleExpandAlias resolves any spelling to its canonical entry.
func (s *Server) handleExpandAlias(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Service.ExpandAlias(chi.URLParam(r, "name")))
}

func (s *Server) handleSetAlias(w http.ResponseWriter, r *http.Request) {
	var req AliasRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.deps.Service.SetAlias(name, req.Aliases); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Service.ExpandAlias(name))
}

func (s *Server) handleRemoveAlias(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Service.RemoveAlias(chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
