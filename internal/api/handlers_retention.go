// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/sportsdvr/internal/retention"
)

func (s *Server) retentionManager(w http.ResponseWriter) *retention.Manager {
	if s.deps.Retention == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, codeUnavailable, "retention is disabled")
	}
	return s.deps.Retention
}

func (s *Server) handleRetentionRun(w http.ResponseWriter, r *http.Request) {
	m := s.retentionManager(w)
	if m == nil {
		return
	}
	report, err := m.Run(r.Context())
	if err != nil && report == nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleRetentionPlan lists what a run would delete without deleting.
func (s *Server) handleRetentionPlan(w http.ResponseWriter, r *http.Request) {
	m := s.retentionManager(w)
	if m == nil {
		return
	}
	report, err := m.Plan(r.Context())
	if err != nil && report == nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRetentionLast(w http.ResponseWriter, r *http.Request) {
	m := s.retentionManager(w)
	if m == nil {
		return
	}
	report := m.LastReport()
	if report == nil {
		writeErrorCode(w, http.StatusNotFound, codeNotFound, "no retention run has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
