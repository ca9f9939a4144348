// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strings"

	"github.com/ManuGH/sportsdvr/internal/cache"
	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/log"
)

// ScoreRequest is the body of POST /api/score.
type ScoreRequest struct {
	Title       string `json:"title"`
	Channel     string `json:"channel"`
	Description string `json:"description"`
	SportsHint  bool   `json:"sportsHint"`
}

// ScanResponse is the answer of POST /api/scan.
type ScanResponse struct {
	dvr.TriggerResult
	Summary dvr.ScanSummary `json:"summary"`
}

// ScheduledList is the answer of GET /api/scan/cache.
type ScheduledList struct {
	Entries []cache.ScheduledEntry `json:"entries"`
}

// CountResponse reports how many items an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "title is required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Service.ScoreTitle(req.Title, req.Channel, req.Description, req.SportsHint))
}

func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Service.TriggerScan(r.Context())
	if err != nil {
		status, code := classify(err)
		detail := res.Message
		if detail == "" {
			detail = err.Error()
		}
		writeErrorCode(w, status, code, detail)
		return
	}
	resp := ScanResponse{TriggerResult: res}
	if last := s.deps.Service.LastReport(); last != nil && last.RunID == res.RunID {
		resp.Summary = last.Summary
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldScanID, res.RunID).
		Str(log.FieldStatus, res.Status).
		Msg("on-demand scan finished")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Service.DryRun(r.Context())
	if err != nil && report == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		status, code := classify(err)
		writeErrorCode(w, status, code, report.Message)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLastScan(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Service.LastReport()
	if report == nil {
		writeErrorCode(w, http.StatusNotFound, codeNotFound, "no scan has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListScheduled(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Service.Engine().ScheduledEntries(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []cache.ScheduledEntry{}
	}
	writeJSON(w, http.StatusOK, ScheduledList{Entries: entries})
}

func (s *Server) handleClearScheduled(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Service.ClearScheduledCache(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (s *Server) handleCancelManaged(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Service.CancelManagedTimers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Service.CancelAllTimers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}
