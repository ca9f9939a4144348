// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/sportsdvr/internal/subscription"
)

// SubscriptionList is the answer of GET /api/subscriptions.
type SubscriptionList struct {
	Subscriptions []subscription.Subscription `json:"subscriptions"`
}

// ReorderRequest is the body of PUT /api/subscriptions/order.
type ReorderRequest struct {
	IDs []string `json:"ids"`
}

// TestRequest is the body of POST /api/subscriptions/test.
type TestRequest struct {
	Subscription subscription.Subscription `json:"subscription"`
	HorizonHours int                       `json:"horizonHours"`
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SubscriptionList{Subscriptions: s.deps.Service.ListSubscriptions()})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.Service.GetSubscription(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscription.Subscription
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := s.deps.Service.AddSubscription(req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/subscriptions/"+sub.ID)
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscription.Subscription
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := s.deps.Service.UpdateSubscription(chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Service.DeleteSubscription(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.Service.ToggleSubscription(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleReorderSubscriptions(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Service.ReorderSubscriptions(req.IDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SubscriptionList{Subscriptions: s.deps.Service.ListSubscriptions()})
}

// handleTestSubscription previews a stored subscription. ?horizonHours= overrides the horizon.
func (s *Server) handleTestSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.Service.GetSubscription(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	horizon := 0
	if v := r.URL.Query().Get("horizonHours"); v != "" {
		horizon, err = strconv.Atoi(v)
		if err != nil || horizon < 0 {
			writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "horizonHours must be a non-negative integer")
			return
		}
	}
	s.runTest(w, r, sub, horizon)
}

// handleTestDraftSubscription previews a subscription that is not stored.
func (s *Server) handleTestDraftSubscription(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.HorizonHours < 0 {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "horizonHours must be non-negative")
		return
	}
	s.runTest(w, r, req.Subscription, req.HorizonHours)
}

func (s *Server) runTest(w http.ResponseWriter, r *http.Request, sub subscription.Subscription, horizon int) {
	res, err := s.deps.Service.TestSubscription(r.Context(), sub, horizon)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
