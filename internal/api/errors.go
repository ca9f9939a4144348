// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/retention"
	"github.com/ManuGH/sportsdvr/internal/subscription"
)

// Error codes.
const (
	codeNotFound        = "not_found"
	codeInvalidRequest  = "invalid_request"
	codeBudgetMissing   = "budget_not_configured"
	codeUpstream        = "upstream_unavailable"
	codeCancelled       = "cancelled"
	codeBusy            = "busy"
	codeUnavailable     = "unavailable"
	codeInternal        = "internal_error"
	maxRequestBodyBytes = 1 << 20
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, ErrorResponse{Error: code, Detail: detail})
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeErrorCode(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, subscription.ErrInvalid):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, dvr.ErrNoConcurrencyBudget):
		return http.StatusConflict, codeBudgetMissing
	case errors.Is(err, retention.ErrBusy):
		return http.StatusConflict, codeBusy
	case errors.Is(err, dvr.ErrGuideUnavailable),
		errors.Is(err, dvr.ErrTimerStoreUnavailable),
		errors.Is(err, dvr.ErrCacheUnavailable):
		return http.StatusBadGateway, codeUpstream
	case errors.Is(err, dvr.ErrScanCancelled):
		return http.StatusServiceUnavailable, codeCancelled
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// decodeJSON decodes a bounded request body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
