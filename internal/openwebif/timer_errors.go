package openwebif

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ManuGH/sportsdvr/internal/dvr"
)

// Receiver answers to timeradd/timerdelete carry free text. OpenWebIF reports
// overlaps as "Conflicting Timer(s) detected!" and localized variants.
var (
	conflictPhrases = []string{"conflict", "overlap", "konflikt", "ueberschneidung", "überschneidung"}
	notFoundPhrases = []string{"not found", "nicht gefunden", "no such timer", "404"}
)

// timerRefusal turns a result=false answer of a timer call into an OWIError.
func timerRefusal(operation, message string) error {
	body := strings.TrimSpace(message)
	e := &OWIError{Sentinel: ErrUpstreamBadResponse, Operation: operation, Status: http.StatusBadRequest, Body: body}
	switch {
	case containsAny(body, conflictPhrases):
		e.Sentinel, e.Status = ErrConflict, http.StatusConflict
	case containsAny(body, notFoundPhrases):
		e.Sentinel, e.Status = ErrNotFound, http.StatusNotFound
	}
	return e
}

// IsTimerConflict reports whether the receiver refused a timer because it
// overlaps with timers it cannot record in parallel.
func IsTimerConflict(err error) bool {
	return matchesTimerError(err, ErrConflict, http.StatusConflict, conflictPhrases)
}

// IsTimerNotFound reports whether the addressed timer does not exist (any more).
func IsTimerNotFound(err error) bool {
	return matchesTimerError(err, ErrNotFound, http.StatusNotFound, notFoundPhrases)
}

func matchesTimerError(err, sentinel error, status int, phrases []string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sentinel) {
		return true
	}
	var owiErr *OWIError
	if errors.As(err, &owiErr) {
		return owiErr.Status == status || containsAny(owiErr.Body, phrases)
	}
	return containsAny(err.Error(), phrases)
}

// forScheduler adds the scheduler's sentinel to conflict and not-found errors so
// the engine can tell them apart from an unavailable receiver.
func forScheduler(err error) error {
	switch {
	case err == nil:
		return nil
	case IsTimerConflict(err):
		return fmt.Errorf("%w: %w", dvr.ErrTimerConflict, err)
	case IsTimerNotFound(err):
		return fmt.Errorf("%w: %w", dvr.ErrTimerNotFound, err)
	}
	return err
}

func containsAny(message string, phrases []string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return false
	}
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
