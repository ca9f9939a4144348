// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package openwebif

import (
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/sportsdvr/internal/metrics"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation, requests allowed
	StateOpen                  // Circuit open, requests blocked
	StateHalfOpen              // Testing if service recovered
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreaker implements a state machine to prevent cascading failures.
type CircuitBreaker struct {
	name             string
	mu               sync.Mutex
	state            State
	failures         int
	failureThreshold int
	resetTimeout     time.Duration
	lastFailure      time.Time
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker reporting under name.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
	metrics.SetCircuitBreakerState(name, cb.state.String())
	return cb
}

// Execute runs the given function if the circuit is closed or half-open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	default:
		if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
			cb.transitionLocked(StateHalfOpen)
			return true
		}
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	// A failed probe reopens immediately.
	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		cb.transitionLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.transitionLocked(StateClosed)
}

func (cb *CircuitBreaker) transitionLocked(next State) {
	if cb.state == next {
		return
	}
	cb.state = next
	metrics.SetCircuitBreakerState(cb.name, next.String())
	if next == StateOpen {
		metrics.RecordCircuitBreakerTrip(cb.name)
	}
}

// State returns the current state (thread-safe).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
