// SPDX-License-Identifier: MIT

// Package health provides readiness checks for container probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/sportsdvr/internal/log"
)

// Status represents the overall readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for readiness checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager runs the registered checkers.
type Manager struct {
	version string

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager creates a new readiness manager
func NewManager(version string) *Manager {
	return &Manager{version: version}
}

// RegisterChecker adds a checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Ready runs every checker. Any unhealthy result makes the service not ready;
// degraded results only lower the status.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}

	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()
	if len(checkers) == 0 {
		return resp
	}

	resp.Checks = make(map[string]CheckResult, len(checkers))
	hasDegraded := false
	for _, checker := range checkers {
		result := checker.Check(ctx)
		resp.Checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			resp.Ready = false
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if !resp.Ready {
		resp.Status = StatusUnhealthy
	} else if hasDegraded {
		resp.Status = StatusDegraded
	}
	return resp
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str(log.FieldEvent, "readiness.checked").
		Str(log.FieldStatus, string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// FuncChecker adapts a probe function. A failing probe reports failStatus.
type FuncChecker struct {
	name       string
	probe      func(ctx context.Context) error
	timeout    time.Duration
	failStatus Status
}

// NewFuncChecker creates a checker whose failures make the service unready.
func NewFuncChecker(name string, probe func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, probe: probe, timeout: 2 * time.Second, failStatus: StatusUnhealthy}
}

// Informational downgrades failures of c to degraded.
func Informational(c *FuncChecker) *FuncChecker {
	c.failStatus = StatusDegraded
	return c
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	if c.probe == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	// Keep probe latency bounded for readiness health checks.
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.probe(checkCtx); err != nil {
		return CheckResult{Status: c.failStatus, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// WritableDirChecker verifies that a directory accepts new files.
type WritableDirChecker struct {
	name string
	dir  string
}

// NewWritableDirChecker creates a checker for dir.
func NewWritableDirChecker(name, dir string) *WritableDirChecker {
	return &WritableDirChecker{name: name, dir: dir}
}

func (c *WritableDirChecker) Name() string { return c.name }

func (c *WritableDirChecker) Check(context.Context) CheckResult {
	info, err := os.Stat(c.dir)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.dir}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected directory, got file", Message: c.dir}
	}
	f, err := os.CreateTemp(c.dir, ".readyz-*")
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "directory not writable"}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(filepath.Clean(name))
	return CheckResult{Status: StatusHealthy}
}

// LastScanChecker reports the outcome of the most recent scan. Scans are
// retried by the scheduler, so failures only degrade readiness.
type LastScanChecker struct {
	lastScan func() (finishedAt time.Time, status, message string)
	maxAge   time.Duration
	now      func() time.Time
}

// NewLastScanChecker creates a checker. Scans older than maxAge are degraded.
func NewLastScanChecker(lastScan func() (time.Time, string, string), maxAge time.Duration) *LastScanChecker {
	return &LastScanChecker{lastScan: lastScan, maxAge: maxAge, now: time.Now}
}

func (c *LastScanChecker) Name() string { return "last_scan" }

func (c *LastScanChecker) Check(context.Context) CheckResult {
	finishedAt, status, message := c.lastScan()
	if finishedAt.IsZero() {
		return CheckResult{Status: StatusHealthy, Message: "no scan yet"}
	}
	switch status {
	case "failed", "cancelled":
		return CheckResult{Status: StatusDegraded, Error: message, Message: "last scan " + status}
	}
	if c.maxAge > 0 && c.now().Sub(finishedAt) > c.maxAge {
		return CheckResult{Status: StatusDegraded, Message: "last scan is stale"}
	}
	return CheckResult{Status: StatusHealthy, Message: "last scan " + status}
}
