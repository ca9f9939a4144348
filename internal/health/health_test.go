// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Ready_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		wantReady bool
		want      Status
	}{
		{name: "all healthy", statuses: []Status{StatusHealthy, StatusHealthy}, wantReady: true, want: StatusHealthy},
		{name: "degraded stays ready", statuses: []Status{StatusHealthy, StatusDegraded}, wantReady: true, want: StatusDegraded},
		{name: "unhealthy wins", statuses: []Status{StatusDegraded, StatusUnhealthy}, wantReady: false, want: StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.statuses))
		})
	}
}

func TestManager_ServeReady(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "ok", status: StatusHealthy})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Ready)

	m.RegisterChecker(&mockChecker{name: "down", status: StatusUnhealthy})
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFuncChecker(t *testing.T) {
	ok := NewFuncChecker("cache", func(context.Context) error { return nil })
	assert.Equal(t, "cache", ok.Name())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	failing := NewFuncChecker("cache", func(context.Context) error { return errors.New("redis down") })
	res := failing.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "redis down", res.Error)

	info := Informational(NewFuncChecker("receiver", func(context.Context) error { return errors.New("timeout") }))
	assert.Equal(t, StatusDegraded, info.Check(context.Background()).Status)

	assert.Equal(t, StatusHealthy, NewFuncChecker("none", nil).Check(context.Background()).Status)
}

func TestFuncChecker_BoundsProbe(t *testing.T) {
	c := NewFuncChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.timeout = 20 * time.Millisecond

	start := time.Now()
	res := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWritableDirChecker(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusHealthy, NewWritableDirChecker("data", dir).Check(context.Background()).Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file is removed")

	missing := NewWritableDirChecker("data", filepath.Join(dir, "missing"))
	assert.Equal(t, StatusUnhealthy, missing.Check(context.Background()).Status)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	res := NewWritableDirChecker("data", file).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "expected directory")
}

func TestLastScanChecker(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		finished time.Time
		status   string
		want     Status
	}{
		{name: "no scan yet", want: StatusHealthy},
		{name: "recent success", finished: now.Add(-time.Hour), status: "success", want: StatusHealthy},
		{name: "failed", finished: now.Add(-time.Hour), status: "failed", want: StatusDegraded},
		{name: "cancelled", finished: now.Add(-time.Hour), status: "cancelled", want: StatusDegraded},
		{name: "stale", finished: now.Add(-48 * time.Hour), status: "success", want: StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLastScanChecker(func() (time.Time, string, string) {
				return tt.finished, tt.status, "message"
			}, 36*time.Hour)
			c.now = func() time.Time { return now }
			assert.Equal(t, "last_scan", c.Name())
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}
