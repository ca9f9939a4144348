// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func TestRateLimit_EnforcesLimit(t *testing.T) {
	limited := RateLimit(RateLimitConfig{RequestLimit: 3, WindowSize: time.Second})(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()
	limited.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`, w.Body.String())
}

func TestRateLimit_DifferentIPsIndependent(t *testing.T) {
	limited := RateLimit(RateLimitConfig{RequestLimit: 1, WindowSize: time.Minute})(okHandler())

	for _, ip := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = ip
		w := httptest.NewRecorder()
		limited.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, ip)
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	SecurityHeaders(okHandler()).ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestStack_RecoversPanics(t *testing.T) {
	r := NewRouter(StackConfig{EnableMetrics: true, EnableLogging: true})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSpanNameFormatter_UsesRoutePattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/api/subscriptions/{id}", func(w http.ResponseWriter, req *http.Request) {
		got = spanNameFormatter("", req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/subscriptions/abc", nil))
	assert.Equal(t, "HTTP GET /api/subscriptions/{id}", got)

	assert.False(t, shouldTrace(httptest.NewRequest(http.MethodGet, "/metrics", nil)))
	assert.True(t, shouldTrace(httptest.NewRequest(http.MethodGet, "/api/scan/last", nil)))
}
