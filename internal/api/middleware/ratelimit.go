// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	// RequestLimit is the maximum number of requests allowed in the window
	RequestLimit int
	// WindowSize is the time window for rate limiting
	WindowSize time.Duration
	// KeyFunc extracts the rate limit key from the request. Defaults to the client IP.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit creates a sliding-window rate limiter. Rejected requests get a
// JSON 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}
	retryAfter := strconv.Itoa(int(cfg.WindowSize.Seconds()))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`))
		}),
	)
}

// ScanRateLimit limits the expensive scan and bulk-cancel operations to 10
// requests per minute per client.
func ScanRateLimit() func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{RequestLimit: 10, WindowSize: time.Minute})
}

// APIRateLimit limits general API traffic to rpm requests per minute per client.
func APIRateLimit(rpm int) func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{RequestLimit: rpm, WindowSize: time.Minute})
}
