// SPDX-License-Identifier: MIT

// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ManuGH/sportsdvr/internal/log"
)

// StackConfig configures the HTTP ingress middleware stack.
type StackConfig struct {
	EnableSecurityHeaders bool

	// Observability
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// RateLimitRPM is the per-client request budget per minute. Zero disables limiting.
	RateLimitRPM int
}

// NewRouter constructs a chi router with the middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(chimw.Recoverer)
	if cfg.EnableSecurityHeaders {
		r.Use(SecurityHeaders)
	}
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	// Logging wraps handlers and assigns the request id.
	if cfg.EnableLogging {
		r.Use(log.Middleware())
	}
	if cfg.RateLimitRPM > 0 {
		r.Use(APIRateLimit(cfg.RateLimitRPM))
	}
}
