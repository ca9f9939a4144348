// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the JSON control surface of the scheduler.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/sportsdvr/internal/api/middleware"
	"github.com/ManuGH/sportsdvr/internal/config"
	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/health"
	"github.com/ManuGH/sportsdvr/internal/log"
	"github.com/ManuGH/sportsdvr/internal/openwebif"
	"github.com/ManuGH/sportsdvr/internal/retention"
)

const shutdownTimeout = 10 * time.Second

// ConfigHolder allows hot configuration reloading without import cycles.
// Implemented by config.ConfigHolder.
type ConfigHolder interface {
	Get() config.AppConfig
	Reload(ctx context.Context) error
}

// Deps are the collaborators behind the routes. Retention, Breaker and
// Config are optional; their routes answer 503 when absent. Without Health
// the readiness probe always reports ready.
type Deps struct {
	Service   *dvr.Service
	Retention *retention.Manager
	Breaker   *openwebif.CircuitBreaker
	Config    ConfigHolder
	Health    *health.Manager
	Version   string
	// RateLimitRPM is the per-client request budget. Zero disables limiting.
	RateLimitRPM int
	// TracingService names server spans. Empty disables HTTP tracing.
	TracingService string
}

// Server represents the HTTP API server.
type Server struct {
	deps      Deps
	startTime time.Time
	logger    zerolog.Logger
	handler   http.Handler
}

// New builds the server and its routes.
func New(deps Deps) (*Server, error) {
	if deps.Service == nil {
		return nil, errors.New("api: service is required")
	}
	s := &Server{
		deps:      deps,
		startTime: time.Now(),
		logger:    log.WithComponent("api"),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Scans and bulk cancels can run for minutes.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  2 * time.Minute,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str(log.FieldEvent, "api.listening").Str("addr", ln.Addr().String()).Msg("API server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Str(log.FieldEvent, "api.shutdown").Msg("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.deps.TracingService,
		EnableLogging:         true,
		RateLimitRPM:          s.deps.RateLimitRPM,
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.handleListSubscriptions)
			r.Post("/", s.handleCreateSubscription)
			r.Put("/order", s.handleReorderSubscriptions)
			r.Post("/test", s.handleTestDraftSubscription)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSubscription)
				r.Put("/", s.handleUpdateSubscription)
				r.Delete("/", s.handleDeleteSubscription)
				r.Post("/toggle", s.handleToggleSubscription)
				r.Post("/test", s.handleTestSubscription)
			})
		})

		r.Post("/score", s.handleScore)

		r.Route("/scan", func(r chi.Router) {
			r.With(middleware.ScanRateLimit()).Post("/", s.handleTriggerScan)
			r.With(middleware.ScanRateLimit()).Post("/dry-run", s.handleDryRun)
			r.Get("/last", s.handleLastScan)
			r.Get("/cache", s.handleListScheduled)
			r.Delete("/cache", s.handleClearScheduled)
		})

		r.Route("/timers", func(r chi.Router) {
			r.Use(middleware.ScanRateLimit())
			r.Post("/cancel-managed", s.handleCancelManaged)
			r.Post("/cancel-all", s.handleCancelAll)
		})

		r.Route("/aliases", func(r chi.Router) {
			r.Get("/", s.handleListAliases)
			r.Get("/{name}", s.handleExpandAlias)
			r.Put("/{name}", s.handleSetAlias)
			r.Delete("/{name}", s.handleRemoveAlias)
		})

		r.Route("/retention", func(r chi.Router) {
			r.Post("/run", s.handleRetentionRun)
			r.Get("/plan", s.handleRetentionPlan)
			r.Get("/last", s.handleRetentionLast)
		})

		r.Get("/config", s.handleGetConfig)
		r.Post("/config/reload", s.handleReloadConfig)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusNotFound, codeNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
	})
	return r
}
