// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/sportsdvr/internal/cache"
	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/health"
	"github.com/ManuGH/sportsdvr/internal/openwebif"
)

// lastScanMaxAge is how old the last scan may get before readiness degrades.
const lastScanMaxAge = 36 * time.Hour

var errBreakerOpen = errors.New("receiver circuit breaker is open")

func newReadiness(version, dataDir string, scheduled cache.ScheduledSet, breaker *openwebif.CircuitBreaker, svc *dvr.Service) *health.Manager {
	m := health.NewManager(version)
	m.RegisterChecker(health.NewWritableDirChecker("data_dir", dataDir))
	m.RegisterChecker(health.NewFuncChecker("scheduled_cache", func(ctx context.Context) error {
		_, err := scheduled.Len(ctx)
		return err
	}))
	m.RegisterChecker(health.Informational(health.NewFuncChecker("receiver", func(context.Context) error {
		if breaker != nil && breaker.State() == openwebif.StateOpen {
			return errBreakerOpen
		}
		return nil
	})))
	m.RegisterChecker(health.NewLastScanChecker(func() (time.Time, string, string) {
		r := svc.LastReport()
		if r == nil {
			return time.Time{}, "", ""
		}
		return r.FinishedAt, r.Status, r.Message
	}, lastScanMaxAge))
	return m
}
