// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/sportsdvr/internal/cache"
	"github.com/ManuGH/sportsdvr/internal/log"
	"github.com/ManuGH/sportsdvr/internal/metrics"
)

// CancelResult reports a bulk timer cancellation.
type CancelResult struct {
	Cancelled int      `json:"cancelled"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// CancelManagedTimers cancels every timer this scheduler created. A timer is
// managed when the store marks it so or when the scheduled cache references it.
// Cache entries of cancelled timers are removed so the next scan may re-create them.
func (e *Engine) CancelManagedTimers(ctx context.Context) (CancelResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings := e.Settings()
	logger := log.WithContext(ctx, e.logger)

	tctx, cancel := context.WithTimeout(ctx, settings.TimerCallTimeout)
	timers, err := e.timers.ListTimers(tctx)
	cancel()
	if err != nil {
		return CancelResult{}, fmt.Errorf("%w: %v", ErrTimerStoreUnavailable, err)
	}

	entries, err := e.scheduled.List(ctx)
	if err != nil {
		return CancelResult{}, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	byTimer := make(map[string]cache.ScheduledEntry, len(entries))
	byProgram := make(map[string]bool, len(entries))
	for _, en := range entries {
		if en.TimerID != "" {
			byTimer[en.TimerID] = en
		}
		byProgram[en.ProgramID] = true
	}

	var res CancelResult
	for _, t := range timers {
		_, tracked := byTimer[t.ID]
		if !t.Managed && !tracked && !(t.ProgramID != "" && byProgram[t.ProgramID]) {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		tctx, cancel := context.WithTimeout(ctx, settings.TimerCallTimeout)
		err := e.timers.CancelTimer(tctx, t.ID)
		cancel()
		metrics.RecordTimerOperation("cancel", err)
		if errors.Is(err, ErrTimerNotFound) {
			logger.Debug().Str(log.FieldTimerID, t.ID).Msg("timer already gone")
			err = nil
		}
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", t.Name, err))
			logger.Warn().Err(err).Str(log.FieldEvent, "timer.cancel_failed").Str(log.FieldTimerID, t.ID).Msg("timer cancellation failed")
			continue
		}
		res.Cancelled++
		logger.Info().Str(log.FieldEvent, "timer.cancelled").Str(log.FieldTimerID, t.ID).Str("title", t.Name).Msg("managed timer cancelled")

		programID := t.ProgramID
		if en, ok := byTimer[t.ID]; ok {
			programID = en.ProgramID
		}
		if programID != "" {
			if err := e.scheduled.Delete(ctx, programID); err != nil {
				logger.Warn().Err(err).Str(log.FieldProgramID, programID).Msg("failed to drop scheduled entry")
			}
		}
	}
	e.updateCacheGauge(ctx)
	return res, nil
}

// CancelAllTimers removes every timer in the store regardless of origin and
// clears the scheduled cache.
func (e *Engine) CancelAllTimers(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := log.WithContext(ctx, e.logger)
	tctx, cancel := context.WithTimeout(ctx, e.Settings().TimerCallTimeout)
	n, err := e.timers.CancelAll(tctx)
	cancel()
	metrics.RecordTimerOperation("cancel_all", err)
	if err != nil && n == 0 {
		return 0, fmt.Errorf("%w: %v", ErrTimerStoreUnavailable, err)
	}
	var errs []error
	if err != nil {
		// Some timers are gone; their cache entries must not survive.
		logger.Warn().Err(err).Str(log.FieldEvent, "timer.cancel_all_partial").Int("count", n).Msg("timer store cancelled only part of the timers")
		errs = append(errs, fmt.Errorf("%w: %v", ErrTimerStoreUnavailable, err))
	} else {
		logger.Warn().Str(log.FieldEvent, "timer.cancelled_all").Int("count", n).Msg("all timers cancelled")
	}

	if _, err := e.scheduled.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrCacheUnavailable, err))
	}
	e.updateCacheGauge(ctx)
	return n, errors.Join(errs...)
}

// ClearScheduledCache forgets which programs were scheduled. It has no external side effects.
func (e *Engine) ClearScheduledCache(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.scheduled.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	logger := log.WithContext(ctx, e.logger)
	logger.Info().Str(log.FieldEvent, "cache.cleared").Int("count", n).Msg("scheduled cache cleared")
	e.updateCacheGauge(ctx)
	return n, nil
}

// ScheduledEntries lists the scheduled cache.
func (e *Engine) ScheduledEntries(ctx context.Context) ([]cache.ScheduledEntry, error) {
	return e.scheduled.List(ctx)
}

// Rehydrate rebuilds missing cache entries from managed timers that carry a
// program id. It returns the number of entries added.
func (e *Engine) Rehydrate(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, e.Settings().TimerCallTimeout)
	timers, err := e.timers.ListTimers(tctx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTimerStoreUnavailable, err)
	}

	now := e.now().UTC()
	added := 0
	for _, t := range timers {
		if !t.Managed || t.ProgramID == "" || !t.End.After(now) {
			continue
		}
		ok, err := e.scheduled.Has(ctx, t.ProgramID)
		if err != nil {
			return added, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		if ok {
			continue
		}
		err = e.scheduled.Put(ctx, cache.ScheduledEntry{
			ProgramID:      t.ProgramID,
			SubscriptionID: t.SubscriptionID,
			TimerID:        t.ID,
			Title:          t.Name,
			Channel:        t.ChannelName,
			Start:          t.Start,
			ScheduledAt:    now,
		})
		if err != nil {
			return added, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		added++
	}
	if added > 0 {
		e.logger.Info().Int("count", added).Msg("scheduled cache rehydrated from timer store")
	}
	e.updateCacheGauge(ctx)
	return added, nil
}

func (e *Engine) updateCacheGauge(ctx context.Context) {
	if n, err := e.scheduled.Len(ctx); err == nil {
		metrics.SetScheduledCacheEntries(n)
	}
}
