// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/sportsdvr/internal/log"
)

// Runner runs one scan.
type Runner interface {
	RunOnce(ctx context.Context, trigger string) (*ScanReport, error)
}

// Clock interface for mocking time
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) ClockTimer
}

// ClockTimer interface for mocking time.Timer
type ClockTimer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// RealClock implements Clock using standard time package
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
func (RealClock) NewTimer(d time.Duration) ClockTimer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time        { return r.t.C }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

// Scheduler runs scans once a day at DailyAt, optionally shortly after start, and
// on demand. A failed or degraded run is retried with exponential backoff until a
// run succeeds; the daily schedule resumes afterwards.
type Scheduler struct {
	runner Runner
	logger zerolog.Logger

	// DailyAt is the local wall-clock time of the daily scan, "HH:MM".
	DailyAt      string
	StartupScan  bool
	BaseInterval time.Duration
	MaxInterval  time.Duration
	Jitter       time.Duration
	StartupDelay time.Duration

	clock    Clock
	triggers chan string

	mu              sync.Mutex
	currentInterval time.Duration
	retryPending    bool
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner Runner, dailyAt string) *Scheduler {
	return &Scheduler{
		runner:       runner,
		logger:       log.WithComponent("dvr.scheduler"),
		DailyAt:      dailyAt,
		StartupScan:  true,
		BaseInterval: 10 * time.Minute,
		MaxInterval:  60 * time.Minute,
		Jitter:       60 * time.Second,
		StartupDelay: 10 * time.Second,
		clock:        RealClock{},
		triggers:     make(chan string, 1),
	}
}

// WithClock replaces the clock (tests).
func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

// ParseDailyAt parses "HH:MM" in 24-hour notation.
func ParseDailyAt(v string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid daily time %q (want HH:MM)", v)
	}
	return t.Hour(), t.Minute(), nil
}

// Trigger queues an on-demand scan. It returns false when one is already queued.
func (s *Scheduler) Trigger() bool {
	select {
	case s.triggers <- TriggerManual:
		return true
	default:
		return false
	}
}

// Start begins the scheduling loop in a background goroutine.
// It returns immediately. The loop stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() { _ = s.Run(ctx) }()
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, _, err := ParseDailyAt(s.DailyAt); err != nil {
		return err
	}
	s.logger.Info().Str("daily_at", s.DailyAt).Bool("startup_scan", s.StartupScan).Msg("scheduler started")

	var (
		d       time.Duration
		trigger string
	)
	if s.StartupScan {
		d, trigger = s.StartupDelay+s.jitterDuration(), TriggerStartup
	} else {
		d, trigger = s.next()
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopping")
			return nil
		case t := <-s.triggers:
			s.execute(ctx, t)
		case <-timer.C():
			s.execute(ctx, trigger)
		}
		if ctx.Err() != nil {
			s.logger.Info().Msg("scheduler stopping")
			return nil
		}
		d, trigger = s.next()
		timer.Stop()
		timer.Reset(d)
		s.logger.Debug().Str(log.FieldTrigger, trigger).Str("in", d.String()).Msg("next scan scheduled")
	}
}

func (s *Scheduler) execute(ctx context.Context, trigger string) {
	report, err := s.runner.RunOnce(ctx, trigger)
	switch {
	case errors.Is(err, ErrNoConcurrencyBudget):
		// Retrying cannot help until the configuration changes.
		s.logger.Error().Err(err).Str(log.FieldTrigger, trigger).Msg("scan refused")
		s.setRetry(false)
	case errors.Is(err, ErrScanCancelled):
	case report == nil:
		s.logger.Error().Err(err).Str(log.FieldTrigger, trigger).Msg("scan failed, backing off")
		s.increaseBackoff()
	case report.Status == StatusFailed || report.Status == StatusDegraded:
		s.logger.Warn().Str(log.FieldStatus, report.Status).Str(log.FieldTrigger, trigger).
			Msg("scan incomplete, backing off")
		s.increaseBackoff()
	default:
		s.resetBackoff()
	}
}

// next returns the delay and trigger of the next scheduled run.
func (s *Scheduler) next() (time.Duration, string) {
	s.mu.Lock()
	retry, interval := s.retryPending, s.currentInterval
	s.mu.Unlock()

	if retry {
		d := interval + s.jitterDuration()
		if daily := s.untilDaily(); daily < d {
			return daily, TriggerDaily
		}
		return d, TriggerRetry
	}
	return s.untilDaily(), TriggerDaily
}

func (s *Scheduler) untilDaily() time.Duration {
	hour, minute, _ := ParseDailyAt(s.DailyAt)
	now := s.clock.Now()
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at.Sub(now)
}

func (s *Scheduler) jitterDuration() time.Duration {
	// Random duration between -Jitter and +Jitter
	if s.Jitter <= 0 {
		return 0
	}
	ms := int64(s.Jitter / time.Millisecond)
	if ms == 0 {
		return 0
	}
	delta := rand.Int64N(ms*2) - ms
	return time.Duration(delta) * time.Millisecond
}

func (s *Scheduler) increaseBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.retryPending || s.currentInterval == 0 {
		s.currentInterval = s.BaseInterval
	} else {
		s.currentInterval *= 2
	}
	if s.currentInterval > s.MaxInterval {
		s.currentInterval = s.MaxInterval
	}
	s.retryPending = true
	s.logger.Info().Str("next_interval", s.currentInterval.String()).Msg("increased scheduler backoff")
}

func (s *Scheduler) resetBackoff() {
	s.setRetry(false)
}

func (s *Scheduler) setRetry(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retryPending && !v {
		s.logger.Info().Msg("reset scheduler backoff")
	}
	s.retryPending = v
	if !v {
		s.currentInterval = 0
	}
}
