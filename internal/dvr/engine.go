// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/sportsdvr/internal/cache"
	"github.com/ManuGH/sportsdvr/internal/log"
	"github.com/ManuGH/sportsdvr/internal/metrics"
	"github.com/ManuGH/sportsdvr/internal/subscription"
	"github.com/ManuGH/sportsdvr/internal/telemetry"
)

var (
	ErrScanCancelled         = errors.New("scan cancelled")
	ErrGuideUnavailable      = errors.New("guide source unavailable")
	ErrTimerStoreUnavailable = errors.New("timer store unavailable")
	ErrCacheUnavailable      = errors.New("scheduled-programs cache unavailable")

	// ErrTimerConflict is wrapped by TimerStore.CreateTimer when the store refuses
	// a timer because it overlaps timers it cannot record in parallel.
	ErrTimerConflict = errors.New("timer store reported a conflicting timer")
	// ErrTimerNotFound is wrapped by TimerStore.CancelTimer when the timer is gone.
	ErrTimerNotFound = errors.New("timer not found")
)

// Settings are the tunables of a scan. They can be swapped between scans.
type Settings struct {
	// Budget is the number of recordings that may run at once. Zero refuses to scan.
	Budget              int
	Horizon             time.Duration
	ChannelFetchTimeout time.Duration
	TimerCallTimeout    time.Duration
	FetchParallelism    int
}

// DefaultSettings returns everything except a budget, which has no safe default.
func DefaultSettings() Settings {
	return Settings{
		Horizon:             72 * time.Hour,
		ChannelFetchTimeout: 15 * time.Second,
		TimerCallTimeout:    10 * time.Second,
		FetchParallelism:    4,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Horizon <= 0 {
		s.Horizon = d.Horizon
	}
	if s.ChannelFetchTimeout <= 0 {
		s.ChannelFetchTimeout = d.ChannelFetchTimeout
	}
	if s.TimerCallTimeout <= 0 {
		s.TimerCallTimeout = d.TimerCallTimeout
	}
	if s.FetchParallelism <= 0 {
		s.FetchParallelism = d.FetchParallelism
	}
	return s
}

// SubscriptionSource lists the current subscriptions in list order.
type SubscriptionSource interface {
	List() []subscription.Subscription
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Guide         GuideSource
	Timers        TimerStore
	Subscriptions SubscriptionSource
	Scheduled     cache.ScheduledSet
	Planner       *Planner
	Settings      Settings
	// ReportDir receives last_scan.json. Empty disables persistence.
	ReportDir string
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Engine runs scans. Scans and administrative timer/cache operations are
// serialized by one mutex; concurrent RunOnce calls join the scan in flight.
type Engine struct {
	guide     GuideSource
	timers    TimerStore
	subs      SubscriptionSource
	scheduled cache.ScheduledSet
	planner   *Planner
	reportDir string
	now       func() time.Time
	logger    zerolog.Logger
	tracer    trace.Tracer

	mu    sync.Mutex
	group singleflight.Group

	settingsMu sync.RWMutex
	settings   Settings

	lastMu sync.RWMutex
	last   *ScanReport
}

// NewEngine creates an engine. It loads the last persisted report if one exists.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Planner == nil {
		cfg.Planner = NewPlanner(nil, nil)
	}
	if cfg.Scheduled == nil {
		cfg.Scheduled = cache.NewMemoryScheduledSet()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{
		guide:     cfg.Guide,
		timers:    cfg.Timers,
		subs:      cfg.Subscriptions,
		scheduled: cfg.Scheduled,
		planner:   cfg.Planner,
		reportDir: cfg.ReportDir,
		now:       cfg.Now,
		logger:    log.WithComponent("dvr.engine"),
		tracer:    telemetry.Tracer("sportsdvr/dvr"),
		settings:  cfg.Settings.withDefaults(),
	}
	if e.reportDir != "" {
		if r, err := LoadReport(e.reportDir); err != nil {
			e.logger.Warn().Err(err).Msg("ignoring unreadable last scan report")
		} else {
			e.last = r
		}
	}
	return e
}

// Planner returns the engine's planner.
func (e *Engine) Planner() *Planner { return e.planner }

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.settings
}

// SetSettings replaces the settings. A scan in flight keeps the settings it started with.
func (e *Engine) SetSettings(s Settings) {
	e.settingsMu.Lock()
	e.settings = s.withDefaults()
	e.settingsMu.Unlock()
}

// LastReport returns the most recent non-dry-run report, or nil.
func (e *Engine) LastReport() *ScanReport {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	return e.last
}

// RunOnce performs one scan. Concurrent callers share the scan already in flight.
// The report is always returned; the error is one of the Err* sentinels of this
// package when the scan did not complete normally.
func (e *Engine) RunOnce(ctx context.Context, trigger string) (*ScanReport, error) {
	v, err, _ := e.group.Do("scan", func() (any, error) {
		return e.run(ctx, trigger, false)
	})
	report, _ := v.(*ScanReport)
	return report, err
}

// DryRun plans a scan without creating timers or touching the cache.
func (e *Engine) DryRun(ctx context.Context) (*ScanReport, error) {
	v, err, _ := e.group.Do("dry-run", func() (any, error) {
		return e.run(ctx, TriggerDryRun, true)
	})
	report, _ := v.(*ScanReport)
	return report, err
}

func (e *Engine) run(ctx context.Context, trigger string, dryRun bool) (*ScanReport, error) {
	if !dryRun {
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	settings := e.Settings()
	now := e.now().UTC()
	report := &ScanReport{
		RunID:      uuid.NewString(),
		Trigger:    trigger,
		DryRun:     dryRun,
		StartedAt:  now,
		WindowFrom: now,
		WindowTo:   now.Add(settings.Horizon),
		Budget:     settings.Budget,
	}

	ctx = log.ContextWithScanID(ctx, report.RunID)
	logger := log.WithContext(ctx, e.logger)
	ctx, span := e.tracer.Start(ctx, "dvr.scan", trace.WithAttributes(telemetry.ScanAttributes(report.RunID, trigger)...))
	defer span.End()

	logger.Info().Str(log.FieldEvent, "scan.started").Str(log.FieldTrigger, trigger).Bool("dry_run", dryRun).
		Int("budget", settings.Budget).Msg("scan started")

	err := e.scan(ctx, logger, report, settings, now, dryRun)
	switch {
	case errors.Is(err, ErrScanCancelled):
		report.summarize(true)
	case err != nil:
		report.Status = StatusFailed
		if report.Message == "" {
			report.Message = "scan failed: " + err.Error()
		}
		span.SetStatus(codes.Error, err.Error())
	default:
		report.summarize(false)
	}

	report.FinishedAt = e.now().UTC()
	report.DurationMs = report.FinishedAt.Sub(report.StartedAt).Milliseconds()
	span.SetAttributes(telemetry.ScanResultAttributes(report.Status, report.Summary.ChannelsTotal,
		report.Summary.ProgramsFetched, len(report.Decisions), report.Summary.TimersCreated)...)

	evt := logger.Info()
	if report.Status != StatusSuccess {
		evt = logger.Warn()
	}
	evt.Str(log.FieldEvent, "scan.finished").
		Str(log.FieldStatus, report.Status).
		Int("matched", report.Summary.Matched).
		Int("created", report.Summary.TimersCreated).
		Int("already_scheduled", report.Summary.AlreadyScheduled).
		Int("conflicts", report.Summary.Conflicts).
		Int("timer_errors", report.Summary.TimersFailed).
		Int("channels_failed", report.Summary.ChannelsFailed).
		Int64(log.FieldDuration, report.DurationMs).
		Msg(report.Message)

	if !dryRun {
		metrics.RecordScan(report.Status, time.Duration(report.DurationMs)*time.Millisecond, report.FinishedAt)
		for _, d := range report.Decisions {
			metrics.RecordDecision(string(d.Action))
		}
		e.lastMu.Lock()
		e.last = report
		e.lastMu.Unlock()
		if e.reportDir != "" {
			if err := SaveReport(e.reportDir, report); err != nil {
				logger.Warn().Err(err).Msg("failed to persist scan report")
			}
		}
	}
	return report, err
}

func (e *Engine) scan(ctx context.Context, logger zerolog.Logger, report *ScanReport, settings Settings, now time.Time, dryRun bool) error {
	if settings.Budget <= 0 {
		report.Message = "scan refused: concurrency budget not configured"
		return ErrNoConcurrencyBudget
	}

	programs, err := e.fetchPrograms(ctx, logger, report, settings)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ErrScanCancelled
	}

	tctx, cancel := context.WithTimeout(ctx, settings.TimerCallTimeout)
	timers, err := e.timers.ListTimers(tctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ErrScanCancelled
		}
		report.addError("timers", "", err, true, e.now().UTC())
		report.Message = "scan failed: existing timers could not be listed"
		return fmt.Errorf("%w: %v", ErrTimerStoreUnavailable, err)
	}

	entries, err := e.scheduled.List(ctx)
	if err != nil {
		report.addError("cache", "", err, true, e.now().UTC())
		report.Message = "scan failed: scheduled-programs cache could not be read"
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	scheduled := make(map[string]cache.ScheduledEntry, len(entries))
	for _, en := range entries {
		scheduled[en.ProgramID] = en
	}

	var subs []subscription.Subscription
	if e.subs != nil {
		subs = e.subs.List()
	}

	plan, err := e.planner.Plan(PlanInput{
		Now:           now,
		Programs:      programs,
		Subscriptions: subs,
		Budget:        settings.Budget,
		Timers:        timers,
		Scheduled:     scheduled,
	})
	if err != nil {
		return err
	}

	report.Decisions = plan.Decisions
	s := &report.Summary
	s.ProgramsEvaluated = plan.Evaluated
	s.BelowThreshold = plan.BelowThreshold
	s.Unmatched = plan.Unmatched
	s.Matched = len(plan.Decisions)
	s.TimersPlanned = plan.Count(ActionCreateTimer)
	s.AlreadyScheduled = plan.Count(ActionSkipAlreadyScheduled)
	s.Conflicts = plan.Count(ActionSkipConflict)
	s.Excluded = plan.Count(ActionSkipExcluded)
	s.Replays = plan.Count(ActionSkipReplay)

	if dryRun {
		return nil
	}
	return e.apply(ctx, logger, report, settings)
}

func (e *Engine) fetchPrograms(ctx context.Context, logger zerolog.Logger, report *ScanReport, settings Settings) ([]Program, error) {
	cctx, cancel := context.WithTimeout(ctx, settings.ChannelFetchTimeout)
	channels, err := e.guide.ListChannels(cctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrScanCancelled
		}
		report.addError("channels", "", err, true, e.now().UTC())
		report.Message = "scan failed: guide channels could not be listed"
		return nil, fmt.Errorf("%w: %v", ErrGuideUnavailable, err)
	}
	report.Summary.ChannelsTotal = len(channels)

	var (
		mu      sync.Mutex
		results = make([][]Program, len(channels))
		g       errgroup.Group
	)
	g.SetLimit(settings.FetchParallelism)

	for i, ch := range channels {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fctx, cancel := context.WithTimeout(ctx, settings.ChannelFetchTimeout)
			defer cancel()
			fctx, span := e.tracer.Start(fctx, "dvr.fetch_channel", trace.WithAttributes(telemetry.ChannelAttributes(ch.ID, ch.Name)...))
			defer span.End()

			progs, err := e.guide.ListPrograms(fctx, ch.ID, report.WindowFrom, report.WindowTo)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				span.SetStatus(codes.Error, err.Error())
				metrics.IncChannelFetchFailure()
				logger.Warn().Err(err).
					Str(log.FieldEvent, "scan.channel_failed").
					Str(log.FieldChannelID, ch.ID).
					Str("channel", ch.Name).
					Msg("skipping channel")
				mu.Lock()
				report.Summary.ChannelsFailed++
				report.addError("programs", ch.ID, err, true, e.now().UTC())
				mu.Unlock()
				return nil
			}
			for j := range progs {
				if progs[j].ChannelID == "" {
					progs[j].ChannelID = ch.ID
				}
				if progs[j].ChannelName == "" {
					progs[j].ChannelName = ch.Name
				}
			}
			results[i] = progs
			return nil
		})
	}
	_ = g.Wait()

	var out []Program
	for _, progs := range results {
		out = append(out, progs...)
	}
	report.Summary.ProgramsFetched = len(out)
	return out, nil
}

// apply creates the planned timers in rank order. A cache entry is written only
// after the timer store confirmed the create. Cancellation stops before the next create.
func (e *Engine) apply(ctx context.Context, logger zerolog.Logger, report *ScanReport, settings Settings) error {
	ctx, span := e.tracer.Start(ctx, "dvr.apply")
	defer span.End()

	var order []int
	for i, d := range report.Decisions {
		if d.Action == ActionCreateTimer {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := report.Decisions[order[a]], report.Decisions[order[b]]
		if da.Priority != db.Priority {
			return da.Priority > db.Priority
		}
		return da.Program.Start.Before(db.Program.Start)
	})

	s := &report.Summary
	cancelled := false
	for _, idx := range order {
		d := &report.Decisions[idx]
		if ctx.Err() != nil {
			cancelled = true
			s.TimersNotApplied++
			continue
		}

		tctx, cancel := context.WithTimeout(ctx, settings.TimerCallTimeout)
		timerID, err := e.timers.CreateTimer(tctx, TimerRequest{
			Program:        d.Program,
			Priority:       d.Priority,
			SubscriptionID: d.SubscriptionID,
		})
		cancel()
		metrics.RecordTimerOperation("create", err)
		if errors.Is(err, ErrTimerConflict) {
			// The store knows tuner constraints the plan cannot see.
			d.Action = ActionSkipConflict
			d.Reason = "timer store reported a conflict"
			d.Error = err.Error()
			s.Conflicts++
			logger.Info().
				Str(log.FieldEvent, "timer.create_conflict").
				Str(log.FieldProgramID, d.Program.ID).
				Str(log.FieldSubscriptionID, d.SubscriptionID).
				Str("title", d.Program.Title).
				Msg("timer store refused a conflicting timer")
			continue
		}
		if err != nil {
			d.Error = err.Error()
			s.TimersFailed++
			report.addError("create", d.Program.ID, err, true, e.now().UTC())
			logger.Warn().Err(err).
				Str(log.FieldEvent, "timer.create_failed").
				Str(log.FieldProgramID, d.Program.ID).
				Str(log.FieldSubscriptionID, d.SubscriptionID).
				Str("title", d.Program.Title).
				Msg("timer creation failed")
			continue
		}

		d.TimerID = timerID
		d.Applied = true
		s.TimersCreated++
		logger.Info().
			Str(log.FieldEvent, "timer.created").
			Str(log.FieldTimerID, timerID).
			Str(log.FieldProgramID, d.Program.ID).
			Str(log.FieldSubscriptionID, d.SubscriptionID).
			Int("priority", d.Priority).
			Str("title", d.Program.Title).
			Time("start", d.Program.Start).
			Msg("timer created")

		// The timer exists now; record it even if the scan is being cancelled.
		pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), settings.TimerCallTimeout)
		err = e.scheduled.Put(pctx, cache.ScheduledEntry{
			ProgramID:      d.Program.ID,
			SubscriptionID: d.SubscriptionID,
			TimerID:        timerID,
			Title:          d.Program.Title,
			Channel:        d.Program.ChannelName,
			Start:          d.Program.Start,
			ScheduledAt:    e.now().UTC(),
		})
		pcancel()
		if err != nil {
			s.CacheWriteFailed++
			report.addError("cache", d.Program.ID, err, true, e.now().UTC())
			logger.Warn().Err(err).Str(log.FieldProgramID, d.Program.ID).Msg("failed to record scheduled program")
		}
	}

	e.updateCacheGauge(context.WithoutCancel(ctx))
	if cancelled {
		return ErrScanCancelled
	}
	return nil
}
