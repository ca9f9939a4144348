// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/sportsdvr/internal/log"
	"github.com/ManuGH/sportsdvr/internal/metrics"
	"github.com/ManuGH/sportsdvr/internal/subscription"
)

// ErrBusy is returned when a run is already in progress.
var ErrBusy = errors.New("retention run already in progress")

// SubscriptionSource lists the current subscriptions.
type SubscriptionSource interface {
	List() []subscription.Subscription
}

// Options tune a Manager.
type Options struct {
	// DryRun evaluates without deleting.
	DryRun bool
	// CallTimeout bounds each recording store call.
	CallTimeout time.Duration
	Now         func() time.Time
}

// Planned is one recording selected for deletion in a run.
type Planned struct {
	SubscriptionID   string    `json:"subscriptionId"`
	SubscriptionName string    `json:"subscriptionName"`
	Recording        Recording `json:"recording"`
	Reasons          []Reason  `json:"reasons"`
	Deleted          bool      `json:"deleted"`
	Error            string    `json:"error,omitempty"`
}

// Report summarizes one run.
type Report struct {
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	DryRun        bool      `json:"dryRun"`
	Subscriptions int       `json:"subscriptions"`
	Evaluated     int       `json:"evaluated"`
	Protected     int       `json:"protected"`
	Deleted       int       `json:"deleted"`
	Failed        int       `json:"failed"`
	ListFailures  int       `json:"listFailures"`
	Planned       []Planned `json:"planned"`
}

// Manager applies retention to every subscription.
type Manager struct {
	subs   SubscriptionSource
	store  RecordingStore
	logger zerolog.Logger

	mu   sync.RWMutex
	opts Options
	busy atomic.Bool

	lastMu sync.RWMutex
	last   *Report
}

// NewManager creates a manager.
func NewManager(subs SubscriptionSource, store RecordingStore, opts Options) *Manager {
	return &Manager{
		subs:   subs,
		store:  store,
		logger: log.WithComponent("retention"),
		opts:   opts.withDefaults(),
	}
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 15 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// SetDryRun switches dry-run mode for later runs.
func (m *Manager) SetDryRun(v bool) {
	m.mu.Lock()
	m.opts.DryRun = v
	m.mu.Unlock()
}

// LastReport returns the last completed run, or nil.
func (m *Manager) LastReport() *Report {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	return m.last
}

// Run evaluates every subscription and deletes flagged recordings unless dry-run.
func (m *Manager) Run(ctx context.Context) (*Report, error) {
	m.mu.RLock()
	opts := m.opts
	m.mu.RUnlock()
	return m.run(ctx, opts.DryRun, opts)
}

// Plan evaluates every subscription without deleting anything.
func (m *Manager) Plan(ctx context.Context) (*Report, error) {
	m.mu.RLock()
	opts := m.opts
	m.mu.RUnlock()
	return m.run(ctx, true, opts)
}

func (m *Manager) run(ctx context.Context, dryRun bool, opts Options) (*Report, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer m.busy.Store(false)

	now := opts.Now().UTC()
	report := &Report{StartedAt: now, DryRun: dryRun, Planned: []Planned{}}
	// A recording listed under several subscriptions is handled once per run.
	deleted := make(map[string]bool)

	for _, sub := range m.subs.List() {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if sub.KeepLast <= 0 && sub.RetentionDays <= 0 {
			continue
		}
		report.Subscriptions++

		lctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
		recs, err := m.store.ListCompleted(lctx, sub.ID)
		cancel()
		if err != nil {
			report.ListFailures++
			metrics.IncRetentionFailure()
			m.logger.Warn().Err(err).Str(log.FieldSubscriptionID, sub.ID).Msg("listing recordings failed")
			continue
		}

		decisions := Evaluate(sub, recs, now)
		report.Evaluated += len(decisions)
		for _, d := range decisions {
			if d.Protected {
				report.Protected++
			}
		}

		for _, d := range Deletions(decisions) {
			if deleted[d.Recording.ID] {
				continue
			}
			deleted[d.Recording.ID] = true
			p := Planned{SubscriptionID: sub.ID, SubscriptionName: sub.Name, Recording: d.Recording, Reasons: d.Reasons}
			if !dryRun && ctx.Err() == nil {
				if err := m.delete(ctx, opts, sub, d); err != nil {
					p.Error = err.Error()
					report.Failed++
				} else {
					p.Deleted = true
					report.Deleted++
				}
			}
			report.Planned = append(report.Planned, p)
		}
	}

	report.FinishedAt = opts.Now().UTC()
	m.logger.Info().
		Str(log.FieldEvent, "retention.finished").
		Bool("dry_run", dryRun).
		Int("planned", len(report.Planned)).
		Int("deleted", report.Deleted).
		Int("failed", report.Failed).
		Msg("retention run finished")

	if !dryRun {
		m.lastMu.Lock()
		m.last = report
		m.lastMu.Unlock()
	}
	return report, ctx.Err()
}

func (m *Manager) delete(ctx context.Context, opts Options, sub subscription.Subscription, d Decision) error {
	dctx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()
	if err := m.store.Delete(dctx, d.Recording.ID); err != nil {
		metrics.IncRetentionFailure()
		m.logger.Warn().Err(err).
			Str(log.FieldEvent, "retention.delete_failed").
			Str(log.FieldRecordingID, d.Recording.ID).
			Str(log.FieldSubscriptionID, sub.ID).
			Msg("deleting recording failed")
		return fmt.Errorf("delete %s: %w", d.Recording.ID, err)
	}
	for _, r := range d.Reasons {
		metrics.RecordRetentionDeletion(string(r))
	}
	m.logger.Info().
		Str(log.FieldEvent, "retention.deleted").
		Str(log.FieldRecordingID, d.Recording.ID).
		Str(log.FieldSubscriptionID, sub.ID).
		Str("title", d.Recording.Title).
		Time("aired_at", d.Recording.AiredAt).
		Msg("recording deleted")
	return nil
}

// Sweeper runs the manager periodically.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   zerolog.Logger
}

// NewSweeper creates a sweeper. A non-positive interval defaults to 6h.
func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Sweeper{manager: m, interval: interval, logger: log.WithComponent("retention")}
}

// Run blocks until ctx is cancelled. The first run happens after one interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Msg("retention sweep incomplete")
			}
		}
	}
}
