// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/sportsdvr/internal/alias"
	"github.com/ManuGH/sportsdvr/internal/log"
	"github.com/ManuGH/sportsdvr/internal/match"
	"github.com/ManuGH/sportsdvr/internal/scoring"
	"github.com/ManuGH/sportsdvr/internal/subscription"
)

// MaxTestHorizonHours bounds TestSubscription.
const MaxTestHorizonHours = 14 * 24

// TestedProgram is one program matched by TestSubscription.
type TestedProgram struct {
	Program Program               `json:"program"`
	Scored  scoring.ScoredProgram `json:"scored"`
	Reasons []string              `json:"reasons"`
	// WouldRecord is false when the program would be skipped as a replay.
	WouldRecord bool   `json:"wouldRecord"`
	SkipReason  string `json:"skipReason,omitempty"`
}

// MatchTestResult is the answer of TestSubscription.
type MatchTestResult struct {
	Subscription   subscription.Subscription `json:"subscription"`
	HorizonHours   int                       `json:"horizonHours"`
	ChannelsFailed int                       `json:"channelsFailed"`
	Evaluated      int                       `json:"evaluated"`
	Matches        []TestedProgram           `json:"matches"`
	// FallbackLiteral reports that the match expression did not compile as a
	// regular expression and was matched literally.
	FallbackLiteral bool `json:"fallbackLiteral"`
}

// Service is the operation surface consumed by the HTTP API and the CLI.
type Service struct {
	engine  *Engine
	store   *subscription.Store
	aliases *alias.Registry
	guide   GuideSource

	aliasFile string
	aliasMu   sync.Mutex

	now    func() time.Time
	logger zerolog.Logger
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Engine  *Engine
	Store   *subscription.Store
	Aliases *alias.Registry
	// Guide serves TestSubscription, usually a CachedGuide.
	Guide GuideSource
	// DataDir holds aliases.json. Empty keeps custom aliases in memory.
	DataDir string
	Now     func() time.Time
}

// NewService wires the service and registers the matcher on store changes so
// patterns are compiled once per create or update.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Service{
		engine:  cfg.Engine,
		store:   cfg.Store,
		aliases: cfg.Aliases,
		guide:   cfg.Guide,
		now:     cfg.Now,
		logger:  log.WithComponent("dvr.service"),
	}
	if cfg.DataDir != "" {
		s.aliasFile = filepath.Join(cfg.DataDir, alias.FileName)
	}
	m := s.engine.Planner().Matcher()
	s.store.OnChange(m.HandleEvent)
	for _, sub := range s.store.List() {
		m.Compile(sub)
	}
	return s
}

// Engine returns the scan engine.
func (s *Service) Engine() *Engine { return s.engine }

// ScoreTitle classifies a title.
func (s *Service) ScoreTitle(title, channel, description string, sportsHint bool) scoring.ScoredProgram {
	return s.engine.Planner().Scorer(s.now().Year()).Score(title, channel, description, sportsHint)
}

// TestSubscription lists the upcoming programs sub would match within horizonHours.
// The subscription need not be stored.
func (s *Service) TestSubscription(ctx context.Context, sub subscription.Subscription, horizonHours int) (MatchTestResult, error) {
	if horizonHours <= 0 {
		horizonHours = int(s.engine.Settings().Horizon / time.Hour)
	}
	if horizonHours > MaxTestHorizonHours {
		horizonHours = MaxTestHorizonHours
	}
	if sub.Kind == "" {
		sub.Kind = subscription.KindTeam
	}
	if err := sub.Validate(); err != nil {
		return MatchTestResult{}, err
	}
	sub.Enabled = true

	// Evaluated under a throwaway id so the stored subscription's compiled pattern stays intact.
	m := s.engine.Planner().Matcher()
	sub.ID = "test:" + uuid.NewString()
	defer m.Forget(sub.ID)

	now := s.now().UTC()
	programs, failed, err := s.fetchWindow(ctx, now, now.Add(time.Duration(horizonHours)*time.Hour))
	if err != nil {
		return MatchTestResult{}, err
	}

	res := MatchTestResult{
		Subscription:    sub,
		HorizonHours:    horizonHours,
		ChannelsFailed:  failed,
		FallbackLiteral: m.IsFallback(sub),
		Matches:         []TestedProgram{},
	}
	res.Subscription.ID = ""

	scorer := s.engine.Planner().Scorer(now.Year())
	subs := []subscription.Subscription{sub}
	for _, prog := range programs {
		if !prog.End.After(now) {
			continue
		}
		res.Evaluated++
		sp := scorer.Score(prog.Title, prog.ChannelName, prog.Description, prog.IsSportsCategory)
		if !sp.IsPossibleGame {
			continue
		}
		att, ok := s.engine.Planner().Attribute(prog, sp, subs)
		if !ok {
			continue
		}
		tp := TestedProgram{Program: prog, Scored: sp, Reasons: att.Result.Reasons, WouldRecord: true}
		if sp.IsReplay && !sub.IncludeReplays {
			tp.WouldRecord = false
			tp.SkipReason = "replay"
		}
		res.Matches = append(res.Matches, tp)
	}
	sort.SliceStable(res.Matches, func(i, j int) bool {
		return res.Matches[i].Program.Start.Before(res.Matches[j].Program.Start)
	})
	return res, nil
}

func (s *Service) fetchWindow(ctx context.Context, from, to time.Time) ([]Program, int, error) {
	settings := s.engine.Settings()
	cctx, cancel := context.WithTimeout(ctx, settings.ChannelFetchTimeout)
	channels, err := s.guide.ListChannels(cctx)
	cancel()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrGuideUnavailable, err)
	}

	var (
		mu     sync.Mutex
		out    []Program
		failed int
		g      errgroup.Group
	)
	g.SetLimit(settings.FetchParallelism)
	for _, ch := range channels {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, settings.ChannelFetchTimeout)
			defer cancel()
			progs, err := s.guide.ListPrograms(fctx, ch.ID, from, to)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return nil
			}
			for _, p := range progs {
				if p.ChannelName == "" {
					p.ChannelName = ch.Name
				}
				if p.ChannelID == "" {
					p.ChannelID = ch.ID
				}
				out = append(out, p)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, failed, ctx.Err()
}

// TriggerScan runs a scan now, or joins the one in flight.
func (s *Service) TriggerScan(ctx context.Context) (TriggerResult, error) {
	report, err := s.engine.RunOnce(ctx, TriggerManual)
	if report == nil {
		return TriggerResult{Status: StatusFailed, Message: "scan did not run"}, err
	}
	return report.Result(), err
}

// DryRun plans a scan without side effects.
func (s *Service) DryRun(ctx context.Context) (*ScanReport, error) {
	return s.engine.DryRun(ctx)
}

// LastReport returns the last scan report or nil.
func (s *Service) LastReport() *ScanReport { return s.engine.LastReport() }

func (s *Service) ClearScheduledCache(ctx context.Context) (int, error) {
	return s.engine.ClearScheduledCache(ctx)
}

func (s *Service) CancelManagedTimers(ctx context.Context) (CancelResult, error) {
	return s.engine.CancelManagedTimers(ctx)
}

func (s *Service) CancelAllTimers(ctx context.Context) (int, error) {
	return s.engine.CancelAllTimers(ctx)
}

// Subscriptions.

func (s *Service) ListSubscriptions() []subscription.Subscription { return s.store.List() }

func (s *Service) GetSubscription(id string) (subscription.Subscription, error) {
	sub, ok := s.store.Get(id)
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return sub, nil
}

func (s *Service) AddSubscription(sub subscription.Subscription) (subscription.Subscription, error) {
	return s.store.Add(sub)
}

func (s *Service) UpdateSubscription(id string, sub subscription.Subscription) (subscription.Subscription, error) {
	return s.store.Update(id, sub)
}

func (s *Service) ToggleSubscription(id string) (subscription.Subscription, error) {
	return s.store.Toggle(id)
}

func (s *Service) DeleteSubscription(id string) error { return s.store.Delete(id) }

func (s *Service) ReorderSubscriptions(ids []string) error { return s.store.Reorder(ids) }

// Aliases.

// AliasEntry is one canonical name with its aliases.
type AliasEntry struct {
	Canonical string   `json:"canonical"`
	Aliases   []string `json:"aliases"`
	Custom    bool     `json:"custom"`
}

// ListAliases returns the custom alias table sorted by canonical name.
func (s *Service) ListAliases() []AliasEntry {
	custom := s.aliases.Custom()
	out := make([]AliasEntry, 0, len(custom))
	for canonical, aliases := range custom {
		out = append(out, AliasEntry{Canonical: canonical, Aliases: aliases, Custom: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical < out[j].Canonical })
	return out
}

// ExpandAlias returns the canonical form and every known spelling of name.
func (s *Service) ExpandAlias(name string) AliasEntry {
	canonical := s.aliases.Resolve(name)
	_, custom := s.aliases.Custom()[canonical]
	return AliasEntry{Canonical: canonical, Aliases: s.aliases.AliasesOf(name), Custom: custom}
}

// SetAlias binds aliases to canonical and persists the custom table.
func (s *Service) SetAlias(canonical string, aliases []string) error {
	if canonical == "" {
		return fmt.Errorf("%w: canonical name is required", subscription.ErrInvalid)
	}
	s.aliasMu.Lock()
	defer s.aliasMu.Unlock()
	prev := s.aliases.Custom()
	s.aliases.SetCustom(canonical, aliases)
	return s.persistAliasesLocked(prev)
}

// RemoveAlias drops a custom canonical entry.
func (s *Service) RemoveAlias(canonical string) error {
	s.aliasMu.Lock()
	defer s.aliasMu.Unlock()
	prev := s.aliases.Custom()
	if !s.aliases.RemoveCustom(canonical) {
		return subscription.ErrNotFound
	}
	return s.persistAliasesLocked(prev)
}

// ReloadAliases replaces the custom table from aliases.json.
func (s *Service) ReloadAliases() error {
	if s.aliasFile == "" {
		return nil
	}
	s.aliasMu.Lock()
	defer s.aliasMu.Unlock()
	table, err := alias.LoadFile(s.aliasFile)
	if err != nil {
		return err
	}
	s.aliases.ReplaceCustom(table)
	s.logger.Info().Int("count", len(table)).Msg("custom aliases reloaded")
	return nil
}

// AliasFile returns the alias file path, empty when aliases are not persisted.
func (s *Service) AliasFile() string { return s.aliasFile }

func (s *Service) persistAliasesLocked(prev map[string][]string) error {
	if s.aliasFile == "" {
		return nil
	}
	if err := alias.SaveFile(s.aliasFile, s.aliases.Custom()); err != nil {
		s.aliases.ReplaceCustom(prev)
		return fmt.Errorf("save aliases: %w", err)
	}
	return nil
}

// MatchOptions returns the matcher options.
func (s *Service) MatchOptions() match.Options { return s.engine.Planner().Matcher().Options() }
