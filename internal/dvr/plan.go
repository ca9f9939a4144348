// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/sportsdvr/internal/alias"
	"github.com/ManuGH/sportsdvr/internal/cache"
	"github.com/ManuGH/sportsdvr/internal/match"
	"github.com/ManuGH/sportsdvr/internal/scoring"
	"github.com/ManuGH/sportsdvr/internal/subscription"
)

// ErrNoConcurrencyBudget is returned when no tuner budget is configured.
var ErrNoConcurrencyBudget = errors.New("concurrency budget not configured")

// Action is the outcome of planning one matched program.
type Action string

const (
	ActionCreateTimer          Action = "CreateTimer"
	ActionSkipAlreadyScheduled Action = "SkipAlreadyScheduled"
	ActionSkipConflict         Action = "SkipConflict"
	ActionSkipExcluded         Action = "SkipExcluded"
	ActionSkipReplay           Action = "SkipReplay"
)

// Decision is the planner's output for one matched program.
type Decision struct {
	Program          Program               `json:"program"`
	Scored           scoring.ScoredProgram `json:"scored"`
	SubscriptionID   string                `json:"subscriptionId"`
	SubscriptionName string                `json:"subscriptionName"`
	Action           Action                `json:"action"`
	// Priority is attached to the external timer for CreateTimer.
	Priority int      `json:"priority"`
	Reason   string   `json:"reason,omitempty"`
	Match    []string `json:"matchReasons,omitempty"`

	// Set by the engine while applying the plan.
	TimerID string `json:"timerId,omitempty"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`

	sortOrder int
}

// PlanInput is an immutable snapshot of everything a scan decides on.
type PlanInput struct {
	Now           time.Time
	Programs      []Program
	Subscriptions []subscription.Subscription
	Budget        int
	// Timers already present in the external store. They hold tuner slots and are
	// used for content-based duplicate detection. Cached programs without a listed
	// timer hold a slot too.
	Timers []Timer
	// Scheduled is the scheduled-programs cache keyed by program id.
	Scheduled map[string]cache.ScheduledEntry
}

// Plan is the result of Planner.Plan.
type Plan struct {
	Decisions      []Decision `json:"decisions"`
	Evaluated      int        `json:"evaluated"`
	BelowThreshold int        `json:"belowThreshold"`
	Unmatched      int        `json:"unmatched"`
}

// Count returns the number of decisions with action a.
func (p Plan) Count(a Action) int {
	n := 0
	for _, d := range p.Decisions {
		if d.Action == a {
			n++
		}
	}
	return n
}

// Planner scores, attributes and ranks programs. It holds no scan state.
type Planner struct {
	aliases *alias.Registry
	matcher *match.Matcher

	mu      sync.Mutex
	scorers map[int]*scoring.Scorer
}

// NewPlanner returns a planner scoring with reg and matching with m.
func NewPlanner(reg *alias.Registry, m *match.Matcher) *Planner {
	if reg == nil {
		reg = alias.NewRegistry(nil)
	}
	if m == nil {
		m = match.New(reg, match.Options{})
	}
	return &Planner{aliases: reg, matcher: m, scorers: make(map[int]*scoring.Scorer)}
}

// Matcher returns the pattern matcher.
func (p *Planner) Matcher() *match.Matcher { return p.matcher }

// Scorer returns the scorer for the given reference year.
func (p *Planner) Scorer(year int) *scoring.Scorer {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.scorers[year]
	if !ok {
		s = scoring.New(p.aliases, year)
		p.scorers[year] = s
	}
	return s
}

// Attribution is the first enabled subscription (by sort order) matching a program.
type Attribution struct {
	Subscription subscription.Subscription
	Result       match.Result
	// Excluded holds the first subscription whose exclude expression vetoed an
	// include hit, when no subscription matched.
	Excluded *subscription.Subscription
}

// Attribute matches one scored program against subs, which must already be in
// list order.
func (p *Planner) Attribute(prog Program, sp scoring.ScoredProgram, subs []subscription.Subscription) (Attribution, bool) {
	target := match.Target{
		Text:       match.SearchableText(prog.Title, prog.Description, prog.ChannelName, prog.Genres),
		HasMatchup: sp.HasMatchup,
	}
	var att Attribution
	for i := range subs {
		sub := subs[i]
		if !sub.Enabled {
			continue
		}
		res := p.matcher.Matches(sub, target)
		if res.Matched {
			att.Subscription, att.Result = sub, res
			return att, true
		}
		if res.Excluded && att.Excluded == nil {
			att.Excluded = &subs[i]
			att.Result = res
		}
	}
	return att, false
}

type candidate struct {
	idx            int
	start, end     time.Time
	priority       int
	sortOrder      int
	subscriptionID string
	programID      string
}

// Plan runs the pure planning pass. Identical input yields identical output.
func (p *Planner) Plan(in PlanInput) (Plan, error) {
	if in.Budget <= 0 {
		return Plan{}, ErrNoConcurrencyBudget
	}

	subs := append([]subscription.Subscription(nil), in.Subscriptions...)
	subscription.Sort(subs)

	programs := append([]Program(nil), in.Programs...)
	sort.SliceStable(programs, func(i, j int) bool {
		a, b := programs[i], programs[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.ChannelID != b.ChannelID {
			return a.ChannelID < b.ChannelID
		}
		return a.ID < b.ID
	})

	existing := make(map[string]bool, len(in.Timers))
	existingIDs := make(map[string]bool, len(in.Timers))
	timerIDs := make(map[string]bool, len(in.Timers))
	var slots []Timer
	for _, t := range in.Timers {
		existing[ContentKey(t.Name, t.ChannelName, t.Start)] = true
		if t.ProgramID != "" {
			existingIDs[t.ProgramID] = true
		}
		timerIDs[t.ID] = true
		if t.End.After(in.Now) {
			slots = append(slots, t)
		}
	}

	scorer := p.Scorer(in.Now.Year())
	var plan Plan
	var candidates []candidate
	seen := make(map[string]bool, len(programs))

	for _, prog := range programs {
		if !prog.End.After(in.Now) || seen[prog.ID] {
			continue
		}
		seen[prog.ID] = true
		plan.Evaluated++

		if entry, ok := in.Scheduled[prog.ID]; ok {
			d := Decision{
				Program:        prog,
				SubscriptionID: entry.SubscriptionID,
				Action:         ActionSkipAlreadyScheduled,
				Reason:         "scheduled in an earlier scan",
				TimerID:        entry.TimerID,
			}
			if sub, ok := findSub(subs, entry.SubscriptionID); ok {
				d.SubscriptionName = sub.Name
				d.Priority = sub.Priority
			}
			plan.Decisions = append(plan.Decisions, d)
			// A cached program keeps its tuner slot even when the timer store
			// does not list its timer.
			covered := existingIDs[prog.ID] ||
				(entry.TimerID != "" && timerIDs[entry.TimerID]) ||
				existing[ContentKey(prog.Title, prog.ChannelName, prog.Start)]
			if !covered {
				slots = append(slots, Timer{ID: entry.TimerID, ProgramID: prog.ID, Start: prog.Start, End: prog.End})
			}
			continue
		}

		sp := scorer.Score(prog.Title, prog.ChannelName, prog.Description, prog.IsSportsCategory)
		if !sp.IsPossibleGame {
			plan.BelowThreshold++
			continue
		}

		att, ok := p.Attribute(prog, sp, subs)
		if !ok {
			if att.Excluded != nil {
				plan.Decisions = append(plan.Decisions, Decision{
					Program:          prog,
					Scored:           sp,
					SubscriptionID:   att.Excluded.ID,
					SubscriptionName: att.Excluded.Name,
					Action:           ActionSkipExcluded,
					Priority:         att.Excluded.Priority,
					Reason:           firstReason(att.Result),
					sortOrder:        att.Excluded.SortOrder,
				})
			} else {
				plan.Unmatched++
			}
			continue
		}

		sub := att.Subscription
		d := Decision{
			Program:          prog,
			Scored:           sp,
			SubscriptionID:   sub.ID,
			SubscriptionName: sub.Name,
			Priority:         sub.Priority,
			Match:            att.Result.Reasons,
			sortOrder:        sub.SortOrder,
		}

		switch {
		case sp.IsReplay && !sub.IncludeReplays:
			d.Action = ActionSkipReplay
			d.Reason = "replay"
		case existing[ContentKey(prog.Title, prog.ChannelName, prog.Start)] || existingIDs[prog.ID]:
			d.Action = ActionSkipAlreadyScheduled
			d.Reason = "timer already exists"
		default:
			d.Action = ActionCreateTimer
			candidates = append(candidates, candidate{
				idx:            len(plan.Decisions),
				start:          prog.Start,
				end:            prog.End,
				priority:       sub.Priority,
				sortOrder:      sub.SortOrder,
				subscriptionID: sub.ID,
				programID:      prog.ID,
			})
		}
		plan.Decisions = append(plan.Decisions, d)
	}

	for _, c := range resolveConflicts(candidates, slots, in.Budget) {
		plan.Decisions[c.idx].Action = ActionSkipConflict
		plan.Decisions[c.idx].Reason = "no free tuner slot"
	}
	return plan, nil
}

// resolveConflicts accepts candidates greedily in rank order and returns the ones
// that do not fit. A candidate fits when, together with everything already
// accepted and the existing timers, no point of its interval exceeds budget.
func resolveConflicts(cands []candidate, timers []Timer, budget int) []candidate {
	ranked := append([]candidate(nil), cands...)
	sort.SliceStable(ranked, func(i, j int) bool { return rankLess(ranked[i], ranked[j]) })

	var occupied []interval
	for _, t := range timers {
		occupied = append(occupied, interval{t.Start, t.End})
	}

	var rejected []candidate
	for _, c := range ranked {
		iv := interval{c.start, c.end}
		if maxDepth(append(overlapping(occupied, iv), iv), iv) > budget {
			rejected = append(rejected, c)
			continue
		}
		occupied = append(occupied, iv)
	}
	return rejected
}

// rankLess is the total order used for conflict resolution: priority desc, start
// asc, sort order asc, subscription id, program id.
func rankLess(a, b candidate) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	if !a.start.Equal(b.start) {
		return a.start.Before(b.start)
	}
	if a.sortOrder != b.sortOrder {
		return a.sortOrder < b.sortOrder
	}
	if a.subscriptionID != b.subscriptionID {
		return a.subscriptionID < b.subscriptionID
	}
	return a.programID < b.programID
}

type interval struct{ start, end time.Time }

func overlapping(all []interval, w interval) []interval {
	var out []interval
	for _, iv := range all {
		if overlaps(iv.start, iv.end, w.start, w.end) {
			out = append(out, iv)
		}
	}
	return out
}

// maxDepth returns the largest number of intervals active at once inside window.
func maxDepth(ivs []interval, window interval) int {
	type edge struct {
		at    time.Time
		delta int
	}
	edges := make([]edge, 0, 2*len(ivs))
	for _, iv := range ivs {
		s, e := iv.start, iv.end
		if s.Before(window.start) {
			s = window.start
		}
		if e.After(window.end) {
			e = window.end
		}
		if !s.Before(e) {
			continue
		}
		edges = append(edges, edge{s, 1}, edge{e, -1})
	}
	// Half-open intervals: an end at t frees the slot before a start at t takes it.
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].at.Equal(edges[j].at) {
			return edges[i].at.Before(edges[j].at)
		}
		return edges[i].delta < edges[j].delta
	})
	depth, best := 0, 0
	for _, e := range edges {
		depth += e.delta
		if depth > best {
			best = depth
		}
	}
	return best
}

func findSub(subs []subscription.Subscription, id string) (subscription.Subscription, bool) {
	for _, s := range subs {
		if s.ID == id {
			return s, true
		}
	}
	return subscription.Subscription{}, false
}

func firstReason(r match.Result) string {
	if len(r.Reasons) > 0 {
		return r.Reasons[0]
	}
	return ""
}
