// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/sportsdvr/internal/cache"
	"github.com/ManuGH/sportsdvr/internal/subscription"
)

// MockTimers
type MockTimers struct {
	mock.Mock
}

func (m *MockTimers) ListTimers(ctx context.Context) ([]Timer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Timer), args.Error(1)
}

func (m *MockTimers) CreateTimer(ctx context.Context, req TimerRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockTimers) CancelTimer(ctx context.Context, timerID string) error {
	return m.Called(ctx, timerID).Error(0)
}

func (m *MockTimers) CancelAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type fakeGuide struct {
	mu       sync.Mutex
	channels []Channel
	programs map[string][]Program
	errs     map[string]error
	listErr  error
	calls    int

	started chan struct{}
	release chan struct{}
}

func (g *fakeGuide) ListChannels(ctx context.Context) ([]Channel, error) {
	g.mu.Lock()
	g.calls++
	started, release := g.started, g.release
	g.mu.Unlock()
	if started != nil {
		started <- struct{}{}
		<-release
	}
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.channels, nil
}

func (g *fakeGuide) ListPrograms(ctx context.Context, channelID string, from, to time.Time) ([]Program, error) {
	if err := g.errs[channelID]; err != nil {
		return nil, err
	}
	return append([]Program(nil), g.programs[channelID]...), nil
}

func (g *fakeGuide) channelCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type staticSubs []subscription.Subscription

func (s staticSubs) List() []subscription.Subscription { return s }

func newGuide() *fakeGuide {
	in := conflictInput()
	return &fakeGuide{
		channels: []Channel{{ID: "1:0:1:ESPN", Name: "ESPN"}},
		programs: map[string][]Program{"1:0:1:ESPN": in.Programs},
		errs:     map[string]error{},
	}
}

func newTestEngine(t *testing.T, guide GuideSource, timers TimerStore, budget int) (*Engine, *cache.MemoryScheduledSet) {
	t.Helper()
	set := cache.NewMemoryScheduledSet()
	e := NewEngine(EngineConfig{
		Guide:         guide,
		Timers:        timers,
		Subscriptions: staticSubs(conflictInput().Subscriptions),
		Scheduled:     set,
		Settings:      Settings{Budget: budget},
		Now:           func() time.Time { return planNow },
	})
	return e, set
}

func createFor(id string) any {
	return mock.MatchedBy(func(r TimerRequest) bool { return r.Program.ID == id })
}

func TestEngine_RunOnceCreatesTimersAndIsIdempotent(t *testing.T) {
	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{}, nil)
	timers.On("CreateTimer", mock.Anything, createFor("p-lakers")).Return("t-lakers", nil).Once()
	timers.On("CreateTimer", mock.Anything, createFor("p-bulls")).Return("t-bulls", nil).Once()
	timers.On("CreateTimer", mock.Anything, createFor("p-warriors")).Return("t-warriors", nil).Once()

	e, set := newTestEngine(t, newGuide(), timers, 2)

	report, err := e.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, 3, report.Summary.TimersCreated)
	assert.Equal(t, 2, report.Summary.Conflicts)
	assert.Equal(t, 5, report.Summary.Matched)
	assert.Contains(t, report.Message, "3 new recordings")

	entry, ok, err := set.Get(context.Background(), "p-lakers")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t-lakers", entry.TimerID)
	assert.Equal(t, "s-lakers", entry.SubscriptionID)

	second, err := e.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, second.Summary.TimersCreated)
	assert.Equal(t, 3, second.Summary.AlreadyScheduled)
	assert.Equal(t, second, e.LastReport())

	timers.AssertNumberOfCalls(t, "CreateTimer", 3)
}

func TestEngine_PriorityCarriedToTimer(t *testing.T) {
	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{}, nil)
	timers.On("CreateTimer", mock.Anything, mock.Anything).Return("t", nil)

	e, _ := newTestEngine(t, newGuide(), timers, 5)
	_, err := e.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)

	for _, c := range timers.Calls {
		if c.Method != "CreateTimer" {
			continue
		}
		req := c.Arguments.Get(1).(TimerRequest)
		want := subPriority(t, conflictInput().Subscriptions, req.SubscriptionID)
		assert.Equal(t, want, req.Priority, req.Program.ID)
	}
}

func TestEngine_RefusesWithoutBudget(t *testing.T) {
	timers := new(MockTimers)
	e, _ := newTestEngine(t, newGuide(), timers, 0)

	report, err := e.RunOnce(context.Background(), TriggerManual)
	require.ErrorIs(t, err, ErrNoConcurrencyBudget)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Contains(t, report.Message, "concurrency budget not configured")
	timers.AssertNotCalled(t, "CreateTimer", mock.Anything, mock.Anything)
	timers.AssertNotCalled(t, "ListTimers", mock.Anything)
}

func TestEngine_ChannelFailureDegradesScan(t *testing.T) {
	guide := newGuide()
	guide.channels = append(guide.channels, Channel{ID: "1:0:1:FOX", Name: "Fox Sports 1"})
	guide.errs["1:0:1:FOX"] = errors.New("connection reset")

	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{}, nil)
	timers.On("CreateTimer", mock.Anything, mock.Anything).Return("t", nil)

	e, _ := newTestEngine(t, guide, timers, 2)
	report, err := e.RunOnce(context.Background(), TriggerDaily)
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, 1, report.Summary.ChannelsFailed)
	assert.Equal(t, 2, report.Summary.ChannelsTotal)
	assert.Equal(t, 3, report.Summary.TimersCreated)
	assert.Contains(t, report.Message, "1 of 2 channels could not be read")
	require.NotEmpty(t, report.Errors)
	assert.Equal(t, "programs", report.Errors[0].Stage)
	assert.Equal(t, "1:0:1:FOX", report.Errors[0].Target)
}

func TestEngine_CreateFailureDoesNotAbortBatch(t *testing.T) {
	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{}, nil)
	timers.On("CreateTimer", mock.Anything, createFor("p-lakers")).Return("", errors.New("tuner busy"))
	timers.On("CreateTimer", mock.Anything, mock.Anything).Return("t", nil)

	e, set := newTestEngine(t, newGuide(), timers, 2)
	report, err := e.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, 1, report.Summary.TimersFailed)
	assert.Equal(t, 2, report.Summary.TimersCreated)

	ok, err := set.Has(context.Background(), "p-lakers")
	require.NoError(t, err)
	assert.False(t, ok, "failed creates must not be cached")

	for _, d := range report.Decisions {
		if d.Program.ID == "p-lakers" {
			assert.False(t, d.Applied)
			assert.Equal(t, "tuner busy", d.Error)
		}
	}
}

func TestEngine_StoreConflictCountsAsConflict(t *testing.T) {
	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{}, nil)
	timers.On("CreateTimer", mock.Anything, createFor("p-lakers")).
		Return("", fmt.Errorf("%w: timer overlaps existing timers", ErrTimerConflict))
	timers.On("CreateTimer", mock.Anything, mock.Anything).Return("t", nil)

	e, set := newTestEngine(t, newGuide(), timers, 2)
	report, err := e.RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, 0, report.Summary.TimersFailed)
	assert.Equal(t, 3, report.Summary.Conflicts, "two planned conflicts plus the refused timer")
	assert.Equal(t, 2, report.Summary.TimersCreated)
	assert.Empty(t, report.Errors)

	ok, err := set.Has(context.Background(), "p-lakers")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, d := range report.Decisions {
		if d.Program.ID == "p-lakers" {
			assert.Equal(t, ActionSkipConflict, d.Action)
			assert.False(t, d.Applied)
		}
	}
}

func TestEngine_CancellationBetweenCreates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{}, nil)
	timers.On("CreateTimer", mock.Anything, createFor("p-lakers")).
		Run(func(mock.Arguments) { cancel() }).
		Return("t-lakers", nil).Once()

	e, set := newTestEngine(t, newGuide(), timers, 2)
	report, err := e.RunOnce(ctx, TriggerManual)
	require.ErrorIs(t, err, ErrScanCancelled)
	assert.Equal(t, StatusCancelled, report.Status)
	assert.Equal(t, 1, report.Summary.TimersCreated)
	assert.Equal(t, 2, report.Summary.TimersNotApplied)
	timers.AssertNumberOfCalls(t, "CreateTimer", 1)

	entries, err := set.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "p-lakers", entries[0].ProgramID)
}

func TestEngine_TimerStoreUnavailableFailsScan(t *testing.T) {
	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return(nil, errors.New("dial tcp: refused"))

	e, _ := newTestEngine(t, newGuide(), timers, 2)
	report, err := e.RunOnce(context.Background(), TriggerManual)
	require.ErrorIs(t, err, ErrTimerStoreUnavailable)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, "scan failed: existing timers could not be listed", report.Message)
	assert.NotContains(t, report.Message, "refused")
}

func TestEngine_GuideUnavailableFailsScan(t *testing.T) {
	guide := newGuide()
	guide.listErr = errors.New("502 bad gateway")
	e, _ := newTestEngine(t, guide, new(MockTimers), 2)

	report, err := e.RunOnce(context.Background(), TriggerManual)
	require.ErrorIs(t, err, ErrGuideUnavailable)
	assert.Equal(t, StatusFailed, report.Status)
}

func TestEngine_DryRunHasNoSideEffects(t *testing.T) {
	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{}, nil)

	e, set := newTestEngine(t, newGuide(), timers, 2)
	report, err := e.DryRun(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 3, report.Summary.TimersPlanned)
	assert.Contains(t, report.Message, "3 would be recorded")
	assert.Nil(t, e.LastReport())

	n, err := set.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	timers.AssertNotCalled(t, "CreateTimer", mock.Anything, mock.Anything)
}

func TestEngine_ConcurrentTriggersShareOneScan(t *testing.T) {
	guide := newGuide()
	guide.started = make(chan struct{}, 1)
	guide.release = make(chan struct{})

	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{}, nil)
	timers.On("CreateTimer", mock.Anything, mock.Anything).Return("t", nil)
	e, _ := newTestEngine(t, guide, timers, 2)

	var wg sync.WaitGroup
	reports := make([]*ScanReport, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[0], _ = e.RunOnce(context.Background(), TriggerManual)
	}()
	<-guide.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[1], _ = e.RunOnce(context.Background(), TriggerDaily)
	}()
	time.Sleep(20 * time.Millisecond)
	close(guide.release)
	wg.Wait()

	assert.Equal(t, 1, guide.channelCalls())
	require.NotNil(t, reports[0])
	assert.Same(t, reports[0], reports[1])
	timers.AssertNumberOfCalls(t, "CreateTimer", 3)
}

func TestEngine_ReportPersisted(t *testing.T) {
	dir := t.TempDir()
	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{}, nil)
	timers.On("CreateTimer", mock.Anything, mock.Anything).Return("t", nil)

	cfg := EngineConfig{
		Guide:         newGuide(),
		Timers:        timers,
		Subscriptions: staticSubs(conflictInput().Subscriptions),
		Settings:      Settings{Budget: 2},
		ReportDir:     dir,
		Now:           func() time.Time { return planNow },
	}
	report, err := NewEngine(cfg).RunOnce(context.Background(), TriggerManual)
	require.NoError(t, err)

	reloaded := NewEngine(cfg).LastReport()
	require.NotNil(t, reloaded)
	assert.Equal(t, report.RunID, reloaded.RunID)
	assert.Equal(t, report.Summary, reloaded.Summary)
}

func TestEngine_CancelManagedTimers(t *testing.T) {
	ctx := context.Background()
	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{
		{ID: "tagged", Name: "Lakers vs Celtics", Managed: true, ProgramID: "p-lakers"},
		{ID: "cached", Name: "Bulls vs Heat"},
		{ID: "manual", Name: "Evening News"},
	}, nil)
	timers.On("CancelTimer", mock.Anything, "tagged").Return(nil)
	timers.On("CancelTimer", mock.Anything, "cached").Return(errors.New("not found"))

	e, set := newTestEngine(t, newGuide(), timers, 2)
	require.NoError(t, set.Put(ctx, cache.ScheduledEntry{ProgramID: "p-lakers", TimerID: "tagged"}))
	require.NoError(t, set.Put(ctx, cache.ScheduledEntry{ProgramID: "p-bulls", TimerID: "cached"}))

	res, err := e.CancelManagedTimers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cancelled)
	assert.Equal(t, 1, res.Failed)
	timers.AssertNotCalled(t, "CancelTimer", mock.Anything, "manual")

	ok, _ := set.Has(ctx, "p-lakers")
	assert.False(t, ok)
	ok, _ = set.Has(ctx, "p-bulls")
	assert.True(t, ok, "entry stays when cancellation failed")
}

func TestEngine_CancelManagedTreatsMissingTimerAsCancelled(t *testing.T) {
	ctx := context.Background()
	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{
		{ID: "gone", Name: "Bulls vs Heat", Managed: true, ProgramID: "p-bulls"},
	}, nil)
	timers.On("CancelTimer", mock.Anything, "gone").
		Return(fmt.Errorf("%w: timer does not exist", ErrTimerNotFound))

	e, set := newTestEngine(t, newGuide(), timers, 2)
	require.NoError(t, set.Put(ctx, cache.ScheduledEntry{ProgramID: "p-bulls", TimerID: "gone"}))

	res, err := e.CancelManagedTimers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cancelled)
	assert.Equal(t, 0, res.Failed)

	ok, _ := set.Has(ctx, "p-bulls")
	assert.False(t, ok)
}

func TestEngine_CancelAllAndClearCache(t *testing.T) {
	ctx := context.Background()
	timers := new(MockTimers)
	timers.On("CancelAll", mock.Anything).Return(4, nil)

	e, set := newTestEngine(t, newGuide(), timers, 2)
	require.NoError(t, set.Put(ctx, cache.ScheduledEntry{ProgramID: "a"}))

	n, err := e.CancelAllTimers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	size, _ := set.Len(ctx)
	assert.Zero(t, size)

	require.NoError(t, set.Put(ctx, cache.ScheduledEntry{ProgramID: "b"}))
	require.NoError(t, set.Put(ctx, cache.ScheduledEntry{ProgramID: "c"}))
	cleared, err := e.ClearScheduledCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)
	timers.AssertNotCalled(t, "CancelTimer", mock.Anything, mock.Anything)
}

func TestEngine_CancelAllPartialFailureClearsCache(t *testing.T) {
	ctx := context.Background()
	timers := new(MockTimers)
	timers.On("CancelAll", mock.Anything).Return(3, errors.New("timerdelete failed for 1 timer"))

	e, set := newTestEngine(t, newGuide(), timers, 2)
	for _, id := range []string{"p-lakers", "p-bulls", "p-knicks"} {
		require.NoError(t, set.Put(ctx, cache.ScheduledEntry{ProgramID: id}))
	}

	n, err := e.CancelAllTimers(ctx)
	require.ErrorIs(t, err, ErrTimerStoreUnavailable)
	assert.Equal(t, 3, n)
	size, _ := set.Len(ctx)
	assert.Zero(t, size, "cancelled programs must be schedulable again")
}

func TestEngine_CancelAllFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	timers := new(MockTimers)
	timers.On("CancelAll", mock.Anything).Return(0, errors.New("connection refused"))

	e, set := newTestEngine(t, newGuide(), timers, 2)
	require.NoError(t, set.Put(ctx, cache.ScheduledEntry{ProgramID: "p-lakers"}))

	n, err := e.CancelAllTimers(ctx)
	require.ErrorIs(t, err, ErrTimerStoreUnavailable)
	assert.Zero(t, n)
	size, _ := set.Len(ctx)
	assert.Equal(t, 1, size)
}

func TestEngine_Rehydrate(t *testing.T) {
	ctx := context.Background()
	timers := new(MockTimers)
	timers.On("ListTimers", mock.Anything).Return([]Timer{
		{ID: "t1", ProgramID: "p-lakers", Managed: true, Name: "Lakers vs Celtics", Start: at(20, 0), End: at(22, 0)},
		{ID: "t2", ProgramID: "p-old", Managed: true, Start: at(8, 0), End: at(9, 0)},
		{ID: "t3", ProgramID: "p-manual", Start: at(20, 0), End: at(21, 0)},
	}, nil)

	e, set := newTestEngine(t, newGuide(), timers, 2)
	n, err := e.Rehydrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, ok, err := set.Get(ctx, "p-lakers")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", entry.TimerID)

	n, err = e.Rehydrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
