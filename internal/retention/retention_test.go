// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/sportsdvr/internal/subscription"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func recordings(n int, step time.Duration) []Recording {
	out := make([]Recording, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Recording{
			ID:      fmt.Sprintf("r%d", i),
			AiredAt: now.Add(-time.Duration(i+1) * step),
		})
	}
	return out
}

func deletedIDs(ds []Decision) []string {
	var ids []string
	for _, d := range Deletions(ds) {
		ids = append(ids, d.Recording.ID)
	}
	return ids
}

func TestEvaluate_KeepLastRollingWindow(t *testing.T) {
	sub := subscription.Subscription{KeepLast: 3}
	ds := Evaluate(sub, recordings(5, 24*time.Hour), now)

	require.Len(t, ds, 5)
	assert.Equal(t, []string{"r4", "r3"}, deletedIDs(ds), "two oldest, oldest first")
	assert.Equal(t, []Reason{ReasonKeepLast}, ds[3].Reasons)
	assert.False(t, ds[0].Delete)
}

func TestEvaluate_InputOrderIrrelevant(t *testing.T) {
	recs := recordings(5, 24*time.Hour)
	reversed := make([]Recording, len(recs))
	for i := range recs {
		reversed[len(recs)-1-i] = recs[i]
	}
	sub := subscription.Subscription{KeepLast: 3}
	assert.Equal(t, deletedIDs(Evaluate(sub, recs, now)), deletedIDs(Evaluate(sub, reversed, now)))
}

func TestEvaluate_RetentionDays(t *testing.T) {
	sub := subscription.Subscription{RetentionDays: 7, KeepLast: 20}
	ds := Evaluate(sub, recordings(10, 24*time.Hour), now)

	// r7 aired 8 days ago, r6 exactly 7 days ago is not older than the cutoff.
	assert.Equal(t, []string{"r9", "r8", "r7"}, deletedIDs(ds))
}

func TestEvaluate_BothRulesUnionOnce(t *testing.T) {
	sub := subscription.Subscription{RetentionDays: 7, KeepLast: 2}
	ds := Evaluate(sub, recordings(10, 24*time.Hour), now)

	ids := deletedIDs(ds)
	assert.Len(t, ids, 8)
	for _, d := range ds {
		if d.Recording.ID == "r9" {
			assert.ElementsMatch(t, []Reason{ReasonKeepLast, ReasonRetentionDays}, d.Reasons)
		}
	}
}

func TestEvaluate_DuplicateRecordingListedOnce(t *testing.T) {
	recs := recordings(4, time.Hour)
	recs = append(recs, recs[3])
	ds := Evaluate(subscription.Subscription{KeepLast: 1}, recs, now)
	assert.Len(t, ds, 4)
	assert.Len(t, deletedIDs(ds), 3)
}

func TestEvaluate_FavoriteNeverDeletes(t *testing.T) {
	sub := subscription.Subscription{KeepLast: 3, RetentionDays: 1, Favorite: true}
	ds := Evaluate(sub, recordings(5, 48*time.Hour), now)

	assert.Empty(t, deletedIDs(ds))
	for _, d := range ds {
		assert.True(t, d.Protected, d.Recording.ID)
	}
}

func TestEvaluate_UnboundedKeepsEverything(t *testing.T) {
	ds := Evaluate(subscription.Subscription{}, recordings(50, 24*time.Hour), now)
	assert.Empty(t, deletedIDs(ds))
}

type staticSubs []subscription.Subscription

func (s staticSubs) List() []subscription.Subscription { return s }

type fakeStore struct {
	mu       sync.Mutex
	bySub    map[string][]Recording
	listErr  map[string]error
	failIDs  map[string]bool
	deleted  []string
	attempts map[string]int
}

func (f *fakeStore) ListCompleted(_ context.Context, subID string) ([]Recording, error) {
	if err := f.listErr[subID]; err != nil {
		return nil, err
	}
	return f.bySub[subID], nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts == nil {
		f.attempts = map[string]int{}
	}
	f.attempts[id]++
	if f.failIDs[id] {
		return errors.New("permission denied")
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func newFixture() (staticSubs, *fakeStore) {
	subs := staticSubs{
		{ID: "lakers", Name: "Lakers", KeepLast: 3},
		{ID: "ufc", Name: "UFC", KeepLast: 1, Favorite: true},
		{ID: "nba", Name: "NBA", RetentionDays: 2},
		{ID: "down", Name: "Down", KeepLast: 1},
		{ID: "none", Name: "Unbounded"},
	}
	lakers := recordings(5, 24*time.Hour)
	shared := lakers[4]
	store := &fakeStore{
		bySub: map[string][]Recording{
			"lakers": lakers,
			"ufc":    recordings(4, 24*time.Hour),
			// The same file can be reported for two subscriptions.
			"nba": {shared},
		},
		listErr: map[string]error{"down": errors.New("timeout")},
		failIDs: map[string]bool{"r3": true},
	}
	return subs, store
}

func TestManager_RunDeletesOncePerRecording(t *testing.T) {
	subs, store := newFixture()
	m := NewManager(subs, store, Options{Now: func() time.Time { return now }})

	report, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"r4"}, store.deleted)
	assert.Equal(t, 1, store.attempts["r4"])
	assert.Equal(t, 1, store.attempts["r3"])
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.ListFailures)
	assert.Equal(t, 3, report.Protected)
	assert.Equal(t, 4, report.Subscriptions)
	assert.Same(t, report, m.LastReport())
}

func TestManager_DryRunDeletesNothing(t *testing.T) {
	subs, store := newFixture()
	m := NewManager(subs, store, Options{DryRun: true, Now: func() time.Time { return now }})

	report, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Empty(t, store.deleted)
	assert.Len(t, report.Planned, 2)
	assert.Nil(t, m.LastReport())
}

func TestManager_PlanIgnoresDryRunSetting(t *testing.T) {
	subs, store := newFixture()
	m := NewManager(subs, store, Options{Now: func() time.Time { return now }})

	report, err := m.Plan(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Empty(t, store.deleted)
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	subs, store := newFixture()
	s := NewSweeper(NewManager(subs, store, Options{}), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.attempts["r4"] > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
