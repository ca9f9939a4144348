// SPDX-License-Identifier: MIT

// Package cachetest holds the behavioural contract every cache.ScheduledSet backend must pass.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/sportsdvr/internal/cache"
)

// RunScheduledSetContract exercises set, which must start empty.
func RunScheduledSetContract(t *testing.T, set cache.ScheduledSet) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	n, err := set.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	ok, err := set.Has(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := set.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, set.Put(ctx, cache.ScheduledEntry{}), cache.ErrEmptyProgramID)

	entries := []cache.ScheduledEntry{
		{ProgramID: "p2", SubscriptionID: "s1", TimerID: "t2", Title: "B", Start: base.Add(time.Hour), ScheduledAt: base},
		{ProgramID: "p1", SubscriptionID: "s1", TimerID: "t1", Title: "A", Start: base, ScheduledAt: base},
		{ProgramID: "p3", SubscriptionID: "s2", Title: "C", Start: base, ScheduledAt: base},
	}
	for _, e := range entries {
		require.NoError(t, set.Put(ctx, e))
	}

	ok, err = set.Has(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, found, err := set.Get(ctx, "p2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "t2", got.TimerID)
	assert.True(t, got.Start.Equal(base.Add(time.Hour)))

	list, err := set.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"p1", "p3", "p2"}, ids(list))

	// Overwrite keeps one entry per program.
	require.NoError(t, set.Put(ctx, cache.ScheduledEntry{ProgramID: "p1", SubscriptionID: "s9", Start: base}))
	n, err = set.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	got, _, err = set.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "s9", got.SubscriptionID)

	require.NoError(t, set.Delete(ctx, "p3"))
	require.NoError(t, set.Delete(ctx, "missing"))

	cleared, err := set.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	n, err = set.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func ids(entries []cache.ScheduledEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ProgramID
	}
	return out
}
