// SPDX-License-Identifier: MIT

package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/sportsdvr/internal/cache"
	"github.com/ManuGH/sportsdvr/internal/cache/cachetest"
)

func openStore(t *testing.T, dir string) *ScheduledStore {
	t.Helper()
	s, err := OpenScheduledStore(context.Background(), filepath.Join(dir, ScheduledFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestScheduledStore_Contract(t *testing.T) {
	cachetest.RunScheduledSetContract(t, openStore(t, t.TempDir()))
}

func TestScheduledStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 19, 30, 0, 0, time.UTC)

	s, err := OpenScheduledStore(ctx, filepath.Join(dir, ScheduledFileName))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, cache.ScheduledEntry{ProgramID: "1:0:1|42", SubscriptionID: "s1", Start: start}))
	require.NoError(t, s.Close())

	reopened := openStore(t, dir)
	e, ok, err := reopened.Get(ctx, "1:0:1|42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s1", e.SubscriptionID)
	assert.True(t, e.Start.Equal(start))
}

func TestScheduledStore_RejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	path := filepath.Join(dir, ScheduledFileName)

	db, err := Open(ctx, path, DefaultConfig())
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenScheduledStore(ctx, path)
	assert.ErrorContains(t, err, "newer than supported")
}

func TestVerifyIntegrity(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s := openStore(t, dir)
	for i := 0; i < 200; i++ {
		require.NoError(t, s.Put(ctx, cache.ScheduledEntry{
			ProgramID: time.Unix(int64(i), 0).String(),
			Title:     "a reasonably long title to fill pages with data",
		}))
	}
	require.NoError(t, s.Close())

	path := filepath.Join(dir, ScheduledFileName)
	issues, err := VerifyIntegrity(ctx, path, "quick")
	require.NoError(t, err)
	assert.Nil(t, issues)

	issues, err = VerifyIntegrity(ctx, path, "full")
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestVerifyIntegrity_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite, just text padding the header out"), 0o600))

	issues, err := VerifyIntegrity(context.Background(), path, "quick")
	if err == nil {
		assert.NotEmpty(t, issues)
	}
}
