// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reloadFixture(t *testing.T, budget string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	body := "dataDir: " + dir + "\nreceiver:\n  baseURL: http://receiver.local\nscheduler:\n  concurrencyBudget: " + budget + "\n"
	return dir, writeConfig(t, dir, body)
}

func TestConfigHolder_Reload(t *testing.T) {
	dir, path := reloadFixture(t, "1")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(initial, loader)
	assert.Equal(t, 1, h.Get().Scheduler.ConcurrencyBudget)

	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	writeConfig(t, dir, "dataDir: "+dir+"\nreceiver:\n  baseURL: http://receiver.local\nscheduler:\n  concurrencyBudget: 4\n")
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 4, h.Get().Scheduler.ConcurrencyBudget)

	select {
	case got := <-ch:
		assert.Equal(t, 4, got.Scheduler.ConcurrencyBudget)
	default:
		t.Fatal("listener not notified")
	}
}

func TestConfigHolder_ReloadInvalidKeepsOld(t *testing.T) {
	dir, path := reloadFixture(t, "2")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewConfigHolder(initial, loader)

	writeConfig(t, dir, "dataDir: "+dir+"\nscheduler:\n  concurrencyBudget: -3\n")
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 2, h.Get().Scheduler.ConcurrencyBudget)
}

func TestConfigHolder_FullListenerDoesNotBlock(t *testing.T) {
	_, path := reloadFixture(t, "1")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewConfigHolder(initial, loader)

	ch := make(chan AppConfig)
	h.RegisterListener(ch)

	done := make(chan error, 1)
	go func() { done <- h.Reload(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reload blocked on listener")
	}
}

func TestConfigHolder_WatcherReloadsOnWrite(t *testing.T) {
	dir, path := reloadFixture(t, "1")
	loader := NewLoader(path)
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(initial, loader)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, h.StartWatcher(ctx))
	t.Cleanup(h.Stop)

	require.NoError(t, os.WriteFile(path, []byte("dataDir: "+dir+"\nreceiver:\n  baseURL: http://receiver.local\nscheduler:\n  concurrencyBudget: 7\n"), 0o600))

	require.Eventually(t, func() bool {
		return h.Get().Scheduler.ConcurrencyBudget == 7
	}, 5*time.Second, 50*time.Millisecond)
}

func TestConfigHolder_WatcherDisabledWithoutPath(t *testing.T) {
	h := NewConfigHolder(Defaults(), NewLoader(""))
	assert.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
