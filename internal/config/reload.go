// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/sportsdvr/internal/log"
)

const reloadDebounce = 500 * time.Millisecond

// ConfigHolder holds configuration with atomic reloading capability.
// It provides thread-safe access to configuration and supports hot reloading
// from file or manual trigger via API.
type ConfigHolder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	reloadMu        sync.RWMutex
	reloadListeners []chan<- AppConfig

	debounceMu sync.Mutex
	debounce   *time.Timer
}

// NewConfigHolder creates a new configuration holder with initial config.
func NewConfigHolder(initial AppConfig, loader *Loader) *ConfigHolder {
	return &ConfigHolder{
		current: initial,
		loader:  loader,
		logger:  log.WithComponent("config"),
	}
}

// Get returns the current configuration (thread-safe read).
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates the configuration again. On failure the old
// configuration stays in effect.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("failed to load new configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notifyListeners(newCfg)
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().Str(log.FieldEvent, "config.reload_success").Msg("configuration reloaded successfully")
	return nil
}

// StartWatcher watches the config file and reloads on change. The directory
// is watched so editors that replace the file are seen. A loader without a
// file path makes this a no-op.
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().Str(log.FieldEvent, "config.watcher_disabled").Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().Str(log.FieldEvent, "config.watcher_started").Str("path", path).Msg("watching config file for changes")
	go h.watchLoop(ctx, filepath.Clean(path))
	return nil
}

func (h *ConfigHolder) watchLoop(ctx context.Context, path string) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(log.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			h.Stop()
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.logger.Debug().Str(log.FieldEvent, "config.file_changed").Str("op", event.Op.String()).Msg("config file changed")
				h.scheduleReload(ctx)
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str(log.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}

// scheduleReload debounces bursts of file events into one reload.
func (h *ConfigHolder) scheduleReload(ctx context.Context) {
	h.debounceMu.Lock()
	defer h.debounceMu.Unlock()
	if h.debounce != nil {
		h.debounce.Stop()
	}
	h.debounce = time.AfterFunc(reloadDebounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := h.Reload(ctx); err != nil {
			h.logger.Error().Err(err).Str(log.FieldEvent, "config.auto_reload_failed").Msg("automatic config reload failed")
		}
	})
}

// Stop stops the config watcher (if running).
func (h *ConfigHolder) Stop() {
	h.debounceMu.Lock()
	if h.debounce != nil {
		h.debounce.Stop()
	}
	h.debounceMu.Unlock()
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel to receive config reload notifications.
// Sends never block; a full channel misses the update.
func (h *ConfigHolder) RegisterListener(ch chan<- AppConfig) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *ConfigHolder) notifyListeners(newCfg AppConfig) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			h.logger.Warn().Str(log.FieldEvent, "config.listener_skip").Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges logs the differences between old and new configuration.
func (h *ConfigHolder) logChanges(old, newCfg AppConfig) {
	if old.Scheduler != newCfg.Scheduler {
		h.logger.Info().
			Interface("old", old.Scheduler).
			Interface("new", newCfg.Scheduler).
			Msg("config changed: scheduler")
	}
	if old.Retention != newCfg.Retention {
		h.logger.Info().
			Interface("old", old.Retention).
			Interface("new", newCfg.Retention).
			Msg("config changed: retention")
	}
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().Str("old", old.LogLevel).Str("new", newCfg.LogLevel).Msg("config changed: logLevel")
	}
	if old.Receiver.BaseURL != newCfg.Receiver.BaseURL {
		h.logger.Info().
			Str("old", maskURL(old.Receiver.BaseURL)).
			Str("new", maskURL(newCfg.Receiver.BaseURL)).
			Msg("config changed: receiver.baseURL (restart required)")
	}
	if old.Receiver.Password != newCfg.Receiver.Password {
		h.logger.Info().Msg("config changed: receiver.password (restart required)")
	}
	if old.Cache != newCfg.Cache || old.API != newCfg.API || old.DataDir != newCfg.DataDir {
		h.logger.Warn().Msg("cache, api or dataDir changed; these take effect after restart")
	}
}
