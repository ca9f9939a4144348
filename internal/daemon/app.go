// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/sportsdvr/internal/config"
	"github.com/ManuGH/sportsdvr/internal/log"
	"github.com/ManuGH/sportsdvr/internal/retention"
)

const (
	shutdownTimeout = 30 * time.Second
	aliasDebounce   = 500 * time.Millisecond
)

// Run starts the scheduler, the retention sweeper, the API server and the
// reload wiring, and blocks until ctx is cancelled or a component fails. A nil
// ln listens on the configured address. The runtime is closed on return.
func (rt *Runtime) Run(ctx context.Context, ln net.Listener) error {
	cfg := rt.Config.Get()
	g, ctx := errgroup.WithContext(ctx)

	if rt.backend == config.CacheMemory {
		if n, err := rt.Engine.Rehydrate(ctx); err != nil {
			rt.logger.Warn().Err(err).Str(log.FieldEvent, "daemon.rehydrate_failed").Msg("could not rebuild scheduled cache from timers")
		} else {
			rt.logger.Info().Int("entries", n).Msg("scheduled cache rebuilt from timers")
		}
	}

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if err := rt.Config.StartWatcher(ctx); err != nil {
		rt.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
	}

	applyCh := make(chan config.AppConfig, 1)
	rt.Config.RegisterListener(applyCh)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-applyCh:
				rt.apply(next)
			}
		}
	})

	g.Go(func() error { return rt.watchSignals(ctx, syscall.SIGHUP) })
	g.Go(func() error { return rt.watchAliases(ctx, cfg.DataDir) })
	g.Go(func() error { return rt.Scheduler.Run(ctx) })

	if cfg.Retention.Enabled {
		sweeper := retention.NewSweeper(rt.Retention, cfg.Retention.Interval)
		g.Go(func() error { return sweeper.Run(ctx) })
	}

	g.Go(func() error {
		if ln == nil {
			return rt.Server.ListenAndServe(ctx, cfg.API.ListenAddr)
		}
		return rt.Server.Serve(ctx, ln)
	})

	runErr := g.Wait()
	rt.Config.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := rt.Close(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	rt.logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("daemon stopped")
	return runErr
}

// apply pushes reloadable settings into the running components.
func (rt *Runtime) apply(cfg config.AppConfig) {
	rt.Engine.SetSettings(SettingsFromConfig(cfg))
	rt.Retention.SetDryRun(cfg.Retention.DryRun)
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "sportsdvr", Version: rt.version})
	if cfg.Scheduler.DailyAt != rt.Scheduler.DailyAt {
		rt.logger.Warn().
			Str("old", rt.Scheduler.DailyAt).
			Str("new", cfg.Scheduler.DailyAt).
			Msg("scheduler.dailyAt takes effect after restart")
	}
	rt.logger.Info().Str(log.FieldEvent, "config.applied").Msg("reloaded settings applied")
}

// watchSignals reloads the configuration on sig until ctx is done.
func (rt *Runtime) watchSignals(ctx context.Context, sig os.Signal) error {
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, sig)
	defer signal.Stop(hupChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hupChan:
			rt.logger.Info().
				Str(log.FieldEvent, "config.reload_signal").
				Str("signal", sig.String()).
				Msg("received reload signal, reloading config")
			if err := rt.Config.Reload(ctx); err != nil {
				rt.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
			}
		}
	}
}

// watchAliases reloads the custom alias table when the alias file changes on
// disk. A watcher that cannot start only disables the reload.
func (rt *Runtime) watchAliases(ctx context.Context, dataDir string) error {
	target := rt.Service.AliasFile()
	if target == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		rt.logger.Warn().Err(err).Msg("alias watcher unavailable")
		return nil
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dataDir); err != nil {
		rt.logger.Warn().Err(err).Str("dir", dataDir).Msg("alias watcher unavailable")
		return nil
	}

	name := filepath.Base(target)
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce = time.After(aliasDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			rt.logger.Warn().Err(err).Msg("alias watcher error")
		case <-debounce:
			debounce = nil
			if err := rt.Service.ReloadAliases(); err != nil {
				rt.logger.Warn().Err(err).Str(log.FieldEvent, "aliases.reload_failed").Msg("alias reload failed")
			}
		}
	}
}
