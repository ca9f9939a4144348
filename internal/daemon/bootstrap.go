// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the configuration into a running scheduler: receiver
// client, caches, scan engine, retention and the HTTP API.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/sportsdvr/internal/alias"
	"github.com/ManuGH/sportsdvr/internal/api"
	"github.com/ManuGH/sportsdvr/internal/cache"
	"github.com/ManuGH/sportsdvr/internal/config"
	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/log"
	"github.com/ManuGH/sportsdvr/internal/match"
	"github.com/ManuGH/sportsdvr/internal/openwebif"
	badgerstore "github.com/ManuGH/sportsdvr/internal/persistence/badger"
	sqlitestore "github.com/ManuGH/sportsdvr/internal/persistence/sqlite"
	"github.com/ManuGH/sportsdvr/internal/retention"
	"github.com/ManuGH/sportsdvr/internal/subscription"
	"github.com/ManuGH/sportsdvr/internal/telemetry"
)

// File names inside the data directory.
const (
	SQLiteFileName = "scheduled.db"
	BadgerDirName  = "scheduled.badger"
)

// Options tune Bootstrap.
type Options struct {
	Version string
	// Transport overrides the receiver round tripper (tests).
	Transport http.RoundTripper
	// Now overrides the clock of the engine and retention (tests).
	Now func() time.Time
}

// Runtime is a fully wired daemon. Close releases it; Run closes it on return.
type Runtime struct {
	Config    *config.ConfigHolder
	Client    *openwebif.Client
	Scheduled cache.ScheduledSet
	Engine    *dvr.Engine
	Service   *dvr.Service
	Retention *retention.Manager
	Scheduler *dvr.Scheduler
	Server    *api.Server

	backend string
	version string
	hooks   *hooks
	logger  zerolog.Logger
}

// Bootstrap builds the runtime for the holder's current configuration. It
// takes the data directory lock first and releases everything if a later
// step fails.
func Bootstrap(ctx context.Context, holder *config.ConfigHolder, opts Options) (rt *Runtime, err error) {
	if holder == nil {
		return nil, ErrMissingConfig
	}
	cfg := holder.Get()

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "sportsdvr", Version: opts.Version})
	logger := log.WithComponent("daemon")

	rt = &Runtime{
		Config:  holder,
		backend: cfg.Cache.Backend,
		version: opts.Version,
		hooks:   &hooks{logger: logger},
		logger:  logger,
	}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	lock, err := acquireLock(cfg.DataDir)
	if err != nil {
		return rt, err
	}
	rt.hooks.register("instance_lock", func(context.Context) error { return lock.Unlock() })

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "sportsdvr",
		ServiceVersion: opts.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return rt, fmt.Errorf("telemetry: %w", err)
	}
	rt.hooks.register("telemetry", tp.Shutdown)

	rt.Client = openwebif.New(cfg.Receiver.BaseURL, openwebif.Options{
		Timeout:   cfg.Receiver.Timeout,
		RateLimit: rate.Limit(cfg.Receiver.RateLimit),
		RateBurst: cfg.Receiver.RateBurst,
		Username:  cfg.Receiver.Username,
		Password:  cfg.Receiver.Password,
		UserAgent: "sportsdvr/" + opts.Version,
		Transport: opts.Transport,
	})

	channels := cache.NewMemoryCache(time.Minute)
	rt.hooks.register("channel_cache", func(context.Context) error {
		channels.Stop()
		return nil
	})
	guide := dvr.NewCachedGuide(rt.Client, channels)

	scheduled, err := openScheduled(ctx, cfg)
	if err != nil {
		return rt, err
	}
	rt.Scheduled = scheduled
	rt.hooks.register("scheduled_cache", func(context.Context) error { return scheduled.Close() })

	store := subscription.NewStore(cfg.DataDir)
	if err := store.Load(); err != nil {
		return rt, fmt.Errorf("load subscriptions: %w", err)
	}
	custom, err := alias.LoadFile(filepath.Join(cfg.DataDir, alias.FileName))
	if err != nil {
		return rt, fmt.Errorf("load aliases: %w", err)
	}
	registry := alias.NewRegistry(custom)

	rt.Engine = dvr.NewEngine(dvr.EngineConfig{
		Guide:         guide,
		Timers:        rt.Client,
		Subscriptions: store,
		Scheduled:     scheduled,
		Planner:       dvr.NewPlanner(registry, match.New(registry, match.Options{AliasMatching: cfg.Scheduler.AliasMatching})),
		Settings:      SettingsFromConfig(cfg),
		ReportDir:     cfg.DataDir,
		Now:           opts.Now,
	})
	rt.Service = dvr.NewService(dvr.ServiceConfig{
		Engine:  rt.Engine,
		Store:   store,
		Aliases: registry,
		Guide:   guide,
		DataDir: cfg.DataDir,
		Now:     opts.Now,
	})
	rt.Retention = retention.NewManager(store, rt.Client, retention.Options{
		DryRun:      cfg.Retention.DryRun,
		CallTimeout: cfg.Receiver.Timeout,
		Now:         opts.Now,
	})

	rt.Scheduler = dvr.NewScheduler(rt.Engine, cfg.Scheduler.DailyAt)
	rt.Scheduler.StartupScan = cfg.Scheduler.StartupScan

	rt.Server, err = api.New(api.Deps{
		Service:        rt.Service,
		Retention:      rt.Retention,
		Breaker:        rt.Client.Breaker(),
		Health:         newReadiness(opts.Version, cfg.DataDir, scheduled, rt.Client.Breaker(), rt.Service),
		Config:         holder,
		Version:        opts.Version,
		RateLimitRPM:   cfg.API.RateLimitRPM,
		TracingService: tracingService(cfg),
	})
	if err != nil {
		return rt, err
	}

	logger.Info().
		Str(log.FieldEvent, "daemon.bootstrap").
		Str("data_dir", cfg.DataDir).
		Str("cache_backend", cfg.Cache.Backend).
		Int("budget", cfg.Scheduler.ConcurrencyBudget).
		Msg("runtime ready")
	return rt, nil
}

// Close runs the shutdown hooks. It is safe to call more than once.
func (rt *Runtime) Close(ctx context.Context) error {
	return rt.hooks.run(ctx)
}

// SettingsFromConfig maps the scheduler section onto engine settings.
func SettingsFromConfig(cfg config.AppConfig) dvr.Settings {
	return dvr.Settings{
		Budget:              cfg.Scheduler.ConcurrencyBudget,
		Horizon:             cfg.Scheduler.Horizon(),
		ChannelFetchTimeout: cfg.Scheduler.ChannelFetchTimeout,
		TimerCallTimeout:    cfg.Scheduler.TimerCallTimeout,
		FetchParallelism:    cfg.Scheduler.FetchParallelism,
	}
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return "sportsdvr"
}

// checkSQLite logs damage found in an existing cache database. The cache is
// rebuildable, so a damaged file does not stop startup.
func checkSQLite(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	logger := log.WithComponent("daemon")
	issues, err := sqlitestore.VerifyIntegrity(ctx, path, "quick")
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("sqlite integrity check failed to run")
		return
	}
	if len(issues) > 0 {
		logger.Warn().
			Str(log.FieldEvent, "cache.integrity_issues").
			Str("path", path).
			Strs("issues", issues).
			Msg("scheduled cache database reports damage; clear it with DELETE /api/scan/cache or remove the file")
	}
}

func openScheduled(ctx context.Context, cfg config.AppConfig) (cache.ScheduledSet, error) {
	switch cfg.Cache.Backend {
	case config.CacheMemory:
		return cache.NewMemoryScheduledSet(), nil
	case config.CacheSQLite, "":
		path := filepath.Join(cfg.DataDir, SQLiteFileName)
		checkSQLite(ctx, path)
		s, err := sqlitestore.OpenScheduledStore(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return s, nil
	case config.CacheBadger:
		s, err := badgerstore.OpenScheduledStore(filepath.Join(cfg.DataDir, BadgerDirName))
		if err != nil {
			return nil, fmt.Errorf("open badger cache: %w", err)
		}
		return s, nil
	case config.CacheRedis:
		s, err := cache.NewRedisScheduledSet(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, log.WithComponent("cache"))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCacheBackend, cfg.Cache.Backend)
}
