// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/sportsdvr/internal/config"
	"github.com/ManuGH/sportsdvr/internal/daemon"
	"github.com/ManuGH/sportsdvr/internal/log"
	"github.com/ManuGH/sportsdvr/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML), defaults to $SPORTSDVR_CONFIG")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until the config is loaded
	log.Configure(log.Config{Level: "info", Service: "sportsdvr", Version: version.Version})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := resolveConfigPath(*configPath)
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	masked := config.MaskSecrets(cfg)
	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("config_source", source).
		Str("receiver", masked.Receiver.BaseURL).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting sportsdvr")
	if cfg.Scheduler.ConcurrencyBudget == 0 {
		logger.Warn().Msg("scheduler.concurrencyBudget is 0; scans will refuse until it is set")
	}

	holder := config.NewConfigHolder(cfg, loader)
	rt, err := daemon.Bootstrap(ctx, holder, daemon.Options{Version: version.Version})
	if err != nil {
		event := "daemon.bootstrap_failed"
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			event = "daemon.already_running"
		}
		logger.Fatal().Err(err).Str(log.FieldEvent, event).Msg("failed to start daemon")
	}

	if err := rt.Run(ctx, nil); err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("daemon failed")
	}
	logger.Info().Msg("server exiting")
}

// resolveConfigPath prefers the flag, then SPORTSDVR_CONFIG.
func resolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(config.EnvPrefix + "CONFIG"))
}
