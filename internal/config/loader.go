// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/sportsdvr/internal/log"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	logger     zerolog.Logger
	// ConsumedEnvKeys records every environment key the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. configPath may be empty for env-only setups.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:      configPath,
		logger:          log.WithComponent("config"),
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, or "".
func (l *Loader) Path() string { return l.configPath }

// Load builds the configuration: defaults, then the file (strict), then the
// environment, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	for _, key := range l.UnknownEnvKeys() {
		l.logger.Warn().Str(log.FieldEvent, "config.unknown_env").Str("key", key).Msg("ignoring unknown environment variable")
	}

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(cfg.Telemetry.Exporter))

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg. Missing keys keep their defaults;
// unknown keys are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Info().Str("path", path).Msg("config file not found, using defaults and environment")
			return nil
		}
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) key(name string) string {
	key := EnvPrefix + name
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) envString(name, cur string) string {
	return ParseString(l.logger, l.key(name), cur)
}

func (l *Loader) envInt(name string, cur int) int {
	return ParseInt(l.logger, l.key(name), cur)
}

func (l *Loader) envFloat(name string, cur float64) float64 {
	return ParseFloat(l.logger, l.key(name), cur)
}

func (l *Loader) envBool(name string, cur bool) bool {
	return ParseBool(l.logger, l.key(name), cur)
}

func (l *Loader) envDuration(name string, cur time.Duration) time.Duration {
	return ParseDuration(l.logger, l.key(name), cur)
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)

	r := &cfg.Receiver
	r.BaseURL = l.envString("RECEIVER_URL", r.BaseURL)
	r.Timeout = l.envDuration("RECEIVER_TIMEOUT", r.Timeout)
	r.RateLimit = l.envFloat("RECEIVER_RATE_LIMIT", r.RateLimit)
	r.RateBurst = l.envInt("RECEIVER_RATE_BURST", r.RateBurst)
	r.Username = l.envString("RECEIVER_USERNAME", r.Username)
	r.Password = l.envString("RECEIVER_PASSWORD", r.Password)

	s := &cfg.Scheduler
	s.ConcurrencyBudget = l.envInt("CONCURRENCY_BUDGET", s.ConcurrencyBudget)
	s.DailyAt = l.envString("DAILY_AT", s.DailyAt)
	s.HorizonHours = l.envInt("HORIZON_HOURS", s.HorizonHours)
	s.ChannelFetchTimeout = l.envDuration("CHANNEL_FETCH_TIMEOUT", s.ChannelFetchTimeout)
	s.TimerCallTimeout = l.envDuration("TIMER_CALL_TIMEOUT", s.TimerCallTimeout)
	s.FetchParallelism = l.envInt("FETCH_PARALLELISM", s.FetchParallelism)
	s.AliasMatching = l.envBool("ALIAS_MATCHING", s.AliasMatching)
	s.StartupScan = l.envBool("STARTUP_SCAN", s.StartupScan)

	c := &cfg.Cache
	c.Backend = l.envString("CACHE_BACKEND", c.Backend)
	c.RedisAddr = l.envString("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = l.envString("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = l.envInt("REDIS_DB", c.RedisDB)

	rt := &cfg.Retention
	rt.Enabled = l.envBool("RETENTION_ENABLED", rt.Enabled)
	rt.Interval = l.envDuration("RETENTION_INTERVAL", rt.Interval)
	rt.DryRun = l.envBool("RETENTION_DRY_RUN", rt.DryRun)

	cfg.API.ListenAddr = l.envString("LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimitRPM = l.envInt("API_RATE_LIMIT_RPM", cfg.API.RateLimitRPM)

	t := &cfg.Telemetry
	t.Enabled = l.envBool("TELEMETRY_ENABLED", t.Enabled)
	t.Exporter = l.envString("TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("TELEMETRY_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", t.SamplingRate)
}

// UnknownEnvKeys lists SPORTSDVR_* variables the loader never consumed.
// SPORTSDVR_CONFIG selects the file and is always known.
func (l *Loader) UnknownEnvKeys() []string {
	var out []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) || key == EnvPrefix+"CONFIG" {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
