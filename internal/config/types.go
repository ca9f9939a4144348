// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration from defaults, an optional
// YAML file and SPORTSDVR_* environment variables, and reloads it on change.
package config

import "time"

// Cache backends for the scheduled-programs cache.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheBadger = "badger"
	CacheRedis  = "redis"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	DataDir   string          `yaml:"dataDir"`
	LogLevel  string          `yaml:"logLevel"`
	Receiver  ReceiverConfig  `yaml:"receiver"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
	Retention RetentionConfig `yaml:"retention"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ReceiverConfig addresses the OpenWebIF receiver.
type ReceiverConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rateLimit"`
	RateBurst int           `yaml:"rateBurst"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
}

// SchedulerConfig tunes scans.
type SchedulerConfig struct {
	// ConcurrencyBudget has no default. Zero makes every scan refuse.
	ConcurrencyBudget   int           `yaml:"concurrencyBudget"`
	DailyAt             string        `yaml:"dailyAt"`
	HorizonHours        int           `yaml:"horizonHours"`
	ChannelFetchTimeout time.Duration `yaml:"channelFetchTimeout"`
	TimerCallTimeout    time.Duration `yaml:"timerCallTimeout"`
	FetchParallelism    int           `yaml:"fetchParallelism"`
	AliasMatching       bool          `yaml:"aliasMatching"`
	StartupScan         bool          `yaml:"startupScan"`
}

// Horizon returns HorizonHours as a duration.
func (s SchedulerConfig) Horizon() time.Duration {
	return time.Duration(s.HorizonHours) * time.Hour
}

// CacheConfig selects the scheduled-programs cache backend.
type CacheConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
}

// RetentionConfig controls the periodic retention sweep.
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	DryRun   bool          `yaml:"dryRun"`
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	ListenAddr   string `yaml:"listenAddr"`
	RateLimitRPM int    `yaml:"rateLimitRPM"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  "data",
		LogLevel: "info",
		Receiver: ReceiverConfig{
			Timeout:   10 * time.Second,
			RateLimit: 10,
			RateBurst: 20,
		},
		Scheduler: SchedulerConfig{
			DailyAt:             "03:00",
			HorizonHours:        72,
			ChannelFetchTimeout: 15 * time.Second,
			TimerCallTimeout:    10 * time.Second,
			FetchParallelism:    4,
			AliasMatching:       true,
			StartupScan:         true,
		},
		Cache: CacheConfig{Backend: CacheSQLite},
		Retention: RetentionConfig{
			Enabled:  true,
			Interval: 6 * time.Hour,
		},
		API: APIConfig{
			ListenAddr:   ":8089",
			RateLimitRPM: 120,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
