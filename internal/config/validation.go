// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/validate"
)

// Validate checks cfg and returns a validate.ValidationError listing every
// failing field.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("dataDir", cfg.DataDir, false)
	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", validate.ErrInvalidLogLevel.Message, cfg.LogLevel)
	}

	v.URL("receiver.baseURL", cfg.Receiver.BaseURL, []string{"http", "https"})
	v.PositiveDuration("receiver.timeout", cfg.Receiver.Timeout)
	if cfg.Receiver.RateLimit < 0 {
		v.AddError("receiver.rateLimit", "value cannot be negative", cfg.Receiver.RateLimit)
	}
	v.NonNegative("receiver.rateBurst", cfg.Receiver.RateBurst)

	s := cfg.Scheduler
	v.NonNegative("scheduler.concurrencyBudget", s.ConcurrencyBudget)
	v.Custom("scheduler.dailyAt", s.DailyAt, func(any) error {
		_, _, err := dvr.ParseDailyAt(s.DailyAt)
		return err
	})
	v.Range("scheduler.horizonHours", s.HorizonHours, 1, 24*14)
	v.PositiveDuration("scheduler.channelFetchTimeout", s.ChannelFetchTimeout)
	v.PositiveDuration("scheduler.timerCallTimeout", s.TimerCallTimeout)
	v.Range("scheduler.fetchParallelism", s.FetchParallelism, 1, 64)

	v.OneOf("cache.backend", cfg.Cache.Backend, []string{CacheMemory, CacheSQLite, CacheBadger, CacheRedis})
	if cfg.Cache.Backend == CacheRedis {
		v.NotEmpty("cache.redisAddr", cfg.Cache.RedisAddr)
	}
	v.NonNegative("cache.redisDB", cfg.Cache.RedisDB)

	if cfg.Retention.Enabled {
		v.PositiveDuration("retention.interval", cfg.Retention.Interval)
	}

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.NonNegative("api.rateLimitRPM", cfg.API.RateLimitRPM)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http", "none"})
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
		if cfg.Telemetry.Exporter != "none" {
			v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		}
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
