// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment key.
const EnvPrefix = "SPORTSDVR_"

// ParseString reads a string from the environment or returns defaultValue.
func ParseString(logger zerolog.Logger, key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	lowerKey := strings.ToLower(key)
	if strings.Contains(lowerKey, "password") || strings.Contains(lowerKey, "token") {
		logger.Debug().Str("key", key).Bool("sensitive", true).Str("source", "environment").Msg("using environment variable")
	} else {
		logger.Debug().Str("key", key).Str("value", value).Str("source", "environment").Msg("using environment variable")
	}
	return value
}

// ParseInt reads an integer from the environment. Invalid values fall back to
// defaultValue with a warning.
func ParseInt(logger zerolog.Logger, key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Int("default", defaultValue).Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Int("value", i).Str("source", "environment").Msg("using environment variable")
	return i
}

// ParseFloat reads a float from the environment.
func ParseFloat(logger zerolog.Logger, key string, defaultValue float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Float64("default", defaultValue).Msg("invalid float in environment variable, using default")
		return defaultValue
	}
	return f
}

// ParseBool reads a boolean ("true", "1", "yes", "on" and their negations).
func ParseBool(logger zerolog.Logger, key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	logger.Warn().Str("key", key).Str("value", v).Bool("default", defaultValue).Msg("invalid boolean in environment variable, using default")
	return defaultValue
}

// ParseDuration reads a Go duration ("5s", "6h").
func ParseDuration(logger zerolog.Logger, key string, defaultValue time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Dur("default", defaultValue).Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	return d
}
