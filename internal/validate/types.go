// SPDX-License-Identifier: MIT
package validate

import "strings"

// LogLevel represents valid log levels
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (l LogLevel) String() string {
	return string(l)
}

// ParseLogLevel parses a case-insensitive level name.
func ParseLogLevel(s string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.IsValid() {
		return "", ErrInvalidLogLevel
	}
	return level, nil
}

// Common validation errors
var (
	ErrInvalidLogLevel = &Error{
		Field:   "logLevel",
		Message: "invalid log level (must be: trace, debug, info, warn, error)",
	}
)
