// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrAlreadyRunning is returned when another daemon holds the data directory lock.
	ErrAlreadyRunning = errors.New("another sportsdvr instance is using the data directory")

	// ErrMissingConfig is returned when a runtime is built without a config holder.
	ErrMissingConfig = errors.New("config holder is required")

	// ErrUnknownCacheBackend is returned for a cache backend the daemon cannot open.
	ErrUnknownCacheBackend = errors.New("unknown cache backend")
)
