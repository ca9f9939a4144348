// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID      = "request_id"
	FieldScanID         = "scan_id"
	FieldSubscriptionID = "subscription_id"
	FieldProgramID      = "program_id"
	FieldTimerID        = "timer_id"
	FieldRecordingID    = "recording_id"
	FieldChannelID      = "channel_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldTrigger   = "trigger"

	// Request fields
	FieldMethod   = "method"
	FieldPath     = "path"
	FieldStatus   = "status"
	FieldDuration = "duration_ms"
)
