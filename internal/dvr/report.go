// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
)

// Scan statuses.
const (
	StatusSuccess   = "success"
	StatusDegraded  = "degraded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Triggers.
const (
	TriggerDaily   = "daily"
	TriggerManual  = "manual"
	TriggerStartup = "startup"
	TriggerRetry   = "retry"
	TriggerDryRun  = "dry_run"
)

// maxReportErrors bounds the error list kept in a report.
const maxReportErrors = 50

// ScanSummary holds the counters of one scan.
type ScanSummary struct {
	ChannelsTotal     int `json:"channelsTotal"`
	ChannelsFailed    int `json:"channelsFailed"`
	ProgramsFetched   int `json:"programsFetched"`
	ProgramsEvaluated int `json:"programsEvaluated"`
	BelowThreshold    int `json:"belowThreshold"`
	Unmatched         int `json:"unmatched"`
	Matched           int `json:"matched"`
	TimersPlanned     int `json:"timersPlanned"`
	TimersCreated     int `json:"timersCreated"`
	TimersFailed      int `json:"timersFailed"`
	TimersNotApplied  int `json:"timersNotApplied"`
	AlreadyScheduled  int `json:"alreadyScheduled"`
	Conflicts         int `json:"conflicts"`
	Excluded          int `json:"excluded"`
	Replays           int `json:"replays"`
	CacheWriteFailed  int `json:"cacheWriteFailed"`
}

// ScanError is one collaborator failure recorded during a scan.
type ScanError struct {
	Stage     string    `json:"stage"` // channels|programs|timers|create|cache
	Target    string    `json:"target,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
	Retryable bool      `json:"retryable"`
}

// ScanReport describes one scan. It never carries raw collaborator errors outside
// the Errors list.
type ScanReport struct {
	RunID      string      `json:"runId"`
	Trigger    string      `json:"trigger"`
	DryRun     bool        `json:"dryRun"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
	DurationMs int64       `json:"durationMs"`
	WindowFrom time.Time   `json:"windowFrom"`
	WindowTo   time.Time   `json:"windowTo"`
	Budget     int         `json:"budget"`
	Status     string      `json:"status"`
	Message    string      `json:"message"`
	Summary    ScanSummary `json:"summary"`
	Decisions  []Decision  `json:"decisions"`
	Errors     []ScanError `json:"errors,omitempty"`
}

func (r *ScanReport) addError(stage, target string, err error, retryable bool, at time.Time) {
	if len(r.Errors) >= maxReportErrors {
		return
	}
	r.Errors = append(r.Errors, ScanError{
		Stage: stage, Target: target, Message: err.Error(), At: at, Retryable: retryable,
	})
}

// TriggerResult is the short answer to an on-demand scan.
type TriggerResult struct {
	RunID            string `json:"runId"`
	Status           string `json:"status"`
	Message          string `json:"message"`
	MatchesFound     int    `json:"matchesFound"`
	NewRecordings    int    `json:"newRecordings"`
	AlreadyScheduled int    `json:"alreadyScheduled"`
}

// Result condenses the report.
func (r *ScanReport) Result() TriggerResult {
	return TriggerResult{
		RunID:            r.RunID,
		Status:           r.Status,
		Message:          r.Message,
		MatchesFound:     r.Summary.Matched,
		NewRecordings:    r.Summary.TimersCreated,
		AlreadyScheduled: r.Summary.AlreadyScheduled,
	}
}

// summarize sets the status and the human-readable message from the counters.
func (r *ScanReport) summarize(cancelled bool) {
	s := r.Summary
	switch {
	case cancelled:
		r.Status = StatusCancelled
	case r.Status == StatusFailed:
	case s.ChannelsFailed > 0 || s.TimersFailed > 0 || s.CacheWriteFailed > 0:
		r.Status = StatusDegraded
	default:
		r.Status = StatusSuccess
	}

	if r.Status == StatusFailed {
		return
	}
	parts := []string{fmt.Sprintf("%d matched", s.Matched)}
	if r.DryRun {
		parts = append(parts, fmt.Sprintf("%d would be recorded", s.TimersPlanned))
	} else {
		parts = append(parts, fmt.Sprintf("%d new recordings", s.TimersCreated))
	}
	parts = append(parts, fmt.Sprintf("%d already scheduled", s.AlreadyScheduled))
	if s.Conflicts > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped for tuner conflicts", s.Conflicts))
	}
	msg := strings.Join(parts, ", ")
	if s.ChannelsFailed > 0 {
		msg += fmt.Sprintf("; %d of %d channels could not be read", s.ChannelsFailed, s.ChannelsTotal)
	}
	if s.TimersFailed > 0 {
		msg += fmt.Sprintf("; %d timers could not be created", s.TimersFailed)
	}
	if cancelled {
		msg = "scan cancelled: " + msg
		if s.TimersNotApplied > 0 {
			msg += fmt.Sprintf("; %d planned timers not attempted", s.TimersNotApplied)
		}
	}
	r.Message = msg
}

// ReportFileName is the last scan report inside <dataDir>/reports.
const ReportFileName = "last_scan.json"

// SaveReport writes r atomically to dir/last_scan.json.
func SaveReport(dir string, r *ScanReport) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(dir, ReportFileName), data, 0o600)
}

// LoadReport reads the last persisted report. It returns nil without error when none exists.
func LoadReport(dir string) (*ScanReport, error) {
	// #nosec G304 -- path is derived from the operator-provided data directory
	data, err := os.ReadFile(filepath.Join(dir, ReportFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r ScanReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode last scan report: %w", err)
	}
	return &r, nil
}
