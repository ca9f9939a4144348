// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dvr turns guide programs into recording timers for subscriptions.
//
// A scan fetches upcoming programs, scores and attributes them to subscriptions,
// resolves conflicts against the tuner budget and creates timers in the external
// timer store. Planning is pure (Planner.Plan); the Engine adds I/O,
// cancellation and reporting, and the Scheduler runs the Engine on a daily
// schedule and on demand.
package dvr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/sportsdvr/internal/alias"
)

// Channel is one guide channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Program is one guide entry.
type Program struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	ChannelID        string    `json:"channelId"`
	ChannelName      string    `json:"channelName"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Description      string    `json:"description,omitempty"`
	Genres           []string  `json:"genres,omitempty"`
	IsLive           bool      `json:"isLive"`
	IsSportsCategory bool      `json:"isSportsCategory"`
}

// Timer is a recording timer held by the external timer store.
type Timer struct {
	ID          string    `json:"id"`
	ProgramID   string    `json:"programId,omitempty"`
	Name        string    `json:"name"`
	ChannelID   string    `json:"channelId,omitempty"`
	ChannelName string    `json:"channelName"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Priority    int       `json:"priority"`
	// Managed is set for timers created by this scheduler.
	Managed        bool   `json:"managed"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// TimerRequest asks the timer store to record a program.
type TimerRequest struct {
	Program        Program
	Priority       int
	SubscriptionID string
}

// GuideSource provides channels and programs.
type GuideSource interface {
	ListChannels(ctx context.Context) ([]Channel, error)
	ListPrograms(ctx context.Context, channelID string, from, to time.Time) ([]Program, error)
}

// TimerStore creates and cancels recording timers.
type TimerStore interface {
	ListTimers(ctx context.Context) ([]Timer, error)
	CreateTimer(ctx context.Context, req TimerRequest) (string, error)
	CancelTimer(ctx context.Context, timerID string) error
	CancelAll(ctx context.Context) (int, error)
}

// ContentKey identifies a broadcast independently of guide ids:
// normalized title, channel name and start time.
func ContentKey(title, channel string, start time.Time) string {
	return fmt.Sprintf("%s|%s|%d", alias.Normalize(title), strings.ToLower(strings.TrimSpace(channel)), start.Unix())
}

// overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
