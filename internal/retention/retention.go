// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package retention decides which completed recordings of a subscription to
// delete: keep-last, retention-days and the favorite override.
package retention

import (
	"context"
	"sort"
	"time"

	"github.com/ManuGH/sportsdvr/internal/subscription"
)

// Reason explains why a recording is deleted.
type Reason string

const (
	ReasonKeepLast      Reason = "keep_last"
	ReasonRetentionDays Reason = "retention_days"
)

// Recording is one completed recording of a subscription.
type Recording struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscriptionId"`
	Title          string    `json:"title"`
	AiredAt        time.Time `json:"airedAt"`
	Path           string    `json:"path"`
}

// Decision is keep or delete for one recording.
type Decision struct {
	Recording Recording `json:"recording"`
	Delete    bool      `json:"delete"`
	Reasons   []Reason  `json:"reasons,omitempty"`
	// Protected is set when the favorite flag kept a recording a rule flagged.
	Protected bool `json:"protected,omitempty"`
}

// RecordingStore lists and deletes completed recordings.
type RecordingStore interface {
	ListCompleted(ctx context.Context, subscriptionID string) ([]Recording, error)
	Delete(ctx context.Context, recordingID string) error
}

// Evaluate returns one decision per recording, newest first. Both rules are
// applied independently; a recording flagged by both is listed once with both
// reasons. Favorites are never deleted.
func Evaluate(sub subscription.Subscription, recs []Recording, now time.Time) []Decision {
	sorted := append([]Recording(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].AiredAt.Equal(sorted[j].AiredAt) {
			return sorted[i].AiredAt.After(sorted[j].AiredAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var cutoff time.Time
	if sub.RetentionDays > 0 {
		cutoff = now.Add(-time.Duration(sub.RetentionDays) * 24 * time.Hour)
	}

	out := make([]Decision, 0, len(sorted))
	seen := make(map[string]bool, len(sorted))
	kept := 0
	for _, r := range sorted {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true

		d := Decision{Recording: r}
		if sub.KeepLast > 0 {
			if kept >= sub.KeepLast {
				d.Reasons = append(d.Reasons, ReasonKeepLast)
			}
			kept++
		}
		if !cutoff.IsZero() && r.AiredAt.Before(cutoff) {
			d.Reasons = append(d.Reasons, ReasonRetentionDays)
		}
		if len(d.Reasons) > 0 {
			if sub.Favorite {
				d.Protected = true
			} else {
				d.Delete = true
			}
		}
		out = append(out, d)
	}
	return out
}

// Deletions filters decisions to the ones marked delete, oldest first.
func Deletions(ds []Decision) []Decision {
	var out []Decision
	for i := len(ds) - 1; i >= 0; i-- {
		if ds[i].Delete {
			out = append(out, ds[i])
		}
	}
	return out
}
