// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ScheduledEntry records that a guide program was acted upon by a scan.
type ScheduledEntry struct {
	ProgramID      string    `json:"programId"`
	SubscriptionID string    `json:"subscriptionId"`
	TimerID        string    `json:"timerId,omitempty"`
	Title          string    `json:"title,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	Start          time.Time `json:"start"`
	ScheduledAt    time.Time `json:"scheduledAt"`
}

// ScheduledSet is the scheduled-programs cache keyed by guide program id.
// Entries are only added after the matching timer was created.
type ScheduledSet interface {
	Has(ctx context.Context, programID string) (bool, error)
	Get(ctx context.Context, programID string) (ScheduledEntry, bool, error)
	Put(ctx context.Context, e ScheduledEntry) error
	Delete(ctx context.Context, programID string) error
	// List returns all entries ordered by start, then program id.
	List(ctx context.Context) ([]ScheduledEntry, error)
	// Clear drops every entry and reports how many were removed.
	Clear(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryScheduledSet is the process-lifetime ScheduledSet.
type MemoryScheduledSet struct {
	mu      sync.RWMutex
	entries map[string]ScheduledEntry
}

// NewMemoryScheduledSet returns an empty in-memory set.
func NewMemoryScheduledSet() *MemoryScheduledSet {
	return &MemoryScheduledSet{entries: make(map[string]ScheduledEntry)}
}

func (s *MemoryScheduledSet) Has(_ context.Context, programID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[programID]
	return ok, nil
}

func (s *MemoryScheduledSet) Get(_ context.Context, programID string) (ScheduledEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[programID]
	return e, ok, nil
}

func (s *MemoryScheduledSet) Put(_ context.Context, e ScheduledEntry) error {
	if e.ProgramID == "" {
		return ErrEmptyProgramID
	}
	s.mu.Lock()
	s.entries[e.ProgramID] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryScheduledSet) Delete(_ context.Context, programID string) error {
	s.mu.Lock()
	delete(s.entries, programID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryScheduledSet) List(_ context.Context) ([]ScheduledEntry, error) {
	s.mu.RLock()
	out := make([]ScheduledEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()
	SortEntries(out)
	return out, nil
}

func (s *MemoryScheduledSet) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]ScheduledEntry)
	s.mu.Unlock()
	return n, nil
}

func (s *MemoryScheduledSet) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryScheduledSet) Close() error { return nil }

// SortEntries orders entries by start, then program id.
func SortEntries(entries []ScheduledEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Start.Equal(entries[j].Start) {
			return entries[i].Start.Before(entries[j].Start)
		}
		return entries[i].ProgramID < entries[j].ProgramID
	})
}
