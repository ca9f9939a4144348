// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package subscription

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

// FileName is the subscription list inside the data directory.
const FileName = "subscriptions.json"

// EventType describes a store mutation.
type EventType string

const (
	EventAdded     EventType = "added"
	EventUpdated   EventType = "updated"
	EventDeleted   EventType = "deleted"
	EventReordered EventType = "reordered"
	EventLoaded    EventType = "loaded"
)

// Event is delivered to change listeners after a mutation is persisted.
type Event struct {
	Type         EventType
	Subscription Subscription // zero for reordered/loaded
}

// Store holds the ordered subscription list. Every mutation is written through to
// disk before it becomes visible; a failed write leaves the previous state in place.
type Store struct {
	mu        sync.RWMutex
	subs      map[string]Subscription
	dataPath  string
	listeners []func(Event)
}

// NewStore returns a store persisting to dataDir. An empty dataDir keeps it in memory.
func NewStore(dataDir string) *Store {
	s := &Store{subs: make(map[string]Subscription)}
	if dataDir != "" {
		s.dataPath = filepath.Join(dataDir, FileName)
	}
	return s
}

// Load replaces the in-memory list with the persisted one. A missing file is an empty list.
func (s *Store) Load() error {
	if s.dataPath == "" {
		return nil
	}
	// #nosec G304 -- path is derived from the operator-provided data directory
	data, err := os.ReadFile(s.dataPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read subscriptions: %w", err)
	}

	var stored []Subscription
	if len(data) > 0 {
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("decode subscriptions: %w", err)
		}
	}

	loaded := make(map[string]Subscription, len(stored))
	for _, sub := range stored {
		if sub.ID == "" {
			return fmt.Errorf("%w: stored subscription %q has no id", ErrInvalid, sub.Name)
		}
		if _, dup := loaded[sub.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalid, sub.ID)
		}
		loaded[sub.ID] = sub
	}

	s.mu.Lock()
	s.subs = loaded
	s.mu.Unlock()
	s.notify(Event{Type: EventLoaded})
	return nil
}

// OnChange registers fn to run after every successful mutation.
func (s *Store) OnChange(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Add assigns an id and appends sub after every existing entry.
func (s *Store) Add(sub Subscription) (Subscription, error) {
	sub.ID = ""
	if err := sub.Validate(); err != nil {
		return Subscription{}, err
	}

	s.mu.Lock()
	sub.ID = uuid.New().String()
	sub.SortOrder = s.nextSortOrderLocked()
	sub = sub.clone()
	s.subs[sub.ID] = sub
	if err := s.persistLocked(); err != nil {
		delete(s.subs, sub.ID)
		s.mu.Unlock()
		return Subscription{}, fmt.Errorf("failed to save subscription: %w", err)
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventAdded, Subscription: sub})
	return sub, nil
}

// Update replaces every field of the subscription except its id.
func (s *Store) Update(id string, upd Subscription) (Subscription, error) {
	if err := upd.Validate(); err != nil {
		return Subscription{}, err
	}

	s.mu.Lock()
	existing, ok := s.subs[id]
	if !ok {
		s.mu.Unlock()
		return Subscription{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	upd.ID = id
	upd = upd.clone()
	s.subs[id] = upd
	if err := s.persistLocked(); err != nil {
		s.subs[id] = existing
		s.mu.Unlock()
		return Subscription{}, fmt.Errorf("failed to update subscription: %w", err)
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventUpdated, Subscription: upd})
	return upd, nil
}

// Toggle flips the enabled flag.
func (s *Store) Toggle(id string) (Subscription, error) {
	s.mu.Lock()
	existing, ok := s.subs[id]
	if !ok {
		s.mu.Unlock()
		return Subscription{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := existing.clone()
	next.Enabled = !next.Enabled
	s.subs[id] = next
	if err := s.persistLocked(); err != nil {
		s.subs[id] = existing
		s.mu.Unlock()
		return Subscription{}, fmt.Errorf("failed to toggle subscription: %w", err)
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventUpdated, Subscription: next})
	return next, nil
}

// Delete removes the subscription. Timers already created for it are left alone.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	existing, ok := s.subs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.subs, id)
	if err := s.persistLocked(); err != nil {
		s.subs[id] = existing
		s.mu.Unlock()
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventDeleted, Subscription: existing})
	return nil
}

// Reorder moves the given ids to the front, in the given order, and renumbers the
// whole list contiguously. Ids not listed keep their relative order after them.
func (s *Store) Reorder(ids []string) error {
	s.mu.Lock()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.subs[id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if seen[id] {
			s.mu.Unlock()
			return fmt.Errorf("%w: duplicate id %s in order", ErrInvalid, id)
		}
		seen[id] = true
	}

	previous := make(map[string]Subscription, len(s.subs))
	for id, sub := range s.subs {
		previous[id] = sub
	}

	order := append([]string(nil), ids...)
	for _, sub := range sortedLocked(s.subs) {
		if !seen[sub.ID] {
			order = append(order, sub.ID)
		}
	}
	for i, id := range order {
		sub := s.subs[id]
		sub.SortOrder = i
		s.subs[id] = sub
	}

	if err := s.persistLocked(); err != nil {
		s.subs = previous
		s.mu.Unlock()
		return fmt.Errorf("failed to reorder subscriptions: %w", err)
	}
	s.mu.Unlock()

	s.notify(Event{Type: EventReordered})
	return nil
}

// Get returns a copy of one subscription.
func (s *Store) Get(id string) (Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	return sub.clone(), ok
}

// List returns a snapshot ordered by sort order, then id.
func (s *Store) List() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedLocked(s.subs)
}

// Enabled returns the enabled subscriptions in list order.
func (s *Store) Enabled() []Subscription {
	all := s.List()
	out := all[:0]
	for _, sub := range all {
		if sub.Enabled {
			out = append(out, sub)
		}
	}
	return out
}

// FindByName returns the first subscription whose name matches case-insensitively.
func (s *Store) FindByName(name string) (Subscription, bool) {
	for _, sub := range s.List() {
		if strings.EqualFold(strings.TrimSpace(sub.Name), strings.TrimSpace(name)) {
			return sub, true
		}
	}
	return Subscription{}, false
}

func sortedLocked(m map[string]Subscription) []Subscription {
	out := make([]Subscription, 0, len(m))
	for _, sub := range m {
		out = append(out, sub.clone())
	}
	Sort(out)
	return out
}

// Sort orders subscriptions by sort order, then id.
func Sort(subs []Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].SortOrder != subs[j].SortOrder {
			return subs[i].SortOrder < subs[j].SortOrder
		}
		return subs[i].ID < subs[j].ID
	})
}

func (s *Store) nextSortOrderLocked() int {
	next := 0
	for _, sub := range s.subs {
		if sub.SortOrder >= next {
			next = sub.SortOrder + 1
		}
	}
	return next
}

func (s *Store) persistLocked() error {
	if s.dataPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(sortedLocked(s.subs), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.dataPath), 0o750); err != nil {
		return err
	}
	return renameio.WriteFile(s.dataPath, data, 0o600)
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
