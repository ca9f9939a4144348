// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package alias resolves team, league and event names to canonical forms.
//
// Lookups are case-insensitive and ignore punctuation and repeated whitespace.
// A user-editable custom table is consulted before the built-in table; binding an
// alias in the custom table rebinds only that alias and leaves the rest of the
// built-in synonym set of its former canonical name untouched.
package alias

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Registry answers canonical-name questions. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	builtinIndex   map[string]string   // normalized alias -> canonical
	builtinAliases map[string][]string // normalized canonical -> aliases
	kinds          map[string]Kind     // normalized canonical -> kind

	custom      map[string][]string // canonical -> aliases, as supplied by the user
	customIndex map[string]string   // normalized alias -> canonical

	version uint64
}

// NewRegistry builds a registry from the built-in table plus the given custom table.
func NewRegistry(custom map[string][]string) *Registry {
	r := &Registry{
		builtinIndex:   make(map[string]string),
		builtinAliases: make(map[string][]string),
		kinds:          make(map[string]Kind),
	}
	for _, e := range builtinTable {
		key := Normalize(e.Canonical)
		r.kinds[key] = e.Kind
		r.builtinIndex[key] = e.Canonical
		for _, a := range e.Aliases {
			r.builtinIndex[Normalize(a)] = e.Canonical
		}
		r.builtinAliases[key] = append([]string(nil), e.Aliases...)
	}
	r.setCustomLocked(custom)
	return r
}

// Resolve returns the canonical name for name. Unknown names resolve to themselves (trimmed).
func (r *Registry) Resolve(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(name)
}

func (r *Registry) resolveLocked(name string) string {
	key := Normalize(name)
	if key == "" {
		return strings.TrimSpace(name)
	}
	if c, ok := r.customIndex[key]; ok {
		return c
	}
	if c, ok := r.builtinIndex[key]; ok {
		return c
	}
	return strings.TrimSpace(name)
}

// IsKnown reports whether name resolves through either table.
func (r *Registry) IsKnown(name string) bool {
	key := Normalize(name)
	if key == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.customIndex[key]; ok {
		return true
	}
	_, ok := r.builtinIndex[key]
	return ok
}

// KindOf reports the built-in kind of name's canonical form.
func (r *Registry) KindOf(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[Normalize(r.resolveLocked(name))]
	return k, ok
}

// AliasesOf returns the canonical name of name followed by every alias that still
// resolves to it, sorted case-insensitively. Spelling variants that fold to the
// same key ("Barca", "Barça") are all kept since raw text may carry either.
func (r *Registry) AliasesOf(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical := r.resolveLocked(name)
	ckey := Normalize(canonical)

	seen := map[string]bool{strings.ToLower(canonical): true}
	var rest []string
	add := func(a string) {
		k := strings.ToLower(strings.TrimSpace(a))
		if k == "" || seen[k] {
			return
		}
		// An alias rebound elsewhere by the custom table no longer belongs here.
		if Normalize(r.resolveLocked(a)) != ckey {
			return
		}
		seen[k] = true
		rest = append(rest, a)
	}

	for _, a := range r.builtinAliases[ckey] {
		add(a)
	}
	for c, aliases := range r.custom {
		if Normalize(c) != ckey {
			continue
		}
		for _, a := range aliases {
			add(a)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		return strings.ToLower(rest[i]) < strings.ToLower(rest[j])
	})
	return append([]string{canonical}, rest...)
}

// AreEquivalent reports whether a and b share a canonical name.
func (r *Registry) AreEquivalent(a, b string) bool {
	if Normalize(a) == "" || Normalize(b) == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Normalize(r.resolveLocked(a)) == Normalize(r.resolveLocked(b))
}

// BuildMatchPattern returns a case-insensitive regular expression matching the
// canonical form of name and all of its aliases as whole words in raw text.
// Punctuation and spacing between words are optional, so "Man City" also
// matches "Man. City".
func (r *Registry) BuildMatchPattern(name string) string {
	names := r.AliasesOf(name)
	alts := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		alt := wordsPattern(n)
		if alt == "" || seen[alt] {
			continue
		}
		seen[alt] = true
		alts = append(alts, alt)
	}
	if len(alts) == 0 {
		return ""
	}
	// Longest first so alternation prefers the most specific form.
	sort.SliceStable(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	return `(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(alts, "|") + `)(?:[^\p{L}\p{N}]|$)`
}

var wordSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func wordsPattern(name string) string {
	var quoted []string
	for _, w := range wordSplit.Split(name, -1) {
		if w == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	return strings.Join(quoted, `[^\p{L}\p{N}]*`)
}

// SetCustom binds aliases to canonical in the custom table, replacing any previous
// custom entry for the same canonical name.
func (r *Registry) SetCustom(canonical string, aliases []string) {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.customCopyLocked()
	for c := range next {
		if Normalize(c) == Normalize(canonical) {
			delete(next, c)
		}
	}
	next[canonical] = cleanAliases(aliases)
	r.setCustomLocked(next)
}

// RemoveCustom drops the custom entry for canonical. It reports whether one existed.
func (r *Registry) RemoveCustom(canonical string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.customCopyLocked()
	removed := false
	for c := range next {
		if Normalize(c) == Normalize(canonical) {
			delete(next, c)
			removed = true
		}
	}
	if removed {
		r.setCustomLocked(next)
	}
	return removed
}

// ReplaceCustom swaps the whole custom table.
func (r *Registry) ReplaceCustom(custom map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setCustomLocked(custom)
}

// Custom returns a copy of the custom table.
func (r *Registry) Custom() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.customCopyLocked()
}

// Version increases every time the custom table changes. Callers caching derived
// patterns compare it to detect staleness.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Registry) customCopyLocked() map[string][]string {
	out := make(map[string][]string, len(r.custom))
	for c, a := range r.custom {
		out[c] = append([]string(nil), a...)
	}
	return out
}

func (r *Registry) setCustomLocked(custom map[string][]string) {
	r.custom = make(map[string][]string, len(custom))
	r.customIndex = make(map[string]string)

	canonicals := make([]string, 0, len(custom))
	for c := range custom {
		if strings.TrimSpace(c) != "" {
			canonicals = append(canonicals, c)
		}
	}
	// Deterministic: when two entries claim the same alias the later one in sorted order wins.
	sort.Strings(canonicals)
	for _, raw := range canonicals {
		c := strings.TrimSpace(raw)
		aliases := cleanAliases(custom[raw])
		r.custom[c] = aliases
		r.customIndex[Normalize(c)] = c
	}
	for _, raw := range canonicals {
		c := strings.TrimSpace(raw)
		for _, a := range r.custom[c] {
			if k := Normalize(a); k != "" {
				r.customIndex[k] = c
			}
		}
	}
	r.version++
}

func cleanAliases(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		k := Normalize(a)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}
