// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package subscription

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("subscription not found")
	ErrInvalid  = errors.New("invalid subscription")
)

// Kind is what a subscription follows.
type Kind string

const (
	KindTeam   Kind = "team"
	KindLeague Kind = "league"
	KindEvent  Kind = "event"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTeam, KindLeague, KindEvent:
		return true
	}
	return false
}

// ParseKind accepts kinds case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalid, s)
	}
	return k, nil
}

// Subscription is a standing recording rule.
type Subscription struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Kind               Kind     `json:"kind"`
	MatchExpression    string   `json:"matchExpression"`
	ExcludeExpressions []string `json:"excludeExpressions,omitempty"`
	Priority           int      `json:"priority"`
	SortOrder          int      `json:"sortOrder"`
	KeepLast           int      `json:"keepLast"`      // 0 = unbounded
	RetentionDays      int      `json:"retentionDays"` // 0 = never expire by age
	Favorite           bool     `json:"favorite"`
	IncludeReplays     bool     `json:"includeReplays"`
	Enabled            bool     `json:"enabled"`
}

// Expression returns the match expression, defaulting to the display name.
func (s Subscription) Expression() string {
	if e := strings.TrimSpace(s.MatchExpression); e != "" {
		return e
	}
	return strings.TrimSpace(s.Name)
}

// Validate checks user-supplied fields.
func (s Subscription) Validate() error {
	var problems []string
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !s.Kind.Valid() {
		problems = append(problems, fmt.Sprintf("kind %q must be one of team, league, event", s.Kind))
	}
	if s.KeepLast < 0 {
		problems = append(problems, "keepLast must be >= 0")
	}
	if s.RetentionDays < 0 {
		problems = append(problems, "retentionDays must be >= 0")
	}
	for i, e := range s.ExcludeExpressions {
		if strings.TrimSpace(e) == "" {
			problems = append(problems, fmt.Sprintf("excludeExpressions[%d] is empty", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (s Subscription) clone() Subscription {
	s.ExcludeExpressions = append([]string(nil), s.ExcludeExpressions...)
	return s
}
