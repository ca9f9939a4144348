// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package match evaluates subscription expressions against program text.
//
// Expressions are compiled once per subscription revision and cached by
// subscription id. An expression that looks like a regular expression but fails
// to compile is matched as an escaped literal instead; the fallback is decided at
// compile time and stored with the entry.
package match

import (
	"regexp"
	"strings"
	"sync"

	"github.com/ManuGH/sportsdvr/internal/alias"
	"github.com/ManuGH/sportsdvr/internal/subscription"
)

// Result contains the outcome of matching one subscription against one program.
type Result struct {
	Matched bool
	// Excluded is set when the include side hit but an exclude expression vetoed it.
	Excluded bool
	Reasons  []string
}

// Target is the program side of a match.
type Target struct {
	// Text is the lower-cased searchable text, see SearchableText.
	Text       string
	HasMatchup bool
}

// SearchableText joins title, description, channel and genre tags, lower-cased.
func SearchableText(title, description, channel string, genres []string) string {
	parts := make([]string, 0, 3+len(genres))
	for _, p := range append([]string{title, description, channel}, genres...) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Options configure a Matcher.
type Options struct {
	// AliasMatching also tests every known alias of the subscription name.
	AliasMatching bool
}

// Matcher evaluates subscriptions. It is safe for concurrent use.
type Matcher struct {
	aliases *alias.Registry

	mu       sync.RWMutex
	opts     Options
	compiled map[string]*compiled
}

// New returns a matcher using reg for alias expansion. reg may be nil.
func New(reg *alias.Registry, opts Options) *Matcher {
	if reg == nil {
		reg = alias.NewRegistry(nil)
	}
	return &Matcher{aliases: reg, opts: opts, compiled: make(map[string]*compiled)}
}

// SetOptions swaps the options; cached patterns are kept.
func (m *Matcher) SetOptions(opts Options) {
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
}

// Options returns the current options.
func (m *Matcher) Options() Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opts
}

// Matches evaluates sub against target. Rules, in order: any exclude expression
// vetoes; the match expression is tested as regex or substring; with alias matching
// enabled every alias of the subscription name is tried; team subscriptions also
// require a matchup pattern.
func (m *Matcher) Matches(sub subscription.Subscription, target Target) Result {
	c := m.compiledFor(sub)
	text := strings.ToLower(target.Text)

	var res Result
	include, how := c.include.match(text), ""
	if include {
		how = c.include.describe()
	} else if m.Options().AliasMatching && c.alias != nil && c.alias.MatchString(text) {
		include, how = true, "alias match"
	}

	for _, ex := range c.excludes {
		if ex.match(text) {
			return Result{Excluded: include, Reasons: []string{"excluded by " + ex.describe()}}
		}
	}
	if !include {
		return Result{Reasons: []string{"no match"}}
	}
	res.Reasons = append(res.Reasons, how)

	if sub.Kind == subscription.KindTeam {
		if !target.HasMatchup {
			return Result{Reasons: []string{how, "team requires matchup"}}
		}
		res.Reasons = append(res.Reasons, "matchup")
	}
	res.Matched = true
	return res
}

// Compile precompiles sub's expressions. Matches compiles lazily as well; calling
// this on create/update moves the cost out of the scan.
func (m *Matcher) Compile(sub subscription.Subscription) {
	m.compiledFor(sub)
}

// Forget drops the cached patterns for id.
func (m *Matcher) Forget(id string) {
	m.mu.Lock()
	delete(m.compiled, id)
	m.mu.Unlock()
}

// Reset drops every cached pattern.
func (m *Matcher) Reset() {
	m.mu.Lock()
	m.compiled = make(map[string]*compiled)
	m.mu.Unlock()
}

// HandleEvent keeps the cache in step with the subscription store.
func (m *Matcher) HandleEvent(ev subscription.Event) {
	switch ev.Type {
	case subscription.EventAdded, subscription.EventUpdated:
		m.Compile(ev.Subscription)
	case subscription.EventDeleted:
		m.Forget(ev.Subscription.ID)
	case subscription.EventLoaded:
		m.Reset()
	}
}

// IsFallback reports whether sub's match expression failed to compile and is
// being matched literally.
func (m *Matcher) IsFallback(sub subscription.Subscription) bool {
	return m.compiledFor(sub).include.fallback
}

type compiled struct {
	fingerprint  string
	aliasVersion uint64

	include  pattern
	excludes []pattern
	alias    *regexp.Regexp
}

func (m *Matcher) compiledFor(sub subscription.Subscription) *compiled {
	fp := fingerprint(sub)
	version := m.aliases.Version()

	m.mu.RLock()
	c, ok := m.compiled[sub.ID]
	m.mu.RUnlock()
	if ok && c.fingerprint == fp && c.aliasVersion == version {
		return c
	}

	c = &compiled{
		fingerprint:  fp,
		aliasVersion: version,
		include:      compilePattern(sub.Expression()),
	}
	for _, ex := range sub.ExcludeExpressions {
		if strings.TrimSpace(ex) == "" {
			continue
		}
		c.excludes = append(c.excludes, compilePattern(ex))
	}
	if name := aliasSource(sub); name != "" {
		if p := m.aliases.BuildMatchPattern(name); p != "" {
			c.alias, _ = regexp.Compile(p)
		}
	}

	if sub.ID != "" {
		m.mu.Lock()
		m.compiled[sub.ID] = c
		m.mu.Unlock()
	}
	return c
}

// aliasSource is the name whose aliases are tried: a literal expression, or the
// display name when the expression is a regex.
func aliasSource(sub subscription.Subscription) string {
	expr := sub.Expression()
	if !LooksLikeRegex(expr) {
		return expr
	}
	return strings.TrimSpace(sub.Name)
}

func fingerprint(sub subscription.Subscription) string {
	var b strings.Builder
	b.WriteString(string(sub.Kind))
	b.WriteByte(0)
	b.WriteString(sub.Name)
	b.WriteByte(0)
	b.WriteString(sub.MatchExpression)
	for _, ex := range sub.ExcludeExpressions {
		b.WriteByte(0)
		b.WriteString(ex)
	}
	return b.String()
}

// LooksLikeRegex reports whether expr is treated as a regular expression.
func LooksLikeRegex(expr string) bool {
	return strings.ContainsAny(expr, "|([")
}

type pattern struct {
	source   string
	literal  string
	re       *regexp.Regexp
	fallback bool
}

// compilePattern decides between regex and substring semantics once.
func compilePattern(expr string) pattern {
	expr = strings.TrimSpace(expr)
	p := pattern{source: expr}
	if expr == "" {
		return p
	}
	if LooksLikeRegex(expr) {
		re, err := regexp.Compile("(?i)" + expr)
		if err == nil {
			p.re = re
			return p
		}
		p.fallback = true
		p.re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(expr))
		return p
	}
	p.literal = strings.ToLower(expr)
	return p
}

func (p pattern) match(lowerText string) bool {
	switch {
	case p.re != nil:
		return p.re.MatchString(lowerText)
	case p.literal != "":
		return strings.Contains(lowerText, p.literal)
	}
	return false
}

func (p pattern) describe() string {
	switch {
	case p.fallback:
		return "literal " + quote(p.source) + " (invalid regex)"
	case p.re != nil:
		return "regex " + quote(p.source)
	}
	return "substring " + quote(p.source)
}

func quote(s string) string { return `"` + s + `"` }
