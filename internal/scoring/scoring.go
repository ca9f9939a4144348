// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scoring classifies guide titles as sporting events.
//
// The scorer is an additive heuristic: every signal found in the title, channel or
// description adds or subtracts a fixed weight. The resulting score is compared to
// two thresholds (likely, possible). Scoring never fails; malformed text simply
// produces a low score.
package scoring

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/ManuGH/sportsdvr/internal/alias"
)

// Weights and thresholds.
const (
	Baseline         = 10
	WeightMatchup    = 40
	WeightKnownPair  = 10
	WeightSportsChan = 20
	WeightLeague     = 15
	WeightLiveMarker = 10
	PenaltyReplay    = -25
	PenaltyPrePost   = -30

	LikelyThreshold   = 50
	PossibleThreshold = 30
)

// Signal names reported in ScoredProgram.Signals.
const (
	SignalMatchup      = "matchup"
	SignalKnownPair    = "known_pair"
	SignalSportsChan   = "sports_channel"
	SignalSportsHint   = "sports_hint"
	SignalLeague       = "league"
	SignalLiveMarker   = "live_marker"
	SignalReplayTerm   = "replay_term"
	SignalPastYear     = "past_year"
	SignalPrePost      = "pregame_postgame"
	SignalMatchupFloor = "matchup_floor"
)

// ScoredProgram is the classification of one guide entry.
type ScoredProgram struct {
	OriginalTitle     string   `json:"originalTitle"`
	CleanTitle        string   `json:"cleanTitle"`
	Team1             string   `json:"team1,omitempty"`
	Team2             string   `json:"team2,omitempty"`
	League            string   `json:"league,omitempty"`
	Score             int      `json:"score"`
	IsLikelyGame      bool     `json:"isLikelyGame"`
	IsPossibleGame    bool     `json:"isPossibleGame"`
	IsReplay          bool     `json:"isReplay"`
	HasMatchup        bool     `json:"hasMatchupPattern"`
	IsSportsChannel   bool     `json:"isSportsChannel"`
	IsPregamePostgame bool     `json:"isPregamePostgame"`
	Signals           []string `json:"signals,omitempty"`
}

// Scorer scores titles against a fixed reference year. Construct one per scan (or per
// process) with New; it is safe for concurrent use.
type Scorer struct {
	aliases *alias.Registry
	year    int

	mu             sync.Mutex
	leagues        []leaguePattern
	leaguesVersion uint64
	leaguesBuilt   bool
}

type leaguePattern struct {
	name string
	re   *regexp.Regexp
}

// New returns a scorer resolving names through reg. currentYear is the reference for
// past-year replay detection. reg may be nil, in which case only the built-in table is used.
func New(reg *alias.Registry, currentYear int) *Scorer {
	if reg == nil {
		reg = alias.NewRegistry(nil)
	}
	return &Scorer{aliases: reg, year: currentYear}
}

// Year returns the reference year.
func (s *Scorer) Year() int { return s.year }

var (
	replayTerms  = regexp.MustCompile(`(?i)\b(replays?|encore|classics?|re-?runs?|re-?air(?:ed|s)?|rebroadcasts?|throwback|vintage|best of)\b`)
	prePostTerms = regexp.MustCompile(`(?i)\b(pre-?game|post-?game|pre-?match|post-?match|highlights|recap)\b`)
	liveMarker   = regexp.MustCompile(`(?i)(\(\s*live\s*\)|\[\s*live\s*\]|^\s*live\s*[:\-|])`)
	yearToken    = regexp.MustCompile(`\b(19\d{2}|20\d{2})(?:\s*[-/–]\s*(\d{4}|\d{2}))?\b`)
	markerParen  = regexp.MustCompile(`(?i)\s*[\(\[]\s*(live|hd|uhd|4k|new|sd)\s*[\)\]]`)
	livePrefix   = regexp.MustCompile(`(?i)^\s*live\s*[:\-|]\s*`)
	segmentSplit = regexp.MustCompile(`\s+[-|–—]\s+`)
	connector    = regexp.MustCompile(`(?i)\s+(vs\.?|v\.?|at|@)\s+`)
)

// Score classifies one program. sportsHint is the guide's own sports-category flag.
func (s *Scorer) Score(title, channel, description string, sportsHint bool) ScoredProgram {
	sp := ScoredProgram{OriginalTitle: title}
	score := Baseline

	leagues := s.leaguePatterns()
	sp.CleanTitle = s.cleanTitle(title, channel, leagues)

	team1, team2, ok := s.splitMatchup(sp.CleanTitle, leagues)
	if ok {
		sp.HasMatchup = true
		sp.Team1, sp.Team2 = team1, team2
		score += WeightMatchup
		sp.Signals = append(sp.Signals, SignalMatchup)
	}
	knownPair := ok && s.aliases.IsKnown(team1) && s.aliases.IsKnown(team2)
	if knownPair {
		score += WeightKnownPair
		sp.Signals = append(sp.Signals, SignalKnownPair)
	}

	sp.IsSportsChannel = IsSportsChannel(channel)
	if sp.IsSportsChannel || sportsHint {
		score += WeightSportsChan
		if sp.IsSportsChannel {
			sp.Signals = append(sp.Signals, SignalSportsChan)
		} else {
			sp.Signals = append(sp.Signals, SignalSportsHint)
		}
	}

	if league := detectLeague(leagues, title, description); league != "" {
		sp.League = league
		score += WeightLeague
		sp.Signals = append(sp.Signals, SignalLeague+":"+league)
	}

	if liveMarker.MatchString(title) {
		score += WeightLiveMarker
		sp.Signals = append(sp.Signals, SignalLiveMarker)
	}

	if replayTerms.MatchString(title) || replayTerms.MatchString(description) {
		sp.IsReplay = true
		sp.Signals = append(sp.Signals, SignalReplayTerm)
	}
	if y, past := s.pastYear(title); past {
		sp.IsReplay = true
		sp.Signals = append(sp.Signals, SignalPastYear+":"+strconv.Itoa(y))
	}
	if sp.IsReplay {
		score += PenaltyReplay
	}

	if prePostTerms.MatchString(title) {
		sp.IsPregamePostgame = true
		score += PenaltyPrePost
		sp.Signals = append(sp.Signals, SignalPrePost)
	}

	// A matchup between two known names is always at least a possible game.
	if knownPair && score < PossibleThreshold {
		score = PossibleThreshold
		sp.Signals = append(sp.Signals, SignalMatchupFloor)
	}

	sp.Score = score
	sp.IsLikelyGame = score >= LikelyThreshold
	sp.IsPossibleGame = score >= PossibleThreshold
	return sp
}

// pastYear reports the first year token older than the reference year. Season
// ranges ("2025-26") covering the reference year do not count.
func (s *Scorer) pastYear(title string) (int, bool) {
	if s.year <= 0 {
		return 0, false
	}
	for _, m := range yearToken.FindAllStringSubmatch(title, -1) {
		start, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		end := start
		if m[2] != "" {
			if len(m[2]) == 2 {
				if tail, err := strconv.Atoi(m[2]); err == nil {
					end = start - start%100 + tail
					if end < start {
						end += 100
					}
				}
			} else if full, err := strconv.Atoi(m[2]); err == nil {
				end = full
			}
		}
		if end < s.year {
			return start, true
		}
	}
	return 0, false
}

func (s *Scorer) leaguePatterns() []leaguePattern {
	v := s.aliases.Version()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaguesBuilt && s.leaguesVersion == v {
		return s.leagues
	}
	names := alias.Leagues()
	out := make([]leaguePattern, 0, len(names))
	for _, name := range names {
		pattern := s.aliases.BuildMatchPattern(name)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		out = append(out, leaguePattern{name: name, re: re})
	}
	s.leagues, s.leaguesVersion, s.leaguesBuilt = out, v, true
	return out
}

// detectLeague returns the league whose token appears first in the title, falling
// back to the description.
func detectLeague(leagues []leaguePattern, title, description string) string {
	for _, text := range []string{title, description} {
		best, bestAt := "", -1
		for _, l := range leagues {
			loc := l.re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			if bestAt < 0 || loc[0] < bestAt {
				best, bestAt = l.name, loc[0]
			}
		}
		if best != "" {
			return best
		}
	}
	return ""
}

func matchesLeague(leagues []leaguePattern, text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	for _, l := range leagues {
		if loc := l.re.FindStringIndex(t); loc != nil && coversAll(t, loc) {
			return true
		}
	}
	return false
}

// coversAll reports whether the match spans the whole string apart from separators.
func coversAll(s string, loc []int) bool {
	return strings.Trim(s[:loc[0]], " :-|") == "" && strings.Trim(s[loc[1]:], " :-|") == ""
}

// cleanTitle strips league tags, channel qualifiers and live/quality markers.
func (s *Scorer) cleanTitle(title, channel string, leagues []leaguePattern) string {
	t := markerParen.ReplaceAllString(title, "")
	t = livePrefix.ReplaceAllString(t, "")

	segments := segmentSplit.Split(t, -1)
	kept := segments[:0]
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		switch {
		case seg == "":
		case channel != "" && strings.EqualFold(seg, strings.TrimSpace(channel)):
		case strings.EqualFold(seg, "live"):
		case matchesLeague(leagues, seg) && len(segments) > 1:
		default:
			kept = append(kept, seg)
		}
	}
	t = strings.Join(kept, " - ")

	// "NBA: Lakers vs Warriors"
	if i := strings.Index(t, ":"); i > 0 && matchesLeague(leagues, t[:i]) {
		if rest := strings.TrimSpace(t[i+1:]); rest != "" {
			t = rest
		}
	}
	return strings.Join(strings.Fields(t), " ")
}

var atStopWords = map[string]bool{
	"live": true, "back": true, "home": true, "night": true, "tonight": true, "today": true,
	"morning": true, "evening": true, "afternoon": true, "christmas": true, "murder": true,
	"racing": true, "golf": true, "dinner": true, "breakfast": true, "lunch": true,
}

// splitMatchup tries every "A vs B" style connector in the title and returns the
// trimmed sides of the best one: both sides known to the alias registry beats one,
// one beats none, and ties go to the leftmost connector.
func (s *Scorer) splitMatchup(title string, leagues []leaguePattern) (string, string, bool) {
	var bestLeft, bestRight string
	best := -1
	for _, loc := range connector.FindAllStringSubmatchIndex(title, -1) {
		left, right, ok := s.matchupSides(title[:loc[0]], strings.ToLower(title[loc[2]:loc[3]]), title[loc[1]:], leagues)
		if !ok {
			continue
		}
		known := 0
		if s.aliases.IsKnown(left) {
			known++
		}
		if s.aliases.IsKnown(right) {
			known++
		}
		if known > best {
			bestLeft, bestRight, best = left, right, known
		}
	}
	return bestLeft, bestRight, best >= 0
}

// matchupSides trims the text around one connector to the two opponent names.
// A "Prefix:" before the left side is dropped and the right side ends at the
// first qualifier.
func (s *Scorer) matchupSides(left, conn, right string, leagues []leaguePattern) (string, string, bool) {
	if i := strings.LastIndex(left, ":"); i >= 0 {
		left = left[i+1:]
	}
	left = s.knownSuffix(stripLeadingLeague(strings.TrimSpace(left), leagues))
	right = s.knownPrefix(trimQualifiers(strings.TrimSpace(right)))

	if !s.nameLike(left) || !s.nameLike(right) {
		return "", "", false
	}
	if conn == "at" && atStopWords[strings.ToLower(left)] && !s.aliases.IsKnown(left) {
		return "", "", false
	}
	return left, right, true
}

// knownPrefix shortens "Warriors Highlights" to "Warriors" when only a leading part is a known name.
func (s *Scorer) knownPrefix(side string) string {
	if s.aliases.IsKnown(side) {
		return side
	}
	words := strings.Fields(side)
	for n := len(words) - 1; n >= 1; n-- {
		if prefix := strings.Join(words[:n], " "); s.aliases.IsKnown(prefix) {
			return prefix
		}
	}
	return side
}

func (s *Scorer) knownSuffix(side string) string {
	if s.aliases.IsKnown(side) {
		return side
	}
	words := strings.Fields(side)
	for n := 1; n < len(words); n++ {
		if suffix := strings.Join(words[n:], " "); s.aliases.IsKnown(suffix) {
			return suffix
		}
	}
	return side
}

func stripLeadingLeague(side string, leagues []leaguePattern) string {
	words := strings.Fields(side)
	for n := len(words) - 1; n >= 1; n-- {
		prefix := strings.Join(words[:n], " ")
		if matchesLeague(leagues, prefix) {
			return strings.Join(words[n:], " ")
		}
	}
	return side
}

var qualifierCuts = []string{" - ", " | ", " – ", " (", " [", ", ", ": ", " at ", " @ ", " from ", " in "}

func trimQualifiers(side string) string {
	cut := len(side)
	lower := strings.ToLower(side)
	for _, q := range qualifierCuts {
		if i := strings.Index(lower, q); i > 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(strings.TrimRight(side[:cut], " .!-"))
}

// nameLike accepts short capitalized (or alias-known) phrases.
func (s *Scorer) nameLike(side string) bool {
	words := strings.Fields(side)
	if len(words) == 0 || len(words) > 6 {
		return false
	}
	if s.aliases.IsKnown(side) {
		return true
	}
	first := []rune(words[0])[0]
	return unicode.IsUpper(first) || unicode.IsDigit(first)
}

var sportsChannels = []string{
	"espn", "sky sports", "bt sport", "tnt sports", "fox sports", "fs1", "fs2", "bein", "dazn",
	"eurosport", "nbc sports", "cbs sports", "nfl network", "nba tv", "nhl network", "mlb network",
	"golf channel", "tennis channel", "supersport", "sportsnet", "tsn", "premier sports", "laliga tv",
	"setanta", "willow", "sport",
}

// IsSportsChannel reports whether channel looks like a dedicated sports channel.
func IsSportsChannel(channel string) bool {
	c := strings.ToLower(strings.TrimSpace(channel))
	if c == "" {
		return false
	}
	for _, name := range sportsChannels {
		if strings.Contains(c, name) {
			return true
		}
	}
	return false
}

// SportsChannels returns the built-in sports channel fragments, sorted.
func SportsChannels() []string {
	out := append([]string(nil), sportsChannels...)
	sort.Strings(out)
	return out
}
