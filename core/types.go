package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Identity identifies who submitted a score, typically an email address.
type Identity string

// DefaultMaxEntries is the capacity of a leaderboard when none is configured.
const DefaultMaxEntries = 5

// ScoreEntry is a single immutable leaderboard row.
// The JSON shape matches the stored child records.
type ScoreEntry struct {
	Identity Identity `json:"email"`
	Score    int64    `json:"score"`
}

// NewScoreEntry validates and normalizes a submission into an entry.
// Zero is reserved as the "unset" score and is rejected.
func NewScoreEntry(identity Identity, score int64) (ScoreEntry, error) {
	id, err := NormalizeIdentity(identity)
	if err != nil {
		return ScoreEntry{}, err
	}
	if err := ValidateScore(score); err != nil {
		return ScoreEntry{}, err
	}
	return ScoreEntry{Identity: id, Score: score}, nil
}

// String renders the entry the way leaderboard lines are displayed.
func (e ScoreEntry) String() string {
	return strconv.FormatInt(e.Score, 10) + "  " + string(e.Identity)
}

// Leaderboard is an ordered snapshot of at most Max entries, highest score first.
// Entries sharing a score keep insertion order.
type Leaderboard struct {
	Entries []ScoreEntry `json:"entries"`
	Max     int          `json:"max"`
}

// Len returns the number of entries.
func (l Leaderboard) Len() int { return len(l.Entries) }

// Full reports whether the board has reached its capacity.
func (l Leaderboard) Full() bool { return l.Max > 0 && len(l.Entries) >= l.Max }

// Min returns the lowest score on the board.
func (l Leaderboard) Min() (int64, bool) {
	if len(l.Entries) == 0 {
		return 0, false
	}
	lowest := int64(math.MaxInt64)
	for _, e := range l.Entries {
		if e.Score < lowest {
			lowest = e.Score
		}
	}
	return lowest, true
}

// Clone returns a copy whose entries slice is not shared.
func (l Leaderboard) Clone() Leaderboard {
	cp := Leaderboard{Max: l.Max}
	if l.Entries != nil {
		cp.Entries = append([]ScoreEntry(nil), l.Entries...)
	}
	return cp
}

// NormalizeIdentity trims and lowercases identities.
func NormalizeIdentity(id Identity) (Identity, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", fmt.Errorf("%w: empty identity", ErrInvalidInput)
	}
	return Identity(strings.ToLower(s)), nil
}

// ValidateScore rejects the reserved zero score.
func ValidateScore(score int64) error {
	if score == 0 {
		return fmt.Errorf("%w: score must be non-zero", ErrInvalidInput)
	}
	return nil
}

// ParseScore parses a raw base-10 score as typed by a user.
func ParseScore(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty score", ErrInvalidInput)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: score %q is not an integer", ErrInvalidInput, raw)
	}
	if err := ValidateScore(v); err != nil {
		return 0, err
	}
	return v, nil
}
