package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates leaderboard events.
type EventType string

const (
	EventScoreCommitted     EventType = "score_committed"
	EventScoreAborted       EventType = "score_aborted"
	EventSubmissionFailed   EventType = "submission_failed"
	EventLeaderboardChanged EventType = "leaderboard_changed"
	EventCorruptData        EventType = "corrupt_data"
)

// Event represents an immutable leaderboard event.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	Path        string         `json:"path,omitempty"`
	Identity    Identity       `json:"identity,omitempty"`
	Score       int64          `json:"score,omitempty"`
	Leaderboard *Leaderboard   `json:"leaderboard,omitempty"`
	Duration    time.Duration  `json:"duration,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func newEvent(typ EventType, path string) Event {
	return Event{ID: uuid.NewString(), Type: typ, Time: time.Now().UTC(), Path: path}
}

// NewOutcomeEvent builds the event published after a submission resolves.
func NewOutcomeEvent(path string, r Result, took time.Duration) Event {
	var ev Event
	switch r.Outcome {
	case OutcomeCommitted:
		ev = newEvent(EventScoreCommitted, path)
		lb := r.Leaderboard.Clone()
		ev.Leaderboard = &lb
	case OutcomeAborted:
		ev = newEvent(EventScoreAborted, path)
	default:
		ev = newEvent(EventSubmissionFailed, path)
		if r.Err != nil {
			ev.Error = r.Err.Error()
		}
	}
	ev.Identity = r.Entry.Identity
	ev.Score = r.Entry.Score
	ev.Duration = took
	return ev
}

func NewLeaderboardChanged(path string, lb Leaderboard) Event {
	ev := newEvent(EventLeaderboardChanged, path)
	cp := lb.Clone()
	ev.Leaderboard = &cp
	return ev
}

func NewCorruptData(path string, err error) Event {
	ev := newEvent(EventCorruptData, path)
	ev.Error = err.Error()
	return ev
}
