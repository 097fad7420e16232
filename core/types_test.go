package core

import (
	"context"
	"errors"
	"testing"
)

func TestNewScoreEntry(t *testing.T) {
	e, err := NewScoreEntry(" A@X.com ", 10)
	if err != nil || e.Identity != "a@x.com" || e.Score != 10 {
		t.Fatalf("got %+v %v", e, err)
	}
	if _, err := NewScoreEntry("a@x.com", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero score should be invalid input, got %v", err)
	}
	if _, err := NewScoreEntry("   ", 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty identity should be invalid input, got %v", err)
	}
	if _, err := NewScoreEntry("a@x.com", -3); err != nil {
		t.Fatalf("negative scores are allowed: %v", err)
	}
}

func TestParseScore(t *testing.T) {
	if v, err := ParseScore(" 42 "); err != nil || v != 42 {
		t.Fatalf("got %v %v", v, err)
	}
	for _, raw := range []string{"", "0", "abc", "1.5", "12a"} {
		if _, err := ParseScore(raw); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%q: expected invalid input, got %v", raw, err)
		}
	}
}

func TestScoreEntryString(t *testing.T) {
	if got := (ScoreEntry{Identity: "b@x.com", Score: 5}).String(); got != "5  b@x.com" {
		t.Fatalf("got %q", got)
	}
}

func TestLeaderboardMinFullClone(t *testing.T) {
	lb := Leaderboard{Max: 2, Entries: []ScoreEntry{{"a", 10}, {"b", 5}}}
	if m, ok := lb.Min(); !ok || m != 5 {
		t.Fatalf("min got %v %v", m, ok)
	}
	if !lb.Full() {
		t.Fatal("board of 2/2 should be full")
	}
	cp := lb.Clone()
	cp.Entries[0].Score = 99
	if lb.Entries[0].Score != 10 {
		t.Fatal("clone shares entries")
	}
	if _, ok := (Leaderboard{}).Min(); ok {
		t.Fatal("empty board has no min")
	}
}

func TestErrorsClassify(t *testing.T) {
	failed := &TransactionFailedError{Cause: ErrRetriesExhausted}
	if !errors.Is(failed, ErrTransactionFailed) || !errors.Is(failed, ErrRetriesExhausted) {
		t.Fatalf("unexpected classification: %v", failed)
	}
	corrupt := &CorruptEntryError{Index: 1, Field: "score", Reason: "is missing"}
	if !errors.Is(corrupt, ErrCorruptData) {
		t.Fatal("corrupt entry should match ErrCorruptData")
	}
	if corrupt.Error() != `corrupt data: entry #1: field "score" is missing` {
		t.Fatalf("got %q", corrupt.Error())
	}
}

func TestRetryOnConflict(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 3, func(int) error {
		calls++
		if calls < 2 {
			return ErrConflict
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("got calls=%d err=%v", calls, err)
	}

	calls = 0
	err = RetryOnConflict(context.Background(), 3, func(int) error {
		calls++
		return ErrConflict
	})
	if !errors.Is(err, ErrRetriesExhausted) || calls != 3 {
		t.Fatalf("got calls=%d err=%v", calls, err)
	}
}

func TestResolved(t *testing.T) {
	r := <-Resolved(Result{Outcome: OutcomeAborted})
	if !r.Aborted() || r.Committed() || r.Failed() {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestResultAsError(t *testing.T) {
	if err := (Result{Outcome: OutcomeCommitted}).AsError(); err != nil {
		t.Fatalf("committed: got %v", err)
	}
	if err := (Result{Outcome: OutcomeAborted}).AsError(); !errors.Is(err, ErrAborted) {
		t.Fatalf("aborted: got %v", err)
	}
	failed := Result{Outcome: OutcomeFailed, Err: &TransactionFailedError{Cause: ErrRetriesExhausted}}
	if err := failed.AsError(); !errors.Is(err, ErrTransactionFailed) || !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("failed: got %v", err)
	}
	if err := (Result{Outcome: OutcomeFailed}).AsError(); !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("failed without cause: got %v", err)
	}
}
