package leaderboard

import (
	"testing"

	"leaderboardkit/core"
)

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Insert(0, core.ScoreEntry{Identity: "a", Score: 10})
	s.Insert(1, core.ScoreEntry{Identity: "b", Score: 20})
	s.Insert(2, core.ScoreEntry{Identity: "c", Score: 15})
	top := s.TopN(3)
	if len(top) != 3 || top[0].Identity != "b" || top[1].Identity != "c" || top[2].Identity != "a" {
		t.Fatalf("unexpected order: %#v", top)
	}
	if s.Len() != 3 {
		t.Fatalf("len got %d", s.Len())
	}
	if s.TopN(0) != nil {
		t.Fatal("TopN(0) should be nil")
	}
}

func TestSkipListTiesKeepInsertionOrder(t *testing.T) {
	s := NewSkipList()
	for i, id := range []core.Identity{"x", "y", "z"} {
		s.Insert(i, core.ScoreEntry{Identity: id, Score: 7})
	}
	top := s.TopN(10)
	if len(top) != 3 || top[0].Identity != "x" || top[1].Identity != "y" || top[2].Identity != "z" {
		t.Fatalf("unexpected order: %#v", top)
	}
}
