package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"

	"leaderboardkit/core"
)

// A simple skip list keyed by (score desc, insertion seq asc) to achieve O(log n) inserts.

const maxLevel = 16
const pFactor = 0.25

// Board abstracts an ordered view over stored entries.
type Board interface {
	Insert(seq int, e core.ScoreEntry)
	TopN(n int) []core.ScoreEntry
	Len() int
}

type item struct {
	seq int
	e   core.ScoreEntry
}

type node struct {
	it   item
	next [maxLevel]*node
}

type SkipList struct {
	head *node
	lvl  int
	n    int
	rng  *rand.Rand
}

func NewSkipList() *SkipList {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	seed1 := binary.BigEndian.Uint64(seed[:8])
	seed2 := binary.BigEndian.Uint64(seed[8:])

	return &SkipList{
		head: &node{},
		lvl:  1,
		rng:  rand.New(rand.NewPCG(seed1, seed2)),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func less(a, b item) bool {
	if a.e.Score == b.e.Score {
		return a.seq < b.seq
	}
	return a.e.Score > b.e.Score // higher score first
}

// Insert adds an entry at its stored position seq.
func (s *SkipList) Insert(seq int, e core.ScoreEntry) {
	it := item{seq: seq, e: e}
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].it, it) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			update[i] = s.head
		}
		s.lvl = lvl
	}
	n := &node{it: it}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.n++
}

func (s *SkipList) TopN(n int) []core.ScoreEntry {
	if n <= 0 {
		return nil
	}
	out := make([]core.ScoreEntry, 0, n)
	cur := s.head.next[0]
	for cur != nil && len(out) < n {
		out = append(out, cur.it.e)
		cur = cur.next[0]
	}
	return out
}

func (s *SkipList) Len() int { return s.n }

var _ Board = (*SkipList)(nil)
