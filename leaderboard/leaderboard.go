package leaderboard

import "leaderboardkit/core"

// TxResult is what one run of a transaction body decided.
type TxResult struct {
	value   []core.ScoreEntry
	aborted bool
}

// Success commits entries as the new stored list.
func Success(entries []core.ScoreEntry) TxResult { return TxResult{value: entries} }

// Abort declines to write; the stored value stays as it was.
func Abort() TxResult { return TxResult{aborted: true} }

func (r TxResult) Aborted() bool { return r.aborted }

func (r TxResult) Value() []core.ScoreEntry { return r.value }

// TxFunc is a pure transaction body over the stored, insertion-ordered entries.
type TxFunc func(current []core.ScoreEntry) TxResult

// AddScore returns the body that keeps only the capacity highest scores.
//
// Below capacity the candidate is appended. At capacity the first minimum in
// insertion order is replaced, unless it is strictly higher than the candidate, in
// which case the transaction aborts. A list already above capacity is first trimmed
// back to capacity by dropping minima, then the at-capacity rule applies.
func AddScore(capacity int, candidate core.ScoreEntry) TxFunc {
	if capacity <= 0 {
		capacity = core.DefaultMaxEntries
	}
	return func(current []core.ScoreEntry) TxResult {
		next := make([]core.ScoreEntry, len(current), len(current)+1)
		copy(next, current)

		for len(next) > capacity {
			next = removeAt(next, minIndex(next))
		}
		if len(next) == capacity {
			i := minIndex(next)
			if next[i].Score > candidate.Score {
				return Abort()
			}
			next = removeAt(next, i)
		}
		return Success(append(next, candidate))
	}
}

// minIndex returns the position of the first lowest score; entries must be non-empty.
func minIndex(entries []core.ScoreEntry) int {
	idx := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].Score < entries[idx].Score {
			idx = i
		}
	}
	return idx
}

func removeAt(entries []core.ScoreEntry, i int) []core.ScoreEntry {
	return append(entries[:i], entries[i+1:]...)
}

// Mutation adapts a TxFunc to the byte-level primitive backends run.
// Corrupt records are skipped by the body and therefore dropped on commit.
func Mutation(fn TxFunc) core.Mutation {
	return func(current []byte) ([]byte, bool, error) {
		entries, _, err := Decode(current)
		if err != nil {
			return nil, false, err
		}
		res := fn(entries)
		if res.Aborted() {
			return nil, true, nil
		}
		next, err := Encode(res.Value())
		if err != nil {
			return nil, false, err
		}
		return next, false, nil
	}
}

// Rank orders stored entries for display: score descending, insertion order on ties.
func Rank(stored []core.ScoreEntry, capacity int) core.Leaderboard {
	idx := NewSkipList()
	for i, e := range stored {
		idx.Insert(i, e)
	}
	n := idx.Len()
	if capacity > 0 && n > capacity {
		n = capacity
	}
	entries := idx.TopN(n)
	if entries == nil {
		entries = []core.ScoreEntry{}
	}
	return core.Leaderboard{Entries: entries, Max: capacity}
}
