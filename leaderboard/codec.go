package leaderboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"leaderboardkit/core"
)

type child struct {
	key string
	raw json.RawMessage
}

// Decode classifies every stored child as a well-formed entry or a corrupt record.
//
// The stored value is normally a JSON list in insertion order. An object keyed by
// child ids is accepted too and read in key order. An absent or null value is an
// empty board. The returned error is non-nil only when the value as a whole is
// unreadable; per-record problems are returned as *core.CorruptEntryError values.
func Decode(raw []byte) ([]core.ScoreEntry, []error, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil, nil
	}

	var children []child
	switch raw[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, nil, fmt.Errorf("%w: decode list: %v", core.ErrCorruptData, err)
		}
		for _, r := range list {
			children = append(children, child{raw: r})
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, nil, fmt.Errorf("%w: decode object: %v", core.ErrCorruptData, err)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			children = append(children, child{key: k, raw: obj[k]})
		}
	default:
		return nil, nil, fmt.Errorf("%w: stored value is neither a list nor an object", core.ErrCorruptData)
	}

	entries := make([]core.ScoreEntry, 0, len(children))
	var corrupt []error
	for i, c := range children {
		if isNull(c.raw) {
			continue
		}
		e, err := decodeRecord(i, c)
		if err != nil {
			corrupt = append(corrupt, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, corrupt, nil
}

func decodeRecord(i int, c child) (core.ScoreEntry, error) {
	bad := func(field, reason string) error {
		return &core.CorruptEntryError{Index: i, Key: c.key, Field: field, Reason: reason}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(c.raw, &fields); err != nil || fields == nil {
		return core.ScoreEntry{}, bad("", "is not an object")
	}

	scoreRaw, ok := fields["score"]
	if !ok || isNull(scoreRaw) {
		return core.ScoreEntry{}, bad("score", "is missing")
	}
	score, err := strconv.ParseInt(string(bytes.TrimSpace(scoreRaw)), 10, 64)
	if err != nil {
		return core.ScoreEntry{}, bad("score", "is not an integer")
	}

	emailRaw, ok := fields["email"]
	if !ok || isNull(emailRaw) {
		return core.ScoreEntry{}, bad("email", "is missing")
	}
	var email string
	if err := json.Unmarshal(emailRaw, &email); err != nil {
		return core.ScoreEntry{}, bad("email", "is not a string")
	}
	if email == "" {
		return core.ScoreEntry{}, bad("email", "is empty")
	}

	return core.ScoreEntry{Identity: core.Identity(email), Score: score}, nil
}

// Encode writes entries as the stored JSON list.
func Encode(entries []core.ScoreEntry) ([]byte, error) {
	if entries == nil {
		entries = []core.ScoreEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode leaderboard: %w", err)
	}
	return b, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
