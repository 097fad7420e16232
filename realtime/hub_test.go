package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"leaderboardkit/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewEventHub()
	id, ch := h.Subscribe(1)

	ev := core.NewLeaderboardChanged("Leaders", core.Leaderboard{Max: 5, Entries: []core.ScoreEntry{{Identity: "bob", Score: 10}}})
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.Type != core.EventLeaderboardChanged || received.Leaderboard.Entries[0].Identity != "bob" {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestHubCoalescesSignals(t *testing.T) {
	h := NewHub[struct{}]()
	_, ch := h.Subscribe(1)
	for i := 0; i < 5; i++ {
		h.Broadcast(context.Background(), struct{}{})
	}
	<-ch
	select {
	case <-ch:
		t.Fatal("expected a single pending signal")
	default:
	}
	if h.Len() != 1 {
		t.Fatalf("len got %d", h.Len())
	}
	h.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after Close")
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewCorruptData("Leaders", &core.CorruptEntryError{Index: 0, Field: "score", Reason: "is missing"})
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Type != core.EventCorruptData || out.Error == "" {
		t.Fatalf("unexpected event: %+v", out)
	}
}
