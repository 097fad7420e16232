package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"leaderboardkit/core"
)

// Hub is a simple pub/sub for broadcasting values to channels.
// Slow receivers miss values rather than block the broadcaster; with a buffer of 1
// a receiver always holds a pending signal, which makes Hub[struct{}] a coalescing
// change notifier.
type Hub[T any] struct {
	mu   sync.RWMutex
	subs map[int]chan T
	next int
}

func NewHub[T any]() *Hub[T] { return &Hub[T]{subs: map[int]chan T{}} }

// NewEventHub returns the hub used to stream leaderboard events to clients.
func NewEventHub() *Hub[core.Event] { return NewHub[core.Event]() }

func (h *Hub[T]) Subscribe(buffer int) (int, <-chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan T, buffer)
	h.subs[id] = ch
	return id, ch
}

func (h *Hub[T]) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Len reports the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub[T]) Broadcast(_ context.Context, v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	// sends never block, so holding the read lock keeps Unsubscribe from closing mid-send
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default: /* drop if full */
		}
	}
}

// Close unsubscribes everyone.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
