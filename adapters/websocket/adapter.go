package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"leaderboardkit/core"
	"leaderboardkit/realtime"
)

const writeWait = 5 * time.Second

// Option configures the handler.
type Option func(*handler)

// WithInitial sends the event returned by fn right after the upgrade, typically the
// current leaderboard, so clients do not wait for the next change.
func WithInitial(fn func(ctx context.Context) (core.Event, bool)) Option {
	return func(h *handler) { h.initial = fn }
}

func WithLogger(l *slog.Logger) Option { return func(h *handler) { h.logger = l } }

type handler struct {
	hub      *realtime.Hub[core.Event]
	upgrader gorillaws.Upgrader
	initial  func(ctx context.Context) (core.Event, bool)
	logger   *slog.Logger
}

// Handler returns an http.Handler that upgrades to WebSocket and streams events from the hub.
func Handler(hub *realtime.Hub[core.Event], opts ...Option) http.Handler {
	h := &handler{
		hub:      hub,
		upgrader: gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	id, ch := h.hub.Subscribe(256)
	defer h.hub.Unsubscribe(id)

	// the reader notices when the peer goes away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if h.initial != nil {
		if ev, ok := h.initial(r.Context()); ok {
			if err := write(conn, ev); err != nil {
				return
			}
		}
	}

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(gorillaws.CloseMessage,
					gorillaws.FormatCloseMessage(gorillaws.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
				return
			}
			if err := write(conn, ev); err != nil {
				return
			}
		}
	}
}

func write(conn *gorillaws.Conn, ev core.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev))
}
