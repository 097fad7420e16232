package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "leaderboardkit/adapters/memory"
	"leaderboardkit/api/httpapi"
	"leaderboardkit/client"
	"leaderboardkit/core"
	"leaderboardkit/engine"
	"leaderboardkit/realtime"
)

var (
	_ client.Submitter = (*Client)(nil)
	_ client.Feed      = (*Subscription)(nil)
)

type testServer struct {
	*httptest.Server
	store *engine.Store
	hub   *realtime.Hub[core.Event]
}

func newTestServer(t *testing.T, capacity int, opts httpapi.Options) *testServer {
	t.Helper()
	store := engine.New(mem.New(), engine.NewEventBus(engine.DispatchSync), engine.WithMaxEntries(capacity))
	hub := realtime.NewEventHub()
	opts.PathPrefix = "/api"
	srv := httptest.NewServer(httpapi.NewMux(store, hub, opts))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		_ = store.Close()
	})
	return &testServer{Server: srv, store: store, hub: hub}
}

func resolve(t *testing.T, ch <-chan core.Result) core.Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not resolve")
		return core.Result{}
	}
}

func TestClient_SubmitLeaderboardHealth(t *testing.T) {
	srv := newTestServer(t, 2, httpapi.Options{APIKeys: []string{"k1"}})

	c, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	require.NoError(t, err)
	ctx := context.Background()

	for _, s := range []struct {
		id    core.Identity
		score int64
		want  core.Outcome
	}{
		{"a@x.com", 10, core.OutcomeCommitted},
		{"b@x.com", 5, core.OutcomeCommitted},
		{"c@x.com", 3, core.OutcomeAborted},
		{"d@x.com", 20, core.OutcomeCommitted},
	} {
		ch, err := c.SubmitScore(ctx, s.id, s.score)
		require.NoError(t, err)
		res := resolve(t, ch)
		assert.Equal(t, s.want, res.Outcome, "score %d", s.score)
		assert.Equal(t, s.id, res.Entry.Identity)
	}

	leaders, err := c.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.ScoreEntry{{Identity: "d@x.com", Score: 20}, {Identity: "a@x.com", Score: 10}}, leaders.Entries)
	assert.Equal(t, 2, leaders.Leaderboard().Max)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestClient_SubmitInvalidInput(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.SubmitScore(context.Background(), "a@x.com", 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = c.SubmitScore(context.Background(), " ", 10)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Equal(t, 0, calls)
}

func TestClient_SubmitFailures(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"transaction failed", http.StatusServiceUnavailable, `{"code":"transaction_failed","message":"offline"}`, core.ErrTransactionFailed},
		{"pending", http.StatusAccepted, `{"outcome":"pending"}`, ErrOutcomePending},
		{"unauthorized", http.StatusUnauthorized, `{"code":"unauthorized","message":"missing API key"}`, core.ErrTransactionFailed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewClient(srv.URL)
			require.NoError(t, err)
			ch, err := c.SubmitScore(context.Background(), "a@x.com", 1)
			require.NoError(t, err)

			res := resolve(t, ch)
			assert.True(t, res.Failed())
			assert.ErrorIs(t, res.Err, tc.want)
		})
	}
}

func TestClient_SubmitDetachedFromCaller(t *testing.T) {
	srv := newTestServer(t, 5, httpapi.Options{})
	c, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.SubmitScore(ctx, "a@x.com", 7)
	require.NoError(t, err)
	cancel()

	assert.True(t, resolve(t, ch).Committed())
}

func TestClient_LeaderboardError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"corrupt_data","message":"stored value is neither a list nor an object"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.Leaderboard(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.ErrorIs(t, err, core.ErrCorruptData)
}

func TestClient_Subscribe(t *testing.T) {
	srv := newTestServer(t, 5, httpapi.Options{})
	c, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub, err := c.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	select {
	case lb := <-sub.Snapshots():
		assert.Empty(t, lb.Entries)
	case <-ctx.Done():
		t.Fatal("no initial snapshot")
	}

	srv.hub.Broadcast(ctx, core.NewCorruptData("Leaders", &core.CorruptEntryError{Index: 2, Field: "score", Reason: "is missing"}))
	srv.hub.Broadcast(ctx, core.NewLeaderboardChanged("Leaders", core.Leaderboard{
		Entries: []core.ScoreEntry{{Identity: "a@x.com", Score: 9}}, Max: 5,
	}))

	select {
	case err := <-sub.Errors():
		assert.ErrorIs(t, err, core.ErrCorruptData)
	case <-ctx.Done():
		t.Fatal("no corrupt data error")
	}
	select {
	case lb := <-sub.Snapshots():
		assert.Equal(t, []core.ScoreEntry{{Identity: "a@x.com", Score: 9}}, lb.Entries)
	case <-ctx.Done():
		t.Fatal("no snapshot after change")
	}
}

func TestClient_SubscribeEndsWhenServerCloses(t *testing.T) {
	srv := newTestServer(t, 5, httpapi.Options{})
	c, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)

	events, err := c.SubscribeEvents(context.Background())
	require.NoError(t, err)
	select {
	case ev := <-events:
		assert.Equal(t, core.EventLeaderboardChanged, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial event")
	}

	srv.hub.Close()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream did not close")
	}
}

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/api/ws", deriveWSURL("http://localhost:8080/api"))
	assert.Equal(t, "wss://example.com/ws", deriveWSURL("https://example.com"))
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	assert.Error(t, err)
}
