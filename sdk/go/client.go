package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"leaderboardkit/core"
)

// DefaultSubmitTimeout bounds one SubmitScore round trip.
const DefaultSubmitTimeout = 15 * time.Second

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the leaderboard HTTP + WebSocket API.
type Client struct {
	baseURL       string
	wsURL         string
	httpClient    *http.Client
	headers       http.Header
	submitTimeout time.Duration
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:       baseURL,
		wsURL:         deriveWSURL(baseURL),
		httpClient:    http.DefaultClient,
		headers:       make(http.Header),
		submitTimeout: DefaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.submitTimeout = d
		}
	}
}

// SubmitScore posts a score and resolves the returned channel with exactly one Result.
//
// Invalid input is rejected before any request is made. Like the in-process store the
// request is detached from ctx; only the submit timeout bounds it.
func (c *Client) SubmitScore(ctx context.Context, identity core.Identity, score int64) (<-chan core.Result, error) {
	entry, err := core.NewScoreEntry(identity, score)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Result, 1)
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.submitTimeout)
	go func() {
		defer cancel()
		out <- c.submit(reqCtx, entry)
		close(out)
	}()
	return out, nil
}

func (c *Client) submit(ctx context.Context, entry core.ScoreEntry) core.Result {
	failed := func(err error) core.Result {
		return core.Result{Entry: entry, Outcome: core.OutcomeFailed, Err: &core.TransactionFailedError{Cause: err}}
	}

	body, err := json.Marshal(scoreRequest{Identity: string(entry.Identity), Score: entry.Score})
	if err != nil {
		return failed(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/leaders/scores", bytes.NewReader(body))
	if err != nil {
		return failed(err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return failed(ErrOutcomePending)
	}
	var sr scoreResponse
	if err := decodeJSON(resp, &sr); err != nil {
		return failed(err)
	}
	switch sr.Outcome {
	case core.OutcomeCommitted:
		res := core.Result{Entry: entry, Outcome: core.OutcomeCommitted}
		if sr.Leaderboard != nil {
			res.Leaderboard = *sr.Leaderboard
		}
		return res
	case core.OutcomeAborted:
		return core.Result{Entry: entry, Outcome: core.OutcomeAborted}
	default:
		return failed(fmt.Errorf("unexpected outcome %q", sr.Outcome))
	}
}

// Leaderboard fetches the current board.
func (c *Client) Leaderboard(ctx context.Context) (Leaders, error) {
	var l Leaders
	if err := c.get(ctx, "/leaders", &l); err != nil {
		return Leaders{}, err
	}
	return l, nil
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	if err := c.get(ctx, "/healthz", &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.Event, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		stop := closeOnDone(ctx, conn)
		defer stop()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

// Subscription streams leaderboard snapshots received over the WebSocket.
// It satisfies client.Feed.
type Subscription struct {
	snapshots chan core.Leaderboard
	errs      chan error
	cancel    context.CancelFunc
	done      chan struct{}
}

func (s *Subscription) Snapshots() <-chan core.Leaderboard { return s.snapshots }

func (s *Subscription) Errors() <-chan error { return s.errs }

// Close disconnects and waits for the reader to stop.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Subscribe connects to the WebSocket stream and keeps the latest leaderboard_changed
// snapshot. corrupt_data events and a dropped connection are reported on Errors.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	sub := &Subscription{
		snapshots: make(chan core.Leaderboard, 1),
		errs:      make(chan error, 16),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go sub.read(ctx, conn)
	return sub, nil
}

func (s *Subscription) read(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)
	defer close(s.errs)
	defer close(s.snapshots)
	stop := closeOnDone(ctx, conn)
	defer stop()

	for {
		var evt core.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.report(fmt.Errorf("leaderboard stream: %w", err))
			}
			return
		}
		switch evt.Type {
		case core.EventLeaderboardChanged:
			if evt.Leaderboard != nil {
				s.offer(*evt.Leaderboard)
			}
		case core.EventCorruptData:
			s.report(fmt.Errorf("%w: %s", core.ErrCorruptData, evt.Error))
		}
	}
}

func (s *Subscription) offer(lb core.Leaderboard) {
	for {
		select {
		case s.snapshots <- lb:
			return
		default:
		}
		select {
		case <-s.snapshots:
		default:
		}
	}
}

func (s *Subscription) report(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.wsURL, err)
	}
	return conn, nil
}

// closeOnDone closes conn once ctx ends, unblocking a pending read.
func closeOnDone(ctx context.Context, conn *websocket.Conn) func() {
	var once sync.Once
	closeConn := func() { once.Do(func() { _ = conn.Close() }) }
	stop := context.AfterFunc(ctx, closeConn)
	return func() {
		stop()
		closeConn()
	}
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
