// Package client submits scores to a leaderboard and renders the snapshots it pushes.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"leaderboardkit/core"
)

// Submitter runs score submissions. Both engine.Store and the HTTP SDK satisfy it.
type Submitter interface {
	SubmitScore(ctx context.Context, identity core.Identity, score int64) (<-chan core.Result, error)
}

// Feed streams leaderboard snapshots and the errors met while reading them.
type Feed interface {
	Snapshots() <-chan core.Leaderboard
	Errors() <-chan error
}

// Display receives the fully rendered leaderboard text.
type Display interface {
	SetText(text string)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(text string)

func (f DisplayFunc) SetText(text string) { f(text) }

// PendingSubmission is a validated score waiting for its transaction to resolve.
type PendingSubmission struct {
	ID        string
	Entry     core.ScoreEntry
	Submitted time.Time
}

// Client validates input, submits it and renders whatever the leaderboard pushes.
type Client struct {
	store    Submitter
	display  Display
	header   string
	logger   *slog.Logger
	onResult func(PendingSubmission, core.Result)

	mu      sync.Mutex
	pending map[string]PendingSubmission
	wg      sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithHeader sets the first line of the rendered board.
func WithHeader(header string) Option { return func(c *Client) { c.header = header } }

// WithMaxEntries sets the capacity shown by the default header.
func WithMaxEntries(n int) Option {
	return func(c *Client) { c.header = DefaultHeader(n) }
}

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithResultHook is called once per submission after it resolves.
func WithResultHook(fn func(PendingSubmission, core.Result)) Option {
	return func(c *Client) { c.onResult = fn }
}

// DefaultHeader is the header used when none is configured.
func DefaultHeader(maxEntries int) string {
	if maxEntries <= 0 {
		maxEntries = core.DefaultMaxEntries
	}
	return fmt.Sprintf("Top %d Scores", maxEntries)
}

func New(store Submitter, display Display, opts ...Option) *Client {
	c := &Client{
		store:   store,
		display: display,
		header:  DefaultHeader(core.DefaultMaxEntries),
		logger:  slog.Default(),
		pending: map[string]PendingSubmission{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AddScore parses rawScore and submits it for identity. Invalid input is logged and
// dropped without contacting the store. The outcome is logged when it arrives.
func (c *Client) AddScore(ctx context.Context, identity, rawScore string) {
	score, err := core.ParseScore(rawScore)
	var id core.Identity
	if err == nil {
		id, err = core.NormalizeIdentity(core.Identity(identity))
	}
	if err != nil {
		c.logger.Warn("invalid score or email", "identity", identity, "score", rawScore, "error", err)
		return
	}

	c.logger.Info("attempting to add score", "identity", id, "score", score)
	results, err := c.store.SubmitScore(ctx, id, score)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			c.logger.Warn("invalid score or email", "identity", identity, "score", rawScore, "error", err)
		} else {
			c.logger.Error("submission failed", "identity", identity, "score", score, "error", err)
		}
		return
	}

	p := PendingSubmission{
		ID:        uuid.NewString(),
		Entry:     core.ScoreEntry{Identity: id, Score: score},
		Submitted: time.Now(),
	}
	c.mu.Lock()
	c.pending[p.ID] = p
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, ok := <-results
		if !ok {
			res = core.Result{Entry: p.Entry, Outcome: core.OutcomeFailed, Err: &core.TransactionFailedError{}}
		}
		c.complete(p, res)
	}()
}

func (c *Client) complete(p PendingSubmission, res core.Result) {
	c.mu.Lock()
	delete(c.pending, p.ID)
	c.mu.Unlock()

	switch res.Outcome {
	case core.OutcomeCommitted:
		c.logger.Info("transaction complete", "identity", p.Entry.Identity, "score", p.Entry.Score)
	case core.OutcomeAborted:
		c.logger.Info("score did not qualify", "identity", p.Entry.Identity, "score", p.Entry.Score)
	default:
		c.logger.Error("transaction failed", "identity", p.Entry.Identity, "score", p.Entry.Score, "error", res.Err)
	}
	if c.onResult != nil {
		c.onResult(p, res)
	}
}

// Pending lists submissions that have not resolved yet.
func (c *Client) Pending() []PendingSubmission {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PendingSubmission, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	return out
}

// Wait blocks until every submission made so far has resolved.
func (c *Client) Wait() { c.wg.Wait() }

// OnLeaderboardChanged replaces the displayed text with the rendered snapshot.
func (c *Client) OnLeaderboardChanged(lb core.Leaderboard) {
	if c.display == nil {
		return
	}
	c.display.SetText(Render(c.header, lb))
}

// Run renders snapshots from feed and logs its errors until ctx ends or the feed closes.
func (c *Client) Run(ctx context.Context, feed Feed) error {
	snapshots, errs := feed.Snapshots(), feed.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case lb, ok := <-snapshots:
			if !ok {
				return nil
			}
			c.OnLeaderboardChanged(lb)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, core.ErrCorruptData) {
				c.logger.Warn("bad data in leaderboard", "error", err)
			} else {
				c.logger.Error("leaderboard subscription error", "error", err)
			}
		}
	}
}

// Render formats a board as a header line followed by one "<score>  <identity>" line
// per entry, in the board's order.
func Render(header string, lb core.Leaderboard) string {
	lines := make([]string, 0, len(lb.Entries)+1)
	lines = append(lines, header)
	for _, e := range lb.Entries {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}
