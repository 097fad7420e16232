package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leaderboardkit/core"
	"leaderboardkit/leaderboard"
)

const (
	// DefaultPath is the location of the leaderboard in the backend.
	DefaultPath = "Leaders"
	// DefaultTransactionTimeout bounds one submission, retries included.
	DefaultTransactionTimeout = 10 * time.Second
)

// Store wires a backend and the event bus into the leaderboard API.
type Store struct {
	backend   Backend
	bus       *EventBus
	path      string
	max       int
	txTimeout time.Duration
	logger    *slog.Logger

	inflight sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

func WithPath(path string) Option { return func(s *Store) { s.path = path } }

func WithMaxEntries(n int) Option { return func(s *Store) { s.max = n } }

func WithTransactionTimeout(d time.Duration) Option { return func(s *Store) { s.txTimeout = d } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

func New(backend Backend, bus *EventBus, opts ...Option) *Store {
	if backend == nil || bus == nil {
		panic("engine.New requires non-nil backend and bus")
	}
	s := &Store{
		backend:   backend,
		bus:       bus,
		path:      DefaultPath,
		max:       core.DefaultMaxEntries,
		txTimeout: DefaultTransactionTimeout,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.max <= 0 {
		s.max = core.DefaultMaxEntries
	}
	if s.txTimeout <= 0 {
		s.txTimeout = DefaultTransactionTimeout
	}
	return s
}

func (s *Store) Path() string { return s.path }

func (s *Store) MaxEntries() int { return s.max }

// SubscribeEvents registers a handler on the store's event bus.
func (s *Store) SubscribeEvents(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

// SubmitScore validates the submission and runs it as a transaction in the background.
//
// Invalid input is returned synchronously and never reaches the backend. Otherwise the
// returned channel yields exactly one Result. The transaction is detached from ctx and
// bounded only by the store's transaction timeout.
func (s *Store) SubmitScore(ctx context.Context, identity core.Identity, score int64) (<-chan core.Result, error) {
	entry, err := core.NewScoreEntry(identity, score)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Result, 1)
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		start := time.Now()
		res := s.submit(txCtx, entry)
		out <- res
		close(out)
		s.bus.Publish(txCtx, core.NewOutcomeEvent(s.path, res, time.Since(start)))
	}()
	return out, nil
}

func (s *Store) submit(ctx context.Context, entry core.ScoreEntry) core.Result {
	s.logger.Debug("running transaction", "path", s.path, "identity", entry.Identity, "score", entry.Score)

	committed, aborted, err := s.backend.Transact(ctx, s.path, leaderboard.Mutation(leaderboard.AddScore(s.max, entry)))
	if err != nil {
		s.logger.Warn("transaction failed", "path", s.path, "identity", entry.Identity, "score", entry.Score, "error", err)
		return core.Result{Entry: entry, Outcome: core.OutcomeFailed, Err: &core.TransactionFailedError{Cause: err}}
	}
	if aborted {
		return core.Result{Entry: entry, Outcome: core.OutcomeAborted}
	}

	entries, _, err := leaderboard.Decode(committed)
	if err != nil {
		return core.Result{Entry: entry, Outcome: core.OutcomeFailed, Err: &core.TransactionFailedError{Cause: err}}
	}
	return core.Result{Entry: entry, Outcome: core.OutcomeCommitted, Leaderboard: leaderboard.Rank(entries, s.max)}
}

// Snapshot reads the current board once. Malformed records are skipped and returned
// as *core.CorruptEntryError values; the error is set only when nothing could be read.
func (s *Store) Snapshot(ctx context.Context) (core.Leaderboard, []error, error) {
	raw, err := s.backend.Get(ctx, s.path)
	if err != nil {
		return core.Leaderboard{}, nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	entries, corrupt, err := leaderboard.Decode(raw)
	if err != nil {
		return core.Leaderboard{}, nil, err
	}
	return leaderboard.Rank(entries, s.max), corrupt, nil
}

// Subscription streams leaderboard snapshots until closed.
type Subscription struct {
	snapshots chan core.Leaderboard
	errs      chan error
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *slog.Logger
}

// Snapshots yields the current board on subscribe and after every change.
// At most one snapshot is pending; a newer one replaces it.
func (s *Subscription) Snapshots() <-chan core.Leaderboard { return s.snapshots }

// Errors yields corrupt records and read failures. They never end the subscription.
func (s *Subscription) Errors() <-chan error { return s.errs }

// Close releases the subscription and waits for its goroutine to stop.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Subscribe starts streaming snapshots. Cancelling ctx has the same effect as Close.
func (s *Store) Subscribe(ctx context.Context) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	changes, err := s.backend.Watch(ctx, s.path)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch leaderboard: %w", err)
	}
	sub := &Subscription{
		snapshots: make(chan core.Leaderboard, 1),
		errs:      make(chan error, 64),
		cancel:    cancel,
		done:      make(chan struct{}),
		logger:    s.logger,
	}
	go s.stream(ctx, sub, changes)
	return sub, nil
}

func (s *Store) stream(ctx context.Context, sub *Subscription, changes <-chan struct{}) {
	defer close(sub.done)
	defer close(sub.errs)
	defer close(sub.snapshots)

	s.deliver(ctx, sub)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			s.deliver(ctx, sub)
		}
	}
}

func (s *Store) deliver(ctx context.Context, sub *Subscription) {
	lb, corrupt, err := s.Snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			sub.report(err)
		}
		return
	}
	for _, c := range corrupt {
		sub.report(c)
	}
	sub.offer(lb)
}

// offer replaces any undelivered snapshot with lb.
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
		s.logger.Warn("subscription error dropped", "error", err)
	}
}

// Wait blocks until in-flight submissions have resolved.
func (s *Store) Wait() { s.inflight.Wait() }

// Close waits for in-flight submissions, then stops the bus and closes the backend.
func (s *Store) Close() error {
	s.inflight.Wait()
	s.bus.Close()
	return s.backend.Close()
}
