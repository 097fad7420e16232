package memory

import (
	"context"
	"sync"

	"leaderboardkit/core"
	"leaderboardkit/realtime"
)

// Store is a concurrent in-memory backend.
// Transactions read a versioned value, compute outside the lock and commit only if
// the version is unchanged, retrying otherwise.
type Store struct {
	nodes      sync.Map // map[string]*node
	maxRetries int
	// beforeCommit runs between computing and committing an attempt.
	beforeCommit func(path string, attempt int)
}

type node struct {
	mu      sync.Mutex
	value   []byte
	version uint64
	changes *realtime.Hub[struct{}]
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries bounds conflicting attempts per transaction.
func WithMaxRetries(n int) Option { return func(s *Store) { s.maxRetries = n } }

// WithBeforeCommit installs a hook that runs after a new value is computed and before
// it is compared and committed. Tests use it to interleave competing writers.
func WithBeforeCommit(fn func(path string, attempt int)) Option {
	return func(s *Store) { s.beforeCommit = fn }
}

func New(opts ...Option) *Store {
	s := &Store{maxRetries: core.DefaultMaxRetries}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) getOrCreate(path string) *node {
	if v, ok := s.nodes.Load(path); ok {
		return v.(*node)
	}
	n := &node{changes: realtime.NewHub[struct{}]()}
	actual, _ := s.nodes.LoadOrStore(path, n)
	return actual.(*node)
}

func (n *node) read() ([]byte, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return cloneBytes(n.value), n.version
}

func (s *Store) Transact(ctx context.Context, path string, fn core.Mutation) ([]byte, bool, error) {
	n := s.getOrCreate(path)
	var (
		committed []byte
		aborted   bool
	)
	err := core.RetryOnConflict(ctx, s.maxRetries, func(attempt int) error {
		current, version := n.read()
		next, abort, err := fn(current)
		if err != nil {
			return err
		}
		if abort {
			aborted = true
			return nil
		}
		if s.beforeCommit != nil {
			s.beforeCommit(path, attempt)
		}
		n.mu.Lock()
		if n.version != version {
			n.mu.Unlock()
			return core.ErrConflict
		}
		n.value = cloneBytes(next)
		n.version++
		n.mu.Unlock()
		committed = next
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !aborted {
		n.changes.Broadcast(ctx, struct{}{})
	}
	return committed, aborted, nil
}

func (s *Store) Get(_ context.Context, path string) ([]byte, error) {
	v, _ := s.getOrCreate(path).read()
	return v, nil
}

// Put overwrites the raw value at path without a transaction. It exists for seeding
// and for simulating foreign writers.
func (s *Store) Put(ctx context.Context, path string, value []byte) {
	n := s.getOrCreate(path)
	n.mu.Lock()
	n.value = cloneBytes(value)
	n.version++
	n.mu.Unlock()
	n.changes.Broadcast(ctx, struct{}{})
}

// Watch returns a channel signalled after every change at path until ctx is done.
func (s *Store) Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	n := s.getOrCreate(path)
	id, ch := n.changes.Subscribe(1)
	go func() {
		<-ctx.Done()
		n.changes.Unsubscribe(id)
	}()
	return ch, nil
}

func (s *Store) Close() error {
	s.nodes.Range(func(_, v any) bool {
		v.(*node).changes.Close()
		return true
	})
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

var _ interface {
	Transact(context.Context, string, core.Mutation) ([]byte, bool, error)
	Get(context.Context, string) ([]byte, error)
	Watch(context.Context, string) (<-chan struct{}, error)
	Close() error
} = (*Store)(nil)
