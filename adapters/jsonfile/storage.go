package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"leaderboardkit/core"
	"leaderboardkit/realtime"
)

// Store persists every leaderboard path to a single JSON file.
// Suitable for demos and small deployments. Transactions are serialized within one
// process only; the file must not be shared by several processes.
type Store struct {
	file       string
	maxRetries int

	mu sync.Mutex
	// in-memory cache for speed
	data     map[string]json.RawMessage
	versions map[string]uint64
	changes  map[string]*realtime.Hub[struct{}]
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries bounds conflicting attempts per transaction.
func WithMaxRetries(n int) Option { return func(s *Store) { s.maxRetries = n } }

func New(file string, opts ...Option) (*Store, error) {
	s := &Store{
		file:       file,
		maxRetries: core.DefaultMaxRetries,
		data:       map[string]json.RawMessage{},
		versions:   map[string]uint64{},
		changes:    map[string]*realtime.Hub[struct{}]{},
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.file)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, &s.data)
}

func (s *Store) persist() error {
	tmp := s.file + ".tmp"
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.file)
}

// hub returns the change hub for path; s.mu must be held.
func (s *Store) hub(path string) *realtime.Hub[struct{}] {
	h, ok := s.changes[path]
	if !ok {
		h = realtime.NewHub[struct{}]()
		s.changes[path] = h
	}
	return h
}

func (s *Store) read(path string) ([]byte, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.data[path]
	if v == nil {
		return nil, s.versions[path]
	}
	return append([]byte(nil), v...), s.versions[path]
}

func (s *Store) Transact(ctx context.Context, path string, fn core.Mutation) ([]byte, bool, error) {
	var (
		committed []byte
		aborted   bool
	)
	err := core.RetryOnConflict(ctx, s.maxRetries, func(int) error {
		current, version := s.read(path)
		next, abort, err := fn(current)
		if err != nil {
			return err
		}
		if abort {
			aborted = true
			return nil
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.versions[path] != version {
			return core.ErrConflict
		}
		prev := s.data[path]
		s.data[path] = append(json.RawMessage(nil), next...)
		if err := s.persist(); err != nil {
			s.data[path] = prev
			return fmt.Errorf("failed to persist leaderboard: %w", err)
		}
		s.versions[path]++
		committed = next
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !aborted {
		s.mu.Lock()
		h := s.hub(path)
		s.mu.Unlock()
		h.Broadcast(ctx, struct{}{})
	}
	return committed, aborted, nil
}

func (s *Store) Get(_ context.Context, path string) ([]byte, error) {
	v, _ := s.read(path)
	return v, nil
}

// Watch returns a channel signalled after every committed write at path until ctx is done.
func (s *Store) Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	s.mu.Lock()
	h := s.hub(path)
	s.mu.Unlock()
	id, ch := h.Subscribe(1)
	go func() {
		<-ctx.Done()
		h.Unsubscribe(id)
	}()
	return ch, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.changes {
		h.Close()
	}
	return nil
}
