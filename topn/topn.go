// Package topn assembles a leaderboard store with sensible defaults.
package topn

import (
	"context"
	"errors"
	"log/slog"
	"time"

	mem "leaderboardkit/adapters/memory"
	"leaderboardkit/core"
	"leaderboardkit/engine"
	"leaderboardkit/realtime"
)

// Option configures the builder.
type Option func(*config)

type config struct {
	backend engine.Backend
	mode    engine.DispatchMode
	hub     *realtime.Hub[core.Event]
	store   []engine.Option
	logger  *slog.Logger
}

// WithBackend sets the shared store holding the leaderboard.
func WithBackend(b engine.Backend) Option { return func(c *config) { c.backend = b } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime forwards every bus event to h.
func WithRealtime(h *realtime.Hub[core.Event]) Option { return func(c *config) { c.hub = h } }

func WithMaxEntries(n int) Option {
	return func(c *config) { c.store = append(c.store, engine.WithMaxEntries(n)) }
}

func WithPath(p string) Option {
	return func(c *config) { c.store = append(c.store, engine.WithPath(p)) }
}

func WithTransactionTimeout(d time.Duration) Option {
	return func(c *config) { c.store = append(c.store, engine.WithTransactionTimeout(d)) }
}

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// Service is a Store plus the bus its events are published on.
type Service struct {
	*engine.Store
	bus    *engine.EventBus
	logger *slog.Logger
}

// New builds a Service. If not provided, defaults are used:
//   - backend: in-memory
//   - dispatch: async
//   - capacity: core.DefaultMaxEntries
func New(opts ...Option) *Service {
	cfg := &config{mode: engine.DispatchAsync, logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.backend == nil {
		cfg.backend = mem.New()
	}
	bus := engine.NewEventBus(cfg.mode)
	if cfg.hub != nil {
		hub := cfg.hub
		bus.SubscribeAll(func(ctx context.Context, e core.Event) { hub.Broadcast(ctx, e) })
	}
	store := engine.New(cfg.backend, bus, append(cfg.store, engine.WithLogger(cfg.logger))...)
	return &Service{Store: store, bus: bus, logger: cfg.logger}
}

// Bus returns the event bus for attaching sinks.
func (s *Service) Bus() *engine.EventBus { return s.bus }

// Run publishes a leaderboard_changed event for the current board and after every
// change, and a corrupt_data event per malformed record, until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	sub, err := s.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	snapshots, errs := sub.Snapshots(), sub.Errors()
	for snapshots != nil || errs != nil {
		select {
		case <-ctx.Done():
			return nil
		case lb, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			s.bus.Publish(ctx, core.NewLeaderboardChanged(s.Path(), lb))
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, core.ErrCorruptData) {
				s.bus.Publish(ctx, core.NewCorruptData(s.Path(), err))
				continue
			}
			s.logger.Warn("failed to read leaderboard", "path", s.Path(), "error", err)
		}
	}
	return nil
}
