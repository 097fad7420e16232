package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leaderboardkit/core"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" yaml:"addr" env:"LEADERBOARDKIT_REDIS_ADDR"`
	Password     string        `json:"password,omitempty" yaml:"password,omitempty" env:"LEADERBOARDKIT_REDIS_PASSWORD"`
	DB           int           `json:"db" yaml:"db" env:"LEADERBOARDKIT_REDIS_DB"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" env:"LEADERBOARDKIT_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" env:"LEADERBOARDKIT_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"LEADERBOARDKIT_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"LEADERBOARDKIT_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"LEADERBOARDKIT_REDIS_WRITE_TIMEOUT"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store is a Redis backend.
// Data structure:
// - leaderboard:{path} -> JSON list of entries
// - leaderboard:{path}:changes -> Pub/Sub channel, one message per committed write
//
// Transactions use WATCH/MULTI/EXEC and rerun the mutation when EXEC reports that
// the watched key changed.
type Store struct {
	client     *redis.Client
	maxRetries int
	// beforeExec runs after the mutation is computed and before EXEC.
	beforeExec func(key string, attempt int)
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries bounds conflicting attempts per transaction.
func WithMaxRetries(n int) Option { return func(s *Store) { s.maxRetries = n } }

// New creates a new Redis-backed storage with the provided configuration
func New(config Config, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, opts...), nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, maxRetries: core.DefaultMaxRetries}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// leadersKey generates the Redis key holding the entries stored at path
func leadersKey(path string) string {
	return fmt.Sprintf("leaderboard:%s", path)
}

// changesChannel generates the Pub/Sub channel announcing writes at path
func changesChannel(path string) string {
	return fmt.Sprintf("leaderboard:%s:changes", path)
}

// Transact applies fn to the value at path with optimistic concurrency.
func (s *Store) Transact(ctx context.Context, path string, fn core.Mutation) ([]byte, bool, error) {
	key := leadersKey(path)
	var (
		committed []byte
		aborted   bool
	)
	err := core.RetryOnConflict(ctx, s.maxRetries, func(attempt int) error {
		committed, aborted = nil, false
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("failed to read leaderboard: %w", err)
			}
			next, abort, err := fn(current)
			if err != nil {
				return err
			}
			if abort {
				aborted = true
				return nil
			}
			if s.beforeExec != nil {
				s.beforeExec(key, attempt)
			}
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, 0)
				return nil
			}); err != nil {
				return err
			}
			committed = next
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return core.ErrConflict
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if !aborted {
		if err := s.client.Publish(ctx, changesChannel(path), "1").Err(); err != nil {
			// the write is committed; watchers catch up on the next change
			return committed, false, nil
		}
	}
	return committed, aborted, nil
}

// Get returns the raw value at path, nil when absent.
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	b, err := s.client.Get(ctx, leadersKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return b, nil
}

// Watch subscribes to change announcements for path. Bursts collapse into one signal.
func (s *Store) Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	ps := s.client.Subscribe(ctx, changesChannel(path))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to changes: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
