package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"leaderboardkit/core"
	"leaderboardkit/realtime"
)

// Driver names a supported SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration
type Config struct {
	Driver          Driver        `json:"driver" yaml:"driver" env:"LEADERBOARDKIT_SQL_DRIVER"`
	DSN             string        `json:"dsn" yaml:"dsn" env:"LEADERBOARDKIT_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" env:"LEADERBOARDKIT_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" env:"LEADERBOARDKIT_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"LEADERBOARDKIT_SQL_CONN_MAX_LIFETIME"`
	// PollInterval controls how often watchers check for writes made by other processes.
	// Zero disables polling; local writes are always announced.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" env:"LEADERBOARDKIT_SQL_POLL_INTERVAL"`
}

// DefaultConfig returns sensible defaults for the given driver
func DefaultConfig(driver Driver) Config {
	dsn := "postgres://localhost:5432/leaderboardkit?sslmode=disable"
	if driver == DriverMySQL {
		dsn = "root@tcp(localhost:3306)/leaderboardkit?parseTime=true"
	}
	return Config{
		Driver:          driver,
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		PollInterval:    time.Second,
	}
}

const schema = `CREATE TABLE IF NOT EXISTS leaderboards (
	path VARCHAR(255) NOT NULL PRIMARY KEY,
	value TEXT NOT NULL,
	version BIGINT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Store keeps each leaderboard path in one row guarded by a version column.
// A write succeeds only if the version it read is still current.
type Store struct {
	db           *sqlx.DB
	driver       Driver
	maxRetries   int
	pollInterval time.Duration
	changes      *realtime.Hub[string]
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries bounds conflicting attempts per transaction.
func WithMaxRetries(n int) Option { return func(s *Store) { s.maxRetries = n } }

// WithPollInterval overrides how often watchers poll for foreign writes.
func WithPollInterval(d time.Duration) Option { return func(s *Store) { s.pollInterval = d } }

// New opens a connection pool, verifies it and creates the schema.
func New(config Config, opts ...Option) (*Store, error) {
	db, err := sqlx.Open(string(config.Driver), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", config.Driver, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Driver, err)
	}

	s := NewWithDB(db, config.Driver, append([]Option{WithPollInterval(config.PollInterval)}, opts...)...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle (useful for testing). It does not migrate.
func NewWithDB(db *sqlx.DB, driver Driver, opts ...Option) *Store {
	s := &Store{
		db:         db,
		driver:     driver,
		maxRetries: core.DefaultMaxRetries,
		changes:    realtime.NewHub[string](),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Migrate creates the leaderboards table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

type row struct {
	Value   string `db:"value"`
	Version int64  `db:"version"`
}

func (s *Store) read(ctx context.Context, path string) (*row, error) {
	var r row
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT value, version FROM leaderboards WHERE path = ?`), path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return &r, nil
}

func (s *Store) Transact(ctx context.Context, path string, fn core.Mutation) ([]byte, bool, error) {
	var (
		committed []byte
		aborted   bool
	)
	err := core.RetryOnConflict(ctx, s.maxRetries, func(int) error {
		current, err := s.read(ctx, path)
		if err != nil {
			return err
		}
		var raw []byte
		if current != nil {
			raw = []byte(current.Value)
		}
		next, abort, err := fn(raw)
		if err != nil {
			return err
		}
		if abort {
			aborted = true
			return nil
		}

		now := time.Now().UTC()
		if current == nil {
			_, err := s.db.ExecContext(ctx,
				s.db.Rebind(`INSERT INTO leaderboards (path, value, version, updated_at) VALUES (?, ?, 1, ?)`),
				path, string(next), now)
			if isUniqueViolation(err) {
				return core.ErrConflict
			}
			if err != nil {
				return fmt.Errorf("failed to insert leaderboard: %w", err)
			}
		} else {
			res, err := s.db.ExecContext(ctx,
				s.db.Rebind(`UPDATE leaderboards SET value = ?, version = version + 1, updated_at = ? WHERE path = ? AND version = ?`),
				string(next), now, path, current.Version)
			if err != nil {
				return fmt.Errorf("failed to update leaderboard: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to update leaderboard: %w", err)
			}
			if n == 0 {
				return core.ErrConflict
			}
		}
		committed = next
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !aborted {
		s.changes.Broadcast(ctx, path)
	}
	return committed, aborted, nil
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := s.read(ctx, path)
	if err != nil || r == nil {
		return nil, err
	}
	return []byte(r.Value), nil
}

// Watch signals after local commits to path and, when polling is enabled, after any
// version change made by another process.
func (s *Store) Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	version, err := s.version(ctx, path)
	if err != nil {
		return nil, err
	}
	id, local := s.changes.Subscribe(8)
	out := make(chan struct{}, 1)
	signal := func() {
		select {
		case out <- struct{}{}:
		default:
		}
	}

	go func() {
		defer close(out)
		defer s.changes.Unsubscribe(id)

		var tick <-chan time.Time
		if s.pollInterval > 0 {
			t := time.NewTicker(s.pollInterval)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-local:
				if !ok {
					return
				}
				if p == path {
					signal()
				}
			case <-tick:
				v, err := s.version(ctx, path)
				if err != nil {
					continue
				}
				if v != version {
					version = v
					signal()
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) version(ctx context.Context, path string) (int64, error) {
	var v int64
	err := s.db.GetContext(ctx, &v, s.db.Rebind(`SELECT version FROM leaderboards WHERE path = ?`), path)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read version: %w", err)
	}
	return v, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error {
	s.changes.Close()
	return s.db.Close()
}

// isUniqueViolation reports whether err is a primary key clash from either driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
