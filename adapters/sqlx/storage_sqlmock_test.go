package sqlx_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	storage "leaderboardkit/adapters/sqlx"
	"leaderboardkit/core"
	"leaderboardkit/leaderboard"
)

func newMockStore(t *testing.T, opts ...storage.Option) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, "postgres"), storage.DriverPostgres, opts...)
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

func addScore(capacity int, id string, score int64) core.Mutation {
	return leaderboard.Mutation(leaderboard.AddScore(capacity, core.ScoreEntry{Identity: core.Identity(id), Score: score}))
}

func TestSQLMock_Transact_Insert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT value, version FROM leaderboards WHERE path = \$1`).
		WithArgs("Leaders").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO leaderboards`).
		WithArgs("Leaders", `[{"email":"a@x.com","score":10}]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	committed, aborted, err := store.Transact(context.Background(), "Leaders", addScore(5, "a@x.com", 10))
	require.NoError(t, err)
	require.False(t, aborted)
	require.JSONEq(t, `[{"email":"a@x.com","score":10}]`, string(committed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Transact_UpdateChecksVersion(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT value, version FROM leaderboards`).
		WithArgs("Leaders").
		WillReturnRows(sqlmock.NewRows([]string{"value", "version"}).
			AddRow(`[{"email":"a@x.com","score":10}]`, 3))
	mock.ExpectExec(`UPDATE leaderboards SET value = \$1, version = version \+ 1, updated_at = \$2 WHERE path = \$3 AND version = \$4`).
		WithArgs(`[{"email":"a@x.com","score":10},{"email":"b@x.com","score":5}]`, sqlmock.AnyArg(), "Leaders", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, aborted, err := store.Transact(context.Background(), "Leaders", addScore(5, "b@x.com", 5))
	require.NoError(t, err)
	require.False(t, aborted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Transact_RetriesStaleVersion(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT value, version FROM leaderboards`).
		WillReturnRows(sqlmock.NewRows([]string{"value", "version"}).AddRow(`[]`, 1))
	mock.ExpectExec(`UPDATE leaderboards`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT value, version FROM leaderboards`).
		WillReturnRows(sqlmock.NewRows([]string{"value", "version"}).
			AddRow(`[{"email":"rival@x.com","score":50}]`, 2))
	mock.ExpectExec(`UPDATE leaderboards`).
		WithArgs(`[{"email":"rival@x.com","score":50},{"email":"me@x.com","score":1}]`, sqlmock.AnyArg(), "Leaders", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	committed, _, err := store.Transact(context.Background(), "Leaders", addScore(5, "me@x.com", 1))
	require.NoError(t, err)
	require.JSONEq(t, `[{"email":"rival@x.com","score":50},{"email":"me@x.com","score":1}]`, string(committed))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Transact_InsertRaceIsConflict(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT value, version FROM leaderboards`).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO leaderboards`).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery(`SELECT value, version FROM leaderboards`).
		WillReturnRows(sqlmock.NewRows([]string{"value", "version"}).AddRow(`[]`, 1))
	mock.ExpectExec(`UPDATE leaderboards`).WillReturnResult(sqlmock.NewResult(0, 1))

	_, _, err := store.Transact(context.Background(), "Leaders", addScore(5, "me@x.com", 1))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Transact_AbortWritesNothing(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT value, version FROM leaderboards`).
		WillReturnRows(sqlmock.NewRows([]string{"value", "version"}).
			AddRow(`[{"email":"a@x.com","score":10}]`, 1))

	_, aborted, err := store.Transact(context.Background(), "Leaders", addScore(1, "b@x.com", 5))
	require.NoError(t, err)
	require.True(t, aborted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Transact_RetriesExhausted(t *testing.T) {
	store, mock, cleanup := newMockStore(t, storage.WithMaxRetries(2))
	defer cleanup()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`SELECT value, version FROM leaderboards`).
			WillReturnRows(sqlmock.NewRows([]string{"value", "version"}).AddRow(`[]`, 1))
		mock.ExpectExec(`UPDATE leaderboards`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	_, _, err := store.Transact(context.Background(), "Leaders", addScore(5, "me@x.com", 1))
	require.ErrorIs(t, err, core.ErrRetriesExhausted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_Transact_ReadError(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT value, version FROM leaderboards`).WillReturnError(boom)

	_, _, err := store.Transact(context.Background(), "Leaders", addScore(5, "me@x.com", 1))
	require.ErrorIs(t, err, boom)
}

func TestSQLMock_Get(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT value, version FROM leaderboards`).WillReturnError(sql.ErrNoRows)
	v, err := store.Get(context.Background(), "Leaders")
	require.NoError(t, err)
	require.Nil(t, v)

	mock.ExpectQuery(`SELECT value, version FROM leaderboards`).
		WillReturnRows(sqlmock.NewRows([]string{"value", "version"}).AddRow(`[]`, 4))
	v, err = store.Get(context.Background(), "Leaders")
	require.NoError(t, err)
	require.Equal(t, `[]`, string(v))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_WatchSignalsLocalCommit(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock.ExpectQuery(`SELECT version FROM leaderboards`).WillReturnError(sql.ErrNoRows)
	changes, err := store.Watch(ctx, "Leaders")
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT value, version FROM leaderboards`).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO leaderboards`).WillReturnResult(sqlmock.NewResult(1, 1))
	_, _, err = store.Transact(context.Background(), "Leaders", addScore(5, "a@x.com", 1))
	require.NoError(t, err)

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected change signal")
	}
}

func TestSQLMock_Migrate(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS leaderboards`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_MySQLDuplicateIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	store := storage.NewWithDB(libsqlx.NewDb(db, "mysql"), storage.DriverMySQL, storage.WithMaxRetries(1))

	mock.ExpectQuery(`SELECT value, version FROM leaderboards WHERE path = \?`).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO leaderboards`).WillReturnError(&mysql.MySQLError{Number: 1062})

	_, _, err = store.Transact(context.Background(), "Leaders", addScore(5, "me@x.com", 1))
	require.ErrorIs(t, err, core.ErrRetriesExhausted)
}

func TestDefaultConfig(t *testing.T) {
	pg := storage.DefaultConfig(storage.DriverPostgres)
	require.Equal(t, storage.DriverPostgres, pg.Driver)
	require.Contains(t, pg.DSN, "postgres://")

	my := storage.DefaultConfig(storage.DriverMySQL)
	require.Contains(t, my.DSN, "tcp(")
}
