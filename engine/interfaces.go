package engine

import (
	"context"

	"leaderboardkit/core"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/backend_mock.go -package=mocks Backend

// Backend abstracts the shared store holding leaderboard values.
//
// Transact runs fn against the latest value at path and commits its result only if
// no other writer committed in between, rerunning fn otherwise. It reports aborted
// when fn declined to write.
type Backend interface {
	Transact(ctx context.Context, path string, fn core.Mutation) (committed []byte, aborted bool, err error)
	Get(ctx context.Context, path string) ([]byte, error)
	// Watch signals after changes at path. The channel closes once ctx is done.
	Watch(ctx context.Context, path string) (<-chan struct{}, error)
	Close() error
}
