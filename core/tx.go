package core

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxRetries bounds how many conflicting attempts a backend makes per transaction.
const DefaultMaxRetries = 25

// Mutation computes the next stored value from the current one.
// current is nil when nothing is stored. Returning abort leaves the value untouched.
// A Mutation may run several times for a single transaction and must not have side effects.
type Mutation func(current []byte) (next []byte, abort bool, err error)

// RetryOnConflict runs attempt until it stops returning ErrConflict or the budget is spent.
func RetryOnConflict(ctx context.Context, maxRetries int, attempt func(n int) error) error {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	for n := 0; n < maxRetries; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := attempt(n)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, maxRetries)
}
