package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks submissions rejected before reaching the store.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAborted marks a transaction that declined to write. It is an expected outcome.
	ErrAborted = errors.New("transaction aborted")
	// ErrTransactionFailed marks a transaction the backend could not commit.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrCorruptData marks a stored record missing required fields.
	ErrCorruptData = errors.New("corrupt data")
	// ErrConflict is returned by a backend attempt that lost a concurrent write race.
	ErrConflict = errors.New("concurrent modification")
	// ErrRetriesExhausted is returned once a backend gives up retrying conflicts.
	ErrRetriesExhausted = errors.New("transaction retries exhausted")
)

// TransactionFailedError wraps the backend cause of a failed submission.
type TransactionFailedError struct {
	Cause error
}

func (e *TransactionFailedError) Error() string {
	if e.Cause == nil {
		return ErrTransactionFailed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrTransactionFailed, e.Cause)
}

func (e *TransactionFailedError) Unwrap() error { return e.Cause }

func (e *TransactionFailedError) Is(target error) bool { return target == ErrTransactionFailed }

// CorruptEntryError describes one malformed record in a stored snapshot.
type CorruptEntryError struct {
	Index  int
	Key    string
	Field  string
	Reason string
}

func (e *CorruptEntryError) Error() string {
	loc := fmt.Sprintf("#%d", e.Index)
	if e.Key != "" {
		loc = e.Key
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: entry %s: field %q %s", ErrCorruptData, loc, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: entry %s: %s", ErrCorruptData, loc, e.Reason)
}

func (e *CorruptEntryError) Is(target error) bool { return target == ErrCorruptData }
