package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup by aggregate id finds nothing.
var ErrNotFound = errors.New("aggregate not found")

// ConcurrencyError is returned by Append/AppendBatch when the caller's
// expected_version no longer matches the aggregate's actual latest version —
// another writer got there first.
type ConcurrencyError struct {
	AggregateID string
	Expected    int
	Actual      int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %s: expected version %d, actual %d",
		e.AggregateID, e.Expected, e.Actual)
}

// IdempotencyError is returned when two concurrent appends race on the same
// idempotency key and lose the unique-index race after both already read a
// "not found" snapshot. The caller should re-read the existing event.
type IdempotencyError struct {
	IdempotencyKey string
}

func (e *IdempotencyError) Error() string {
	return fmt.Sprintf("idempotency key %q was claimed by a concurrent append", e.IdempotencyKey)
}
