// Package failover implements sequential failover across an ordered list of
// redundant backends. The same pattern backs RPC endpoint selection and
// content gateway mirrors: try each candidate in order, keep the last error,
// and stop early only on terminal (non-retryable) failures. Attempts are
// never raced in parallel; list order encodes a cost/preference ranking.
package failover

import (
	"context"
	"fmt"
)

// Attempt executes one operation against a single backend.
type Attempt[T any] func(ctx context.Context, backend string) (T, error)

// Classifier reports whether an error is terminal. A terminal error (for
// example "record not found", which every backend would agree on) aborts the
// sequence immediately; anything else moves on to the next candidate.
type Classifier func(error) bool

// ExhaustedError is returned when every backend failed with a retryable
// error. It carries the last backend tried and its error so failover
// problems stay debuggable.
type ExhaustedError struct {
	What        string
	Tried       int
	LastBackend string
	LastErr     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: all %d backends failed, last (%s): %v", e.What, e.Tried, e.LastBackend, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Sequential tries backends in order until one attempt succeeds. what names
// the operation for error reporting. Context cancellation is terminal.
func Sequential[T any](ctx context.Context, what string, backends []string, attempt Attempt[T], terminal Classifier) (T, error) {
	var zero T
	if len(backends) == 0 {
		return zero, fmt.Errorf("%s: no backends configured", what)
	}

	var lastErr error
	var lastBackend string
	for _, backend := range backends {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := attempt(ctx, backend)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if terminal != nil && terminal(err) {
			return zero, err
		}
		lastErr = err
		lastBackend = backend
	}

	return zero, &ExhaustedError{What: what, Tried: len(backends), LastBackend: lastBackend, LastErr: lastErr}
}
