package failover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("record not found")

func TestSequential(t *testing.T) {
	ctx := context.Background()

	t.Run("first success wins", func(t *testing.T) {
		var tried []string
		v, err := Sequential(ctx, "rpc", []string{"a", "b", "c"},
			func(_ context.Context, backend string) (int, error) {
				tried = append(tried, backend)
				if backend == "b" {
					return 42, nil
				}
				return 0, errors.New("boom")
			}, nil)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, []string{"a", "b"}, tried)
	})

	t.Run("partial success is never blended", func(t *testing.T) {
		// Each attempt is all-or-nothing; a later backend starts from scratch.
		calls := 0
		_, err := Sequential(ctx, "rpc", []string{"a", "b"},
			func(_ context.Context, _ string) (int, error) {
				calls++
				return 0, errors.New("transport")
			}, nil)
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("exhaustion surfaces last error and backend", func(t *testing.T) {
		_, err := Sequential(ctx, "gateway", []string{"g1", "g2"},
			func(_ context.Context, backend string) (string, error) {
				return "", errors.New("HTTP 503 from " + backend)
			}, nil)
		var ex *ExhaustedError
		require.ErrorAs(t, err, &ex)
		assert.Equal(t, 2, ex.Tried)
		assert.Equal(t, "g2", ex.LastBackend)
		assert.Contains(t, err.Error(), "HTTP 503 from g2")
	})

	t.Run("terminal error aborts immediately", func(t *testing.T) {
		calls := 0
		_, err := Sequential(ctx, "rpc", []string{"a", "b", "c"},
			func(_ context.Context, _ string) (int, error) {
				calls++
				return 0, errNotFound
			},
			func(err error) bool { return errors.Is(err, errNotFound) })
		assert.ErrorIs(t, err, errNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("empty backend list", func(t *testing.T) {
		_, err := Sequential(ctx, "rpc", nil,
			func(_ context.Context, _ string) (int, error) { return 0, nil }, nil)
		assert.ErrorContains(t, err, "no backends configured")
	})

	t.Run("cancelled context stops the sequence", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		_, err := Sequential(cctx, "rpc", []string{"a", "b", "c"},
			func(_ context.Context, _ string) (int, error) {
				calls++
				cancel()
				return 0, errors.New("transport")
			}, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
