package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Without a reachable Redis the store must still work end to end through
// its in-memory fallback.
func TestRedisStoreDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(ctx, "not-a-redis-url", nil)
	require.False(t, s.HasRedis())

	job, err := s.CreateJob(ctx, 7, 8453)
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, job.ID, StatusInProgress))
	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)

	require.NoError(t, s.SetError(ctx, job.ID, "boom"))
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	_, err = s.GetJob(ctx, "aud_missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
