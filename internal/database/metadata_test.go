package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastOldestID_DefaultsToZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.GetLastOldestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}

func TestSetLastOldestID_IgnoresZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetLastOldestID(ctx, 41000000))

	// A run that processed nothing must not regress the checkpoint.
	require.NoError(t, store.SetLastOldestID(ctx, 0))

	id, err := store.GetLastOldestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(41000000), id)
}

func TestPollTime_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Migrations seed the poll time, so a fresh database is never zero.
	seeded, err := store.GetLastPollTime(ctx)
	require.NoError(t, err)
	assert.False(t, seeded.IsZero())

	then := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, store.SetLastPollTime(ctx, then))

	got, err := store.GetLastPollTime(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(then))
}

func TestResetWatermarks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetLastOldestID(ctx, 123))
	require.NoError(t, store.SetLastPollTime(ctx, time.Now()))
	require.NoError(t, store.SetLastSyncTime(ctx, time.Now()))

	require.NoError(t, store.ResetWatermarks(ctx))

	id, err := store.GetLastOldestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}
