package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_AcquireAndRelease(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.LibraryCascade("lib-1")

	acquired, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// A second holder is turned away while the first TTL is live.
	acquired, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	held, err := locker.IsHeld(ctx, key)
	require.NoError(t, err)
	require.True(t, held)

	released, err := locker.Release(ctx, key)
	require.NoError(t, err)
	require.True(t, released)

	// Releasing again reports nothing held.
	released, err = locker.Release(ctx, key)
	require.NoError(t, err)
	require.False(t, released)
}

func TestMemoryLocker_ExpiredLockIsFree(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.FileGC()

	acquired, err := locker.Acquire(ctx, key, -time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	// The TTL already lapsed, so the key is up for grabs again.
	acquired, err = locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestMemoryLocker_ExtendLapsedLockFails(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.FileUpload("ab01")

	acquired, err := locker.Acquire(ctx, key, -time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	extended, err := locker.Extend(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, extended)

	held, err := locker.IsHeld(ctx, key)
	require.NoError(t, err)
	require.False(t, held)
}

func TestMemoryLocker_Extend(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.FileUpload("ab02")

	acquired, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	extended, err := locker.Extend(ctx, key, time.Hour)
	require.NoError(t, err)
	require.True(t, extended)
}

func TestNoOpLocker(t *testing.T) {
	locker := NewNoOpLocker()
	ctx := context.Background()

	acquired, err := locker.Acquire(ctx, "anything", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	held, err := locker.IsHeld(ctx, "anything")
	require.NoError(t, err)
	require.False(t, held)
}
