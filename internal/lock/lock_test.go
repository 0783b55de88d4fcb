package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	release, ok, err := l.TryLock(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	_, ok, _ = l.TryLock(ctx, "other", time.Minute)
	assert.True(t, ok, "locks are per key")

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	_, ok, _ = l.TryLock(ctx, "reconcile", time.Minute)
	assert.True(t, ok)
}

func TestMemory_Expires(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	_, ok, _ := l.TryLock(ctx, "job", 20*time.Millisecond)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok, _ = l.TryLock(ctx, "job", time.Minute)
	assert.True(t, ok, "expired lock must be reacquirable")
}

func TestMemory_StaleReleaseKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	stale, ok, _ := l.TryLock(ctx, "job", 20*time.Millisecond)
	require.True(t, ok)
	time.Sleep(40 * time.Millisecond)

	_, ok, _ = l.TryLock(ctx, "job", time.Minute)
	require.True(t, ok)

	require.NoError(t, stale(ctx))
	_, ok, _ = l.TryLock(ctx, "job", time.Minute)
	assert.False(t, ok, "an expired holder must not free the new holder's lock")
}
