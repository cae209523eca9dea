package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	clock := NewManualClock(time.Date(2026, 1, 10, 20, 0, 0, 0, time.UTC))
	l := NewLocalLocker()
	l.clock = clock

	token, ok, err := l.TryLock(ctx, "lock:user:a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(ctx, "lock:user:a", time.Second)
	assert.False(t, ok, "held lock must not be re-acquired")

	_, ok, _ = l.TryLock(ctx, "lock:user:b", time.Second)
	assert.True(t, ok, "locks are per key")

	// a stale token does not release someone else's lock
	require.NoError(t, l.Unlock(ctx, "lock:user:a", "bogus"))
	_, ok, _ = l.TryLock(ctx, "lock:user:a", time.Second)
	assert.False(t, ok)

	require.NoError(t, l.Unlock(ctx, "lock:user:a", token))
	_, ok, _ = l.TryLock(ctx, "lock:user:a", time.Second)
	assert.True(t, ok)

	// leases expire
	clock.Advance(2 * time.Second)
	_, ok, _ = l.TryLock(ctx, "lock:user:a", time.Second)
	assert.True(t, ok)
}
