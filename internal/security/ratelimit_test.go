// ABOUTME: Tests for in-memory sliding-window rate limiting
// ABOUTME: Covers the N/N+1 boundary and window expiry semantics

package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowLimiter_Boundary(t *testing.T) {
	l := NewWindowLimiter(3, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(ctx, "sess-1", "httpapi")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	// The (N+1)th request within the window is rejected
	allowed, retryAfter, err := l.Allow(ctx, "sess-1", "httpapi")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestWindowLimiter_WindowElapsed(t *testing.T) {
	l := NewWindowLimiter(2, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := l.Allow(ctx, "sess-1", "httpapi")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, _, err := l.Allow(ctx, "sess-1", "httpapi")
	require.NoError(t, err)
	assert.False(t, allowed)

	// After the window elapses the budget resets
	now = now.Add(time.Minute + time.Second)
	allowed, _, err = l.Allow(ctx, "sess-1", "httpapi")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowLimiter_KeysAreIndependent(t *testing.T) {
	l := NewWindowLimiter(1, time.Minute)
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "sess-1", "httpapi")
	require.NoError(t, err)
	require.True(t, allowed)

	// Same session, different channel has its own budget
	allowed, _, err = l.Allow(ctx, "sess-1", "command")
	require.NoError(t, err)
	assert.True(t, allowed)

	// Different session unaffected
	allowed, _, err = l.Allow(ctx, "sess-2", "httpapi")
	require.NoError(t, err)
	assert.True(t, allowed)

	// Original key is exhausted
	allowed, _, err = l.Allow(ctx, "sess-1", "httpapi")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestUnlimitedLimiter(t *testing.T) {
	l := UnlimitedLimiter{}
	for i := 0; i < 100; i++ {
		allowed, _, err := l.Allow(context.Background(), "sess-1", "httpapi")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}
