// ABOUTME: Tests for the Redis-backed sliding-window limiter
// ABOUTME: Runs against miniredis so no external Redis is required

package security

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, limit int, window time.Duration) *RedisLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, limit, window)
}

func TestRedisLimiter_Boundary(t *testing.T) {
	l := newRedisLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(ctx, "sess-1", "httpapi")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, retryAfter, err := l.Allow(ctx, "sess-1", "httpapi")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestRedisLimiter_WindowElapsed(t *testing.T) {
	l := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	now := time.Now()
	l.now = func() time.Time { return now }

	allowed, _, err := l.Allow(ctx, "sess-1", "httpapi")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "sess-1", "httpapi")
	require.NoError(t, err)
	assert.False(t, allowed)

	now = now.Add(time.Minute + time.Second)
	allowed, _, err = l.Allow(ctx, "sess-1", "httpapi")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	l := newRedisLimiter(t, 1, time.Minute)
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "sess-1", "httpapi")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "sess-2", "httpapi")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_ConcurrentRequestsRespectBudget(t *testing.T) {
	l := newRedisLimiter(t, 5, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	var admitted atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _, err := l.Allow(ctx, "sess-1", "httpapi")
			require.NoError(t, err)
			if allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	// The check-and-record is a single script, so racing requests can
	// never over-admit past the budget.
	assert.Equal(t, int64(5), admitted.Load())
}

func TestNewRedisLimiterFromURL_BadURL(t *testing.T) {
	_, err := NewRedisLimiterFromURL("://bad", 1, time.Minute)
	assert.Error(t, err)
}
