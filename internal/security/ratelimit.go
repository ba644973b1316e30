// ABOUTME: Sliding-window rate limiting keyed by (session, channel)
// ABOUTME: In-memory implementation; see redis_ratelimit.go for shared budgets

package security

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether a request from a session on a channel is
// within budget. Allow returns false with a retry-after hint when the
// window is exhausted.
type RateLimiter interface {
	Allow(ctx context.Context, sessionID, channel string) (bool, time.Duration, error)
}

// UnlimitedLimiter never denies. Used when rate limiting is disabled.
type UnlimitedLimiter struct{}

func (UnlimitedLimiter) Allow(ctx context.Context, sessionID, channel string) (bool, time.Duration, error) {
	return true, 0, nil
}

// WindowLimiter is an in-memory sliding-window limiter: at most limit
// requests per window per (session, channel) key.
type WindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string][]time.Time
}

// NewWindowLimiter creates a limiter allowing limit requests per window.
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string][]time.Time),
	}
}

// Allow records the request and reports whether it is within budget.
func (l *WindowLimiter) Allow(ctx context.Context, sessionID, channel string) (bool, time.Duration, error) {
	key := sessionID + "|" + channel
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop entries older than the window
	stamps := l.buckets[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.buckets[key] = kept
		// Oldest entry leaving the window frees a slot
		retryAfter := kept[0].Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}

	l.buckets[key] = append(kept, now)
	return true, 0, nil
}
