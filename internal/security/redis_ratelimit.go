// ABOUTME: Redis-backed sliding-window rate limiter for multi-instance deployments
// ABOUTME: Uses a sorted set per (session, channel) key trimmed to the window

package security

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps the sliding window in Redis so multiple gateway
// instances share one request budget per (session, channel).
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter creates a limiter over an existing Redis client.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// NewRedisLimiterFromURL dials Redis from a redis:// URL.
func NewRedisLimiterFromURL(url string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisLimiter(redis.NewClient(opts), limit, window), nil
}

// allowScript trims, counts and records in one atomic step so two
// concurrent requests cannot both observe the last free slot. Returns
// {1, ""} when admitted, {0, oldest-score} when over budget. Scores are
// millisecond timestamps (exact in a double); members carry a
// nanosecond suffix for uniqueness within a millisecond.
var allowScript = redis.NewScript(`
local cutoff = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, cutoff)
if redis.call('ZCARD', KEYS[1]) < limit then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
  return {1, ''}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if #oldest == 0 then
  return {0, ''}
end
return {0, oldest[2]}
`)

// Allow checks the sliding window and records this request when within
// budget. Entries age out of the sorted set by timestamp score.
func (l *RedisLimiter) Allow(ctx context.Context, sessionID, channel string) (bool, time.Duration, error) {
	key := "nexus:ratelimit:" + sessionID + ":" + channel
	now := l.now()
	cutoff := now.Add(-l.window)

	res, err := allowScript.Run(ctx, l.client, []string{key},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(cutoff.UnixMilli(), 10),
		l.limit,
		(l.window + time.Second).Milliseconds(),
		strconv.FormatInt(now.UnixNano(), 10),
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("checking rate window: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("checking rate window: unexpected reply %v", res)
	}

	if allowed, _ := res[0].(int64); allowed == 1 {
		return true, 0, nil
	}

	// Oldest remaining entry frees a slot when it leaves the window
	retryAfter := l.window
	if raw, _ := res[1].(string); raw != "" {
		if oldestMilli, perr := strconv.ParseFloat(raw, 64); perr == nil {
			retryAfter = time.UnixMilli(int64(oldestMilli)).Add(l.window).Sub(now)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
	}
	return false, retryAfter, nil
}
