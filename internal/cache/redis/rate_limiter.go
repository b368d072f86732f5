package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// slidingWindowLua trims entries older than the window, then admits the
// request when fewer than limit remain. Returns {allowed, count}.
const slidingWindowLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, ARGV[4])
    redis.call('PEXPIRE', key, math.ceil(window / 1000))
    return {1, count + 1}
end
return {0, count}
`

// RateLimiter implements domain.RateLimiter with a sliding window over a
// Redis sorted set, shared by every replica. The notifier uses it so a
// flapping sequencer does not flood the alert channels.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
	clock  func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		script: redis.NewScript(slidingWindowLua),
		clock:  time.Now,
	}
}

func rateLimitKey(key string) string {
	return "arbengine:ratelimit:" + key
}

// Allow counts the request and reports whether it fits within limit per
// window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := rl.clock().UnixMicro()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	res, err := rl.script.Run(ctx, rl.rdb,
		[]string{rateLimitKey(key)},
		now, window.Microseconds(), limit, member,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected result length %d", key, len(res))
	}
	return res[0] == 1, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
