package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/visionrelay/visionrelay/internal/logging"
)

// RedisLimiter enforces the same epoch-aligned fixed windows as MemoryLimiter
// but shares counters across gateway instances. Each identity/window pair maps
// to one INCR'd key scoped to the current bucket epoch, so increment-and-check
// stays atomic on the Redis side.
//
// Redis errors fail open: a broken limiter backend must not take the upload
// path down with it.
type RedisLimiter struct {
	client  *redis.Client
	prefix  string
	windows []Window
	logger  *logging.Logger
	now     func() time.Time
}

// NewRedis creates a Redis-backed limiter. It verifies connectivity before
// returning so callers can fall back to the in-memory limiter.
func NewRedis(client *redis.Client, prefix string, windows []Window, logger *logging.Logger) (*RedisLimiter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if prefix == "" {
		prefix = "ratelimit:"
	}

	return &RedisLimiter{
		client:  client,
		prefix:  prefix,
		windows: windows,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Admit runs one INCR per window in a pipeline and denies if any counter
// exceeds its limit. A denied request has already incremented its buckets;
// past the limit the exact count no longer matters.
func (l *RedisLimiter) Admit(ctx context.Context, identity string) Decision {
	now := l.now()

	pipe := l.client.Pipeline()
	incrs := make([]*redis.IntCmd, len(l.windows))
	for i, w := range l.windows {
		key := l.key(identity, w, now)
		incrs[i] = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, w.Per)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("Rate limiter backend error, admitting request",
			logging.WithField("error", err.Error()))
		return Decision{Allowed: true}
	}

	var retryAfter time.Duration
	denied := false
	for i, w := range l.windows {
		if incrs[i].Val() > int64(w.Limit) {
			denied = true
			start := now.Truncate(w.Per)
			if remaining := start.Add(w.Per).Sub(now); remaining > retryAfter {
				retryAfter = remaining
			}
		}
	}
	if denied {
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}
	return Decision{Allowed: true}
}

func (l *RedisLimiter) key(identity string, w Window, now time.Time) string {
	epoch := now.Truncate(w.Per).Unix()
	return fmt.Sprintf("%s%s:%s:%s", l.prefix, identity, w.Name, strconv.FormatInt(epoch, 10))
}

// Ensure RedisLimiter implements Limiter.
var _ Limiter = (*RedisLimiter)(nil)
