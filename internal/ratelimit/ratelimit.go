// Package ratelimit implements a fixed-window per-user counter in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	rdb    *redis.Client
	prefix string
	window time.Duration
	max    int64

	// Clock is replaceable in tests.
	Clock func() time.Time
}

// NewLimiter allows at most max events per window per user. prefix names the
// event class, e.g. "msg".
func NewLimiter(rdb *redis.Client, prefix string, window time.Duration, max int) *Limiter {
	return &Limiter{
		rdb:    rdb,
		prefix: prefix,
		window: window,
		max:    int64(max),
		Clock:  time.Now,
	}
}

// Allow counts one event for userID and reports whether it is within the limit.
// Callers decide what a store error means; the gateway fails open.
func (l *Limiter) Allow(ctx context.Context, userID string) (bool, error) {
	bucket := l.Clock().UnixMilli() / l.window.Milliseconds()
	key := "ratelimit:" + l.prefix + ":" + userID + ":" + strconv.FormatInt(bucket, 10)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return incr.Val() <= l.max, nil
}
