package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"medchat/internal/cache"
)

// Cache is the subset of *cache.Cache the services depend on.
type Cache interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

var _ Cache = (*cache.Cache)(nil)

// readThrough serves key from the cache or loads and stores it. Cache failures
// are logged and fall through to the loader.
func readThrough[T any](ctx context.Context, c Cache, log zerolog.Logger, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	err := c.Get(ctx, key, &v)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	v, err = load(ctx)
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return v, nil
}

func invalidate(ctx context.Context, c Cache, log zerolog.Logger, keys ...string) {
	if err := c.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

func nowFrom(clock func() time.Time) time.Time {
	return clock().UTC().Truncate(time.Microsecond)
}
