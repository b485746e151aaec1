// Package presence keeps a TTL-bound online marker per user in Redis.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 5 * time.Minute

// unsetScript deletes the marker only if it still belongs to the given connection.
var unsetScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Tracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewTracker(rdb *redis.Client, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{rdb: rdb, ttl: ttl}
}

func key(userID string) string {
	return "presence:user:" + userID
}

// SetOnline records handle as the user's live connection. Calling it again
// refreshes the TTL; the most recent connection owns the marker.
func (t *Tracker) SetOnline(ctx context.Context, userID, handle string) error {
	if err := t.rdb.Set(ctx, key(userID), handle, t.ttl).Err(); err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

// UnsetOnline removes the marker if handle still owns it and reports whether it did.
func (t *Tracker) UnsetOnline(ctx context.Context, userID, handle string) (bool, error) {
	n, err := unsetScript.Run(ctx, t.rdb, []string{key(userID)}, handle).Int()
	if err != nil {
		return false, fmt.Errorf("unset online: %w", err)
	}
	return n > 0, nil
}

func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.rdb.Exists(ctx, key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("is online: %w", err)
	}
	return n > 0, nil
}
