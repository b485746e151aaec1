// Package typing debounces typing indicators with short-lived Redis markers.
package typing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 5 * time.Second

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

func key(chatID, userID string) string {
	return "typing:" + chatID + ":" + userID
}

// Start sets the marker and reports whether it was newly created. A false
// result means the user is already typing and no broadcast is due.
func (t *Tracker) Start(ctx context.Context, userID, chatID string) (bool, error) {
	created, err := t.rdb.SetNX(ctx, key(chatID, userID), 1, t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("start typing: %w", err)
	}
	return created, nil
}

// Stop removes the marker unconditionally.
func (t *Tracker) Stop(ctx context.Context, userID, chatID string) error {
	if err := t.rdb.Del(ctx, key(chatID, userID)).Err(); err != nil {
		return fmt.Errorf("stop typing: %w", err)
	}
	return nil
}
