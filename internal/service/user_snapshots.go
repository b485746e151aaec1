package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"medchat/internal/domain"
)

// UserSnapshot is the display identity copied onto messages at write time.
type UserSnapshot struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
}

// UserSnapshots reads sender identities through a long-lived cache.
type UserSnapshots struct {
	users domain.UserRepository
	cache Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewUserSnapshots(users domain.UserRepository, cache Cache, ttl time.Duration, log zerolog.Logger) *UserSnapshots {
	return &UserSnapshots{
		users: users,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "user_snapshots").Logger(),
	}
}

func snapshotKey(userID string) string {
	return "user:snapshot:" + userID
}

func (s *UserSnapshots) Get(ctx context.Context, userID string) (*UserSnapshot, error) {
	return readThrough(ctx, s.cache, s.log, snapshotKey(userID), s.ttl, func(ctx context.Context) (*UserSnapshot, error) {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &UserSnapshot{ID: u.ID, Name: u.FullName(), Role: u.Role}, nil
	})
}

// Invalidate drops the cached snapshot after a profile change. Messages
// already written keep the name they were sent with.
func (s *UserSnapshots) Invalidate(ctx context.Context, userID string) {
	invalidate(ctx, s.cache, s.log, snapshotKey(userID))
}
