package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"medchat/internal/domain"
)

// StoreSink persists notifications so they can be listed later.
type StoreSink struct {
	repo domain.NotificationRepository
}

func NewStoreSink(repo domain.NotificationRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(ctx context.Context, n *domain.Notification) error {
	return s.repo.Create(ctx, n)
}

// NATSSink publishes notifications on a per-user subject for push gateways.
type NATSSink struct {
	nc *nats.Conn
}

func NewNATSSink(nc *nats.Conn) *NATSSink {
	return &NATSSink{nc: nc}
}

func (s *NATSSink) Name() string { return "nats" }

func Subject(userID string) string {
	return "medchat.notifications." + userID
}

func (s *NATSSink) Deliver(_ context.Context, n *domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.nc.Publish(Subject(n.UserID), data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
