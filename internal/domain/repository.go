package domain

import (
	"context"
	"time"
)

// UserRepository reads identity data owned by the profile module.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	// GetProfileID resolves the doctor or patient profile id of a user.
	GetProfileID(ctx context.Context, userID string, role Role) (string, error)
}

// ConnectionRepository defines persistence operations for doctor-patient connections.
type ConnectionRepository interface {
	GetByID(ctx context.Context, id string) (*Connection, error)
	// ListActiveByProfile lists ACTIVE connections of a doctor or patient
	// profile, most recent activity first, with ChatID set when a chat exists.
	ListActiveByProfile(ctx context.Context, profileID string, role Role) ([]*Connection, error)
	// UpdateLastMessage writes the denormalized preview to the connection and its chat atomically.
	UpdateLastMessage(ctx context.Context, connectionID string, at time.Time, preview string) error
	// IncrementUnread atomically adds one to the aggregate unread counter.
	IncrementUnread(ctx context.Context, connectionID string) error
	ResetUnread(ctx context.Context, connectionID string) error
	// SumUnreadByProfile totals unread counters over a profile's ACTIVE connections.
	SumUnreadByProfile(ctx context.Context, profileID string, role Role) (int, error)
}

// ChatRepository defines persistence operations for chats.
type ChatRepository interface {
	GetByConnectionID(ctx context.Context, connectionID string) (*Chat, error)
	// CreateWithSystemMessage inserts the chat and its first message in one transaction.
	CreateWithSystemMessage(ctx context.Context, c *Chat, first *Message) error
	GetDetails(ctx context.Context, chatID string) (*ChatDetails, error)
	GetHeader(ctx context.Context, chatID string) (*ChatHeader, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListBefore returns up to limit non-deleted messages strictly older than
	// before (all messages when before is nil), newest first.
	ListBefore(ctx context.Context, chatID string, before *MessageCursor, limit int) ([]*Message, error)
	// CountBefore counts non-deleted messages strictly older than the cursor.
	CountBefore(ctx context.Context, chatID string, before MessageCursor) (int, error)
	// Latest returns the newest message of a chat, or ErrNotFound.
	Latest(ctx context.Context, chatID string) (*Message, error)
	// MarkRead sets is_read/read_at if still unread and reports whether a row changed.
	MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkAllRead marks every unread, non-deleted message not sent by readerID.
	MarkAllRead(ctx context.Context, chatID, readerID string, at time.Time) (int64, error)
	// SoftDelete replaces content with the placeholder if not yet deleted and
	// reports whether a row changed.
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)
	CountUnread(ctx context.Context, chatID, userID string) (int, error)
	CountForChat(ctx context.Context, chatID string) (int, error)
}

// NotificationRepository stores offline notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
}
