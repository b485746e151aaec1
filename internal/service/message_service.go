package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"medchat/internal/domain"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type MessageService struct {
	chats     *ChatService
	messages  domain.MessageRepository
	snapshots *UserSnapshots

	Clock func() time.Time
}

func NewMessageService(chats *ChatService, messages domain.MessageRepository, snapshots *UserSnapshots) *MessageService {
	return &MessageService{
		chats:     chats,
		messages:  messages,
		snapshots: snapshots,
		Clock:     time.Now,
	}
}

// SendMessage validates and persists a message, stamping the sender's current
// name and role onto it.
func (s *MessageService) SendMessage(ctx context.Context, chatID, senderID, content string, typ domain.MessageType) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.BadRequest("message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageLength {
		return nil, domain.BadRequest("message content exceeds 5000 characters")
	}
	if typ == "" {
		typ = domain.MessageText
	}

	h, err := s.chats.authorize(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}
	// The cached header may predate a status change; read the connection fresh.
	conn, err := s.chats.getConnection(ctx, h.ConnectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status != domain.ConnectionActive {
		return nil, domain.InvalidState("connection is not active")
	}

	sender, err := s.snapshots.Get(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SenderID:    senderID,
		SenderName:  sender.Name,
		SenderRole:  sender.Role,
		Content:     content,
		MessageType: typ,
		CreatedAt:   nowFrom(s.Clock),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

type PageOptions struct {
	Limit int
	// Before is the id of the oldest message the client already has.
	Before string
}

// GetMessages returns one page of history older than opts.Before, oldest first.
func (s *MessageService) GetMessages(ctx context.Context, chatID, callerID string, opts PageOptions) (*domain.MessagePage, error) {
	if _, err := s.chats.authorize(ctx, chatID, callerID); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var before *domain.MessageCursor
	if opts.Before != "" {
		anchor, err := s.messages.GetByID(ctx, opts.Before)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.BadRequest("unknown cursor message")
		}
		if err != nil {
			return nil, err
		}
		if anchor.ChatID != chatID {
			return nil, domain.BadRequest("cursor message belongs to another chat")
		}
		before = &domain.MessageCursor{CreatedAt: anchor.CreatedAt, ID: anchor.ID}
	}

	rows, err := s.messages.ListBefore(ctx, chatID, before, limit)
	if err != nil {
		return nil, err
	}

	page := &domain.MessagePage{Messages: make([]*domain.Message, 0, len(rows))}
	for i := len(rows) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, rows[i])
	}
	if len(page.Messages) == 0 {
		return page, nil
	}

	oldest := page.Messages[0]
	createdAt, id := oldest.CreatedAt, oldest.ID
	page.Cursor = &createdAt
	page.NextBefore = &id

	older, err := s.messages.CountBefore(ctx, chatID, domain.MessageCursor{CreatedAt: createdAt, ID: id})
	if err != nil {
		return nil, err
	}
	page.HasMore = older > 0
	return page, nil
}

// MarkAsRead marks a message read by a participant other than its sender.
// Marking an already read message returns it unchanged.
func (s *MessageService) MarkAsRead(ctx context.Context, messageID, callerID string) (*domain.Message, error) {
	m, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID == callerID {
		return nil, domain.BadRequest("cannot mark your own message as read")
	}
	if _, err := s.chats.authorize(ctx, m.ChatID, callerID); err != nil {
		return nil, err
	}
	if m.IsRead {
		return m, nil
	}

	if _, err := s.messages.MarkRead(ctx, messageID, nowFrom(s.Clock)); err != nil {
		return nil, err
	}
	return s.getMessage(ctx, messageID)
}

// MarkAllAsRead marks every unread message in the chat not sent by the caller.
func (s *MessageService) MarkAllAsRead(ctx context.Context, chatID, callerID string) (int64, error) {
	if _, err := s.chats.authorize(ctx, chatID, callerID); err != nil {
		return 0, err
	}
	return s.messages.MarkAllRead(ctx, chatID, callerID, nowFrom(s.Clock))
}

// DeleteMessage soft-deletes a message on behalf of its sender. It cannot be undone.
func (s *MessageService) DeleteMessage(ctx context.Context, messageID, callerID string) (*domain.Message, error) {
	m, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != callerID {
		return nil, domain.Forbidden("only the sender can delete a message")
	}
	if m.IsDeleted {
		return nil, domain.BadRequest("message is already deleted")
	}

	changed, err := s.messages.SoftDelete(ctx, messageID, nowFrom(s.Clock))
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domain.BadRequest("message is already deleted")
	}
	return s.getMessage(ctx, messageID)
}

// GetUnreadCount counts unread messages in one chat not sent by userID.
func (s *MessageService) GetUnreadCount(ctx context.Context, chatID, userID string) (int, error) {
	if _, err := s.chats.authorize(ctx, chatID, userID); err != nil {
		return 0, err
	}
	return s.messages.CountUnread(ctx, chatID, userID)
}

func (s *MessageService) getMessage(ctx context.Context, id string) (*domain.Message, error) {
	m, err := s.messages.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound("message not found")
	}
	return m, err
}
