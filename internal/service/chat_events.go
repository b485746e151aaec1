package service

import (
	"context"

	"github.com/rs/zerolog"

	"medchat/internal/domain"
)

const notificationPreviewLength = 100

// Notifier enqueues an offline notification. It must not block.
type Notifier interface {
	Notify(userID string, kind domain.NotificationKind, title, body string, metadata map[string]string) bool
}

// PresenceChecker answers whether a user has a live connection.
type PresenceChecker interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// ChatEvents composes the chat and message services into the units of work
// the real-time gateway and the REST API perform.
type ChatEvents struct {
	chats    *ChatService
	messages *MessageService
	presence PresenceChecker
	notifier Notifier
	log      zerolog.Logger
}

func NewChatEvents(chats *ChatService, messages *MessageService, presence PresenceChecker, notifier Notifier, log zerolog.Logger) *ChatEvents {
	return &ChatEvents{
		chats:    chats,
		messages: messages,
		presence: presence,
		notifier: notifier,
		log:      log.With().Str("component", "chat_events").Logger(),
	}
}

func (e *ChatEvents) Chats() *ChatService       { return e.chats }
func (e *ChatEvents) Messages() *MessageService { return e.messages }

// SendMessage persists a text message, updates the connection's preview and
// unread counter, and notifies the recipient if they are offline.
func (e *ChatEvents) SendMessage(ctx context.Context, chatID, senderID, content string) (*domain.Message, error) {
	msg, err := e.messages.SendMessage(ctx, chatID, senderID, content, domain.MessageText)
	if err != nil {
		return nil, err
	}

	// The message is committed. Failures below are logged and the send still succeeds.
	h, err := e.chats.GetChatHeader(ctx, chatID)
	if err != nil {
		e.log.Warn().Err(err).Str("chat_id", chatID).Str("message_id", msg.ID).Msg("chat header lookup failed after send")
		return msg, nil
	}
	recipientID, recipientRole, _ := domain.Counterpart(h, senderID)

	if err := e.chats.UpdateConnectionLastMessage(ctx, h.ConnectionID, msg.CreatedAt, msg.Content); err != nil {
		e.log.Warn().Err(err).Str("connection_id", h.ConnectionID).Msg("last message preview update failed")
	}
	if err := e.chats.IncrementUnreadCount(ctx, h.ConnectionID, recipientRole); err != nil {
		e.log.Warn().Err(err).Str("connection_id", h.ConnectionID).Msg("unread counter update failed")
	}
	e.chats.InvalidateUserChats(ctx, h.DoctorUserID, h.PatientUserID)

	e.notifyIfOffline(ctx, recipientID, msg)
	return msg, nil
}

func (e *ChatEvents) notifyIfOffline(ctx context.Context, recipientID string, msg *domain.Message) {
	online, err := e.presence.IsOnline(ctx, recipientID)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", recipientID).Msg("presence lookup failed, treating as offline")
	}
	if online {
		return
	}
	e.notifier.Notify(recipientID, domain.NotificationNewChatMessage,
		"New message from "+msg.SenderName,
		domain.Truncate(msg.Content, notificationPreviewLength),
		map[string]string{
			"chatId":    msg.ChatID,
			"messageId": msg.ID,
			"senderId":  msg.SenderID,
		})
}

// JoinChat authorizes a participant and clears their unread state. The caller
// subscribes to the room only after it succeeds.
func (e *ChatEvents) JoinChat(ctx context.Context, chatID, userID string) (*domain.ChatHeader, error) {
	h, err := e.chats.authorize(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := e.messages.MarkAllAsRead(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if err := e.chats.ResetUnreadCount(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return h, nil
}

// ReadAll marks the chat read for the caller and resets the unread counter.
func (e *ChatEvents) ReadAll(ctx context.Context, chatID, userID string) (int64, error) {
	n, err := e.messages.MarkAllAsRead(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	if err := e.chats.ResetUnreadCount(ctx, chatID, userID); err != nil {
		return 0, err
	}
	return n, nil
}

func (e *ChatEvents) MarkAsRead(ctx context.Context, messageID, userID string) (*domain.Message, error) {
	return e.messages.MarkAsRead(ctx, messageID, userID)
}

// DeleteMessage soft-deletes and refreshes both participants' chat lists.
func (e *ChatEvents) DeleteMessage(ctx context.Context, messageID, userID string) (*domain.Message, error) {
	m, err := e.messages.DeleteMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if h, err := e.chats.GetChatHeader(ctx, m.ChatID); err == nil {
		e.chats.InvalidateUserChats(ctx, h.DoctorUserID, h.PatientUserID)
	}
	return m, nil
}
