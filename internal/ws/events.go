package ws

import (
	"encoding/json"
	"time"

	"medchat/internal/domain"
)

// Inbound event types.
const (
	EventJoinChat    = "join_chat"
	EventLeaveChat   = "leave_chat"
	EventSendMessage = "send_message"
	EventMarkAsRead  = "mark_as_read"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
	EventCheckOnline = "check_online"
)

// Outbound event types.
const (
	EventNewMessage        = "new_message"
	EventMessageSent       = "message_sent"
	EventMessageRead       = "message_read"
	EventMessageDeleted    = "message_deleted"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventUserStatus        = "user_status"
	EventJoinedChat        = "joined_chat"
	EventLeftChat          = "left_chat"
	EventError             = "error"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: typ, Data: raw})
}

type ChatRef struct {
	ChatID string `json:"chatId"`
}

type SendMessagePayload struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

type MessageRef struct {
	MessageID string `json:"messageId"`
}

type UserRef struct {
	UserID string `json:"userId"`
}

type MessageSent struct {
	Message *domain.Message `json:"message"`
}

type MessageRead struct {
	MessageID string     `json:"messageId"`
	ReadAt    *time.Time `json:"readAt"`
	ReadBy    string     `json:"readBy"`
}

type MessageDeleted struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

type TypingEvent struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

type UserStatus struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type ErrorEvent struct {
	Message string      `json:"message"`
	Code    domain.Code `json:"code"`
}

// RoomName is the broadcast scope of a chat's live subscribers.
func RoomName(chatID string) string {
	return "chat:" + chatID
}
