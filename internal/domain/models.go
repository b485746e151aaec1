package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
	RoleAdmin   Role = "ADMIN"
)

type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "ACTIVE"
	ConnectionInactive ConnectionStatus = "INACTIVE"
)

type MessageType string

const (
	MessageText    MessageType = "TEXT"
	MessageSystem  MessageType = "SYSTEM"
	MessageDeleted MessageType = "DELETED"
)

const (
	// MaxMessageLength is the content bound in characters (runes).
	MaxMessageLength = 5000
	// MaxPreviewLength bounds the denormalized last-message preview.
	MaxPreviewLength = 200
	// DeletedPlaceholder replaces the content of a soft-deleted message.
	DeletedPlaceholder = "This message was deleted"
	// ChatStartedText is the content of the SYSTEM message seeded into every new chat.
	ChatStartedText = "Chat started. You can now communicate securely."
)

// User is the identity snapshot the chat core needs. Profiles are owned elsewhere.
type User struct {
	ID        string    `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Connection is an authorized doctor-patient pairing. DoctorID and PatientID
// are profile ids; the *UserID and *Name fields are resolved through the profiles.
type Connection struct {
	ID                 string           `db:"id" json:"id"`
	DoctorID           string           `db:"doctor_id" json:"doctorId"`
	PatientID          string           `db:"patient_id" json:"patientId"`
	DoctorUserID       string           `json:"doctorUserId"`
	PatientUserID      string           `json:"patientUserId"`
	DoctorName         string           `json:"doctorName"`
	PatientName        string           `json:"patientName"`
	Status             ConnectionStatus `db:"status" json:"status"`
	UnreadCount        int              `db:"unread_count" json:"unreadCount"`
	LastMessageAt      *time.Time       `db:"last_message_at" json:"lastMessageAt"`
	LastMessagePreview *string          `db:"last_message_preview" json:"lastMessagePreview"`
	CreatedAt          time.Time        `db:"created_at" json:"createdAt"`
	// ChatID is set by list queries when a chat exists for the connection.
	ChatID *string `json:"chatId,omitempty"`
}

// Chat is the 1:1 conversation container of a Connection.
type Chat struct {
	ID                 string     `db:"id" json:"id"`
	ConnectionID       string     `db:"connection_id" json:"connectionId"`
	LastMessageAt      *time.Time `db:"last_message_at" json:"lastMessageAt"`
	LastMessagePreview *string    `db:"last_message_preview" json:"lastMessagePreview"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
}

// Message belongs to exactly one chat. SenderName and SenderRole are a
// snapshot taken at send time and are never re-joined against the live profile.
type Message struct {
	ID          string      `db:"id" json:"id"`
	ChatID      string      `db:"chat_id" json:"chatId"`
	SenderID    string      `db:"sender_id" json:"senderId"`
	SenderName  string      `db:"sender_name" json:"senderName"`
	SenderRole  Role        `db:"sender_role" json:"senderRole"`
	Content     string      `db:"content" json:"content"`
	MessageType MessageType `db:"message_type" json:"messageType"`
	IsRead      bool        `db:"is_read" json:"isRead"`
	ReadAt      *time.Time  `db:"read_at" json:"readAt"`
	IsDeleted   bool        `db:"is_deleted" json:"isDeleted"`
	DeletedAt   *time.Time  `db:"deleted_at" json:"deletedAt"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

// Participant is one side of a chat as shown to clients.
type Participant struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role,omitempty"`
}

// ChatDetails is the full chat header with both participants' display info.
type ChatDetails struct {
	ChatID       string           `json:"chatId"`
	ConnectionID string           `json:"connectionId"`
	Status       ConnectionStatus `json:"status"`
	Doctor       Participant      `json:"doctor"`
	Patient      Participant      `json:"patient"`
}

// ChatHeader is the minimal projection used by high-frequency authorization checks.
type ChatHeader struct {
	ChatID        string           `json:"chatId"`
	ConnectionID  string           `json:"connectionId"`
	Status        ConnectionStatus `json:"status"`
	DoctorUserID  string           `json:"doctorUserId"`
	PatientUserID string           `json:"patientUserId"`
}

// ChatListItem is one entry of a user's chat list.
type ChatListItem struct {
	ConnectionID  string           `json:"connectionId"`
	ChatID        *string          `json:"chatId"`
	Participant   Participant      `json:"participant"`
	LastMessage   *Message         `json:"lastMessage"`
	LastMessageAt *time.Time       `json:"lastMessageAt"`
	UnreadCount   int              `json:"unreadCount"`
	Status        ConnectionStatus `json:"status"`
}

// MessageCursor anchors keyset pagination on a specific message.
type MessageCursor struct {
	CreatedAt time.Time
	ID        string
}

// MessagePage is one page of chat history, oldest first.
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	Cursor     *time.Time `json:"cursor"`
	NextBefore *string    `json:"nextBefore"`
	HasMore    bool       `json:"hasMore"`
}

type NotificationKind string

const NotificationNewChatMessage NotificationKind = "NEW_CHAT_MESSAGE"

// Notification is an outbound notice for a user who was offline when something happened.
type Notification struct {
	ID        string            `db:"id" json:"id"`
	UserID    string            `db:"user_id" json:"userId"`
	Kind      NotificationKind  `db:"kind" json:"kind"`
	Title     string            `db:"title" json:"title"`
	Body      string            `db:"body" json:"body"`
	Metadata  map[string]string `db:"metadata" json:"metadata,omitempty"`
	IsRead    bool              `db:"is_read" json:"isRead"`
	CreatedAt time.Time         `db:"created_at" json:"createdAt"`
}

// Truncate returns s cut to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
