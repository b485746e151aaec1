package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medchat/internal/domain"
)

// ChatTTLs configures how long chat projections stay cached.
type ChatTTLs struct {
	Chat      time.Duration
	UserChats time.Duration
}

// ChatService is the directory of connections and chats: chat creation,
// cached projections, denormalized previews and unread counters.
type ChatService struct {
	users       domain.UserRepository
	connections domain.ConnectionRepository
	chats       domain.ChatRepository
	messages    domain.MessageRepository
	snapshots   *UserSnapshots
	cache       Cache
	ttls        ChatTTLs
	log         zerolog.Logger

	Clock func() time.Time
}

func NewChatService(
	users domain.UserRepository,
	connections domain.ConnectionRepository,
	chats domain.ChatRepository,
	messages domain.MessageRepository,
	snapshots *UserSnapshots,
	cache Cache,
	ttls ChatTTLs,
	log zerolog.Logger,
) *ChatService {
	return &ChatService{
		users:       users,
		connections: connections,
		chats:       chats,
		messages:    messages,
		snapshots:   snapshots,
		cache:       cache,
		ttls:        ttls,
		log:         log.With().Str("component", "chat_service").Logger(),
		Clock:       time.Now,
	}
}

func detailsKey(chatID string) string   { return "chat:details:" + chatID }
func headerKey(chatID string) string    { return "chat:header:" + chatID }
func userChatsKey(userID string) string { return "chat:user-chats:" + userID }

// GetOrCreateChatFor is GetOrCreateChat for a caller who must be one of the
// connection's participants.
func (s *ChatService) GetOrCreateChatFor(ctx context.Context, connectionID, callerID string) (*domain.ChatDetails, error) {
	conn, err := s.getConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !domain.CanAccess(conn, callerID) {
		return nil, domain.Forbidden("you are not a participant of this connection")
	}
	return s.GetOrCreateChat(ctx, connectionID)
}

// GetOrCreateChat returns the chat of an ACTIVE connection, creating it together
// with its opening SYSTEM message when it does not exist yet.
func (s *ChatService) GetOrCreateChat(ctx context.Context, connectionID string) (*domain.ChatDetails, error) {
	conn, err := s.getConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status != domain.ConnectionActive {
		return nil, domain.InvalidState("connection is not active")
	}

	chat, err := s.chats.GetByConnectionID(ctx, connectionID)
	if errors.Is(err, domain.ErrNotFound) {
		chat, err = s.createChat(ctx, conn)
	}
	if err != nil {
		return nil, err
	}
	return s.details(ctx, chat.ID)
}

func (s *ChatService) createChat(ctx context.Context, conn *domain.Connection) (*domain.Chat, error) {
	doctor, err := s.snapshots.Get(ctx, conn.DoctorUserID)
	if err != nil {
		return nil, fmt.Errorf("doctor snapshot: %w", err)
	}

	now := nowFrom(s.Clock)
	chat := &domain.Chat{
		ID:           uuid.NewString(),
		ConnectionID: conn.ID,
		CreatedAt:    now,
	}
	first := &domain.Message{
		ID:          uuid.NewString(),
		ChatID:      chat.ID,
		SenderID:    doctor.ID,
		SenderName:  doctor.Name,
		SenderRole:  domain.RoleDoctor,
		Content:     domain.ChatStartedText,
		MessageType: domain.MessageSystem,
		IsRead:      true,
		ReadAt:      &now,
		CreatedAt:   now,
	}

	err = s.chats.CreateWithSystemMessage(ctx, chat, first)
	if errors.Is(err, domain.ErrConflict) {
		// Lost a creation race; the winner's chat is authoritative.
		return s.chats.GetByConnectionID(ctx, conn.ID)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("chat_id", chat.ID).Str("connection_id", conn.ID).Msg("chat created")
	s.InvalidateUserChats(ctx, conn.DoctorUserID, conn.PatientUserID)
	return chat, nil
}

// GetChatDetails returns the chat with both participants to a participant caller.
func (s *ChatService) GetChatDetails(ctx context.Context, chatID, callerID string) (*domain.ChatDetails, error) {
	d, err := s.details(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !domain.CanAccess(d, callerID) {
		return nil, domain.Forbidden("you are not a participant of this chat")
	}
	return d, nil
}

func (s *ChatService) details(ctx context.Context, chatID string) (*domain.ChatDetails, error) {
	d, err := readThrough(ctx, s.cache, s.log, detailsKey(chatID), s.ttls.Chat, func(ctx context.Context) (*domain.ChatDetails, error) {
		return s.chats.GetDetails(ctx, chatID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound("chat not found")
	}
	return d, err
}

// GetChatHeader returns the minimal cached projection used for authorization.
func (s *ChatService) GetChatHeader(ctx context.Context, chatID string) (*domain.ChatHeader, error) {
	h, err := readThrough(ctx, s.cache, s.log, headerKey(chatID), s.ttls.Chat, func(ctx context.Context) (*domain.ChatHeader, error) {
		return s.chats.GetHeader(ctx, chatID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound("chat not found")
	}
	return h, err
}

// InvalidateChat drops the cached projections of a chat, e.g. after its
// connection changed status.
func (s *ChatService) InvalidateChat(ctx context.Context, chatID string) {
	invalidate(ctx, s.cache, s.log, detailsKey(chatID), headerKey(chatID))
}

// InvalidateUserChats drops cached chat lists.
func (s *ChatService) InvalidateUserChats(ctx context.Context, userIDs ...string) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, userChatsKey(id))
	}
	invalidate(ctx, s.cache, s.log, keys...)
}

// UpdateConnectionLastMessage writes the preview to the connection and its chat.
func (s *ChatService) UpdateConnectionLastMessage(ctx context.Context, connectionID string, at time.Time, preview string) error {
	return s.connections.UpdateLastMessage(ctx, connectionID, at, domain.Truncate(preview, domain.MaxPreviewLength))
}

// IncrementUnreadCount bumps the connection's single aggregate counter.
// recipientRole is accepted for callers but does not select a per-side counter.
func (s *ChatService) IncrementUnreadCount(ctx context.Context, connectionID string, recipientRole domain.Role) error {
	if err := s.connections.IncrementUnread(ctx, connectionID); err != nil {
		return fmt.Errorf("increment unread for %s: %w", recipientRole, err)
	}
	return nil
}

// ResetUnreadCount zeroes the counter of the chat's connection for a participant.
func (s *ChatService) ResetUnreadCount(ctx context.Context, chatID, callerID string) error {
	h, err := s.authorize(ctx, chatID, callerID)
	if err != nil {
		return err
	}
	if err := s.connections.ResetUnread(ctx, h.ConnectionID); err != nil {
		return err
	}
	s.InvalidateUserChats(ctx, h.DoctorUserID, h.PatientUserID)
	return nil
}

// GetUserChats lists the caller's ACTIVE connections, most recent activity first.
func (s *ChatService) GetUserChats(ctx context.Context, userID string, role domain.Role) ([]*domain.ChatListItem, error) {
	return readThrough(ctx, s.cache, s.log, userChatsKey(userID), s.ttls.UserChats, func(ctx context.Context) ([]*domain.ChatListItem, error) {
		profileID, err := s.users.GetProfileID(ctx, userID, role)
		if err != nil {
			return nil, err
		}
		conns, err := s.connections.ListActiveByProfile(ctx, profileID, role)
		if err != nil {
			return nil, err
		}

		items := make([]*domain.ChatListItem, 0, len(conns))
		for _, c := range conns {
			item := &domain.ChatListItem{
				ConnectionID:  c.ID,
				ChatID:        c.ChatID,
				Participant:   counterpartOf(c, role),
				LastMessageAt: c.LastMessageAt,
				UnreadCount:   c.UnreadCount,
				Status:        c.Status,
			}
			if c.ChatID != nil {
				last, err := s.messages.Latest(ctx, *c.ChatID)
				switch {
				case err == nil:
					item.LastMessage = last
				case !errors.Is(err, domain.ErrNotFound):
					return nil, err
				}
			}
			items = append(items, item)
		}
		return items, nil
	})
}

func counterpartOf(c *domain.Connection, role domain.Role) domain.Participant {
	if role == domain.RoleDoctor {
		return domain.Participant{ID: c.PatientID, UserID: c.PatientUserID, Name: c.PatientName, Role: domain.RolePatient}
	}
	return domain.Participant{ID: c.DoctorID, UserID: c.DoctorUserID, Name: c.DoctorName, Role: domain.RoleDoctor}
}

// GetUnreadTotal sums unread counters over the caller's ACTIVE connections.
func (s *ChatService) GetUnreadTotal(ctx context.Context, userID string, role domain.Role) (int, error) {
	profileID, err := s.users.GetProfileID(ctx, userID, role)
	if err != nil {
		return 0, err
	}
	return s.connections.SumUnreadByProfile(ctx, profileID, role)
}

// VerifyUserAccess reports whether userID participates in chatID. An unknown
// chat is not an error.
func (s *ChatService) VerifyUserAccess(ctx context.Context, chatID, userID string) (bool, error) {
	h, err := s.GetChatHeader(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.CanAccessChat(h, userID), nil
}

func (s *ChatService) CanAccessChat(p domain.ChatParticipants, userID string) bool {
	return domain.CanAccess(p, userID)
}

// authorize loads the header and checks participation.
func (s *ChatService) authorize(ctx context.Context, chatID, userID string) (*domain.ChatHeader, error) {
	h, err := s.GetChatHeader(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !domain.CanAccess(h, userID) {
		return nil, domain.Forbidden("you are not a participant of this chat")
	}
	return h, nil
}

func (s *ChatService) getConnection(ctx context.Context, id string) (*domain.Connection, error) {
	conn, err := s.connections.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound("connection not found")
	}
	return conn, err
}
