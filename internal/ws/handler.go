package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"medchat/internal/domain"
	"medchat/internal/security"
	"medchat/internal/service"
)

const cleanupTimeout = 5 * time.Second

// Presence is the online-marker store.
type Presence interface {
	SetOnline(ctx context.Context, userID, handle string) error
	UnsetOnline(ctx context.Context, userID, handle string) (bool, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// Typing is the typing-marker store.
type Typing interface {
	Start(ctx context.Context, userID, chatID string) (bool, error)
	Stop(ctx context.Context, userID, chatID string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

type Config struct {
	AllowedOrigins []string
	// MaxInflight bounds concurrently running event handlers per connection.
	MaxInflight int
}

// Gateway is the real-time endpoint. Each connection authenticates during the
// handshake, then exchanges {type, data} frames.
type Gateway struct {
	hub         *Hub
	broadcast   *Broadcaster
	tokens      *security.TokenService
	events      *service.ChatEvents
	presence    Presence
	typing      Typing
	limiter     RateLimiter
	checkOrigin func(r *http.Request) bool
	upgrader    websocket.Upgrader
	maxInflight int
	log         zerolog.Logger
}

func NewGateway(
	hub *Hub,
	broadcast *Broadcaster,
	tokens *security.TokenService,
	events *service.ChatEvents,
	presence Presence,
	typing Typing,
	limiter RateLimiter,
	cfg Config,
	log zerolog.Logger,
) *Gateway {
	checkOrigin := makeCheckOrigin(cfg.AllowedOrigins)
	maxInflight := cfg.MaxInflight
	if maxInflight <= 0 {
		maxInflight = 16
	}
	return &Gateway{
		hub:         hub,
		broadcast:   broadcast,
		tokens:      tokens,
		events:      events,
		presence:    presence,
		typing:      typing,
		limiter:     limiter,
		checkOrigin: checkOrigin,
		upgrader: websocket.Upgrader{
			CheckOrigin:  checkOrigin,
			Subprotocols: []string{"bearer"},
		},
		maxInflight: maxInflight,
		log:         log.With().Str("component", "gateway").Logger(),
	}
}

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin admits browser origins from the allow-list and non-browser
// clients that send no Origin header.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// extractToken reads the bearer credential from the Authorization header,
// the "bearer, <token>" subprotocol pair, or the token query parameter.
func extractToken(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	tokenStr, err := extractToken(r)
	if err != nil {
		var authErr wsAuthError
		if errors.As(err, &authErr) {
			http.Error(w, authErr.msg, authErr.status)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	claims, err := g.tokens.Parse(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	c := newClient(uuid.NewString(), claims.UserID(), claims.Role, conn, g.log)
	g.serve(context.WithoutCancel(r.Context()), c)
}

func (g *Gateway) serve(base context.Context, c *Client) {
	ctx, cancel := context.WithCancel(base)
	defer cancel()

	log := g.log.With().Str("user_id", c.UserID).Str("conn_id", c.ID).Logger()
	g.hub.Register(c)
	go c.writePump()

	if err := g.presence.SetOnline(ctx, c.UserID, c.ID); err != nil {
		log.Warn().Err(err).Msg("presence set failed")
	}
	g.broadcast.ToAll(ctx, c.UserID, EventUserOnline, UserRef{UserID: c.UserID})
	log.Info().Int("connections", g.hub.Count()).Msg("connected")

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, g.maxInflight)
	)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := g.presence.SetOnline(ctx, c.UserID, c.ID); err != nil {
			log.Warn().Err(err).Msg("presence refresh failed")
		}
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("read failed")
			}
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			g.dispatch(ctx, c, raw)
		}()
	}

	// Abort in-flight handlers so a hung store call cannot hold up cleanup.
	cancel()
	wg.Wait()
	g.disconnect(c, log)
}

// disconnect runs for every connection however it ended.
func (g *Gateway) disconnect(c *Client, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	rooms := g.hub.Unregister(c)
	for _, room := range rooms {
		chatID := strings.TrimPrefix(room, "chat:")
		if err := g.typing.Stop(ctx, c.UserID, chatID); err != nil {
			log.Warn().Err(err).Str("chat_id", chatID).Msg("typing cleanup failed")
		}
		g.broadcast.ToRoom(ctx, chatID, c.UserID, EventUserStoppedTyping, TypingEvent{UserID: c.UserID, ChatID: chatID})
	}

	removed, err := g.presence.UnsetOnline(ctx, c.UserID, c.ID)
	if err != nil {
		log.Warn().Err(err).Msg("presence unset failed")
	}
	// A newer connection of the same user owns the marker; the user is still online.
	if removed || err != nil {
		g.broadcast.ToAll(ctx, c.UserID, EventUserOffline, UserRef{UserID: c.UserID})
	}
	log.Info().Int("connections", g.hub.Count()).Msg("disconnected")
}

func (g *Gateway) dispatch(ctx context.Context, c *Client, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		g.fail(c, "", domain.BadRequest("malformed event"))
		return
	}

	var err error
	switch f.Type {
	case EventJoinChat:
		err = g.joinChat(ctx, c, f.Data)
	case EventLeaveChat:
		err = g.leaveChat(ctx, c, f.Data)
	case EventSendMessage:
		err = g.sendMessage(ctx, c, f.Data)
	case EventMarkAsRead:
		err = g.markAsRead(ctx, c, f.Data)
	case EventTypingStart:
		err = g.typingStart(ctx, c, f.Data)
	case EventTypingStop:
		err = g.typingStop(ctx, c, f.Data)
	case EventCheckOnline:
		err = g.checkOnline(ctx, c, f.Data)
	default:
		err = domain.BadRequest("unknown event " + f.Type)
	}
	if err != nil {
		g.fail(c, f.Type, err)
	}
}

// fail emits exactly one error event to the originating connection.
func (g *Gateway) fail(c *Client, event string, err error) {
	code := domain.CodeOf(err)
	if code == domain.CodeInternal {
		g.log.Error().Err(err).Str("user_id", c.UserID).Str("event", event).Msg("event failed")
		code = domain.CodeBadRequest
	} else {
		g.log.Debug().Err(err).Str("user_id", c.UserID).Str("event", event).Msg("event rejected")
	}
	c.emit(EventError, ErrorEvent{Message: domain.PublicMessage(err), Code: code})
}

func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return domain.BadRequest("missing event data")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return domain.BadRequest("malformed event data")
	}
	return nil
}

func decodeChatRef(data json.RawMessage) (string, error) {
	var p ChatRef
	if err := decode(data, &p); err != nil {
		return "", err
	}
	if p.ChatID == "" {
		return "", domain.BadRequest("chatId is required")
	}
	return p.ChatID, nil
}

func (g *Gateway) joinChat(ctx context.Context, c *Client, data json.RawMessage) error {
	chatID, err := decodeChatRef(data)
	if err != nil {
		return err
	}
	if _, err := g.events.JoinChat(ctx, chatID, c.UserID); err != nil {
		return err
	}
	g.hub.Join(c, RoomName(chatID))
	c.emit(EventJoinedChat, ChatRef{ChatID: chatID})
	return nil
}

func (g *Gateway) leaveChat(ctx context.Context, c *Client, data json.RawMessage) error {
	chatID, err := decodeChatRef(data)
	if err != nil {
		return err
	}
	// Only a subscribed connection may affect the room.
	if g.hub.InRoom(c, RoomName(chatID)) {
		g.hub.Leave(c, RoomName(chatID))
		g.stopTyping(ctx, c, chatID)
	}
	c.emit(EventLeftChat, ChatRef{ChatID: chatID})
	return nil
}

func (g *Gateway) sendMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var p SendMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.ChatID == "" {
		return domain.BadRequest("chatId is required")
	}

	allowed, err := g.limiter.Allow(ctx, c.UserID)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", c.UserID).Msg("rate limiter unavailable, allowing")
		allowed = true
	}
	if !allowed {
		return domain.ErrRateLimited
	}

	msg, err := g.events.SendMessage(ctx, p.ChatID, c.UserID, p.Content)
	if err != nil {
		return err
	}

	g.broadcast.ToRoom(ctx, p.ChatID, "", EventNewMessage, msg)
	c.emit(EventMessageSent, MessageSent{Message: msg})
	g.stopTyping(ctx, c, p.ChatID)
	return nil
}

func (g *Gateway) markAsRead(ctx context.Context, c *Client, data json.RawMessage) error {
	var p MessageRef
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.MessageID == "" {
		return domain.BadRequest("messageId is required")
	}
	m, err := g.events.MarkAsRead(ctx, p.MessageID, c.UserID)
	if err != nil {
		return err
	}
	g.broadcast.ToRoom(ctx, m.ChatID, "", EventMessageRead, MessageRead{MessageID: m.ID, ReadAt: m.ReadAt, ReadBy: c.UserID})
	return nil
}

func (g *Gateway) authorizeChat(ctx context.Context, c *Client, chatID string) error {
	ok, err := g.events.Chats().VerifyUserAccess(ctx, chatID, c.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Forbidden("you are not a participant of this chat")
	}
	return nil
}

func (g *Gateway) typingStart(ctx context.Context, c *Client, data json.RawMessage) error {
	chatID, err := decodeChatRef(data)
	if err != nil {
		return err
	}
	if err := g.authorizeChat(ctx, c, chatID); err != nil {
		return err
	}
	started, err := g.typing.Start(ctx, c.UserID, chatID)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", c.UserID).Msg("typing start failed")
		return nil
	}
	if started {
		g.broadcast.ToRoom(ctx, chatID, c.UserID, EventUserTyping, TypingEvent{UserID: c.UserID, ChatID: chatID})
	}
	return nil
}

func (g *Gateway) typingStop(ctx context.Context, c *Client, data json.RawMessage) error {
	chatID, err := decodeChatRef(data)
	if err != nil {
		return err
	}
	if err := g.authorizeChat(ctx, c, chatID); err != nil {
		return err
	}
	g.stopTyping(ctx, c, chatID)
	return nil
}

func (g *Gateway) stopTyping(ctx context.Context, c *Client, chatID string) {
	if err := g.typing.Stop(ctx, c.UserID, chatID); err != nil {
		g.log.Warn().Err(err).Str("user_id", c.UserID).Msg("typing stop failed")
	}
	g.broadcast.ToRoom(ctx, chatID, c.UserID, EventUserStoppedTyping, TypingEvent{UserID: c.UserID, ChatID: chatID})
}

func (g *Gateway) checkOnline(ctx context.Context, c *Client, data json.RawMessage) error {
	var p UserRef
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.UserID == "" {
		return domain.BadRequest("userId is required")
	}
	online, err := g.presence.IsOnline(ctx, p.UserID)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", p.UserID).Msg("presence lookup failed")
	}
	c.emit(EventUserStatus, UserStatus{UserID: p.UserID, IsOnline: online})
	return nil
}
