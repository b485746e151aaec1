package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"medchat/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is one authenticated WebSocket connection. ID is the connection
// handle recorded in presence.
type Client struct {
	ID     string
	UserID string
	Role   domain.Role

	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool

	// rooms is guarded by the hub's lock.
	rooms map[string]struct{}
}

func newClient(id, userID string, role domain.Role, conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Role:   role,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		log:    log,
		rooms:  make(map[string]struct{}),
	}
}

// enqueue queues a frame without blocking. Frames for a full or closed
// client are dropped.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn().Str("conn_id", c.ID).Msg("send buffer full, frame dropped")
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// emit sends an event to this connection only.
func (c *Client) emit(typ string, data any) {
	frame, err := encodeFrame(typ, data)
	if err != nil {
		c.log.Error().Err(err).Str("event", typ).Msg("encode frame")
		return
	}
	c.enqueue(frame)
}

// writePump owns all writes to the socket and keeps it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Str("conn_id", c.ID).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
