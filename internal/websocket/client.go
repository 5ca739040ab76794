package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/le-tueur/chatvc/internal/models"
	"github.com/le-tueur/chatvc/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBuffer     = 256
)

// Conn is the part of *websocket.Conn the client needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one socket. Its identity is empty until the auth event
// succeeds; the user record itself lives in the moderation store.
type Client struct {
	hub  *Hub
	conn Conn
	send chan []byte
	id   string

	// Handle proven by the login token at upgrade time, if any.
	boundHandle string

	mu       sync.RWMutex
	handle   string
	role     models.Role
	authed   bool
	alive    atomic.Bool
	sendOnce sync.Once
}

func NewClient(hub *Hub, conn Conn, boundHandle string) *Client {
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          uuid.NewString(),
		boundHandle: boundHandle,
	}
	c.alive.Store(true)
	return c
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) BoundHandle() string {
	return c.boundHandle
}

// Identity returns the authenticated handle and role. ok is false before
// the auth event.
func (c *Client) Identity() (handle string, role models.Role, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle, c.role, c.authed
}

func (c *Client) SetIdentity(handle string, role models.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handle, c.role, c.authed = handle, role, true
}

// IsAdmin is false for unauthenticated clients.
func (c *Client) IsAdmin() bool {
	_, role, ok := c.Identity()
	return ok && role.IsAdmin()
}

// Send marshals v and queues it. A client whose buffer is full is dropped.
func (c *Client) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Error marshaling event: %v", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) enqueue(data []byte) {
	// The hub closes send under its lock; hold it so we never write to a
	// closed channel.
	c.hub.mu.RLock()
	if !c.hub.clients[c] {
		c.hub.mu.RUnlock()
		return
	}
	select {
	case c.send <- data:
		c.hub.mu.RUnlock()
	default:
		c.hub.mu.RUnlock()
		logger.Warn("Send buffer full for client %s, dropping connection", c.id)
		c.Terminate()
	}
}

func (c *Client) closeSend() {
	c.sendOnce.Do(func() { close(c.send) })
}

// Terminate closes the socket. The read pump then unregisters the client,
// which runs the regular disconnect path.
func (c *Client) Terminate() {
	c.conn.Close()
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.ReadLimit())
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}
		c.hub.dispatch(c, message)
	}
}

func (c *Client) WritePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Error("Write error: %v", err)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ping is called by the hub's heartbeat. It reports false when the client
// never answered the previous ping.
func (c *Client) ping() bool {
	if !c.alive.Swap(false) {
		return false
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		logger.Debug("Ping to %s failed: %v", c.id, err)
	}
	return true
}
