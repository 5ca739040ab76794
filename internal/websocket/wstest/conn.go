// Package wstest provides an in-memory websocket connection for tests.
package wstest

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errClosed = errors.New("wstest: connection closed")

// Conn satisfies the client's connection interface. Frames pushed with
// Push are returned by ReadMessage; text frames written by the server are
// readable through Next.
type Conn struct {
	inbound chan []byte
	written chan []byte
	closed  chan struct{}
	once    sync.Once

	mu          sync.Mutex
	pongHandler func(string) error
	pings       int
	autoPong    bool
}

func NewConn() *Conn {
	return &Conn{
		inbound:  make(chan []byte, 64),
		written:  make(chan []byte, 1024),
		closed:   make(chan struct{}),
		autoPong: true,
	}
}

// SetAutoPong controls whether pings are answered immediately.
func (c *Conn) SetAutoPong(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoPong = on
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseGoingAway}
	}
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	frame := append([]byte(nil), data...)
	select {
	case c.written <- frame:
	default:
		return errors.New("wstest: write buffer full")
	}
	return nil
}

func (c *Conn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	if messageType != websocket.PingMessage {
		return nil
	}
	c.mu.Lock()
	c.pings++
	handler, auto := c.pongHandler, c.autoPong
	c.mu.Unlock()

	if auto && handler != nil {
		return handler(string(data))
	}
	return nil
}

func (c *Conn) SetReadLimit(limit int64) {}

func (c *Conn) SetWriteDeadline(t time.Time) error { return nil }

func (c *Conn) SetPongHandler(h func(appData string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongHandler = h
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Push delivers a frame to the server side.
func (c *Conn) Push(v any) {
	var data []byte
	switch frame := v.(type) {
	case []byte:
		data = frame
	case string:
		data = []byte(frame)
	default:
		data, _ = json.Marshal(v)
	}
	c.inbound <- data
}

// Next waits up to timeout for the next text frame written by the server.
func (c *Conn) Next(timeout time.Duration) ([]byte, bool) {
	select {
	case frame := <-c.written:
		return frame, true
	case <-time.After(timeout):
		return nil, false
	}
}

func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// Ready reports whether the read side has installed its pong handler.
func (c *Conn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pongHandler != nil
}
