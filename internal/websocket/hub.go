package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/le-tueur/chatvc/pkg/logger"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultClosureTick       = time.Second
	DefaultReadLimit         = 64 << 10

	// Worst case per rune on the wire is a \uXXXX\uXXXX surrogate pair.
	escapedRuneSize = 12
	envelopeSlack   = 1 << 10
)

// ReadLimitFor returns a frame size limit that admits any message of up
// to maxRunes runes, however the client escapes it. Oversized content
// then reaches the dispatcher and is refused there with an error event.
func ReadLimitFor(maxRunes int) int64 {
	limit := int64(maxRunes)*escapedRuneSize + envelopeSlack
	if limit < DefaultReadLimit {
		return DefaultReadLimit
	}
	return limit
}

// Dispatcher receives everything that happens on the hub's sockets.
type Dispatcher interface {
	HandleMessage(c *Client, data []byte)
	HandleDisconnect(c *Client)
	Tick(now time.Time)
}

// Hub is the registry of live sockets. It fans events out and runs the
// liveness heartbeat and the periodic dispatcher tick.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	dispatcher Dispatcher

	heartbeatInterval time.Duration
	tickInterval      time.Duration
	readLimit         int64
}

func NewHub(heartbeatInterval, tickInterval time.Duration) *Hub {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if tickInterval <= 0 {
		tickInterval = DefaultClosureTick
	}
	return &Hub{
		clients:           make(map[*Client]bool),
		heartbeatInterval: heartbeatInterval,
		tickInterval:      tickInterval,
		readLimit:         DefaultReadLimit,
	}
}

// SetReadLimit caps inbound frame size for clients connecting afterwards.
func (h *Hub) SetReadLimit(n int64) {
	if n > 0 {
		h.readLimit = n
	}
}

func (h *Hub) ReadLimit() int64 {
	return h.readLimit
}

// SetDispatcher must be called before Run and before any client connects.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	logger.Debug("Client %s connected", c.id)
}

// Unregister removes c and runs the disconnect path exactly once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	c.closeSend()
	h.mu.Unlock()

	logger.Debug("Client %s disconnected", c.id)
	if h.dispatcher != nil {
		h.dispatcher.HandleDisconnect(c)
	}
}

func (h *Hub) dispatch(c *Client, data []byte) {
	if h.dispatcher != nil {
		h.dispatcher.HandleMessage(c, data)
	}
}

func (h *Hub) Broadcast(v any) {
	h.BroadcastTo(nil, v)
}

// BroadcastTo sends v to every client accepted by match; a nil match
// accepts all.
func (h *Hub) BroadcastTo(match func(*Client) bool, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Error marshaling broadcast: %v", err)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for client := range h.clients {
		if match != nil && !match(client) {
			continue
		}
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		logger.Warn("Send buffer full for client %s, dropping connection", client.id)
		client.Terminate()
	}
}

func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Heartbeat pings every client and terminates the ones that did not
// answer the previous ping, so a client gets one full interval of grace.
func (h *Hub) Heartbeat() {
	for _, c := range h.Clients() {
		if !c.ping() {
			logger.Info("Terminating unresponsive client %s", c.id)
			c.Terminate()
		}
	}
}

// Run drives the heartbeat and the dispatcher tick until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()
	tick := time.NewTicker(h.tickInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			h.Heartbeat()
		case now := <-tick.C:
			if h.dispatcher != nil {
				h.dispatcher.Tick(now)
			}
		}
	}
}

// Shutdown closes every socket.
func (h *Hub) Shutdown() {
	for _, c := range h.Clients() {
		c.Terminate()
	}
}
