// Package protocol interprets client events: it authorizes and validates
// each one, applies it to the moderation store and fans the result out
// through the hub.
package protocol

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/le-tueur/chatvc/internal/bot"
	"github.com/le-tueur/chatvc/internal/models"
	"github.com/le-tueur/chatvc/internal/notify"
	"github.com/le-tueur/chatvc/internal/services"
	"github.com/le-tueur/chatvc/internal/websocket"
	"github.com/le-tueur/chatvc/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	DefaultMaxMessageLength = 1000
	systemHandle            = "System"
	chatClosedText          = "Chat closed: the timer has expired."
)

// Verifier is the credential authority.
type Verifier interface {
	Verify(handle string) (models.Role, bool)
}

// Broadcaster is the registry side of the hub.
type Broadcaster interface {
	Broadcast(v any)
	BroadcastTo(match func(*websocket.Client) bool, v any)
}

type Options struct {
	// Analyzer reviews pending messages when set.
	Analyzer bot.Analyzer
	// Responder answers bot_command when set.
	Responder        bot.Responder
	Notifier         notify.Notifier
	MaxMessageLength int
	Clock            func() time.Time
}

type session struct {
	client *websocket.Client
	handle string
	role   models.Role
}

func (s session) fail(message string) {
	s.client.Send(models.NewError(message))
}

type route struct {
	admin bool
	fn    func(s session, data []byte)
}

// Handler is shared by every connection. Its mutex makes each event,
// timer callback and tick one uninterrupted turn over the store and the
// hub, so clients observe changes in the order they were applied.
type Handler struct {
	mu sync.Mutex

	store     *services.ModerationStore
	hub       Broadcaster
	creds     Verifier
	analyzer  bot.Analyzer
	responder bot.Responder
	notifier  notify.Notifier
	validate  *validator.Validate
	now       func() time.Time
	maxLen    int

	routes      map[models.EventType]route
	flashTimers map[string]*time.Timer
	proposals   map[string]proposal
	lastSent    map[string]time.Time
	tasks       sync.WaitGroup
}

func NewHandler(store *services.ModerationStore, hub Broadcaster, creds Verifier, opts Options) *Handler {
	h := &Handler{
		store:       store,
		hub:         hub,
		creds:       creds,
		analyzer:    opts.Analyzer,
		responder:   opts.Responder,
		notifier:    opts.Notifier,
		validate:    newValidator(),
		now:         opts.Clock,
		maxLen:      opts.MaxMessageLength,
		flashTimers: make(map[string]*time.Timer),
		proposals:   make(map[string]proposal),
		lastSent:    make(map[string]time.Time),
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.maxLen <= 0 {
		h.maxLen = DefaultMaxMessageLength
	}
	if h.notifier == nil {
		h.notifier = notify.LogNotifier{}
	}

	h.routes = map[models.EventType]route{
		models.EventSendMessage:       {fn: h.handleSendMessage},
		models.EventTyping:            {fn: h.handleTyping},
		models.EventApproveMessage:    {admin: true, fn: h.handleApprove},
		models.EventRejectMessage:     {admin: true, fn: h.handleReject},
		models.EventForcePublish:      {admin: true, fn: h.handleForcePublish},
		models.EventDeleteMessage:     {admin: true, fn: h.handleDeleteMessage},
		models.EventSendEvent:         {admin: true, fn: h.handleSendEvent},
		models.EventSendWarning:       {admin: true, fn: h.handleSendWarning},
		models.EventSendFlash:         {admin: true, fn: h.handleSendFlash},
		models.EventUpdateConfig:      {admin: true, fn: h.handleUpdateConfig},
		models.EventMuteUser:          {admin: true, fn: h.handleMuteUser},
		models.EventUnmuteUser:        {admin: true, fn: h.handleUnmuteUser},
		models.EventHideUser:          {admin: true, fn: h.handleHideUser},
		models.EventUnhideUser:        {admin: true, fn: h.handleUnhideUser},
		models.EventAddBlockedWord:    {admin: true, fn: h.handleAddBlockedWord},
		models.EventRemoveBlockedWord: {admin: true, fn: h.handleRemoveBlockedWord},
		models.EventClearHistory:      {admin: true, fn: h.handleClearHistory},
		models.EventResetTimers:       {admin: true, fn: h.handleResetTimers},
		models.EventTriggerAnimation:  {admin: true, fn: h.handleTriggerAnimation},
		models.EventExportHistory:     {admin: true, fn: h.handleExportHistory},
		models.EventBotCommand:        {admin: true, fn: h.handleBotCommand},
		models.EventBotConfirm:        {admin: true, fn: h.handleBotConfirm},
	}
	return h
}

// HandleMessage processes one inbound frame.
func (h *Handler) HandleMessage(c *websocket.Client, data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warn("Dropping malformed frame from %s: %v", c.ID(), err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if env.Type == models.EventAuth {
		h.handleAuth(c, data)
		return
	}

	handle, role, ok := c.Identity()
	if !ok {
		c.Send(models.NewError("not authenticated"))
		return
	}
	s := session{client: c, handle: handle, role: role}

	r, found := h.routes[env.Type]
	if !found {
		s.fail("unknown event type")
		return
	}
	// Non-admins get no hint that admin events exist.
	if r.admin && !role.IsAdmin() {
		logger.Debug("Ignoring %s from non-admin %s", env.Type, handle)
		return
	}
	r.fn(s, data)
}

// HandleDisconnect runs when a socket leaves the hub, cleanly or not.
func (h *Handler) HandleDisconnect(c *websocket.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	handle, _, ok := c.Identity()
	if !ok {
		return
	}
	h.store.RemoveUser(c.ID())
	if !h.store.HasSession(handle) {
		h.store.SetTyping(handle, false)
	}
	h.broadcastUsers()
	h.broadcastTyping()
	logger.Info("User %s left the chat", handle)
}

// Tick enforces the closure timer. Only the tick that observes the
// deadline first closes the chat.
func (h *Handler) Tick(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg, closed := h.store.CloseIfExpired(now)
	if !closed {
		return
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		UserID:    "system",
		Username:  systemHandle,
		Role:      models.RoleBot,
		Content:   chatClosedText,
		Timestamp: models.Millis(now),
		Status:    models.StatusApproved,
		Type:      models.TypeEvent,
	}
	h.store.AddMessage(msg)
	h.broadcast(models.MessageEvent{Type: models.EventMessage, Message: msg})
	h.broadcast(models.ConfigEvent{Type: models.EventConfigUpdate, Config: cfg})
	h.notifier.Notify("Closure timer expired, chat disabled")
}

// Close stops pending flash timers and waits for in-flight bot calls.
func (h *Handler) Close() {
	h.mu.Lock()
	for id, t := range h.flashTimers {
		t.Stop()
		delete(h.flashTimers, id)
	}
	h.mu.Unlock()
	h.tasks.Wait()
}

func (h *Handler) handleAuth(c *websocket.Client, data []byte) {
	s := session{client: c}
	if _, _, ok := c.Identity(); ok {
		s.fail("already authenticated")
		return
	}

	var p authPayload
	if !h.decode(s, data, &p) {
		return
	}
	role, ok := h.creds.Verify(p.Handle)
	if !ok {
		s.fail("unknown user")
		return
	}
	if p.Role != role {
		s.fail("role mismatch")
		return
	}
	if bound := c.BoundHandle(); bound != "" && bound != p.Handle {
		s.fail("handle does not match login token")
		return
	}

	c.SetIdentity(p.Handle, role)
	h.store.AddUser(models.User{ID: c.ID(), Username: p.Handle, Role: role})
	c.Send(h.initialState(p.Handle, role))
	h.broadcastUsers()
	logger.Info("User %s joined the chat as %s", p.Handle, role)
}

func (h *Handler) initialState(handle string, role models.Role) models.InitialStateEvent {
	ev := models.InitialStateEvent{
		Type:         models.EventInitialState,
		Users:        h.store.Users(role.IsAdmin()),
		Config:       h.store.Config(),
		MutedUsers:   h.store.MutedUsers(),
		BlockedWords: h.store.BlockedWords(),
		TypingUsers:  h.store.TypingUsers(),
	}

	// The feed plus the caller's own messages still waiting for approval.
	for _, m := range h.store.Messages() {
		if m.Visible() || (m.Username == handle && m.Status == models.StatusPending) {
			ev.Messages = append(ev.Messages, m)
		}
	}
	if ev.Messages == nil {
		ev.Messages = []models.Message{}
	}
	if role.IsAdmin() {
		ev.PendingMessages = h.store.PendingMessages()
	}
	return ev
}

func authenticated(c *websocket.Client) bool {
	_, _, ok := c.Identity()
	return ok
}

func isAdmin(c *websocket.Client) bool {
	return c.IsAdmin()
}

func isRegular(c *websocket.Client) bool {
	return authenticated(c) && !c.IsAdmin()
}

// broadcast reaches every authenticated client.
func (h *Handler) broadcast(v any) {
	h.hub.BroadcastTo(authenticated, v)
}

// broadcastUsers sends admins the full list and everyone else the list
// without hidden users.
func (h *Handler) broadcastUsers() {
	h.hub.BroadcastTo(isAdmin, models.UsersEvent{Type: models.EventUsersUpdate, Users: h.store.Users(true)})
	h.hub.BroadcastTo(isRegular, models.UsersEvent{Type: models.EventUsersUpdate, Users: h.store.Users(false)})
}

func (h *Handler) broadcastTyping() {
	h.broadcast(models.TypingEvent{Type: models.EventTypingUpdate, Users: h.store.TypingUsers()})
}

func (h *Handler) broadcastConfig(cfg models.ChatConfig) {
	h.broadcast(models.ConfigEvent{Type: models.EventConfigUpdate, Config: cfg})
}

func (h *Handler) broadcastMuted() {
	h.broadcast(models.MutedUsersEvent{Type: models.EventMutedUsersUpdate, MutedUsers: h.store.MutedUsers()})
}

func (h *Handler) broadcastBlocked() {
	h.broadcast(models.BlockedWordsEvent{Type: models.EventBlockedWordsUpdate, BlockedWords: h.store.BlockedWords()})
}
