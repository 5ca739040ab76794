package protocol

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/le-tueur/chatvc/internal/bot"
	"github.com/le-tueur/chatvc/internal/database"
	"github.com/le-tueur/chatvc/internal/models"
	"github.com/le-tueur/chatvc/internal/services"
	"github.com/le-tueur/chatvc/internal/websocket"
	"github.com/le-tueur/chatvc/internal/websocket/wstest"
	"github.com/le-tueur/chatvc/pkg/logger"
)

const (
	frameTimeout = 2 * time.Second
	quietPeriod  = 150 * time.Millisecond
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type staticVerifier map[string]models.Role

var testRoles = staticVerifier{
	"root":  models.RoleAdmin,
	"alice": models.RoleUser,
	"bob":   models.RoleUser,
	"guest": models.RoleGuest,
}

func (v staticVerifier) Verify(handle string) (models.Role, bool) {
	role, ok := v[handle]
	return role, ok
}

type harness struct {
	t       *testing.T
	hub     *websocket.Hub
	store   *services.ModerationStore
	handler *Handler
	clock   *fakeClock
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := services.NewModerationStore(database.NewMemoryDB(),
		services.WithClock(clock.Now), services.WithSaveDelay(time.Hour))
	hub := websocket.NewHub(time.Hour, time.Hour)

	opts.Clock = clock.Now
	h := NewHandler(store, hub, testRoles, opts)
	hub.SetDispatcher(h)

	t.Cleanup(func() {
		hub.Shutdown()
		h.Close()
	})
	return &harness{t: t, hub: hub, store: store, handler: h, clock: clock}
}

func (h *harness) connect() *wstest.Conn {
	h.t.Helper()
	conn := wstest.NewConn()
	c := websocket.NewClient(h.hub, conn, "")
	h.hub.Register(c)
	go c.WritePump()
	go c.ReadPump()
	waitFor(h.t, conn.Ready)
	return conn
}

// join connects and authenticates handle, returning the socket and the
// initial state it received.
func (h *harness) join(handle string) (*wstest.Conn, models.InitialStateEvent) {
	h.t.Helper()
	conn := h.connect()
	conn.Push(map[string]any{"type": "auth", "handle": handle, "role": testRoles[handle]})
	var state models.InitialStateEvent
	decode(h.t, expect(h.t, conn, models.EventInitialState), &state)
	expect(h.t, conn, models.EventUsersUpdate)
	return conn, state
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(frameTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// expect skips frames until one of type typ arrives.
func expect(t *testing.T, conn *wstest.Conn, typ models.EventType) []byte {
	t.Helper()
	deadline := time.Now().Add(frameTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("no %s frame received", typ)
		}
		frame, ok := conn.Next(remaining)
		if !ok {
			t.Fatalf("no %s frame received", typ)
		}
		var env models.Envelope
		decode(t, frame, &env)
		if env.Type == typ {
			return frame
		}
	}
}

// expectNone fails if a frame of type typ arrives within d.
func expectNone(t *testing.T, conn *wstest.Conn, typ models.EventType, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		frame, ok := conn.Next(remaining)
		if !ok {
			return
		}
		var env models.Envelope
		decode(t, frame, &env)
		if env.Type == typ {
			t.Fatalf("unexpected %s frame: %s", typ, frame)
		}
	}
}

func expectError(t *testing.T, conn *wstest.Conn, contains string) {
	t.Helper()
	var ev models.ErrorEvent
	decode(t, expect(t, conn, models.EventError), &ev)
	if !strings.Contains(ev.Message, contains) {
		t.Fatalf("expected error containing %q, got %q", contains, ev.Message)
	}
}

func decode(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func send(conn *wstest.Conn, typ models.EventType, fields map[string]any) {
	frame := map[string]any{"type": typ}
	for k, v := range fields {
		frame[k] = v
	}
	conn.Push(frame)
}

func expectMessage(t *testing.T, conn *wstest.Conn, typ models.EventType) models.Message {
	t.Helper()
	var ev models.MessageEvent
	decode(t, expect(t, conn, typ), &ev)
	return ev.Message
}

func TestAuthRejectsUnknownHandleAndRoleMismatch(t *testing.T) {
	h := newHarness(t, Options{})

	conn := h.connect()
	send(conn, models.EventAuth, map[string]any{"handle": "mallory", "role": "user"})
	expectError(t, conn, "unknown user")

	send(conn, models.EventAuth, map[string]any{"handle": "alice"})
	expectError(t, conn, "role is required")

	send(conn, models.EventAuth, map[string]any{"handle": "alice", "role": "owner"})
	expectError(t, conn, "role must be one of")

	send(conn, models.EventAuth, map[string]any{"handle": "alice", "role": "admin"})
	expectError(t, conn, "role mismatch")

	if got := h.store.Users(true); len(got) != 0 {
		t.Fatalf("expected no registered users, got %+v", got)
	}
}

func TestInitialStateOnlyCarriesQueueForAdmins(t *testing.T) {
	h := newHarness(t, Options{})

	alice, state := h.join("alice")
	if state.PendingMessages != nil {
		t.Fatalf("user must not receive the pending queue, got %+v", state.PendingMessages)
	}
	send(alice, models.EventSendMessage, map[string]any{"content": "hello"})
	expectMessage(t, alice, models.EventPendingMessage)

	_, adminState := h.join("root")
	if len(adminState.PendingMessages) != 1 || adminState.PendingMessages[0].Content != "hello" {
		t.Fatalf("unexpected admin queue %+v", adminState.PendingMessages)
	}
}

func TestUnauthenticatedSocket(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")

	conn := h.connect()
	send(conn, models.EventSendMessage, map[string]any{"content": "hi"})
	expectError(t, conn, "not authenticated")

	conn.Close()
	expectNone(t, admin, models.EventUsersUpdate, quietPeriod)
}

func TestSendMessageRejectedWhenChatDisabled(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(admin, models.EventUpdateConfig, map[string]any{"config": map[string]any{"enabled": false}})
	expect(t, alice, models.EventConfigUpdate)

	send(alice, models.EventSendMessage, map[string]any{"content": "anyone?"})
	expectError(t, alice, "disabled")
	if got := h.store.Messages(); len(got) != 0 {
		t.Fatalf("no message must be created, got %+v", got)
	}

	// Admins still talk in a closed chat.
	send(admin, models.EventSendMessage, map[string]any{"content": "back soon"})
	if msg := expectMessage(t, alice, models.EventMessage); msg.Status != models.StatusApproved {
		t.Fatalf("expected approved admin message, got %+v", msg)
	}
}

func TestSendMessageValidation(t *testing.T) {
	h := newHarness(t, Options{MaxMessageLength: 10})
	alice, _ := h.join("alice")

	send(alice, models.EventSendMessage, map[string]any{"content": "   "})
	expectError(t, alice, "empty")

	send(alice, models.EventSendMessage, map[string]any{"content": "this is far too long"})
	expectError(t, alice, "exceeds")

	if got := h.store.Messages(); len(got) != 0 {
		t.Fatalf("expected no messages, got %+v", got)
	}
}

func TestBlockedWordIsCaseInsensitiveSubstring(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(admin, models.EventAddBlockedWord, map[string]any{"word": "spam"})
	expect(t, alice, models.EventBlockedWordsUpdate)

	send(alice, models.EventSendMessage, map[string]any{"content": "this is SPAM here"})
	expectError(t, alice, "blocked word")
	if got := h.store.Messages(); len(got) != 0 {
		t.Fatalf("no message must be created, got %+v", got)
	}
}

func TestRejectTwiceIsNoop(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(alice, models.EventSendMessage, map[string]any{"content": "hello"})
	msg := expectMessage(t, admin, models.EventPendingMessage)

	send(admin, models.EventRejectMessage, map[string]any{"messageId": msg.ID})
	expect(t, alice, models.EventMessageRejected)
	send(admin, models.EventRejectMessage, map[string]any{"messageId": msg.ID})

	expectNone(t, admin, models.EventError, quietPeriod)
	expectNone(t, alice, models.EventMessageRejected, quietPeriod)
	if _, ok := h.store.Message(msg.ID); ok {
		t.Fatal("rejected message must be removed")
	}
}

func TestApproveAndForcePublish(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")
	bob, _ := h.join("bob")

	send(alice, models.EventSendMessage, map[string]any{"content": "first"})
	first := expectMessage(t, admin, models.EventPendingMessage)
	send(admin, models.EventApproveMessage, map[string]any{"messageId": first.ID})

	if got := expectMessage(t, bob, models.EventMessage); got.ID != first.ID || got.Status != models.StatusApproved {
		t.Fatalf("unexpected approved message %+v", got)
	}
	var approved models.MessageIDEvent
	decode(t, expect(t, bob, models.EventMessageApproved), &approved)
	if approved.MessageID != first.ID {
		t.Fatalf("approval for wrong id %q", approved.MessageID)
	}

	send(alice, models.EventSendMessage, map[string]any{"content": "second"})
	second := expectMessage(t, admin, models.EventPendingMessage)
	send(admin, models.EventForcePublish, map[string]any{"messageId": second.ID})
	if got := expectMessage(t, bob, models.EventMessage); !got.ForcePublished || got.Status != models.StatusApproved {
		t.Fatalf("expected force published message, got %+v", got)
	}
}

func TestUpdateConfigMergesPartialPatches(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")

	send(admin, models.EventUpdateConfig, map[string]any{"config": map[string]any{"cooldown": 5}})
	expect(t, admin, models.EventConfigUpdate)
	send(admin, models.EventUpdateConfig, map[string]any{"config": map[string]any{"enabled": false}})

	var ev models.ConfigEvent
	decode(t, expect(t, admin, models.EventConfigUpdate), &ev)
	if ev.Config.Cooldown != 5 || ev.Config.Enabled {
		t.Fatalf("expected cooldown 5 and disabled, got %+v", ev.Config)
	}
}

func TestUpdateConfigRejectsNegativeCooldown(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")

	send(admin, models.EventUpdateConfig, map[string]any{"config": map[string]any{"cooldown": -1}})
	expectError(t, admin, "cooldown")
	if got := h.store.Config().Cooldown; got != 0 {
		t.Fatalf("cooldown changed to %d", got)
	}
}

func TestTimerMinutesStoresAbsoluteDeadline(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	start := models.Millis(h.clock.Now())

	send(admin, models.EventUpdateConfig, map[string]any{"config": map[string]any{"timerMinutes": 10}})
	var ev models.ConfigEvent
	decode(t, expect(t, admin, models.EventConfigUpdate), &ev)
	if ev.Config.TimerEndTime == nil || *ev.Config.TimerEndTime != start+600000 {
		t.Fatalf("expected deadline %d, got %v", start+600000, ev.Config.TimerEndTime)
	}

	send(admin, models.EventUpdateConfig, map[string]any{"config": map[string]any{"timerMinutes": 0}})
	decode(t, expect(t, admin, models.EventConfigUpdate), &ev)
	if ev.Config.TimerEndTime != nil {
		t.Fatalf("timerMinutes=0 must clear the deadline, got %d", *ev.Config.TimerEndTime)
	}
}

func TestClosureTickFiresExactlyOnce(t *testing.T) {
	h := newHarness(t, Options{})
	alice, _ := h.join("alice")

	past := models.Millis(h.clock.Now()) - 1
	h.store.UpdateConfig(models.ConfigPatch{TimerEndTime: &past})

	h.handler.Tick(h.clock.Now())
	msg := expectMessage(t, alice, models.EventMessage)
	if msg.Content != chatClosedText || msg.Type != models.TypeEvent {
		t.Fatalf("unexpected closure message %+v", msg)
	}
	var ev models.ConfigEvent
	decode(t, expect(t, alice, models.EventConfigUpdate), &ev)
	if ev.Config.Enabled {
		t.Fatal("chat must be disabled after the deadline")
	}

	h.handler.Tick(h.clock.Now())
	expectNone(t, alice, models.EventMessage, quietPeriod)
	if got := len(h.store.Messages()); got != 1 {
		t.Fatalf("expected exactly one system message, got %d", got)
	}
}

func TestMuteBlocksUntilExpiry(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(admin, models.EventMuteUser, map[string]any{"handle": "alice", "durationMinutes": 1})
	var muted models.MutedUsersEvent
	decode(t, expect(t, alice, models.EventMutedUsersUpdate), &muted)
	if len(muted.MutedUsers) != 1 || muted.MutedUsers[0].Username != "alice" {
		t.Fatalf("unexpected mute list %+v", muted.MutedUsers)
	}

	send(alice, models.EventSendMessage, map[string]any{"content": "let me talk"})
	expectError(t, alice, "muted")

	h.clock.Advance(61 * time.Second)
	send(alice, models.EventSendMessage, map[string]any{"content": "thanks"})
	expectMessage(t, alice, models.EventPendingMessage)
	if got := h.store.MutedUsers(); len(got) != 0 {
		t.Fatalf("expired mute must be gone, got %+v", got)
	}
}

func TestMuteSurvivesReconnect(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(admin, models.EventMuteUser, map[string]any{"handle": "alice", "durationMinutes": 30})
	expect(t, alice, models.EventMutedUsersUpdate)
	alice.Close()
	expect(t, admin, models.EventUsersUpdate)

	alice, state := h.join("alice")
	var found bool
	for _, u := range state.Users {
		if u.Username == "alice" {
			found = u.IsMuted
		}
	}
	if !found {
		t.Fatalf("reconnected user must still be muted: %+v", state.Users)
	}
	send(alice, models.EventSendMessage, map[string]any{"content": "again"})
	expectError(t, alice, "muted")
}

func TestDirectModeApprovesImmediately(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(admin, models.EventUpdateConfig, map[string]any{"config": map[string]any{"directChatEnabled": true}})
	expect(t, alice, models.EventConfigUpdate)

	send(alice, models.EventSendMessage, map[string]any{"content": "straight through"})
	if msg := expectMessage(t, admin, models.EventMessage); msg.Status != models.StatusApproved {
		t.Fatalf("expected approved message, got %+v", msg)
	}
	expectNone(t, admin, models.EventPendingMessage, quietPeriod)
	expectNone(t, alice, models.EventPendingMessage, quietPeriod)
}

func TestPendingQueueKeepsArrivalOrder(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")
	bob, _ := h.join("bob")

	send(alice, models.EventSendMessage, map[string]any{"content": "hello"})
	expectMessage(t, alice, models.EventPendingMessage)
	send(bob, models.EventSendMessage, map[string]any{"content": "world"})
	expectMessage(t, bob, models.EventPendingMessage)

	first := expectMessage(t, admin, models.EventPendingMessage)
	second := expectMessage(t, admin, models.EventPendingMessage)
	if first.Content != "hello" || second.Content != "world" {
		t.Fatalf("unexpected live order %q, %q", first.Content, second.Content)
	}

	var contents []string
	for _, m := range h.store.PendingMessages() {
		contents = append(contents, m.Content)
	}
	if strings.Join(contents, ",") != "hello,world" {
		t.Fatalf("unexpected queue %v", contents)
	}
}

func TestPendingMessageIsNotBroadcastToOtherUsers(t *testing.T) {
	h := newHarness(t, Options{})
	_, _ = h.join("root")
	alice, _ := h.join("alice")
	bob, _ := h.join("bob")

	send(alice, models.EventSendMessage, map[string]any{"content": "for review"})
	expectMessage(t, alice, models.EventPendingMessage)
	expectNone(t, bob, models.EventPendingMessage, quietPeriod)
}

func TestFlashMessageExpires(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(admin, models.EventSendFlash, map[string]any{"content": "x", "durationSeconds": 1})
	msg := expectMessage(t, alice, models.EventFlashMessage)
	if msg.Type != models.TypeFlash || msg.FlashDuration != 1 {
		t.Fatalf("unexpected flash %+v", msg)
	}

	expectNone(t, alice, models.EventMessageDeleted, 700*time.Millisecond)
	if _, ok := h.store.Message(msg.ID); !ok {
		t.Fatal("flash removed too early")
	}

	var deleted models.MessageIDEvent
	decode(t, expect(t, alice, models.EventMessageDeleted), &deleted)
	if deleted.MessageID != msg.ID {
		t.Fatalf("deleted wrong id %q", deleted.MessageID)
	}
	if _, ok := h.store.Message(msg.ID); ok {
		t.Fatal("flash still stored after expiry")
	}
}

func TestDeleteCancelsFlashTimer(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")

	send(admin, models.EventSendFlash, map[string]any{"content": "oops", "durationSeconds": 1})
	msg := expectMessage(t, admin, models.EventFlashMessage)
	send(admin, models.EventDeleteMessage, map[string]any{"messageId": msg.ID})
	expect(t, admin, models.EventMessageDeleted)

	expectNone(t, admin, models.EventMessageDeleted, 1500*time.Millisecond)
}

func TestNonAdminAdminEventsAreIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	alice, _ := h.join("alice")

	send(alice, models.EventAddBlockedWord, map[string]any{"word": "hello"})
	send(alice, models.EventUpdateConfig, map[string]any{"config": map[string]any{"enabled": false}})
	send(alice, models.EventClearHistory, nil)

	expectNone(t, alice, models.EventError, quietPeriod)
	if len(h.store.BlockedWords()) != 0 || !h.store.Config().Enabled {
		t.Fatal("non-admin event changed state")
	}

	send(alice, "launch_rockets", nil)
	expectError(t, alice, "unknown event")
}

func TestInvalidPayloadProducesError(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")

	send(admin, models.EventMuteUser, map[string]any{"handle": "alice", "durationMinutes": 0})
	expectError(t, admin, "durationMinutes")

	send(admin, models.EventExportHistory, map[string]any{"format": "xml"})
	expectError(t, admin, "format")
}

func TestHiddenUsersOnlyVisibleToAdmins(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	bob, _ := h.join("bob")
	h.join("alice")
	expect(t, bob, models.EventUsersUpdate)

	send(admin, models.EventHideUser, map[string]any{"handle": "alice"})

	var regular models.UsersEvent
	decode(t, expect(t, bob, models.EventUsersUpdate), &regular)
	for _, u := range regular.Users {
		if u.Username == "alice" {
			t.Fatalf("hidden user leaked to non-admin: %+v", regular.Users)
		}
	}

	var full models.UsersEvent
	for {
		decode(t, expect(t, admin, models.EventUsersUpdate), &full)
		if len(full.Users) == 3 {
			break
		}
	}
	for _, u := range full.Users {
		if u.Username == "alice" && !u.IsHidden {
			t.Fatalf("admin must see alice flagged hidden: %+v", full.Users)
		}
	}
}

func TestDisconnectUpdatesPresence(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")
	send(alice, models.EventTyping, map[string]any{"isTyping": true})

	var typing models.TypingEvent
	decode(t, expect(t, admin, models.EventTypingUpdate), &typing)
	if len(typing.Users) != 1 {
		t.Fatalf("expected alice typing, got %+v", typing.Users)
	}

	alice.Close()
	waitFor(t, func() bool { return len(h.store.Users(true)) == 1 })
	decode(t, expect(t, admin, models.EventTypingUpdate), &typing)
	if len(typing.Users) != 0 {
		t.Fatalf("typing entry must be cleared on disconnect, got %+v", typing.Users)
	}
}

func TestSecondSessionKeepsPresence(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	first, _ := h.join("alice")
	second, _ := h.join("alice")
	send(first, models.EventTyping, map[string]any{"isTyping": true})

	var typing models.TypingEvent
	decode(t, expect(t, admin, models.EventTypingUpdate), &typing)
	if len(typing.Users) != 1 {
		t.Fatalf("expected alice typing, got %+v", typing.Users)
	}

	second.Close()
	var users models.UsersEvent
	decode(t, expect(t, admin, models.EventUsersUpdate), &users)
	count := 0
	for _, u := range users.Users {
		if u.Username == "alice" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected alice listed once, got %+v", users.Users)
	}
	decode(t, expect(t, admin, models.EventTypingUpdate), &typing)
	if len(typing.Users) != 1 || typing.Users[0].Username != "alice" {
		t.Fatalf("typing entry must survive while alice is still connected, got %+v", typing.Users)
	}

	first.Close()
	decode(t, expect(t, admin, models.EventTypingUpdate), &typing)
	if len(typing.Users) != 0 {
		t.Fatalf("typing entry must clear with the last session, got %+v", typing.Users)
	}
}

func TestCooldownBetweenMessages(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(admin, models.EventUpdateConfig, map[string]any{"config": map[string]any{"cooldown": 10}})
	expect(t, alice, models.EventConfigUpdate)

	send(alice, models.EventSendMessage, map[string]any{"content": "one"})
	expectMessage(t, alice, models.EventPendingMessage)
	send(alice, models.EventSendMessage, map[string]any{"content": "two"})
	expectError(t, alice, "wait 10 seconds")

	h.clock.Advance(10 * time.Second)
	send(alice, models.EventSendMessage, map[string]any{"content": "three"})
	expectMessage(t, alice, models.EventPendingMessage)
}

func TestClearHistoryAndResetTimers(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")

	send(admin, models.EventSendEvent, map[string]any{"content": "stream starts"})
	expectMessage(t, admin, models.EventMessage)
	send(admin, models.EventClearHistory, nil)
	expect(t, admin, models.EventMessagesCleared)
	if got := h.store.Messages(); len(got) != 0 {
		t.Fatalf("history not cleared: %+v", got)
	}

	send(admin, models.EventUpdateConfig, map[string]any{"config": map[string]any{"cooldown": 30, "timerMinutes": 5, "directChatEnabled": true}})
	expect(t, admin, models.EventConfigUpdate)
	send(admin, models.EventResetTimers, nil)

	var ev models.ConfigEvent
	decode(t, expect(t, admin, models.EventConfigUpdate), &ev)
	if ev.Config.Cooldown != 0 || ev.Config.TimerEndTime != nil || !ev.Config.DirectChatEnabled {
		t.Fatalf("reset must only touch cooldown and timer, got %+v", ev.Config)
	}
}

func TestExportIsUnicast(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(admin, models.EventSendEvent, map[string]any{"content": "welcome"})
	send(admin, models.EventSendWarning, map[string]any{"content": "be nice"})
	send(alice, models.EventSendMessage, map[string]any{"content": "unreviewed"})
	expectMessage(t, admin, models.EventPendingMessage)

	send(admin, models.EventExportHistory, map[string]any{"format": "text"})
	var ev models.ExportEvent
	decode(t, expect(t, admin, models.EventExportData), &ev)
	if !strings.HasSuffix(ev.Filename, ".txt") || !strings.HasPrefix(ev.Filename, "chat-export-") {
		t.Fatalf("unexpected filename %q", ev.Filename)
	}
	if !strings.Contains(ev.Data, "[EVENT] root: welcome") {
		t.Fatalf("transcript misses the event:\n%s", ev.Data)
	}
	if strings.Contains(ev.Data, "be nice") || strings.Contains(ev.Data, "unreviewed") {
		t.Fatalf("transcript must hold only the public feed:\n%s", ev.Data)
	}

	send(admin, models.EventExportHistory, map[string]any{"format": "json"})
	decode(t, expect(t, admin, models.EventExportData), &ev)
	var dump struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, []byte(ev.Data), &dump)
	if len(dump.Messages) != 3 {
		t.Fatalf("json export must hold every message, got %d", len(dump.Messages))
	}

	expectNone(t, alice, models.EventExportData, quietPeriod)
}

func TestAnimationIsBroadcast(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(admin, models.EventTriggerAnimation, map[string]any{"kind": "confetti"})
	var ev models.AnimationEvent
	decode(t, expect(t, alice, models.EventAnimationTrigger), &ev)
	if ev.Kind != "confetti" {
		t.Fatalf("unexpected kind %q", ev.Kind)
	}
}

func TestBotProposesThenExecutesOnConfirm(t *testing.T) {
	h := newHarness(t, Options{Responder: bot.NewRuleBot(nil)})
	admin, _ := h.join("root")
	h.join("alice")

	send(admin, models.EventBotCommand, map[string]any{"text": "mute alice 10"})
	var reply models.BotReplyEvent
	decode(t, expect(t, admin, models.EventBotReply), &reply)
	if reply.ProposalID == "" || reply.Executed || len(reply.Actions) != 1 {
		t.Fatalf("expected an unexecuted proposal, got %+v", reply)
	}
	if h.store.IsMuted("alice") {
		t.Fatal("proposal must not act before confirmation")
	}

	send(admin, models.EventBotConfirm, map[string]any{"proposalId": reply.ProposalID})
	decode(t, expect(t, admin, models.EventBotReply), &reply)
	if !reply.Executed {
		t.Fatalf("expected executed reply, got %+v", reply)
	}
	if !h.store.IsMuted("alice") {
		t.Fatal("confirmed mute not applied")
	}

	send(admin, models.EventBotConfirm, map[string]any{"proposalId": reply.ProposalID})
	expectError(t, admin, "unknown or expired proposal")
}

func TestBotUnavailableWithoutResponder(t *testing.T) {
	h := newHarness(t, Options{})
	admin, _ := h.join("root")

	send(admin, models.EventBotCommand, map[string]any{"text": "status"})
	expectError(t, admin, "not available")
}

func TestAutoModerationRejectsFlaggedMessages(t *testing.T) {
	h := newHarness(t, Options{Analyzer: bot.NewRuleBot(nil)})
	admin, _ := h.join("root")
	alice, _ := h.join("alice")

	send(alice, models.EventSendMessage, map[string]any{"content": "cheap stuff at https://spam.io"})
	msg := expectMessage(t, admin, models.EventPendingMessage)

	var rejected models.MessageIDEvent
	decode(t, expect(t, alice, models.EventMessageRejected), &rejected)
	if rejected.MessageID != msg.ID {
		t.Fatalf("rejected wrong id %q", rejected.MessageID)
	}

	send(alice, models.EventSendMessage, map[string]any{"content": "nice stream"})
	clean := expectMessage(t, admin, models.EventPendingMessage)
	expectNone(t, alice, models.EventMessageRejected, quietPeriod)
	if _, ok := h.store.Message(clean.ID); !ok {
		t.Fatal("clean message must stay pending")
	}
}
