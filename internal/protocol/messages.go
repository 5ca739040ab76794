package protocol

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/le-tueur/chatvc/internal/bot"
	"github.com/le-tueur/chatvc/internal/models"
	"github.com/le-tueur/chatvc/pkg/logger"

	"github.com/google/uuid"
)

// author is who a message is attributed to.
type author struct {
	id     string
	handle string
	role   models.Role
}

func (s session) author() author {
	return author{id: s.client.ID(), handle: s.handle, role: s.role}
}

var botAuthor = author{id: "bot", handle: bot.Handle, role: models.RoleBot}

func (h *Handler) newMessage(a author, content string, typ models.MessageType, status models.MessageStatus) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		UserID:    a.id,
		Username:  a.handle,
		Role:      a.role,
		Content:   content,
		Timestamp: models.Millis(h.now()),
		Status:    status,
		Type:      typ,
	}
}

func (h *Handler) handleSendMessage(s session, data []byte) {
	var p sendMessagePayload
	if !h.decode(s, data, &p) {
		return
	}

	content := strings.TrimSpace(p.Content)
	if content == "" {
		s.fail("message is empty")
		return
	}
	if utf8.RuneCountInString(content) > h.maxLen {
		s.fail(fmt.Sprintf("message exceeds %d characters", h.maxLen))
		return
	}

	admin := s.role.IsAdmin()
	cfg := h.store.Config()
	if !cfg.Enabled && !admin {
		s.fail("chat is disabled")
		return
	}
	if h.store.IsMuted(s.handle) {
		s.fail("you are muted")
		return
	}
	if h.store.ContainsBlockedWord(content) {
		s.fail("message contains a blocked word")
		return
	}

	now := h.now()
	if wait := h.cooldownLeft(s.handle, cfg.Cooldown, now); wait > 0 && !admin {
		s.fail(fmt.Sprintf("please wait %d seconds before sending again", int(math.Ceil(wait.Seconds()))))
		return
	}
	h.lastSent[s.handle] = now

	status := models.StatusPending
	if admin || cfg.DirectChatEnabled {
		status = models.StatusApproved
	}
	msg := h.newMessage(s.author(), content, models.TypeNormal, status)
	h.store.AddMessage(msg)

	if status == models.StatusApproved {
		h.broadcast(models.MessageEvent{Type: models.EventMessage, Message: msg})
	} else {
		ev := models.MessageEvent{Type: models.EventPendingMessage, Message: msg}
		s.client.Send(ev)
		h.hub.BroadcastTo(isAdmin, ev)
		if h.analyzer != nil {
			h.tasks.Add(1)
			go h.autoModerate(msg)
		}
	}

	h.store.SetTyping(s.handle, false)
	h.broadcastTyping()
}

func (h *Handler) cooldownLeft(handle string, cooldown int, now time.Time) time.Duration {
	last, ok := h.lastSent[handle]
	if !ok || cooldown <= 0 {
		return 0
	}
	return last.Add(time.Duration(cooldown) * time.Second).Sub(now)
}

func (h *Handler) handleTyping(s session, data []byte) {
	var p typingPayload
	if !h.decode(s, data, &p) {
		return
	}
	h.store.SetTyping(s.handle, p.IsTyping)
	h.broadcastTyping()
}

func (h *Handler) handleApprove(s session, data []byte) {
	var p messageIDPayload
	if !h.decode(s, data, &p) {
		return
	}
	h.approve(p.MessageID)
}

func (h *Handler) handleReject(s session, data []byte) {
	var p messageIDPayload
	if !h.decode(s, data, &p) {
		return
	}
	h.reject(p.MessageID)
}

func (h *Handler) handleForcePublish(s session, data []byte) {
	var p messageIDPayload
	if !h.decode(s, data, &p) {
		return
	}
	h.forcePublish(p.MessageID)
}

func (h *Handler) handleDeleteMessage(s session, data []byte) {
	var p messageIDPayload
	if !h.decode(s, data, &p) {
		return
	}
	h.deleteMessage(p.MessageID)
}

func (h *Handler) handleSendEvent(s session, data []byte) {
	var p contentPayload
	if !h.decode(s, data, &p) {
		return
	}
	h.announce(s.author(), p.Content, models.TypeEvent)
}

func (h *Handler) handleSendWarning(s session, data []byte) {
	var p contentPayload
	if !h.decode(s, data, &p) {
		return
	}
	h.announce(s.author(), p.Content, models.TypeWarning)
}

func (h *Handler) handleSendFlash(s session, data []byte) {
	var p flashPayload
	if !h.decode(s, data, &p) {
		return
	}

	content := strings.TrimSpace(p.Content)
	if content == "" {
		return
	}
	msg := h.newMessage(s.author(), content, models.TypeFlash, models.StatusApproved)
	msg.FlashDuration = p.DurationSeconds
	h.store.AddMessage(msg)
	h.broadcast(models.MessageEvent{Type: models.EventFlashMessage, Message: msg})

	id := msg.ID
	h.flashTimers[id] = time.AfterFunc(time.Duration(p.DurationSeconds)*time.Second, func() {
		h.expireFlash(id)
	})
}

// The operations below run with h.mu held. They report whether anything
// changed so bot actions can count what they did.

// approve publishes a message that is still waiting in the queue.
func (h *Handler) approve(id string) bool {
	msg, ok := h.store.Message(id)
	if !ok || msg.Status != models.StatusPending {
		return false
	}
	approved := models.StatusApproved
	msg, _ = h.store.UpdateMessage(id, models.MessagePatch{Status: &approved})
	h.broadcast(models.MessageEvent{Type: models.EventMessage, Message: msg})
	h.broadcast(models.MessageIDEvent{Type: models.EventMessageApproved, MessageID: id})
	return true
}

// reject removes the message outright. A second reject finds nothing.
func (h *Handler) reject(id string) bool {
	h.stopFlash(id)
	if !h.store.DeleteMessage(id) {
		return false
	}
	h.broadcast(models.MessageIDEvent{Type: models.EventMessageRejected, MessageID: id})
	return true
}

func (h *Handler) forcePublish(id string) bool {
	approved := models.StatusApproved
	forced := true
	msg, ok := h.store.UpdateMessage(id, models.MessagePatch{Status: &approved, ForcePublished: &forced})
	if !ok {
		return false
	}
	h.broadcast(models.MessageEvent{Type: models.EventMessage, Message: msg})
	h.broadcast(models.MessageIDEvent{Type: models.EventMessageApproved, MessageID: id})
	return true
}

func (h *Handler) deleteMessage(id string) bool {
	h.stopFlash(id)
	if !h.store.DeleteMessage(id) {
		return false
	}
	h.broadcast(models.MessageIDEvent{Type: models.EventMessageDeleted, MessageID: id})
	return true
}

// announce posts an always-visible event or warning.
func (h *Handler) announce(a author, content string, typ models.MessageType) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	msg := h.newMessage(a, content, typ, models.StatusApproved)
	h.store.AddMessage(msg)
	h.broadcast(models.MessageEvent{Type: models.EventMessage, Message: msg})
	return true
}

func (h *Handler) expireFlash(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.flashTimers, id)
	if h.store.DeleteMessage(id) {
		h.broadcast(models.MessageIDEvent{Type: models.EventMessageDeleted, MessageID: id})
		logger.Debug("Flash message %s expired", id)
	}
}

func (h *Handler) stopFlash(id string) {
	if t, ok := h.flashTimers[id]; ok {
		t.Stop()
		delete(h.flashTimers, id)
	}
}

func (h *Handler) stopAllFlashes() {
	for id := range h.flashTimers {
		h.stopFlash(id)
	}
}
