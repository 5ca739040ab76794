package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/le-tueur/chatvc/internal/bot"
	"github.com/le-tueur/chatvc/internal/models"
	"github.com/le-tueur/chatvc/pkg/logger"

	"github.com/google/uuid"
)

const (
	botTimeout  = 15 * time.Second
	proposalTTL = 5 * time.Minute
)

// proposal holds bot actions until the admin who asked confirms them.
type proposal struct {
	handle  string
	actions []models.BotAction
	expires time.Time
}

// autoModerate asks the analyzer about a pending message and rejects it
// if it is still pending when the verdict arrives.
func (h *Handler) autoModerate(msg models.Message) {
	defer h.tasks.Done()

	ctx, cancel := context.WithTimeout(context.Background(), botTimeout)
	defer cancel()

	verdict, err := h.analyzer.Analyze(ctx, msg)
	if err != nil {
		logger.Warn("Auto-moderation of %s failed: %v", msg.ID, err)
		return
	}
	if !verdict.Reject {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.store.Message(msg.ID)
	if !ok || current.Status != models.StatusPending {
		return
	}
	h.reject(msg.ID)
	logger.Info("%s rejected message from %s: %s", bot.Handle, msg.Username, verdict.Reason)
	h.notifier.Notify("%s rejected a message from %s (%s)", bot.Handle, msg.Username, verdict.Reason)
}

func (h *Handler) handleBotCommand(s session, data []byte) {
	var p botCommandPayload
	if !h.decode(s, data, &p) {
		return
	}
	if h.responder == nil {
		s.fail("moderation bot is not available")
		return
	}

	state := bot.State{
		PendingMessages: h.store.PendingMessages(),
		Users:           h.store.Users(true),
		Config:          h.store.Config(),
	}
	h.tasks.Add(1)
	go h.respond(s, p.Text, state)
}

func (h *Handler) respond(s session, command string, state bot.State) {
	defer h.tasks.Done()

	ctx, cancel := context.WithTimeout(context.Background(), botTimeout)
	defer cancel()

	reply, err := h.responder.Respond(ctx, command, state)
	if err != nil {
		logger.Error("Bot command from %s failed: %v", s.handle, err)
		s.fail("moderation bot failed to answer")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev := models.BotReplyEvent{Type: models.EventBotReply, Text: reply.Text, Actions: reply.Actions}
	if ev.Actions == nil {
		ev.Actions = []models.BotAction{}
	}
	if len(reply.Actions) > 0 {
		h.pruneProposals()
		ev.ProposalID = uuid.NewString()
		h.proposals[ev.ProposalID] = proposal{
			handle:  s.handle,
			actions: reply.Actions,
			expires: h.now().Add(proposalTTL),
		}
	}
	s.client.Send(ev)
}

func (h *Handler) handleBotConfirm(s session, data []byte) {
	var p botConfirmPayload
	if !h.decode(s, data, &p) {
		return
	}

	h.pruneProposals()
	prop, ok := h.proposals[p.ProposalID]
	if !ok || prop.handle != s.handle {
		s.fail("unknown or expired proposal")
		return
	}
	delete(h.proposals, p.ProposalID)

	applied := 0
	for _, a := range prop.actions {
		if h.apply(a) {
			applied++
		}
	}
	s.client.Send(models.BotReplyEvent{
		Type:       models.EventBotReply,
		ProposalID: p.ProposalID,
		Text:       fmt.Sprintf("Executed %d of %d actions.", applied, len(prop.actions)),
		Actions:    prop.actions,
		Executed:   true,
	})
	h.notifier.Notify("%s confirmed %d bot actions", s.handle, applied)
}

func (h *Handler) pruneProposals() {
	now := h.now()
	for id, p := range h.proposals {
		if now.After(p.expires) {
			delete(h.proposals, id)
		}
	}
}

// apply runs one confirmed action through the same paths as the matching
// admin event.
func (h *Handler) apply(a models.BotAction) bool {
	switch a.Kind {
	case models.ActionMute:
		return h.mute(a.Handle, a.Minutes)
	case models.ActionUnmute:
		return h.unmute(a.Handle)
	case models.ActionApproveMessage:
		return h.approve(a.MessageID)
	case models.ActionRejectMessage:
		return h.reject(a.MessageID)
	case models.ActionDeleteMessage:
		return h.deleteMessage(a.MessageID)
	case models.ActionClearHistory:
		h.clearHistory()
		return true
	case models.ActionSetEnabled, models.ActionSetDirectMode:
		return h.setConfigFlag(a.Kind, a.Enabled)
	case models.ActionSendEvent:
		return h.announce(botAuthor, a.Text, models.TypeEvent)
	case models.ActionSendWarning:
		return h.announce(botAuthor, a.Text, models.TypeWarning)
	case models.ActionAddBlockedWord:
		return h.addBlockedWord(a.Text)
	case models.ActionRemoveBlockedWord:
		return h.removeBlockedWord(a.Text)
	default:
		logger.Warn("Ignoring unknown bot action %q", a.Kind)
		return false
	}
}
