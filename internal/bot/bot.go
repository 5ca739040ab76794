// Package bot is the moderation bot the protocol handler consults. It never
// mutates chat state itself: verdicts and replies are plain values that the
// caller decides to apply.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/le-tueur/chatvc/internal/models"
)

const (
	Handle             = "ModBot"
	defaultMuteMinutes = 5
)

type Verdict struct {
	Reject bool   `json:"reject"`
	Reason string `json:"reason,omitempty"`
}

// Analyzer judges a pending message.
type Analyzer interface {
	Analyze(ctx context.Context, msg models.Message) (Verdict, error)
}

// Reply is the answer to an admin command: free text for the admin plus
// typed intents that only run once the admin confirms them.
type Reply struct {
	Text    string
	Actions []models.BotAction
}

// State is the read-only view a Responder gets.
type State struct {
	PendingMessages []models.Message
	Users           []models.User
	Config          models.ChatConfig
}

type Responder interface {
	Respond(ctx context.Context, command string, state State) (Reply, error)
}

// RuleBot answers with regex heuristics and a small command grammar.
type RuleBot struct {
	allowedDomains []string
}

func NewRuleBot(allowedDomains []string) *RuleBot {
	return &RuleBot{allowedDomains: allowedDomains}
}

func (b *RuleBot) Analyze(ctx context.Context, msg models.Message) (Verdict, error) {
	if v := Check(msg.Content, b.allowedDomains); v != nil {
		return Verdict{Reject: true, Reason: fmt.Sprintf("%s detected", v.Type)}, nil
	}
	return Verdict{}, nil
}

func (b *RuleBot) Respond(ctx context.Context, command string, state State) (Reply, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Reply{Text: "Empty command."}, nil
	}
	verb := strings.ToLower(fields[0])
	args := fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(command), fields[0]))

	switch verb {
	case "status":
		return Reply{Text: b.status(state)}, nil

	case "mute":
		if len(args) == 0 {
			return Reply{Text: "Usage: mute <handle> [minutes]"}, nil
		}
		minutes := defaultMuteMinutes
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return Reply{Text: "Minutes must be a positive number."}, nil
			}
			minutes = n
		}
		return Reply{
			Text:    fmt.Sprintf("Mute %s for %d minutes?", args[0], minutes),
			Actions: []models.BotAction{{Kind: models.ActionMute, Handle: args[0], Minutes: minutes}},
		}, nil

	case "unmute":
		if len(args) == 0 {
			return Reply{Text: "Usage: unmute <handle>"}, nil
		}
		return Reply{
			Text:    fmt.Sprintf("Unmute %s?", args[0]),
			Actions: []models.BotAction{{Kind: models.ActionUnmute, Handle: args[0]}},
		}, nil

	case "clear":
		return Reply{
			Text:    "Clear the whole history?",
			Actions: []models.BotAction{{Kind: models.ActionClearHistory}},
		}, nil

	case "open", "close":
		enabled := verb == "open"
		return Reply{
			Text:    fmt.Sprintf("Set chat enabled=%t?", enabled),
			Actions: []models.BotAction{{Kind: models.ActionSetEnabled, Enabled: &enabled}},
		}, nil

	case "direct":
		if len(args) == 0 || (args[0] != "on" && args[0] != "off") {
			return Reply{Text: "Usage: direct on|off"}, nil
		}
		enabled := args[0] == "on"
		return Reply{
			Text:    fmt.Sprintf("Set direct mode=%t?", enabled),
			Actions: []models.BotAction{{Kind: models.ActionSetDirectMode, Enabled: &enabled}},
		}, nil

	case "announce", "warn":
		if rest == "" {
			return Reply{Text: fmt.Sprintf("Usage: %s <text>", verb)}, nil
		}
		kind := models.ActionSendEvent
		if verb == "warn" {
			kind = models.ActionSendWarning
		}
		return Reply{
			Text:    fmt.Sprintf("Broadcast %q?", rest),
			Actions: []models.BotAction{{Kind: kind, Text: rest}},
		}, nil

	case "block", "unblock":
		if rest == "" {
			return Reply{Text: fmt.Sprintf("Usage: %s <word>", verb)}, nil
		}
		kind := models.ActionAddBlockedWord
		if verb == "unblock" {
			kind = models.ActionRemoveBlockedWord
		}
		return Reply{
			Text:    fmt.Sprintf("%s %q?", verb, rest),
			Actions: []models.BotAction{{Kind: kind, Text: rest}},
		}, nil

	case "approve":
		if len(args) == 0 || strings.ToLower(args[0]) != "all" {
			return Reply{Text: "Usage: approve all"}, nil
		}
		actions := make([]models.BotAction, 0, len(state.PendingMessages))
		for _, m := range state.PendingMessages {
			actions = append(actions, models.BotAction{Kind: models.ActionApproveMessage, MessageID: m.ID})
		}
		return Reply{Text: fmt.Sprintf("Approve %d pending messages?", len(actions)), Actions: actions}, nil

	case "sweep":
		var actions []models.BotAction
		for _, m := range state.PendingMessages {
			if Check(m.Content, b.allowedDomains) != nil {
				actions = append(actions, models.BotAction{Kind: models.ActionRejectMessage, MessageID: m.ID})
			}
		}
		return Reply{Text: fmt.Sprintf("Reject %d suspicious pending messages?", len(actions)), Actions: actions}, nil
	}

	return Reply{Text: fmt.Sprintf("Unknown command %q. Try: status, mute, unmute, clear, open, close, direct, announce, warn, block, unblock, approve all, sweep.", verb)}, nil
}

func (b *RuleBot) status(state State) string {
	chat := "open"
	if !state.Config.Enabled {
		chat = "closed"
	}
	return fmt.Sprintf("Chat is %s, %d users online, %d messages pending, cooldown %ds, direct mode %t.",
		chat, len(state.Users), len(state.PendingMessages), state.Config.Cooldown, state.Config.DirectChatEnabled)
}
