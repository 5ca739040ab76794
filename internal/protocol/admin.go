package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/le-tueur/chatvc/internal/models"
	"github.com/le-tueur/chatvc/pkg/logger"
)

const (
	exportTimeLayout = "2006-01-02 15:04:05"
	exportFileLayout = "20060102-150405"
)

func (h *Handler) handleUpdateConfig(s session, data []byte) {
	var p configPayload
	if !h.decode(s, data, &p) {
		return
	}

	f := p.Config
	patch := models.ConfigPatch{
		Enabled:           f.Enabled,
		Cooldown:          f.Cooldown,
		SimulationMode:    f.SimulationMode,
		DirectChatEnabled: f.DirectChatEnabled,
	}
	// The store only ever holds an absolute deadline.
	if f.TimerMinutes != nil {
		if *f.TimerMinutes == 0 {
			patch.ClearTimer = true
		} else {
			end := models.Millis(h.now()) + int64(*f.TimerMinutes)*int64(time.Minute/time.Millisecond)
			patch.TimerEndTime = &end
		}
	}

	cfg := h.store.UpdateConfig(patch)
	h.broadcastConfig(cfg)
	logger.Info("Config updated by %s", s.handle)
}

func (h *Handler) handleMuteUser(s session, data []byte) {
	var p mutePayload
	if !h.decode(s, data, &p) {
		return
	}
	h.mute(p.Handle, p.DurationMinutes)
	h.notifier.Notify("%s muted %s for %d minutes", s.handle, p.Handle, p.DurationMinutes)
}

func (h *Handler) handleUnmuteUser(s session, data []byte) {
	var p handlePayload
	if !h.decode(s, data, &p) {
		return
	}
	if h.unmute(p.Handle) {
		h.notifier.Notify("%s unmuted %s", s.handle, p.Handle)
	}
}

func (h *Handler) handleHideUser(s session, data []byte) {
	var p handlePayload
	if !h.decode(s, data, &p) {
		return
	}
	h.store.SetHidden(p.Handle, true)
	h.broadcastUsers()
}

func (h *Handler) handleUnhideUser(s session, data []byte) {
	var p handlePayload
	if !h.decode(s, data, &p) {
		return
	}
	h.store.SetHidden(p.Handle, false)
	h.broadcastUsers()
}

func (h *Handler) handleAddBlockedWord(s session, data []byte) {
	var p wordPayload
	if !h.decode(s, data, &p) {
		return
	}
	h.addBlockedWord(p.Word)
}

func (h *Handler) handleRemoveBlockedWord(s session, data []byte) {
	var p wordPayload
	if !h.decode(s, data, &p) {
		return
	}
	h.removeBlockedWord(p.Word)
}

func (h *Handler) handleClearHistory(s session, data []byte) {
	h.clearHistory()
	h.notifier.Notify("%s cleared the chat history", s.handle)
}

func (h *Handler) handleResetTimers(s session, data []byte) {
	h.broadcastConfig(h.store.ResetTimers())
}

func (h *Handler) handleTriggerAnimation(s session, data []byte) {
	var p animationPayload
	if !h.decode(s, data, &p) {
		return
	}
	h.broadcast(models.AnimationEvent{Type: models.EventAnimationTrigger, Kind: p.Kind})
}

func (h *Handler) handleExportHistory(s session, data []byte) {
	var p exportPayload
	if !h.decode(s, data, &p) {
		return
	}

	ev, err := h.export(p.Format)
	if err != nil {
		logger.Error("Export failed: %v", err)
		s.fail("export failed")
		return
	}
	s.client.Send(ev)
}

func (h *Handler) mute(handle string, minutes int) bool {
	if handle == "" || minutes <= 0 {
		return false
	}
	until := models.Millis(h.now()) + int64(minutes)*int64(time.Minute/time.Millisecond)
	h.store.MuteUser(handle, until)
	h.broadcastMuted()
	h.broadcastUsers()
	return true
}

func (h *Handler) unmute(handle string) bool {
	if !h.store.UnmuteUser(handle) {
		return false
	}
	h.broadcastMuted()
	h.broadcastUsers()
	return true
}

func (h *Handler) addBlockedWord(word string) bool {
	if !h.store.AddBlockedWord(word) {
		return false
	}
	h.broadcastBlocked()
	return true
}

func (h *Handler) removeBlockedWord(word string) bool {
	if !h.store.RemoveBlockedWord(word) {
		return false
	}
	h.broadcastBlocked()
	return true
}

func (h *Handler) clearHistory() {
	h.stopAllFlashes()
	h.store.ClearMessages()
	h.broadcast(models.SignalEvent{Type: models.EventMessagesCleared})
}

func (h *Handler) setConfigFlag(kind models.ActionKind, on *bool) bool {
	if on == nil {
		return false
	}
	var patch models.ConfigPatch
	switch kind {
	case models.ActionSetEnabled:
		patch.Enabled = on
	case models.ActionSetDirectMode:
		patch.DirectChatEnabled = on
	default:
		return false
	}
	h.broadcastConfig(h.store.UpdateConfig(patch))
	return true
}

type exportDump struct {
	ExportedAt int64 `json:"exportedAt"`
	models.Snapshot
	Users []models.User `json:"users"`
}

func (h *Handler) export(format string) (models.ExportEvent, error) {
	now := h.now()
	ev := models.ExportEvent{Type: models.EventExportData, Format: format}

	switch format {
	case "json":
		data, err := json.MarshalIndent(exportDump{
			ExportedAt: models.Millis(now),
			Snapshot:   h.store.Snapshot(),
			Users:      h.store.Users(true),
		}, "", "  ")
		if err != nil {
			return ev, fmt.Errorf("failed to encode export: %w", err)
		}
		ev.Data = string(data)
		ev.Filename = "chat-export-" + now.UTC().Format(exportFileLayout) + ".json"
	case "text":
		ev.Data = transcript(h.store.Messages(), now)
		ev.Filename = "chat-export-" + now.UTC().Format(exportFileLayout) + ".txt"
	default:
		return ev, fmt.Errorf("unknown export format %q", format)
	}
	return ev, nil
}

// transcript renders the public feed: approved messages, events and
// flashes. Warnings are not part of it.
func transcript(messages []models.Message, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chat transcript exported %s UTC\n\n", now.UTC().Format(exportTimeLayout))

	for _, m := range messages {
		if !m.Visible() || m.Type == models.TypeWarning {
			continue
		}
		ts := time.UnixMilli(m.Timestamp).UTC().Format(exportTimeLayout)
		switch m.Type {
		case models.TypeEvent:
			fmt.Fprintf(&b, "[%s] [EVENT] %s: %s\n", ts, m.Username, m.Content)
		case models.TypeFlash:
			fmt.Fprintf(&b, "[%s] [FLASH] %s: %s\n", ts, m.Username, m.Content)
		default:
			fmt.Fprintf(&b, "[%s] %s: %s\n", ts, m.Username, m.Content)
		}
	}
	return b.String()
}
