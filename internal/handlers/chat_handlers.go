package handlers

import (
	"net/http"

	"github.com/le-tueur/chatvc/internal/models"
	"github.com/le-tueur/chatvc/internal/services"
	ws "github.com/le-tueur/chatvc/internal/websocket"
)

// ChatHandlers serves read-only views of the chat over plain HTTP.
type ChatHandlers struct {
	store   *services.ModerationStore
	hub     *ws.Hub
	backend string
}

func NewChatHandlers(store *services.ModerationStore, hub *ws.Hub, backend string) *ChatHandlers {
	return &ChatHandlers{store: store, hub: hub, backend: backend}
}

// Messages returns the public feed.
func (h *ChatHandlers) Messages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Messages []models.Message `json:"messages"`
		Config   models.ChatConfig `json:"config"`
	}{
		Messages: h.store.ApprovedMessages(),
		Config:   h.store.Config(),
	})
}

func (h *ChatHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": h.hub.Count(),
		"storage":     h.backend,
	})
}
