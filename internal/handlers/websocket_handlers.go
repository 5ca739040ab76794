package handlers

import (
	"net/http"

	"github.com/le-tueur/chatvc/internal/auth"
	ws "github.com/le-tueur/chatvc/internal/websocket"
	"github.com/le-tueur/chatvc/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService  *auth.Service
	hub          *ws.Hub
	requireToken bool
	upgrader     websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, hub *ws.Hub, requireToken bool) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService:  authService,
		hub:          hub,
		requireToken: requireToken,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket upgrades the request. A login token, when present, binds
// the socket to its handle so the auth event cannot claim another one.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var bound string
	tokenStr := r.URL.Query().Get("token")
	switch {
	case tokenStr != "":
		claims, err := h.authService.ValidateToken(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		bound = claims.Handle
	case h.requireToken:
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, bound)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
