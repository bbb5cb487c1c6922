package handler

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roomcast-live/roomcast/internal/config"
	"github.com/roomcast-live/roomcast/internal/hub"
	"github.com/roomcast-live/roomcast/internal/relay"
)

// WebSocketHandler upgrades signaling connections and hands them to the hub
type WebSocketHandler struct {
	hub      *hub.Hub
	relay    *relay.Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cfg config.WebSocketConfig, h *hub.Hub, r *relay.Service) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   h,
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.BufferSize,
			WriteBufferSize: cfg.BufferSize,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers from any origin may sign in; rooms carry no secrets
				return true
			},
		},
	}
}

// HandleConnection handles incoming signaling connections
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	clientID := uuid.New().String()
	if h.hub.RegisterClient(conn, clientID) == nil {
		// hub is shutting down
		return
	}
	h.relay.HandleConnect(clientID)

	log.Printf("Signaling client connected: %s (remote: %s)", clientID, r.RemoteAddr)
}
