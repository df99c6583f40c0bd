package handler

import (
	"log"
	"net/http"

	"evernote-syncd/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

// WebSocketHandler upgrades authenticated connections into sync progress
// observers. Authentication happens in the surrounding middleware; by the
// time this runs the token has already been validated.
type WebSocketHandler struct {
	manager  *websocket.Manager
	logger   *log.Logger
	upgrader ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, logger *log.Logger) *WebSocketHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WebSocketHandler{
		manager: manager,
		logger:  logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[ws] failed to upgrade connection: %v", err)
		return
	}

	clientID := uuid.New().String()
	if !h.manager.Attach(clientID, conn) {
		h.logger.Printf("[ws] connection %s rejected", clientID)
	}
}
