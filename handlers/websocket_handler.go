package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/courtside/schedule-engine/events"
	"github.com/courtside/schedule-engine/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Schedule boards are same-network tooling; tighten this before
		// exposing the API publicly.
		return true
	},
}

type WebSocketHandler struct {
	hub            *events.Hub
	versionService services.VersionService
}

func NewWebSocketHandler(hub *events.Hub, vs services.VersionService) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, versionService: vs}
}

// ServeWs handles GET /ws/versions/{versionID}. The subscriber joins the
// room for that schedule version and receives every event published for it
// until the connection drops.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	versionID, err := getIDFromURL(r, "versionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if _, err := h.versionService.GetByID(r.Context(), versionID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.ErrorContext(r.Context(), "websocket upgrade failed",
			slog.Int("version_id", versionID),
			slog.Any("error", err))
		return
	}

	client := &events.Client{
		Hub:       h.hub,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		VersionID: versionID,
	}
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
