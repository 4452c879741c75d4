package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"train-console/internal/booking"
	"train-console/internal/middleware"
	ws "train-console/internal/websocket"
)

// WebSocketHandler streams booking dialog snapshots
type WebSocketHandler struct {
	hub      *ws.Hub
	registry *booking.Registry
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. Browser upgrades
// are accepted from allowedOrigins only.
func NewWebSocketHandler(hub *ws.Hub, registry *booking.Registry, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
		},
	}
}

// HandleConnection upgrades and subscribes the connection to one dialog.
// The current snapshot is the first frame.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	flow, ok := lookupDialog(w, r, h.registry)
	if !ok {
		return
	}

	initial, err := json.Marshal(booking.Event{Type: booking.EventUpdated, Snapshot: flow.Snapshot()})
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn, flow.UserID(), flow.ID())
	client.Queue(initial)

	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
