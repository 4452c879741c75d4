package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"train-console/internal/booking"
	"train-console/internal/observability"
)

// BroadcastMessage is one encoded dialog event
type BroadcastMessage struct {
	DialogID string
	Type     string
	Message  []byte
}

// Hub fans dialog events out to the clients watching each dialog
type Hub struct {
	// Registered clients by dialog
	clients map[string]map[*Client]bool

	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan *BroadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			if h.clients[client.dialogID] == nil {
				h.clients[client.dialogID] = make(map[*Client]bool)
			}
			h.clients[client.dialogID][client] = true
			observability.WebSocketConnectionsActive.Inc()
			slog.Info("client registered",
				slog.String("user_id", client.userID),
				slog.String("dialog_id", client.dialogID))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) deliver(message *BroadcastMessage) {
	clients, ok := h.clients[message.DialogID]
	if !ok {
		return
	}

	for client := range clients {
		select {
		case client.send <- message.Message:
			observability.WebSocketMessagesSent.WithLabelValues(message.Type).Inc()
		default:
			// Slow reader, drop it rather than stall every dialog
			slog.Warn("dropping slow websocket client",
				slog.String("user_id", client.userID),
				slog.String("dialog_id", client.dialogID))
			h.unregisterClient(client)
		}
	}

	// Watchers of a closed dialog have nothing left to receive
	if message.Type == booking.EventClosed {
		for client := range clients {
			h.unregisterClient(client)
		}
	}
}

// unregisterClient removes a client and closes its send channel
func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.clients[client.dialogID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	close(client.send)
	observability.WebSocketConnectionsActive.Dec()
	slog.Info("client unregistered",
		slog.String("user_id", client.userID),
		slog.String("dialog_id", client.dialogID))

	if len(clients) == 0 {
		delete(h.clients, client.dialogID)
	}
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for _, clients := range h.clients {
		for client := range clients {
			h.unregisterClient(client)
		}
	}

	slog.Info("hub shutdown complete")
}

// Publish encodes a dialog event for its watchers. Update events never
// block and are dropped when the hub is saturated. Close events wait for
// room so the hub always releases a closed dialog's watchers.
func (h *Hub) Publish(dialogID string, event booking.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal dialog event",
			slog.String("error", err.Error()),
			slog.String("dialog_id", dialogID))
		return
	}
	h.Broadcast(dialogID, event.Type, data)
}

// Broadcast queues raw bytes for every watcher of dialogID
func (h *Hub) Broadcast(dialogID, eventType string, message []byte) {
	msg := &BroadcastMessage{DialogID: dialogID, Type: eventType, Message: message}
	if eventType == booking.EventClosed {
		select {
		case h.broadcast <- msg:
		case <-h.done:
		}
		return
	}

	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		slog.Warn("hub backlog full, dropping dialog event",
			slog.String("dialog_id", dialogID),
			slog.String("type", eventType))
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

var _ booking.EventSink = (*Hub)(nil)
