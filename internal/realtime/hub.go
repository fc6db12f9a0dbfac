// Package realtime pushes server events to connected users over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	EventMessage = "message"
	EventBooking = "booking"
)

// Event is the envelope written to clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks live connections per user.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	userClients map[uuid.UUID][]*Client
	mutex       sync.Mutex
	done        chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		userClients: make(map[uuid.UUID][]*Client),
		done:        make(chan struct{}),
	}
}

// Run serves registrations until ctx is cancelled. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		}
	}
}

// Join registers client and reports false once the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters client. It returns immediately after the hub has stopped.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) add(client *Client) {
	h.mutex.Lock()
	h.userClients[client.UserID] = append(h.userClients[client.UserID], client)
	count := len(h.userClients[client.UserID])
	h.mutex.Unlock()

	slog.Debug("websocket connected", "user_id", client.UserID.String(), "connections", count)
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	conns := h.userClients[client.UserID]
	for i, c := range conns {
		if c == client {
			h.userClients[client.UserID] = append(conns[:i], conns[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.userClients[client.UserID]) == 0 {
		delete(h.userClients, client.UserID)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for userID, conns := range h.userClients {
		for _, c := range conns {
			close(c.Send)
		}
		delete(h.userClients, userID)
	}
}

// Publish sends an event to every connection of userID. Offline users are
// skipped; a client with a full buffer drops the event.
func (h *Hub) Publish(userID uuid.UUID, eventType string, data interface{}) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		slog.Error("failed to encode realtime event", "error", err, "action", "realtime_publish")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, client := range h.userClients[userID] {
		select {
		case client.Send <- payload:
		default:
			slog.Warn("websocket buffer full, dropping event", "user_id", userID.String(), "type", eventType)
		}
	}
}

func (h *Hub) IsUserOnline(userID uuid.UUID) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return len(h.userClients[userID]) > 0
}
