// Package websocket fans incident lifecycle events out to connected
// dashboard and mobile clients.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"

	"mangrovewatch/models"
)

// IncidentEvent is the wire envelope for every broadcast.
type IncidentEvent struct {
	Type      string           `json:"type"`
	Incident  *models.Incident `json:"incident"`
	Timestamp time.Time        `json:"timestamp"`
}

// Hub manages WebSocket connections and broadcasting.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound event payloads
	broadcast chan []byte

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	mutex sync.RWMutex

	connectedClients int
	broadcastCount   int
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mutex.Lock()
			h.clients[client] = true
			h.connectedClients = len(h.clients)
			h.mutex.Unlock()
			log.Infof("WebSocket client connected. Total clients: %d", h.connectedClients)

		case client := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.connectedClients = len(h.clients)
			}
			h.mutex.Unlock()
			log.Infof("WebSocket client disconnected. Total clients: %d", h.connectedClients)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.connectedClients = len(h.clients)
			h.broadcastCount++
			h.mutex.Unlock()
		}
	}
}

// BroadcastIncident sends one incident event to all connected clients.
func (h *Hub) BroadcastIncident(eventType string, incident *models.Incident) {
	event := IncidentEvent{
		Type:      eventType,
		Incident:  incident,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Error("Failed to marshal broadcast event")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		log.Warn("Broadcast buffer full, dropping incident event")
	}
}

// GetStats returns current hub statistics.
func (h *Hub) GetStats() (clients, broadcasts int) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.connectedClients, h.broadcastCount
}
