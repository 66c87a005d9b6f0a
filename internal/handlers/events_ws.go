package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pagerbell/pagerbell/internal/database"
)

// IncidentEvent is one state-change notification on the event stream.
// The capability token is deliberately not included.
type IncidentEvent struct {
	Type      string    `json:"type"`
	ID        uint      `json:"id"`
	State     string    `json:"state"`
	Assignee  string    `json:"assignee,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventsHub fans incident state changes out to connected dashboard clients
// over websockets.
type EventsHub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

// NewEventsHub creates a new events hub
func NewEventsHub() *EventsHub {
	return &EventsHub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORS policy is enforced by middleware; the dashboard may be
			// served from a different origin than the API
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetupRoutes configures the websocket route
func (h *EventsHub) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/events", h.handleWS)
}

// handleWS upgrades the connection and keeps it registered until it closes
func (h *EventsHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("EventsHub: websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("EventsHub: client connected (%d total)", count)

	// Reader loop: clients send nothing meaningful, but reading is how we
	// notice the connection closing.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends an incident state change to every connected client.
// Implements the Broadcaster interface used by the incident handler and the
// engine's OnUpdate hook.
func (h *EventsHub) Broadcast(incident database.Incident) {
	event := IncidentEvent{
		Type:      "incident_updated",
		ID:        incident.ID,
		State:     string(incident.State),
		Assignee:  incident.Assignee,
		Comment:   incident.Comment,
		Timestamp: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("EventsHub: dropping client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// drop unregisters and closes a client connection
func (h *EventsHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if h.clients[conn] {
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	conn.Close()
}

// Close disconnects all clients
func (h *EventsHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
