// Package ws pushes dispatch outcomes to connected UI clients, grouped by
// system.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"automation-service/internal/logging"
)

const maxConnsPerSystem = 10

// Hub manages websocket connections per system.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]map[*websocket.Conn]bool // systemID -> set of connections
	logger *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]map[*websocket.Conn]bool),
		logger: logger,
	}
}

// Add registers a connection for a system, capped per system. It reports
// whether the connection was accepted; a declined connection must be closed
// by the caller, not left half-subscribed.
func (h *Hub) Add(systemID string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[systemID]; !ok {
		h.conns[systemID] = make(map[*websocket.Conn]bool)
	}
	if len(h.conns[systemID]) >= maxConnsPerSystem {
		h.logger.Warnf("Max websocket connections reached for system %s", systemID)
		return false
	}
	h.conns[systemID][conn] = true
	h.logger.Infof("Added websocket connection for system %s (total: %d)", systemID, len(h.conns[systemID]))
	return true
}

// Remove drops a connection.
func (h *Hub) Remove(systemID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.conns[systemID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, systemID)
		}
	}
}

// Publish sends a JSON event to every connection of a system. Write failures
// drop the connection.
func (h *Hub) Publish(systemID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Errorf("Failed to marshal websocket event: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.conns[systemID]
	if !ok {
		return
	}
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Errorf("Failed to push event to system %s: %v", systemID, err)
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(h.conns, systemID)
	}
}
