package notify

import (
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// Hub tracks connected in-app clients per principal and pushes notification
// payloads to all of a principal's live connections. Payloads for offline
// principals are dropped; the confirmation row remains the durable record.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*websocket.Conn]bool
	logger  *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[uint]map[*websocket.Conn]bool),
		logger:  logger,
	}
}

func (h *Hub) Register(userID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*websocket.Conn]bool)
	}
	h.clients[userID][conn] = true
}

func (h *Hub) Unregister(userID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[userID], conn)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// Push writes the payload to every live connection for the principal.
func (h *Hub) Push(userID uint, payload interface{}) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[userID]))
	for conn := range h.clients[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(payload); err != nil {
			h.logger.Printf("Error pushing to user %d connection: %v", userID, err)
		}
	}
}
