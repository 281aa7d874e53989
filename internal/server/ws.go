package server

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is the envelope pushed over WebSocket streams. The frontend switches
// on `event` and treats `data` as opaque JSON.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// wsClient pairs a connection with a write mutex; gorilla forbids concurrent
// writes on one Conn.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub fans events out to the connected clients of one stream. brewd is a
// local single-operator daemon, so an in-memory set is all this needs.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

func (h *Hub) add(conn *websocket.Conn) *wsClient {
	c := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Broadcast marshals once and writes the bytes to every client. Write
// failures are left for each connection's read loop to notice; the tick path
// must never stall on a slow browser.
func (h *Hub) Broadcast(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.mu.Lock()
		_ = c.conn.WriteMessage(websocket.TextMessage, b)
		c.mu.Unlock()
	}
}
