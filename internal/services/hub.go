package services

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/models"
)

// Hub fans notification events out to live websocket connections. Each
// connection joins exactly one group (its user's); broadcasts to a group
// reach every open connection in it. Delivery is best effort: a slow or
// gone client is dropped, never waited on.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*hubClient]bool
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[*hubClient]bool)}
}

// Join registers conn in group and services it until the peer goes away.
func (h *Hub) Join(group string, conn *websocket.Conn) {
	client := &hubClient{
		conn: conn,
		send: make(chan []byte, 16),
	}

	h.mu.Lock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[*hubClient]bool)
	}
	h.groups[group][client] = true
	h.mu.Unlock()

	go client.writePump()
	go h.readPump(group, client)
}

func (h *Hub) readPump(group string, client *hubClient) {
	defer h.leave(group, client)
	for {
		// Clients only listen; reads exist to detect the close.
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *hubClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (h *Hub) leave(group string, client *hubClient) {
	h.mu.Lock()
	if clients, ok := h.groups[group]; ok {
		if clients[client] {
			delete(clients, client)
			close(client.send)
		}
		if len(clients) == 0 {
			delete(h.groups, group)
		}
	}
	h.mu.Unlock()
}

// Broadcast delivers event to every connection in its target group.
func (h *Hub) Broadcast(event models.NotificationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to encode notification event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.groups[event.TargetGroup] {
		select {
		case client.send <- payload:
		default:
			// Full buffer means a stalled client; skip it.
		}
	}
}
