// Package telemetry fans robot telemetry out to websocket dashboard
// clients. One hub goroutine owns the client set; clients that fall
// behind are dropped rather than allowed to stall the stream.
package telemetry

import (
	"encoding/json"
	"sync"

	"github.com/hri-lab/go-quadlink/internal/log"
)

// Hub maintains the set of active stream clients and broadcasts events
// to them.
type Hub struct {
	name string

	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a hub. Run must be started in a goroutine before
// clients attach.
func NewHub(name string) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run is the hub's main loop. It owns the client map; register,
// unregister and broadcast all funnel through here.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Info("stream client connected", "hub", h.name, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Info("stream client disconnected", "hub", h.name, "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Full buffer means the client is too slow to keep
					// the stream real-time. Cut it loose.
					close(client.send)
					delete(h.clients, client)
					log.Warn("dropped slow stream client", "hub", h.name)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish encodes the event and broadcasts it. When the broadcast queue
// is full the event is dropped; pose events are periodic and the next
// one supersedes this one anyway.
func (h *Hub) Publish(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warn("broadcast queue full, dropping event", "hub", h.name, "type", ev.Type)
	}
	return nil
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
