// Package broadcast fans change notifications out to listeners, both
// in-process subscribers and WebSocket clients.
package broadcast

import (
	"context"
	"sync"
)

// Hub tracks connected listeners and delivers every broadcast message to
// each of them. Slow listeners are dropped rather than allowed to stall
// the rest.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu      sync.Mutex
	subs    map[chan []byte]bool
	clients map[*Client]bool
}

// NewHub returns a hub ready to Run.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		subs:       make(map[chan []byte]bool),
		clients:    make(map[*Client]bool),
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Lock()
			for ch := range h.subs {
				select {
				case ch <- msg:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Lock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Broadcast queues a message for every listener. It never blocks; when the
// hub's buffer is full the message is dropped.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// Subscribe returns an in-process channel receiving every broadcast.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 16)
	h.mu.Lock()
	h.subs[ch] = true
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes an in-process subscription.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if h.subs[ch] {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}
