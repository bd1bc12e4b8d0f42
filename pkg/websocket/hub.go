package websocket

import (
	"sync"
)

// Hub holds the broadcast group of every connected user. All connections
// of a user are members of the same group.
type Hub struct {
	mu     sync.RWMutex
	groups map[uint]map[*Client]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{groups: make(map[uint]map[*Client]struct{})}
}

// Join adds c to its user's group
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[c.UserID]
	if !ok {
		group = make(map[*Client]struct{})
		h.groups[c.UserID] = group
	}
	group[c] = struct{}{}
}

// Leave removes c from its group and closes its send channel
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	if group, ok := h.groups[c.UserID]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.groups, c.UserID)
		}
	}
	h.mu.Unlock()

	c.closeSend()
}

// SendToUser writes payload to every connection of userID and returns
// how many accepted it.
func (h *Hub) SendToUser(userID uint, payload []byte) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.groups[userID]))
	for c := range h.groups[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.Send(payload) {
			sent++
		}
	}
	return sent
}

// ConnectedUsers lists users with at least one connection
func (h *Hub) ConnectedUsers() []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]uint, 0, len(h.groups))
	for id := range h.groups {
		ids = append(ids, id)
	}
	return ids
}

// Connections returns the number of connections of userID
func (h *Hub) Connections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[userID])
}

// Close detaches every client; their write pumps then close the sockets
func (h *Hub) Close() {
	h.mu.Lock()
	groups := h.groups
	h.groups = make(map[uint]map[*Client]struct{})
	h.mu.Unlock()

	for _, group := range groups {
		for c := range group {
			c.closeSend()
		}
	}
}
