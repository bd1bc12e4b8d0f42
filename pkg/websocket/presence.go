package websocket

import (
	"sync"
	"time"

	"im-social/pkg/metrics"
)

// ConnDescriptor identifies the connection recorded for a user
type ConnDescriptor struct {
	ConnID      string    `json:"conn_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Presence is the process wide registry of online users. It keeps a
// single slot per user: a new connection overwrites the slot and any
// disconnect of that user clears it, even while another device of the
// same user is still in the broadcast group.
type Presence struct {
	mu      sync.RWMutex
	entries map[uint]ConnDescriptor
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[uint]ConnDescriptor)}
}

// Connect records desc for userID, replacing any earlier connection
func (p *Presence) Connect(userID uint, desc ConnDescriptor) {
	p.mu.Lock()
	p.entries[userID] = desc
	n := len(p.entries)
	p.mu.Unlock()

	metrics.OnlineUsers.Set(float64(n))
}

// Disconnect clears the slot of userID
func (p *Presence) Disconnect(userID uint) {
	p.mu.Lock()
	delete(p.entries, userID)
	n := len(p.entries)
	p.mu.Unlock()

	metrics.OnlineUsers.Set(float64(n))
}

// IsOnline reports whether userID holds the slot
func (p *Presence) IsOnline(userID uint) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[userID]
	return ok
}

// Snapshot copies the registry
func (p *Presence) Snapshot() map[uint]ConnDescriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[uint]ConnDescriptor, len(p.entries))
	for k, v := range p.entries {
		out[k] = v
	}
	return out
}
