package gateway

import (
	"sort"
	"sync"
	"time"
)

// ConnInfo describes one websocket client and the link serving it
type ConnInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// ConnRegistry tracks connected clients
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[string]ConnInfo
}

// NewConnRegistry creates a new connection registry
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{
		conns: make(map[string]ConnInfo),
	}
}

// Add adds a connection to the registry
func (r *ConnRegistry) Add(info ConnInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[info.ID] = info
}

// Remove removes a connection from the registry
func (r *ConnRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, id)
}

// Get retrieves a connection by ID
func (r *ConnRegistry) Get(id string) (ConnInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.conns[id]
	return info, exists
}

// List returns all connections, oldest first
func (r *ConnRegistry) List() []ConnInfo {
	r.mu.RLock()
	infos := make([]ConnInfo, 0, len(r.conns))
	for _, info := range r.conns {
		infos = append(infos, info)
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Count returns the number of connected clients
func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
