package peer

import (
	"context"
	"sync"
)

// StaticRegistry is a Registry over a fixed peer list, for running without
// a directory service.
type StaticRegistry struct {
	mu    sync.RWMutex
	peers []Peer
	self  *Peer
}

// NewStaticRegistry creates a registry that always returns peers.
func NewStaticRegistry(peers []Peer) *StaticRegistry {
	return &StaticRegistry{peers: append([]Peer(nil), peers...)}
}

// Register records the caller so Refresh can leave it out. It never refuses.
func (r *StaticRegistry) Register(ctx context.Context, host string, port int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self = &Peer{Host: host, Port: port}
	return true, nil
}

// Refresh returns a fresh copy of the configured peers.
func (r *StaticRegistry) Refresh(ctx context.Context) ([]Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if r.self != nil && p == *r.self {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
