// Package peertest provides in-memory peer.Registry and peer.Dialer
// implementations for tests.
package peertest

import (
	"context"
	"fmt"
	"sync"

	"paritystore/internal/peer"
	"paritystore/internal/queue"
	"paritystore/internal/storage"
)

// Registry is a scripted peer.Registry.
type Registry struct {
	mu         sync.Mutex
	peers      []peer.Peer
	accept     bool
	refreshErr error
	refreshes  int
	registered []peer.Peer
}

// NewRegistry returns a registry listing peers and accepting registrations.
func NewRegistry(peers ...peer.Peer) *Registry {
	return &Registry{peers: peers, accept: true}
}

// SetPeers replaces the listed peers.
func (r *Registry) SetPeers(peers ...peer.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = peers
}

// SetAccept controls the answer to Register.
func (r *Registry) SetAccept(accept bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accept = accept
}

// SetRefreshError makes Refresh fail with err.
func (r *Registry) SetRefreshError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshErr = err
}

// Refreshes returns how many times Refresh was called.
func (r *Registry) Refreshes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes
}

// Registered returns every successful registration.
func (r *Registry) Registered() []peer.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]peer.Peer(nil), r.registered...)
}

func (r *Registry) Refresh(ctx context.Context) ([]peer.Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
	if r.refreshErr != nil {
		return nil, r.refreshErr
	}
	return append([]peer.Peer(nil), r.peers...), nil
}

func (r *Registry) Register(ctx context.Context, host string, port int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.accept {
		return false, nil
	}
	r.registered = append(r.registered, peer.Peer{Host: host, Port: port})
	return true, nil
}

// FetchFunc answers one request on behalf of a fake peer.
type FetchFunc func(req queue.Request) ([]storage.ParityByte, error)

// Dialer is a peer.Dialer whose peers are FetchFuncs.
type Dialer struct {
	mu       sync.Mutex
	handlers map[peer.Peer]FetchFunc
	dialErrs map[peer.Peer]error
	dials    map[peer.Peer]int
	requests map[peer.Peer][]queue.Request
}

// NewDialer returns a dialer with no reachable peers.
func NewDialer() *Dialer {
	return &Dialer{
		handlers: make(map[peer.Peer]FetchFunc),
		dialErrs: make(map[peer.Peer]error),
		dials:    make(map[peer.Peer]int),
		requests: make(map[peer.Peer][]queue.Request),
	}
}

// Handle makes p reachable and answer with fn.
func (d *Dialer) Handle(p peer.Peer, fn FetchFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[p] = fn
	delete(d.dialErrs, p)
}

// FailDial makes dialing p fail with a connectivity error.
func (d *Dialer) FailDial(p peer.Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErrs[p] = fmt.Errorf("%w: %s: connection refused", peer.ErrConnectivity, p)
}

// Dials returns the total number of Dial calls.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, n := range d.dials {
		total += n
	}
	return total
}

// Requests returns the requests p has received.
func (d *Dialer) Requests(p peer.Peer) []queue.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]queue.Request(nil), d.requests[p]...)
}

func (d *Dialer) Dial(ctx context.Context, p peer.Peer) (peer.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[p]++
	if err, ok := d.dialErrs[p]; ok {
		return nil, err
	}
	fn, ok := d.handlers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such peer", peer.ErrConnectivity, p)
	}
	return &session{dialer: d, peer: p, fn: fn}, nil
}

type session struct {
	dialer *Dialer
	peer   peer.Peer
	fn     FetchFunc
}

func (s *session) Fetch(req queue.Request) ([]storage.ParityByte, error) {
	s.dialer.mu.Lock()
	s.dialer.requests[s.peer] = append(s.dialer.requests[s.peer], req)
	s.dialer.mu.Unlock()
	return s.fn(req)
}

func (s *session) Close() error {
	return nil
}

// Value answers every request with bytes equal to v.
func Value(v byte) FetchFunc {
	return func(req queue.Request) ([]storage.ParityByte, error) {
		out := make([]storage.ParityByte, req.Length)
		for k := range out {
			out[k] = storage.NewParityByte(v)
		}
		return out, nil
	}
}

// Data serves requests from data.
func Data(data []byte) FetchFunc {
	return func(req queue.Request) ([]storage.ParityByte, error) {
		if err := req.Validate(len(data)); err != nil {
			return nil, fmt.Errorf("%w: %w", peer.ErrProtocol, err)
		}
		out := make([]storage.ParityByte, req.Length)
		for k := range out {
			out[k] = storage.NewParityByte(data[req.Start+k])
		}
		return out, nil
	}
}

// Unavailable answers every request with the unavailable marker.
func Unavailable() FetchFunc {
	return func(req queue.Request) ([]storage.ParityByte, error) {
		return nil, fmt.Errorf("%w: %s", peer.ErrUnavailable, req)
	}
}

// Fail answers every request with err.
func Fail(err error) FetchFunc {
	return func(req queue.Request) ([]storage.ParityByte, error) {
		return nil, err
	}
}

// Peers returns n distinct loopback peers starting at port base.
func Peers(n, base int) []peer.Peer {
	out := make([]peer.Peer, n)
	for i := range out {
		out[i] = peer.Peer{Host: "127.0.0.1", Port: base + i}
	}
	return out
}
