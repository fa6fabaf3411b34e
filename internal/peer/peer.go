package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"paritystore/internal/queue"
	"paritystore/internal/storage"
)

var (
	// ErrUnavailable means the peer answered with the unavailable marker:
	// the requested range fails parity on its side.
	ErrUnavailable = errors.New("range unavailable on peer")
	// ErrConnectivity means the peer could not be reached or the connection
	// was lost.
	ErrConnectivity = errors.New("peer connectivity failure")
	// ErrProtocol means the peer sent a malformed or unexpected reply.
	ErrProtocol = errors.New("peer protocol error")
)

// Peer is the address of another storage node's block server.
type Peer struct {
	Host string
	Port int
}

// Addr returns host:port.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p Peer) String() string {
	return p.Addr()
}

// Registry discovers the other nodes holding the file.
type Registry interface {
	// Refresh returns the current peer list, excluding the caller.
	Refresh(ctx context.Context) ([]Peer, error)
	// Register announces this node's block server. It reports false when the
	// registry refuses the registration.
	Register(ctx context.Context, host string, port int) (bool, error)
}

// Session is one persistent block-protocol exchange channel with a peer.
type Session interface {
	// Fetch sends req and waits for the matching reply. A nil error means
	// exactly req.Length elements, each passing its parity check.
	Fetch(req queue.Request) ([]storage.ParityByte, error)
	Close() error
}

// Dialer opens sessions to peers.
type Dialer interface {
	Dial(ctx context.Context, p Peer) (Session, error)
}

// ParsePeer parses "host:port".
func ParsePeer(s string) (Peer, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Peer{}, fmt.Errorf("invalid peer address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Peer{}, fmt.Errorf("invalid peer port in %q", s)
	}
	if host == "" {
		return Peer{}, fmt.Errorf("peer host cannot be empty: %q", s)
	}
	return Peer{Host: host, Port: port}, nil
}

// ParsePeers parses a comma-separated list of peers in the format:
// "host1:port1,host2:port2"
func ParsePeers(s string) ([]Peer, error) {
	if s == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(s, ",")
	peers := make([]Peer, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParsePeer(part)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, nil
}
