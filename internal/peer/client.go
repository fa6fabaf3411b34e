package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"paritystore/internal/blockpb"
	"paritystore/internal/queue"
	"paritystore/internal/storage"
)

const (
	keepaliveTime    = 30 * time.Second
	keepaliveTimeout = 10 * time.Second
)

// ClientManager manages gRPC connections to peer block servers and opens
// Fetch sessions over them. Connections are cached per address.
type ClientManager struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewClientManager creates a new client manager.
func NewClientManager() *ClientManager {
	return &ClientManager{
		conns: make(map[string]*grpc.ClientConn),
	}
}

// conn returns the connection for addr, creating it if needed. Connections
// are established lazily by gRPC on first use.
func (cm *ClientManager) conn(addr string) (*grpc.ClientConn, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cc, exists := cm.conns[addr]; exists {
		return cc, nil
	}

	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                keepaliveTime,
			Timeout:             keepaliveTimeout,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	cm.conns[addr] = cc
	return cc, nil
}

// Dial opens a Fetch stream to p. The stream lives until the session is
// closed or ctx ends.
func (cm *ClientManager) Dial(ctx context.Context, p Peer) (Session, error) {
	cc, err := cm.conn(p.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectivity, p, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := blockpb.NewBlockServiceClient(cc).Fetch(streamCtx)
	if err != nil {
		cancel()
		return nil, classify("open stream", p, err)
	}
	return &session{peer: p, stream: stream, cancel: cancel}, nil
}

// Close closes all client connections.
func (cm *ClientManager) Close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for addr, cc := range cm.conns {
		cc.Close()
		delete(cm.conns, addr)
	}
}

type session struct {
	peer   Peer
	stream blockpb.BlockService_FetchClient
	cancel context.CancelFunc
}

func (s *session) Fetch(req queue.Request) ([]storage.ParityByte, error) {
	err := s.stream.Send(&blockpb.FetchRequest{
		Version: blockpb.ProtocolVersion,
		Start:   uint64(req.Start),
		Length:  uint64(req.Length),
	})
	if err != nil {
		return nil, classify("send", s.peer, err)
	}

	resp, err := s.stream.Recv()
	if err != nil {
		return nil, classify("recv", s.peer, err)
	}
	return DecodeBlock(resp, req)
}

func (s *session) Close() error {
	err := s.stream.CloseSend()
	s.cancel()
	return err
}

// DecodeBlock validates resp as the answer to req and converts it.
func DecodeBlock(resp *blockpb.FetchResponse, req queue.Request) ([]storage.ParityByte, error) {
	if !resp.Available {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, req)
	}
	if len(resp.Values) != req.Length || len(resp.Parity) != req.Length {
		return nil, fmt.Errorf("%w: reply for %s carries %d values and %d parity bits",
			ErrProtocol, req, len(resp.Values), len(resp.Parity))
	}

	block := make([]storage.ParityByte, req.Length)
	for k := range block {
		b := storage.ParityByte{Value: resp.Values[k], Parity: resp.Parity[k] != 0}
		if !b.IsParityOk() {
			return nil, fmt.Errorf("%w: reply for %s has a parity failure at offset %d", ErrProtocol, req, k)
		}
		block[k] = b
	}
	return block, nil
}

// classify maps a stream error to ErrConnectivity or ErrProtocol.
func classify(op string, p Peer, err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s %s: stream closed by peer", ErrConnectivity, op, p)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded, codes.Aborted:
		return fmt.Errorf("%w: %s %s: %w", ErrConnectivity, op, p, err)
	default:
		return fmt.Errorf("%w: %s %s: %w", ErrProtocol, op, p, err)
	}
}
