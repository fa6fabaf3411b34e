package node

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	grpcpeer "google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"paritystore/internal/blockpb"
	"paritystore/internal/queue"
	"paritystore/internal/storage"
)

// Server implements the BlockService gRPC service over a store. It only
// reads the store.
type Server struct {
	store *storage.Store
	log   logrus.FieldLogger
}

// NewServer creates a new block server.
func NewServer(store *storage.Store, log logrus.FieldLogger) *Server {
	return &Server{
		store: store,
		log:   log.WithField("component", "block-server"),
	}
}

// Fetch answers requests on one stream until the peer closes it.
func (s *Server) Fetch(stream blockpb.BlockService_FetchServer) error {
	log := s.log
	if p, ok := grpcpeer.FromContext(stream.Context()); ok {
		log = log.WithField("peer", p.Addr.String())
	}
	log.Debug("Peer connected")

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug("Peer closed the stream")
			return nil
		}
		if err != nil {
			if status.Code(err) == codes.Canceled {
				return nil
			}
			log.Warnf("Failed to read request: %v", err)
			return err
		}

		req, err := s.request(msg)
		if err != nil {
			log.Warnf("Rejecting request: %v", err)
			return status.Error(codes.InvalidArgument, err.Error())
		}

		block, err := s.store.Snapshot(req.Start, req.Length)
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		resp := blockToProto(block)
		if !resp.Available {
			log.WithFields(logrus.Fields{"start": req.Start, "length": req.Length}).
				Info("Range fails parity, replying unavailable")
		}
		if err := stream.Send(resp); err != nil {
			log.Debugf("Failed to send reply: %v", err)
			return err
		}
	}
}

// request converts and bounds-checks msg against the store size.
func (s *Server) request(msg *blockpb.FetchRequest) (queue.Request, error) {
	size := uint64(s.store.Size())
	if msg.Start >= size || msg.Length > size {
		return queue.Request{}, fmt.Errorf("%w: start=%d length=%d size=%d", queue.ErrInvalidRequest, msg.Start, msg.Length, size)
	}
	req := queue.Request{Start: int(msg.Start), Length: int(msg.Length)}
	if err := req.Validate(s.store.Size()); err != nil {
		return queue.Request{}, err
	}
	return req, nil
}
