package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"paritystore/internal/blockpb"
	"paritystore/internal/config"
	"paritystore/internal/directory"
	"paritystore/internal/peer"
	"paritystore/internal/queue"
	"paritystore/internal/repair"
	"paritystore/internal/replication"
	"paritystore/internal/scanner"
	"paritystore/internal/storage"
)

const (
	// Peers ping every 30s; allow a little slack.
	minClientPingInterval = 20 * time.Second
	stopTimeout           = 5 * time.Second
)

// Node represents a single storage node.
type Node struct {
	cfg      config.Config
	store    *storage.Store
	pending  *queue.Queue
	registry peer.Registry
	dialer   peer.Dialer
	scanner  *scanner.Scanner
	log      logrus.FieldLogger

	lis        net.Listener
	grpcServer *grpc.Server
	ready      chan struct{}
}

// NewNode creates a node. Nothing is started until Run.
func NewNode(cfg config.Config, registry peer.Registry, dialer peer.Dialer, log logrus.FieldLogger) *Node {
	store := storage.NewStore(cfg.FileSize)
	coordinator := repair.NewCoordinator(store, registry, dialer, log)
	return &Node{
		cfg:      cfg,
		store:    store,
		pending:  queue.New(cfg.QueueCapacity),
		registry: registry,
		dialer:   dialer,
		scanner:  scanner.New(store, coordinator, cfg.ScanRate, log),
		log:      log,
		ready:    make(chan struct{}),
	}
}

// Store returns the node's replica.
func (n *Node) Store() *storage.Store {
	return n.store
}

// Pending returns the bootstrap request queue.
func (n *Node) Pending() *queue.Queue {
	return n.pending
}

// Scanner returns the node's parity scanner.
func (n *Node) Scanner() *scanner.Scanner {
	return n.scanner
}

// Ready is closed once the store has been filled and scanning has started.
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

// Listen binds the block server's port. Run calls it if it has not been
// called already.
func (n *Node) Listen() error {
	addr := net.JoinHostPort(n.cfg.ListenHost, strconv.Itoa(n.cfg.ListenPort))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	n.lis = lis
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (n *Node) Addr() net.Addr {
	if n.lis == nil {
		return nil
	}
	return n.lis.Addr()
}

// Run starts the node and blocks until ctx ends or a fatal error occurs:
// registration refused, no peers to bootstrap from, an unreadable seed file,
// or too few peers for a repair.
func (n *Node) Run(ctx context.Context) error {
	if n.lis == nil {
		if err := n.Listen(); err != nil {
			return err
		}
	}
	port := n.lis.Addr().(*net.TCPAddr).Port

	ok, err := n.registry.Register(ctx, n.cfg.AdvertiseHost, port)
	if err != nil {
		n.lis.Close()
		return fmt.Errorf("failed to register: %w", err)
	}
	if !ok {
		n.lis.Close()
		return fmt.Errorf("%w: port %d", directory.ErrRegistrationRejected, port)
	}
	n.log.Infof("Registered block server on port %d", port)

	n.grpcServer = grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             minClientPingInterval,
			PermitWithoutStream: true,
		}),
	)
	blockpb.RegisterBlockServiceServer(n.grpcServer, NewServer(n.store, n.log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n.log.Infof("Serving blocks on %s", n.lis.Addr())
		if err := n.grpcServer.Serve(n.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		n.stop()
		return nil
	})
	g.Go(func() error {
		if err := n.fill(gctx); err != nil {
			return err
		}
		close(n.ready)
		return n.scanner.Run(gctx)
	})

	err = g.Wait()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// fill loads the seed file if one is configured and bootstraps from peers
// otherwise.
func (n *Node) fill(ctx context.Context) error {
	if n.cfg.SeedFile != "" {
		if err := n.store.LoadFile(n.cfg.SeedFile); err != nil {
			return err
		}
		n.log.Infof("Loaded %d bytes from %s", n.store.Size(), n.cfg.SeedFile)
		return nil
	}

	peers, err := n.registry.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to list peers: %w", err)
	}
	b := replication.NewBootstrapper(n.store, n.pending, n.dialer, n.cfg.ChunkSize, n.log)
	if _, err := b.Run(ctx, peers); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	return nil
}

// stop drains open streams, then forces them closed after stopTimeout.
func (n *Node) stop() {
	n.log.Info("Stopping node")
	done := make(chan struct{})
	go func() {
		n.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		n.grpcServer.Stop()
	}
}
