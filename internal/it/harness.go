package it

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"paritystore/internal/config"
	"paritystore/internal/directory"
	"paritystore/internal/node"
	"paritystore/internal/peer"
)

// Cluster is an in-process directory server and the nodes registered with it.
type Cluster struct {
	mu       sync.Mutex
	size     int
	dataDir  string
	logDir   string
	dir      *directory.Server
	dirAddr  string
	dirStop  context.CancelFunc
	dirDone  chan struct{}
	nodes    []*Node
	logLevel logrus.Level
	scanRate float64
}

// Node is one storage node of a Cluster.
type Node struct {
	*node.Node
	ID string

	registry *directory.Client
	dialer   *peer.ClientManager
	logFile  *os.File
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	once     sync.Once
}

// NewCluster starts a directory server for nodes holding size bytes.
// Seed files go to dataDir, node logs to .local/it-logs.
func NewCluster(size int, dataDir string) (*Cluster, error) {
	logDir := filepath.Join(".local", "it-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen for directory: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cluster{
		size:     size,
		dataDir:  dataDir,
		logDir:   logDir,
		dir:      directory.NewServer(log),
		dirAddr:  lis.Addr().String(),
		dirStop:  cancel,
		dirDone:  make(chan struct{}),
		logLevel: logrus.DebugLevel,
		scanRate: 50,
	}
	go func() {
		defer close(c.dirDone)
		c.dir.Serve(ctx, lis)
	}()
	return c, nil
}

// DirectoryAddr returns the directory server's host:port.
func (c *Cluster) DirectoryAddr() string {
	return c.dirAddr
}

// Directory returns the directory server.
func (c *Cluster) Directory() *directory.Server {
	return c.dir
}

// NewNode creates a node registered with the cluster's directory but does
// not start it. A nil seed makes the node bootstrap from its peers.
func (c *Cluster) NewNode(ctx context.Context, id string, seed []byte) (*Node, error) {
	cfg := config.Default()
	dir, err := peer.ParsePeer(c.dirAddr)
	if err != nil {
		return nil, err
	}
	cfg.DirectoryHost = dir.Host
	cfg.DirectoryPort = dir.Port
	cfg.ListenHost = "127.0.0.1"
	cfg.AdvertiseHost = "127.0.0.1"
	cfg.FileSize = c.size
	cfg.ScanRate = c.scanRate

	if seed != nil {
		cfg.SeedFile = filepath.Join(c.dataDir, id+".bin")
		if err := os.WriteFile(cfg.SeedFile, seed, 0644); err != nil {
			return nil, fmt.Errorf("failed to write seed for %s: %w", id, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logFile, err := os.Create(filepath.Join(c.logDir, id+".log"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(logFile)
	logger.SetLevel(c.logLevel)
	log := logger.WithField("node", id)

	registry, err := directory.Dial(ctx, c.dirAddr, log)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	dialer := peer.NewClientManager()
	n := &Node{
		Node:     node.NewNode(cfg, registry, dialer, log),
		ID:       id,
		registry: registry,
		dialer:   dialer,
		logFile:  logFile,
		done:     make(chan struct{}),
	}
	if err := n.Listen(); err != nil {
		n.release()
		return nil, err
	}
	return n, nil
}

// Start runs n in the background and waits until its store is filled.
func (c *Cluster) Start(ctx context.Context, n *Node, timeout time.Duration) error {
	runCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go func() {
		defer close(n.done)
		n.err = n.Run(runCtx)
	}()

	c.mu.Lock()
	c.nodes = append(c.nodes, n)
	c.mu.Unlock()

	return c.waitForReady(ctx, n, timeout)
}

// StartNode creates and starts a node.
func (c *Cluster) StartNode(ctx context.Context, id string, seed []byte) (*Node, error) {
	n, err := c.NewNode(ctx, id, seed)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx, n, 30*time.Second); err != nil {
		n.Stop()
		return nil, fmt.Errorf("node %s failed to become ready: %w", id, err)
	}
	return n, nil
}

// waitForReady waits for n to fill its store, or for Run to fail.
func (c *Cluster) waitForReady(ctx context.Context, n *Node, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-n.Ready():
		return nil
	case <-n.done:
		return fmt.Errorf("node %s stopped: %w", n.ID, n.err)
	case <-timer.C:
		return fmt.Errorf("timeout waiting for node %s to be ready", n.ID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops every node and then the directory.
func (c *Cluster) Stop() {
	c.mu.Lock()
	nodes := c.nodes
	c.nodes = nil
	c.mu.Unlock()

	for _, n := range nodes {
		n.Stop()
	}
	c.dirStop()
	<-c.dirDone
}

// Done is closed once Run has returned.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Err returns Run's result. Only valid after Done is closed.
func (n *Node) Err() error {
	return n.err
}

// Stop cancels the node, waits for Run to return, and releases its
// connections.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
		<-n.done
	}
	n.release()
}

func (n *Node) release() {
	n.once.Do(func() {
		n.dialer.Close()
		n.registry.Close()
		n.logFile.Close()
	})
}
