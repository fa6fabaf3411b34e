package node

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paritystore/internal/config"
	"paritystore/internal/directory"
	"paritystore/internal/peer"
	"paritystore/internal/peer/peertest"
	"paritystore/internal/queue"
	"paritystore/internal/replication"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ListenHost = "127.0.0.1"
	cfg.ListenPort = 0
	cfg.FileSize = 1000
	cfg.ChunkSize = 100
	return cfg
}

func TestRun_RegistrationRejected(t *testing.T) {
	registry := peertest.NewRegistry()
	registry.SetAccept(false)
	dialer := peertest.NewDialer()

	n := NewNode(testConfig(), registry, dialer, testLogger())
	require.NoError(t, n.Listen())
	addr := n.Addr().String()

	err := n.Run(context.Background())

	assert.ErrorIs(t, err, directory.ErrRegistrationRejected)
	assert.Zero(t, registry.Refreshes(), "nothing may start after a refused registration")
	assert.Zero(t, dialer.Dials())
	select {
	case <-n.Ready():
		t.Fatal("node must not become ready")
	default:
	}
	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err, "listener must be closed")
}

func TestRun_NoPeersIsFatal(t *testing.T) {
	n := NewNode(testConfig(), peertest.NewRegistry(), peertest.NewDialer(), testLogger())

	err := n.Run(context.Background())

	assert.ErrorIs(t, err, replication.ErrNoPeers)
}

func TestRun_SeedFile(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "seed.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg := testConfig()
	cfg.SeedFile = path
	registry := peertest.NewRegistry()
	n := NewNode(cfg, registry, peertest.NewDialer(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	select {
	case <-n.Ready():
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not become ready")
	}
	assert.Equal(t, data, n.Store().Bytes())
	require.Len(t, registry.Registered(), 1)
	assert.Equal(t, n.Addr().(*net.TCPAddr).Port, registry.Registered()[0].Port)

	// The block server answers while the node runs.
	cm := peer.NewClientManager()
	defer cm.Close()
	sess, err := cm.Dial(ctx, peer.Peer{Host: "127.0.0.1", Port: registry.Registered()[0].Port})
	require.NoError(t, err)
	_, err = sess.Fetch(queue.Request{Start: 0, Length: 10})
	require.NoError(t, err)
	sess.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_SeedFileWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 999), 0o644))

	cfg := testConfig()
	cfg.SeedFile = path
	n := NewNode(cfg, peertest.NewRegistry(), peertest.NewDialer(), testLogger())

	assert.Error(t, n.Run(context.Background()))
}
