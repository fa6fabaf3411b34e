package it

import (
	"context"
	"math/rand"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paritystore/internal/config"
	"paritystore/internal/console"
	"paritystore/internal/directory"
	"paritystore/internal/repair"
)

const clusterSize = 20000

func testData() []byte {
	data := make([]byte, clusterSize)
	rand.New(rand.NewSource(42)).Read(data)
	return data
}

func newCluster(t *testing.T) *Cluster {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping cluster test in short mode")
	}
	cluster, err := NewCluster(clusterSize, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(cluster.Stop)
	return cluster
}

func injectError(t *testing.T, n *Node, index int) {
	t.Helper()
	c := console.New(n.Store(), logrus.New())
	require.NoError(t, c.Exec("ERROR "+strconv.Itoa(index)))
}

func TestSmoke_BootstrapIsByteIdentical(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cluster := newCluster(t)
	data := testData()

	_, err := cluster.StartNode(ctx, "n1", data)
	require.NoError(t, err)
	_, err = cluster.StartNode(ctx, "n2", data)
	require.NoError(t, err)

	n3, err := cluster.StartNode(ctx, "n3", nil)
	require.NoError(t, err, "Failed to bootstrap n3")

	assert.Equal(t, data, n3.Store().Bytes())
	assert.Zero(t, n3.Pending().Len(), "pending queue must be empty after bootstrap")
	for i := range n3.Store().ScanRange(0, clusterSize) {
		t.Fatalf("byte %d fails parity after bootstrap", i)
	}
}

// TestSmoke_BootstrapWhilePeersScan checks that peers busy sweeping their
// stores still serve a bootstrapping node promptly.
func TestSmoke_BootstrapWhilePeersScan(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cluster := newCluster(t)
	cluster.scanRate = config.Default().ScanRate
	data := testData()

	peers := make([]*Node, 0, 2)
	for _, id := range []string{"n1", "n2"} {
		n, err := cluster.StartNode(ctx, id, data)
		require.NoError(t, err)
		peers = append(peers, n)
	}
	for _, p := range peers {
		assert.Eventually(t, func() bool {
			return p.Scanner().Stats().Passes > 0
		}, 5*time.Second, 5*time.Millisecond, "peer %s is not scanning", p.ID)
	}

	n3, err := cluster.NewNode(ctx, "n3", nil)
	require.NoError(t, err)
	require.NoError(t, cluster.Start(ctx, n3, 10*time.Second))

	assert.Equal(t, data, n3.Store().Bytes())
	assert.Zero(t, n3.Pending().Len())
}

func TestSmoke_EndToEndRepair(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cluster := newCluster(t)
	data := testData()

	nodes := make([]*Node, 0, 3)
	for _, id := range []string{"n1", "n2", "n3"} {
		n, err := cluster.StartNode(ctx, id, data)
		require.NoError(t, err)
		nodes = append(nodes, n)
	}

	target := nodes[2]
	for _, index := range []int{7, clusterSize/2 + 3, clusterSize - 1} {
		injectError(t, target, index)
	}

	assert.Eventually(t, func() bool {
		for range target.Store().ScanRange(0, clusterSize) {
			return false
		}
		return true
	}, 30*time.Second, 20*time.Millisecond, "corrupted bytes were not repaired")
	assert.Equal(t, data, target.Store().Bytes())
	assert.GreaterOrEqual(t, target.Scanner().Stats().Repaired, uint64(3))
}

func TestSmoke_RegistrationRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cluster := newCluster(t)

	n, err := cluster.NewNode(ctx, "n1", testData())
	require.NoError(t, err)
	defer n.Stop()

	// Someone else already holds the same address.
	squatter, err := directory.Dial(ctx, cluster.DirectoryAddr(), logrus.New())
	require.NoError(t, err)
	defer squatter.Close()
	ok, err := squatter.Register(ctx, "127.0.0.1", n.Addr().(*net.TCPAddr).Port)
	require.NoError(t, err)
	require.True(t, ok)

	err = cluster.Start(ctx, n, 10*time.Second)
	require.Error(t, err)
	<-n.Done()
	assert.ErrorIs(t, n.Err(), directory.ErrRegistrationRejected)
	assert.Zero(t, n.Scanner().Stats().Passes, "scanner must not start")
}

func TestSmoke_TooFewPeersStopsNode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cluster := newCluster(t)
	data := testData()

	_, err := cluster.StartNode(ctx, "n1", data)
	require.NoError(t, err)
	n2, err := cluster.StartNode(ctx, "n2", data)
	require.NoError(t, err)

	injectError(t, n2, 100)

	select {
	case <-n2.Done():
		assert.ErrorIs(t, n2.Err(), repair.ErrQuorumUnavailable)
	case <-time.After(30 * time.Second):
		t.Fatal("node kept running without a repair quorum")
	}
	ok, _ := n2.Store().IsParityOk(100)
	assert.False(t, ok)
}
