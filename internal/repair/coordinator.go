package repair

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"paritystore/internal/peer"
	"paritystore/internal/queue"
	"paritystore/internal/quorum"
	"paritystore/internal/storage"
)

// QuorumSize is the number of agreeing peer answers needed to commit.
const QuorumSize = 2

var (
	// ErrQuorumUnavailable means fewer than QuorumSize peers are known, so
	// the node cannot heal itself. Callers treat it as fatal.
	ErrQuorumUnavailable = errors.New("not enough peers for a repair quorum")
	// ErrNoQuorum means the round ended with fewer than QuorumSize usable
	// answers.
	ErrNoQuorum = errors.New("repair round collected too few answers")
	// ErrDisagreement means the collected answers differ; nothing was
	// committed.
	ErrDisagreement = errors.New("peers disagree on repaired value")
)

// Coordinator runs repair rounds. It must not run more than one round at a
// time; the scanner's repair permit guarantees that.
type Coordinator struct {
	store    *storage.Store
	registry peer.Registry
	dialer   peer.Dialer
	log      logrus.FieldLogger
}

// NewCoordinator creates a coordinator repairing store from peers found in
// registry.
func NewCoordinator(store *storage.Store, registry peer.Registry, dialer peer.Dialer, log logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		store:    store,
		registry: registry,
		dialer:   dialer,
		log:      log,
	}
}

// Repair runs one repair round for index. It returns nil once an agreed
// value has been committed. ErrQuorumUnavailable is fatal for the node; any
// other error leaves the byte flagged for the next scan.
func (c *Coordinator) Repair(ctx context.Context, index int) error {
	log := c.log.WithFields(logrus.Fields{"op": "repair", "index": index})

	current, err := c.store.Get(index)
	if err != nil {
		return err
	}
	log.Warnf("Parity error detected at %d: %v", index, current)

	// Always a fresh peer list, never one cached from an earlier round.
	peers, err := c.registry.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh peers: %w", err)
	}
	if len(peers) < QuorumSize {
		log.Errorf("Cannot correct the error: %d peers known, %d required", len(peers), QuorumSize)
		return fmt.Errorf("%w: %d peers known", ErrQuorumUnavailable, len(peers))
	}

	// One single-byte request per peer on a queue owned by this round.
	round := queue.New(len(peers))
	req := queue.Request{Start: index, Length: 1}
	for range peers {
		round.TryPush(req)
	}

	result := quorum.Gather(ctx, peers, QuorumSize, func(ctx context.Context, p peer.Peer) (Vote, error) {
		return c.fetch(ctx, round, p, log)
	})
	if !result.Success {
		log.Warnf("Repair round failed: %s", result.ErrorMessage)
		return fmt.Errorf("%w: %s", ErrNoQuorum, result.ErrorMessage)
	}

	rec := Reconcile(result.Values)
	if !rec.Agreed {
		log.Warnf("Peers disagree: %v vs %v, byte stays flagged", rec.Votes[0].Value, rec.Votes[1].Value)
		return fmt.Errorf("%w: index %d", ErrDisagreement, index)
	}

	if err := c.store.Set(index, rec.Value.Value); err != nil {
		return err
	}
	log.Infof("Corrected to %v (agreed by %s and %s)", rec.Value, rec.Votes[0].Peer, rec.Votes[1].Peer)
	return nil
}

// fetch connects to p, takes one request from the round queue and asks p for
// it. Requests that could not be answered go back onto the round queue.
func (c *Coordinator) fetch(ctx context.Context, round *queue.Queue, p peer.Peer, log logrus.FieldLogger) (Vote, error) {
	log = log.WithField("peer", p.String())

	sess, err := c.dialer.Dial(ctx, p)
	if err != nil {
		log.Warnf("Unable to connect: %v", err)
		return Vote{}, err
	}
	defer sess.Close()

	req, err := round.Pop(ctx)
	if err != nil {
		return Vote{}, err
	}

	block, err := sess.Fetch(req)
	if err == nil && len(block) != req.Length {
		err = fmt.Errorf("%w: %d elements for %s", peer.ErrProtocol, len(block), req)
	}
	if err != nil {
		round.TryPush(req)
		log.Warnf("Request %s added back to the queue: %v", req, err)
		return Vote{}, err
	}
	return Vote{Peer: p, Value: block[0]}, nil
}
