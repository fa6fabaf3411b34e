package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"paritystore/internal/peer"
	"paritystore/internal/queue"
	"paritystore/internal/storage"
)

// DefaultChunkSize is the number of bytes fetched per bootstrap request.
const DefaultChunkSize = 100

// ErrNoPeers means there is nobody to bootstrap from.
var ErrNoPeers = errors.New("no peers to replicate from")

// Result summarises a bootstrap.
type Result struct {
	Chunks     int // chunks pushed onto the queue
	Fetched    int // chunks written into the store
	Unresolved int // chunks still queued when every worker had finished
}

// Bootstrapper fills a store from peers through the pending request queue.
type Bootstrapper struct {
	store     *storage.Store
	pending   *queue.Queue
	dialer    peer.Dialer
	chunkSize int
	log       logrus.FieldLogger

	// mu guards inflight, the number of requests popped but not yet written
	// or requeued. cond is signalled whenever inflight drops.
	mu       sync.Mutex
	cond     *sync.Cond
	inflight int
}

// NewBootstrapper creates a bootstrapper. pending must be able to hold every
// chunk of store at once.
func NewBootstrapper(store *storage.Store, pending *queue.Queue, dialer peer.Dialer, chunkSize int, log logrus.FieldLogger) *Bootstrapper {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	b := &Bootstrapper{
		store:     store,
		pending:   pending,
		dialer:    dialer,
		chunkSize: chunkSize,
		log:       log.WithField("op", "bootstrap"),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Run queues every chunk and starts one worker per peer. It returns once all
// workers have finished; chunks nobody could deliver stay on the queue and
// are reported in Result.Unresolved.
func (b *Bootstrapper) Run(ctx context.Context, peers []peer.Peer) (Result, error) {
	if len(peers) == 0 {
		return Result{}, ErrNoPeers
	}

	chunks := queue.Partition(b.store.Size(), b.chunkSize)
	for _, c := range chunks {
		if err := b.pending.Push(ctx, c); err != nil {
			return Result{}, fmt.Errorf("failed to queue %s: %w", c, err)
		}
	}
	b.log.Infof("Queued %d chunks of %d bytes for %d peers", len(chunks), b.chunkSize, len(peers))

	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.cond.Broadcast()
	})
	defer stop()

	fetched := make([]int, len(peers))
	var g errgroup.Group
	for k, p := range peers {
		g.Go(func() error {
			fetched[k] = b.worker(ctx, p, len(chunks))
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Chunks: len(chunks), Unresolved: b.pending.Len()}
	for _, n := range fetched {
		res.Fetched += n
	}
	if res.Unresolved > 0 {
		b.log.Warnf("Bootstrap finished with %d of %d chunks unresolved; they will be repaired later", res.Unresolved, res.Chunks)
	} else {
		b.log.Infof("Bootstrap complete: %d chunks", res.Chunks)
	}
	return res, ctx.Err()
}

// worker fetches chunks from p until the queue is empty, the connection
// fails, or it has gone a full lap of the queue without a usable reply.
func (b *Bootstrapper) worker(ctx context.Context, p peer.Peer, lap int) int {
	log := b.log.WithField("peer", p.String())

	sess, err := b.dialer.Dial(ctx, p)
	if err != nil {
		log.Warnf("Unable to connect: %v", err)
		return 0
	}
	defer sess.Close()

	fetched, misses := 0, 0
	for {
		req, ok := b.next(ctx)
		if !ok {
			break
		}

		values, err := sess.Fetch(req)
		if err == nil && len(values) != req.Length {
			err = fmt.Errorf("%w: %d elements for %s", peer.ErrProtocol, len(values), req)
		}
		if err == nil {
			err = b.store.WriteRange(req.Start, values)
		}
		if err == nil {
			b.done(req, false, log)
			fetched++
			misses = 0
			continue
		}

		b.done(req, true, log)
		if errors.Is(err, peer.ErrConnectivity) {
			log.Warnf("Connection lost, request %s added back to the queue: %v", req, err)
			break
		}
		log.Warnf("Request %s added back to the queue: %v", req, err)

		misses++
		if misses > lap {
			log.Warnf("No usable reply for %d requests in a row, giving up", misses)
			break
		}
	}
	return fetched
}

// next pops a request. While the queue is empty but other workers still hold
// requests it waits, since those may be handed back. It reports false once
// there is nothing left to fetch or ctx has ended.
func (b *Bootstrapper) next(ctx context.Context) (queue.Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ctx.Err() == nil {
		if req, ok := b.pending.TryPop(); ok {
			b.inflight++
			return req, true
		}
		if b.inflight == 0 {
			return queue.Request{}, false
		}
		b.cond.Wait()
	}
	return queue.Request{}, false
}

// done releases a request taken by next, putting it back on the queue first
// when requeue is set.
func (b *Bootstrapper) done(req queue.Request, requeue bool, log logrus.FieldLogger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if requeue {
		b.requeue(req, log)
	}
	b.inflight--
	b.cond.Broadcast()
}

func (b *Bootstrapper) requeue(req queue.Request, log logrus.FieldLogger) {
	if !b.pending.TryPush(req) {
		log.Errorf("Pending queue full, dropping %s", req)
	}
}
