package scanner

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"paritystore/internal/repair"
	"paritystore/internal/storage"
)

// DefaultPassRate is the default number of passes started per second,
// shared by both workers.
const DefaultPassRate = 20

// Repairer runs one repair round for a byte.
type Repairer interface {
	Repair(ctx context.Context, index int) error
}

// Stats counts what the sweeps have done so far.
type Stats struct {
	Passes   uint64
	Detected uint64
	Repaired uint64
	Skipped  uint64
}

// Scanner runs two sweep workers, one per half of the store.
type Scanner struct {
	store    *storage.Store
	repairer Repairer
	permit   *semaphore.Weighted
	limiter  *rate.Limiter
	log      logrus.FieldLogger

	passes   atomic.Uint64
	detected atomic.Uint64
	repaired atomic.Uint64
	skipped  atomic.Uint64
}

// New creates a scanner. passesPerSecond limits how often the workers start a
// pass; zero or less means unlimited, in which case workers still yield the
// processor between passes.
func New(store *storage.Store, repairer Repairer, passesPerSecond float64, log logrus.FieldLogger) *Scanner {
	limit := rate.Inf
	if passesPerSecond > 0 {
		limit = rate.Limit(passesPerSecond)
	}
	return &Scanner{
		store:    store,
		repairer: repairer,
		permit:   semaphore.NewWeighted(1),
		limiter:  rate.NewLimiter(limit, 1),
		log:      log.WithField("component", "scanner"),
	}
}

// Halves splits [0, size) into the two ranges swept by the workers.
func Halves(size int) [2][2]int {
	mid := size / 2
	return [2][2]int{{0, mid}, {mid, size}}
}

// Run sweeps both halves until ctx ends. It returns nil on cancellation and
// the first fatal repair error otherwise, which also stops the other worker.
func (s *Scanner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, half := range Halves(s.store.Size()) {
		lo, hi := half[0], half[1]
		g.Go(func() error {
			return s.loop(ctx, lo, hi)
		})
	}
	return g.Wait()
}

func (s *Scanner) loop(ctx context.Context, lo, hi int) error {
	log := s.log.WithFields(logrus.Fields{"lo": lo, "hi": hi})
	log.Infof("Sweeping [%d, %d)", lo, hi)
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}
		if err := s.Sweep(ctx, lo, hi); err != nil {
			log.Errorf("Stopping sweep: %v", err)
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if s.limiter.Limit() == rate.Inf {
			runtime.Gosched()
		}
	}
}

// Sweep makes one pass over [lo, hi). A failing byte is repaired if the
// repair permit is free and skipped otherwise. Only ErrQuorumUnavailable is
// returned; other repair failures are logged and left for the next pass.
func (s *Scanner) Sweep(ctx context.Context, lo, hi int) error {
	defer s.passes.Add(1)

	for i := range s.store.ScanRange(lo, hi) {
		if ctx.Err() != nil {
			return nil
		}
		s.detected.Add(1)

		if !s.permit.TryAcquire(1) {
			s.skipped.Add(1)
			s.log.WithField("index", i).Debug("Repair in progress elsewhere, skipping")
			continue
		}
		err := s.repairer.Repair(ctx, i)
		s.permit.Release(1)

		switch {
		case err == nil:
			s.repaired.Add(1)
		case errors.Is(err, repair.ErrQuorumUnavailable):
			return err
		case ctx.Err() != nil:
			return nil
		default:
			s.log.WithField("index", i).Warnf("Repair failed, will retry: %v", err)
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (s *Scanner) Stats() Stats {
	return Stats{
		Passes:   s.passes.Load(),
		Detected: s.detected.Load(),
		Repaired: s.repaired.Load(),
		Skipped:  s.skipped.Load(),
	}
}
