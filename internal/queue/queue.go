package queue

import (
	"context"
)

const (
	// DefaultCapacity is the number of requests the pending queue can hold.
	DefaultCapacity = 10000
)

// Queue is a bounded FIFO of requests backed by a buffered channel.
type Queue struct {
	ch chan Request
}

// New creates a queue holding at most capacity requests.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan Request, capacity)}
}

// Push appends r, blocking while the queue is full.
func (q *Queue) Push(ctx context.Context, r Request) error {
	select {
	case q.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush appends r if there is room and reports whether it did.
func (q *Queue) TryPush(r Request) bool {
	select {
	case q.ch <- r:
		return true
	default:
		return false
	}
}

// Pop removes the oldest request, blocking while the queue is empty.
func (q *Queue) Pop(ctx context.Context) (Request, error) {
	select {
	case r := <-q.ch:
		return r, nil
	case <-ctx.Done():
		return Request{}, ctx.Err()
	}
}

// TryPop removes the oldest request if one is available.
func (q *Queue) TryPop() (Request, bool) {
	select {
	case r := <-q.ch:
		return r, true
	default:
		return Request{}, false
	}
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
