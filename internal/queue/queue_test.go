package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueue_PushPopFIFO(t *testing.T) {
	q := New(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, Request{Start: i * 10, Length: 10}))
	}
	assert.Equal(t, 3, q.Len())
	assert.False(t, q.TryPush(Request{Start: 30, Length: 10}), "full queue must refuse")

	for i := 0; i < 3; i++ {
		r, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i*10, r.Start)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestQueue_PushBlocksWhenFull(t *testing.T) {
	q := New(1)
	require.True(t, q.TryPush(Request{Start: 0, Length: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := q.Push(ctx, Request{Start: 1, Length: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New(1)
	got := make(chan Request, 1)

	go func() {
		r, err := q.Pop(context.Background())
		if err == nil {
			got <- r
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, q.TryPush(Request{Start: 5, Length: 1}))
	select {
	case r := <-got:
		assert.Equal(t, Request{Start: 5, Length: 1}, r)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after push")
	}
}

func TestQueue_EachRequestDeliveredOnce(t *testing.T) {
	q := New(1000)
	for i := 0; i < 1000; i++ {
		require.True(t, q.TryPush(Request{Start: i, Length: 1}))
	}

	var (
		mu   sync.Mutex
		seen = make(map[int]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				r, ok := q.TryPop()
				if !ok {
					return
				}
				mu.Lock()
				seen[r.Start]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000)
	for start, n := range seen {
		assert.Equal(t, 1, n, "request %d delivered %d times", start, n)
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		valid bool
	}{
		{"first chunk", Request{Start: 0, Length: 100}, true},
		{"last byte", Request{Start: 999, Length: 1}, true},
		{"whole store", Request{Start: 0, Length: 1000}, true},
		{"negative start", Request{Start: -1, Length: 1}, false},
		{"start at size", Request{Start: 1000, Length: 1}, false},
		{"zero length", Request{Start: 3, Length: 0}, false},
		{"past end", Request{Start: 950, Length: 100}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(1000)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			}
		})
	}
}

func TestRequest_IsRepair(t *testing.T) {
	assert.True(t, Request{Start: 4, Length: 1}.IsRepair())
	assert.False(t, Request{Start: 0, Length: 100}.IsRepair())
}

func TestPartition_Default(t *testing.T) {
	reqs := Partition(1000000, 100)

	require.Len(t, reqs, DefaultCapacity)
	assert.Equal(t, Request{Start: 0, Length: 100}, reqs[0])
	assert.Equal(t, Request{Start: 999900, Length: 100}, reqs[len(reqs)-1])
}

// TestPartition_Property_CoversRangeExactly checks that chunks are ascending,
// contiguous, non-empty and cover [0, size) with only the last one shorter.
func TestPartition_Property_CoversRangeExactly(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(1, 5000).Draw(rt, "size")
		chunk := rapid.IntRange(1, 500).Draw(rt, "chunk")

		reqs := Partition(size, chunk)
		next := 0
		for k, r := range reqs {
			if r.Start != next {
				rt.Fatalf("chunk %d starts at %d, want %d", k, r.Start, next)
			}
			if err := r.Validate(size); err != nil {
				rt.Fatalf("chunk %d invalid: %v", k, err)
			}
			if k < len(reqs)-1 && r.Length != chunk {
				rt.Fatalf("chunk %d has length %d, want %d", k, r.Length, chunk)
			}
			next = r.End()
		}
		if next != size {
			rt.Fatalf("chunks cover [0, %d), want [0, %d)", next, size)
		}
	})
}

// TestQueue_Property_FIFO checks that any sequence of pushes is popped back
// in the same order.
func TestQueue_Property_FIFO(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		starts := rapid.SliceOfN(rapid.IntRange(0, 999), 1, 200).Draw(rt, "starts")
		q := New(len(starts))
		for _, s := range starts {
			if !q.TryPush(Request{Start: s, Length: 1}) {
				rt.Fatal("push refused below capacity")
			}
		}
		for k, s := range starts {
			r, ok := q.TryPop()
			if !ok || r.Start != s {
				rt.Fatalf("pop %d = %v (ok=%t), want start %d", k, r, ok, s)
			}
		}
	})
}
