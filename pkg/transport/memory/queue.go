package memory

import (
	"context"
	"sync"

	"github.com/taurusgroup/secagg/pkg/transport"
)

// feed is an unbounded append-only log. Readers keep their own cursor, so
// the same feed serves a FIFO queue (one reader) and a topic history (many
// readers).
type feed[T any] struct {
	mtx    sync.Mutex
	items  []T
	signal chan struct{}
	closed bool
}

func newFeed[T any]() *feed[T] {
	return &feed[T]{signal: make(chan struct{})}
}

func (f *feed[T]) append(x T) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	f.items = append(f.items, x)
	close(f.signal)
	f.signal = make(chan struct{})
	return nil
}

// at blocks until the i-th item exists.
func (f *feed[T]) at(ctx context.Context, i int) (T, error) {
	for {
		f.mtx.Lock()
		if i < len(f.items) {
			x := f.items[i]
			f.mtx.Unlock()
			return x, nil
		}
		if f.closed {
			f.mtx.Unlock()
			var zero T
			return zero, transport.ErrClosed
		}
		signal := f.signal
		f.mtx.Unlock()

		select {
		case <-signal:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (f *feed[T]) close() {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if !f.closed {
		f.closed = true
		close(f.signal)
	}
}

// queue is a feed with a single consuming cursor.
type queue[T any] struct {
	*feed[T]
	popMtx sync.Mutex
	next   int
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{feed: newFeed[T]()}
}

func (q *queue[T]) pop(ctx context.Context) (T, error) {
	q.popMtx.Lock()
	defer q.popMtx.Unlock()
	x, err := q.at(ctx, q.next)
	if err == nil {
		q.next++
	}
	return x, err
}
