package pool

import (
	"io"
	"runtime"
	"sync"
	"sync/atomic"
)

// command is used to trigger our latent workers to evaluate f at index i.
type command struct {
	// This counter indicates the number of results that still need to be produced.
	ctr *int64
	i   int
	f   func(int)
}

// worker starts up a new worker, listening to commands.
func worker(commands <-chan command, ctrChanged chan<- struct{}) {
	for c := range commands {
		c.f(c.i)
		atomic.AddInt64(c.ctr, -1)
		ctrChanged <- struct{}{}
	}
}

// Pool represents a pool of workers, used for parallelizing functions.
//
// Functions needing a *Pool will work with a nil receiver, doing the equivalent
// work on the current goroutine instead.
//
// By creating a pool, you avoid the overhead of spinning up goroutines for
// each new operation.
type Pool struct {
	// The common channel used to send commands to the workers.
	//
	// This effectively makes a work stealing pool.
	commands chan command
	// The channel used to signal a finished task
	ctrChanged chan struct{}
	// This holds the number of workers we've created
	workerCount int
	// Serializes callers, so that the counters of two calls never interleave
	// on ctrChanged.
	mtx sync.Mutex
}

// NewPool creates a new pool, with a certain number of workers.
//
// If count <= 0, this will use the number of available CPUs instead.
func NewPool(count int) *Pool {
	var p Pool

	if count <= 0 {
		count = runtime.NumCPU()
	}

	p.commands = make(chan command)
	p.workerCount = count
	p.ctrChanged = make(chan struct{})

	for i := 0; i < count; i++ {
		go worker(p.commands, p.ctrChanged)
	}

	return &p
}

// TearDown cleanly tears down a pool, closing channels, etc.
func (p *Pool) TearDown() {
	close(p.commands)
}

// ForEach calls f count times, passing in indices from 0..count-1, and
// returns once every call has returned.
func (p *Pool) ForEach(count int, f func(int)) {
	if p == nil {
		for i := 0; i < count; i++ {
			f(i)
		}
		return
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	ctr := int64(count)
	cmdI := 0
	for cmdI < count {
		cmd := command{i: cmdI, ctr: &ctr, f: f}
		// We won't be able to send all the commands without blocking, so we make
		// sure to interleave picking off the results of workers to free them up
		// to receive our commands
		select {
		case p.commands <- cmd:
			cmdI++
		case <-p.ctrChanged:
		}
	}
	for atomic.LoadInt64(&ctr) > 0 {
		<-p.ctrChanged
	}
}

// Map calls f count times in parallel.
//
// The result will be a slice containing [f(0), f(1), ..., f(count - 1)].
func Map[T any](p *Pool, count int, f func(int) T) []T {
	results := make([]T, count)
	p.ForEach(count, func(i int) {
		results[i] = f(i)
	})
	return results
}

// MapErr is like Map for functions that may fail, and returns the error of
// the lowest failing index.
func MapErr[T any](p *Pool, count int, f func(int) (T, error)) ([]T, error) {
	results := make([]T, count)
	errs := make([]error, count)
	p.ForEach(count, func(i int) {
		results[i], errs[i] = f(i)
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// LockedReader wraps an io.Reader to be safe for concurrent reads.
//
// This type implements io.Reader, returning the same output.
//
// This means acquiring a lock whenever a read happens, so be aware of that
// for performance or concurrency reasons.
type LockedReader struct {
	reader io.Reader
	m      sync.Mutex
}

// NewLockedReader creates a LockedReader by wrapping an underlying value.
func NewLockedReader(r io.Reader) *LockedReader {
	return &LockedReader{reader: r}
}

// Read implements io.Reader for LockedReader.
func (r *LockedReader) Read(p []byte) (int, error) {
	r.m.Lock()
	defer r.m.Unlock()
	return r.reader.Read(p)
}
