package participant

import (
	"context"
	"sync"
	"time"

	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/transport"
)

// topics buffers the broadcasts received by the subscriber goroutine.
type topics struct {
	mtx      sync.RWMutex
	received map[phase.Topic]transport.Frames
	err      error
}

func newTopics() *topics {
	return &topics{received: make(map[phase.Topic]transport.Frames)}
}

// run reads broadcasts until sub fails or ctx is done.
func (t *topics) run(ctx context.Context, sub transport.Subscriber) {
	for {
		msg, err := sub.Next(ctx)
		t.mtx.Lock()
		if err != nil {
			t.err = err
			t.mtx.Unlock()
			return
		}
		t.received[msg.Topic] = msg.Frames
		t.mtx.Unlock()
	}
}

// await polls the buffer every interval until topic has been received.
func (t *topics) await(ctx context.Context, topic phase.Topic, interval time.Duration) (transport.Frames, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		t.mtx.RLock()
		frames, ok := t.received[topic]
		err := t.err
		t.mtx.RUnlock()
		switch {
		case ok:
			return frames, nil
		case err != nil:
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
