package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/transport"
)

func TestUnicast(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	alice := bus.Connect("alice")

	require.NoError(t, alice.Send(ctx, transport.Frames{[]byte("one")}))
	require.NoError(t, alice.Send(ctx, transport.Frames{[]byte("two")}))

	for _, want := range []string{"one", "two"} {
		env, err := bus.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, "alice", string(env.From))
		assert.Equal(t, want, string(env.Frames[0]))
	}

	require.NoError(t, bus.Send(ctx, "alice", transport.Frames{[]byte("reply")}))
	reply, err := alice.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(reply[0]))

	assert.ErrorIs(t, bus.Send(ctx, "bob", nil), transport.ErrUnknownIdentity)
}

func TestLateSubscriberSeesHistory(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	early := bus.Connect("early")

	require.NoError(t, bus.Publish(ctx, phase.TopicHandshake, transport.Frames{[]byte("hs")}))
	require.NoError(t, bus.Publish(ctx, phase.TopicKeys, transport.Frames{[]byte("ke")}))

	late := bus.Connect("late")
	for _, c := range []*Client{early, late} {
		for _, want := range []phase.Topic{phase.TopicHandshake, phase.TopicKeys} {
			msg, err := c.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, msg.Topic)
		}
	}
}

func TestBlockingAndClose(t *testing.T) {
	bus := NewBus()
	c := bus.Connect("c")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error)
	go func() {
		_, err := bus.Recv(context.Background())
		done <- err
	}()
	bus.Close()
	assert.ErrorIs(t, <-done, transport.ErrClosed)
	_, err = c.Recv(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
}
