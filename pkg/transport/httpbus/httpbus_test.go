package httpbus

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/transport"
)

func TestRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := NewServer(50 * time.Millisecond)
	unicast := httptest.NewServer(s.UnicastHandler())
	defer unicast.Close()
	publish := httptest.NewServer(s.PublishHandler())
	defer publish.Close()
	defer s.Close()

	c := Dial("alice", unicast.URL, publish.URL)
	require.NoError(t, c.Send(ctx, transport.Frames{[]byte("Hello, I'm alice"), {}}))

	env, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(env.From))
	require.Len(t, env.Frames, 2)
	assert.Equal(t, "Hello, I'm alice", string(env.Frames[0]))
	assert.Empty(t, env.Frames[1])

	// the reply is sent after the first long poll expired
	go func() {
		time.Sleep(120 * time.Millisecond)
		_ = s.Send(ctx, "alice", transport.Frames{[]byte("key")})
	}()
	reply, err := c.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "key", string(reply[0]))

	require.NoError(t, s.Publish(ctx, phase.TopicHandshake, transport.Frames{[]byte("vk")}))
	require.NoError(t, s.Publish(ctx, phase.TopicKeys, transport.Frames{[]byte("pk")}))
	for _, want := range []phase.Topic{phase.TopicHandshake, phase.TopicKeys} {
		msg, err := c.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, msg.Topic)
	}
}

func TestMissingIdentity(t *testing.T) {
	s := NewServer(10 * time.Millisecond)
	unicast := httptest.NewServer(s.UnicastHandler())
	defer unicast.Close()

	err := Dial("", unicast.URL, unicast.URL).Send(context.Background(), transport.Frames{[]byte("x")})
	assert.Error(t, err)
}

func TestClosed(t *testing.T) {
	s := NewServer(time.Second)
	publish := httptest.NewServer(s.PublishHandler())
	defer publish.Close()

	s.Close()
	_, err := Dial("bob", publish.URL, publish.URL).Next(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
}
