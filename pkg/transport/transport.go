// Package transport defines the multi-part message bus between the
// coordinator and its clients.
//
// The coordinator owns two endpoints: a unicast endpoint where every inbound
// message carries the sender's identity, and a publish endpoint where
// messages are prefixed by a topic. Implementations preserve the order of
// the messages of one identity, and retain published messages so that a late
// subscriber still receives every topic.
package transport

import (
	"context"
	"errors"

	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/party"
)

var (
	ErrClosed          = errors.New("transport: closed")
	ErrUnknownIdentity = errors.New("transport: unknown identity")
)

// Frames is a multi-part message.
type Frames [][]byte

// Envelope is an inbound message and the identity of its sender.
type Envelope struct {
	From   party.ID
	Frames Frames
}

// Broadcast is a published message.
type Broadcast struct {
	Topic  phase.Topic
	Frames Frames
}

// Router is the coordinator's unicast endpoint.
type Router interface {
	// Recv blocks until a message arrives.
	Recv(ctx context.Context) (Envelope, error)
	// Send queues a message for the given identity.
	Send(ctx context.Context, to party.ID, frames Frames) error
}

// Publisher is the coordinator's broadcast endpoint.
type Publisher interface {
	Publish(ctx context.Context, topic phase.Topic, frames Frames) error
}

// Dealer is a client's unicast connection to the coordinator.
type Dealer interface {
	Send(ctx context.Context, frames Frames) error
	// Recv blocks until the coordinator sends this client a message.
	Recv(ctx context.Context) (Frames, error)
}

// Subscriber is a client's connection to the publish endpoint.
type Subscriber interface {
	// Next blocks until the next broadcast, in publication order.
	Next(ctx context.Context) (Broadcast, error)
}

// Clone returns a deep copy of frames.
func (f Frames) Clone() Frames {
	out := make(Frames, len(f))
	for i, frame := range f {
		out[i] = append([]byte(nil), frame...)
	}
	return out
}
