// Package memory is an in-process transport, used by tests and simulations.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/party"
	"github.com/taurusgroup/secagg/pkg/transport"
)

// Bus connects one coordinator to any number of clients. It implements
// transport.Router and transport.Publisher for the coordinator side.
type Bus struct {
	inbound *queue[transport.Envelope]
	topics  *feed[transport.Broadcast]

	mtx     sync.Mutex
	inboxes map[party.ID]*queue[transport.Frames]
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		inbound: newQueue[transport.Envelope](),
		topics:  newFeed[transport.Broadcast](),
		inboxes: make(map[party.ID]*queue[transport.Frames]),
	}
}

// Recv implements transport.Router.
func (b *Bus) Recv(ctx context.Context) (transport.Envelope, error) {
	return b.inbound.pop(ctx)
}

// Send implements transport.Router.
func (b *Bus) Send(_ context.Context, to party.ID, frames transport.Frames) error {
	b.mtx.Lock()
	inbox, ok := b.inboxes[to]
	b.mtx.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrUnknownIdentity, to)
	}
	return inbox.append(frames.Clone())
}

// Publish implements transport.Publisher.
func (b *Bus) Publish(_ context.Context, topic phase.Topic, frames transport.Frames) error {
	return b.topics.append(transport.Broadcast{Topic: topic, Frames: frames.Clone()})
}

// Connect returns the endpoints of a new client. Connecting twice with the
// same identity shares the inbox, like a reconnecting socket.
func (b *Bus) Connect(id party.ID) *Client {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	inbox, ok := b.inboxes[id]
	if !ok {
		inbox = newQueue[transport.Frames]()
		b.inboxes[id] = inbox
	}
	return &Client{id: id, bus: b, inbox: inbox}
}

// Close unblocks every pending call with transport.ErrClosed.
func (b *Bus) Close() {
	b.inbound.close()
	b.topics.close()
	b.mtx.Lock()
	defer b.mtx.Unlock()
	for _, inbox := range b.inboxes {
		inbox.close()
	}
}

// Client implements transport.Dealer and transport.Subscriber.
type Client struct {
	id    party.ID
	bus   *Bus
	inbox *queue[transport.Frames]

	mtx    sync.Mutex
	cursor int
}

// Send implements transport.Dealer.
func (c *Client) Send(_ context.Context, frames transport.Frames) error {
	return c.bus.inbound.append(transport.Envelope{From: c.id, Frames: frames.Clone()})
}

// Recv implements transport.Dealer.
func (c *Client) Recv(ctx context.Context) (transport.Frames, error) {
	return c.inbox.pop(ctx)
}

// Next implements transport.Subscriber.
func (c *Client) Next(ctx context.Context) (transport.Broadcast, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	msg, err := c.bus.topics.at(ctx, c.cursor)
	if err == nil {
		c.cursor++
	}
	return msg, err
}

// Broadcast returns the i-th published message, blocking until it exists.
func (b *Bus) Broadcast(ctx context.Context, i int) (transport.Broadcast, error) {
	return b.topics.at(ctx, i)
}
