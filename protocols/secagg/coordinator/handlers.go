package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/keys"
	"github.com/taurusgroup/secagg/pkg/party"
	"github.com/taurusgroup/secagg/pkg/protocol"
	"github.com/taurusgroup/secagg/pkg/transport"
	"github.com/taurusgroup/secagg/pkg/wire"
	"github.com/taurusgroup/secagg/protocols/secagg"
	"github.com/taurusgroup/secagg/protocols/secagg/validity"
)

// handle processes one inbound message. Failures are reported to the sender
// and never stop the session.
func (c *Coordinator) handle(ctx context.Context, env transport.Envelope) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	log := c.log.With().Str("from", string(env.From)).Stringer("phase", c.phase).Logger()

	var (
		reply transport.Frames
		err   error
	)
	switch c.phase {
	case phase.Registration:
		reply, err = c.handleHello(env)
	case phase.KeyExchange:
		reply, err = c.handleKeyExchange(env)
	case phase.InputSharing:
		err = c.handleShares(ctx, env)
	case phase.ErrorCorrection:
		err = c.handleResponses(env)
	case phase.Aggregation:
		reply, err = c.handleAggregate(env)
	default:
		err = fmt.Errorf("%w: %s", protocol.ErrUnknownPhase, c.phase)
	}

	if err != nil {
		log.Warn().Err(err).Msg("message rejected")
		reply = transport.Frames{wire.ErrorReply(err)}
	} else {
		log.Debug().Msg("message accepted")
	}
	if reply == nil {
		return
	}
	if err = c.router.Send(ctx, env.From, reply); err != nil {
		log.Warn().Err(err).Msg("failed to reply")
	}
}

// client returns the index and profile of an active client.
func (c *Coordinator) client(id party.ID) (int, *profile, error) {
	i, err := c.clients.Index(id)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s", protocol.ErrClientNotFound, id)
	}
	if c.clients.Dropped(i) {
		return 0, nil, fmt.Errorf("%w: %s dropped out", protocol.ErrClientNotFound, id)
	}
	return i, c.profiles[i], nil
}

func alreadyDelivered(id party.ID) error {
	return fmt.Errorf("%w: %s already delivered in this phase", protocol.ErrUnexpectedFormat, id)
}

// handleHello registers a client and replies with its signing key.
func (c *Coordinator) handleHello(env transport.Envelope) (transport.Frames, error) {
	if len(env.Frames) != 1 {
		return nil, fmt.Errorf("%w: hello has %d frames", protocol.ErrUnexpectedFormat, len(env.Frames))
	}
	id, err := wire.ParseHello(env.Frames[0])
	if err != nil || id != env.From {
		return nil, fmt.Errorf("%w: invalid hello", protocol.ErrUnexpectedFormat)
	}

	sk, err := keys.GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	i, err := c.clients.Add(id)
	switch {
	case errors.Is(err, party.ErrDuplicate):
		return nil, fmt.Errorf("%w: %s", protocol.ErrClientExists, id)
	case errors.Is(err, party.ErrFull):
		return nil, fmt.Errorf("%w: %d", protocol.ErrMaxClients, c.session.MaxClients)
	case err != nil:
		return nil, err
	}
	c.profiles[i] = &profile{id: id, vk: sk.VerificationKey()}
	c.claim(i)
	return transport.Frames{sk.Bytes()}, nil
}

// handleKeyExchange stores a client's signed exchange key.
func (c *Coordinator) handleKeyExchange(env transport.Envelope) (transport.Frames, error) {
	i, p, err := c.client(env.From)
	if err != nil {
		return nil, err
	}
	if len(env.Frames) != 2 {
		return nil, fmt.Errorf("%w: key exchange has %d frames", protocol.ErrUnexpectedFormat, len(env.Frames))
	}
	public, err := keys.ParseExchangePublic(env.Frames[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrUnexpectedFormat, err)
	}
	if err = p.vk.Verify(secagg.ContextKeyExchange, env.Frames[0], env.Frames[1]); err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrSignature, err)
	}
	if err = c.claimExchange(i, public); err != nil {
		return nil, err
	}
	p.exchange = public
	return transport.Frames{[]byte(secagg.AckKeyExchange)}, nil
}

// handleShares forwards the j-th ciphertext of a client to client j, prefixed
// by the sender's exchange key.
func (c *Coordinator) handleShares(ctx context.Context, env transport.Envelope) error {
	i, p, err := c.client(env.From)
	if err != nil {
		return err
	}
	n := c.clients.Len()
	if len(env.Frames) != n {
		return fmt.Errorf("%w: %d ciphertexts for %d clients", protocol.ErrUnexpectedFormat, len(env.Frames), n)
	}
	active := c.clients.Active()
	for _, j := range active {
		if len(env.Frames[j]) == 0 {
			return fmt.Errorf("%w: missing ciphertext for client %d", protocol.ErrUnexpectedFormat, j)
		}
	}
	if !c.claim(i) {
		return alreadyDelivered(env.From)
	}
	for _, j := range active {
		frames := transport.Frames{p.exchange, env.Frames[j]}
		if err = c.router.Send(ctx, c.profiles[j].id, frames); err != nil {
			c.log.Warn().Err(err).Int("from", i).Int("to", j).Msg("failed to forward share")
		}
	}
	return nil
}

// handleResponses stores a client's check responses, one frame per
// contributor.
func (c *Coordinator) handleResponses(env transport.Envelope) error {
	j, _, err := c.client(env.From)
	if err != nil {
		return err
	}
	n := c.clients.Len()
	if len(env.Frames) != n {
		return fmt.Errorf("%w: %d responses for %d clients", protocol.ErrUnexpectedFormat, len(env.Frames), n)
	}
	f, err := c.sharing.Field()
	if err != nil {
		return err
	}
	row := make([]*validity.Response, n)
	for i, frame := range env.Frames {
		if len(frame) == 0 {
			continue
		}
		var r validity.Response
		if err = r.UnmarshalBinary(frame); err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrUnexpectedFormat, err)
		}
		if !f.Contains(r.Degree) || !f.Contains(r.A) || !f.Contains(r.B) {
			return fmt.Errorf("%w: response about %d is not in the field", protocol.ErrUnexpectedFormat, i)
		}
		row[i] = &r
	}
	if !c.claim(j) {
		return alreadyDelivered(env.From)
	}
	c.reports[j] = row
	return nil
}

// handleAggregate stores a client's signed aggregate.
func (c *Coordinator) handleAggregate(env transport.Envelope) (transport.Frames, error) {
	i, p, err := c.client(env.From)
	if err != nil {
		return nil, err
	}
	if len(env.Frames) != 2 {
		return nil, fmt.Errorf("%w: aggregate has %d frames", protocol.ErrUnexpectedFormat, len(env.Frames))
	}
	aggregate, err := wire.DecodeScalarsN(env.Frames[0], c.layout.Blocks())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrUnexpectedFormat, err)
	}
	f, err := c.sharing.Field()
	if err != nil {
		return nil, err
	}
	for _, x := range aggregate {
		if !f.Contains(x) {
			return nil, fmt.Errorf("%w: aggregate is not in the field", protocol.ErrUnexpectedFormat)
		}
	}
	if err = p.vk.Verify(secagg.ContextAggregate, env.Frames[0], env.Frames[1]); err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrSignature, err)
	}
	if !c.claim(i) {
		return nil, alreadyDelivered(env.From)
	}
	c.aggregates[i] = aggregate
	return transport.Frames{[]byte(secagg.AckAggregate)}, nil
}
