package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/party"
	"github.com/taurusgroup/secagg/pkg/protocol"
	"github.com/taurusgroup/secagg/pkg/transport"
	"github.com/taurusgroup/secagg/pkg/wire"
	"github.com/taurusgroup/secagg/protocols/secagg/validity"
)

// advance runs the exit action of the current phase and moves to the next.
func (c *Coordinator) advance(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	switch c.phase {
	case phase.Registration:
		err = c.exitRegistration(ctx)
	case phase.KeyExchange:
		err = c.exitKeyExchange(ctx)
	case phase.InputSharing:
		err = c.exitInputSharing(ctx)
	case phase.ErrorCorrection:
		err = c.exitErrorCorrection(ctx)
	case phase.Aggregation:
		err = c.exitAggregation()
	default:
		err = fmt.Errorf("%w: %s", protocol.ErrUnknownPhase, c.phase)
	}
	if err != nil {
		var perr protocol.Error
		if errors.As(err, &perr) {
			return err
		}
		return protocol.Error{Phase: c.phase, Err: err}
	}

	next, err := c.phase.Next()
	if err != nil {
		return err
	}
	c.phase = next
	c.log.Info().Stringer("phase", next).Ints("dropouts", c.clients.Dropouts()).Msg("phase entered")
	c.reset(len(c.clients.Active()))
	return nil
}

// dropMissing adds the active clients that did not deliver in this phase to
// the dropout set.
func (c *Coordinator) dropMissing() {
	delivered := make(map[int]bool)
	for _, i := range c.deliveredSet() {
		delivered[i] = true
	}
	var missing []int
	for _, i := range c.clients.Active() {
		if !delivered[i] {
			missing = append(missing, i)
		}
	}
	if added := c.clients.Drop(missing...); len(added) > 0 {
		c.log.Info().Ints("clients", added).Stringer("phase", c.phase).Msg("clients dropped out")
	}
}

func (c *Coordinator) publish(ctx context.Context, topic phase.Topic, frames transport.Frames) error {
	if err := c.pub.Publish(ctx, topic, frames); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// exitRegistration closes the list and publishes the verification keys.
func (c *Coordinator) exitRegistration(ctx context.Context) error {
	c.clients.Close()
	n := c.clients.Len()
	if n == 0 {
		return fmt.Errorf("%w: nobody registered", protocol.ErrThreshold)
	}
	vks := make(transport.Frames, n)
	for i := range vks {
		vks[i] = c.profiles[i].vk.Bytes()
	}
	return c.publish(ctx, phase.TopicHandshake, vks)
}

// exitKeyExchange culls the clients without an exchange key, chooses the
// sharing parameters, and publishes both.
func (c *Coordinator) exitKeyExchange(ctx context.Context) error {
	c.dropMissing()
	n, active := c.clients.Len(), c.clients.Active()

	sharing, err := c.session.Param.Choose(c.session, n, len(active))
	if err != nil {
		return c.thresholdError(fmt.Errorf("%w: %v", protocol.ErrThreshold, err))
	}
	layout, err := validity.ForSession(c.session, sharing)
	if err != nil {
		return err
	}
	c.sharing, c.layout = sharing, layout
	c.log.Info().Int("d2", sharing.D2).Int("d3", sharing.D3).Int("L", sharing.L).Int("clients", n).Msg("sharing chosen")

	publics := make(transport.Frames, n)
	for i := range publics {
		if c.clients.Dropped(i) {
			publics[i] = []byte{}
			continue
		}
		publics[i] = c.profiles[i].exchange
	}
	if err = c.publish(ctx, phase.TopicKeys, publics); err != nil {
		return err
	}
	data, err := sharing.MarshalBinary()
	if err != nil {
		return err
	}
	return c.publish(ctx, phase.TopicInputSharing, transport.Frames{data})
}

// exitInputSharing drops the clients that did not share, and publishes the
// checks.
func (c *Coordinator) exitInputSharing(ctx context.Context) error {
	c.dropMissing()
	n := c.clients.Len()
	checks, err := validity.Generate(c.rand, c.layout, c.sharing, n)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrSharing, err)
	}
	c.checks = checks
	c.reports = make([][]*validity.Response, n)
	return c.publish(ctx, phase.TopicChecks, checks.Frames(c.clients.Dropouts()))
}

// exitErrorCorrection verifies every active contributor against the
// responses of the clients that answered, and publishes the dropout set.
//
// A contributor fails if any responder could not decrypt its shares, or if
// the interpolated checks are not zero.
func (c *Coordinator) exitErrorCorrection(ctx context.Context) error {
	c.dropMissing()
	responders := c.clients.Active()
	verifier, err := c.checks.Verifier(responders)
	if err != nil {
		return c.thresholdError(fmt.Errorf("%w: %v", protocol.ErrThreshold, err))
	}

	failures := make([]error, c.clients.Len())
	c.pl.ForEach(len(responders), func(k int) {
		i := responders[k]
		responses := make([]validity.Response, len(responders))
		for r, j := range responders {
			report := c.reports[j][i]
			if report == nil {
				failures[i] = fmt.Errorf("%w: client %d could not use the shares", protocol.ErrDecryption, j)
				return
			}
			responses[r] = *report
		}
		failures[i] = verifier.Verify(responses)
	})

	for i, err := range failures {
		if err != nil {
			c.failed = append(c.failed, i)
			c.log.Warn().Err(err).Int("client", i).Str("id", string(c.profiles[i].id)).Msg("client failed the checks")
		}
	}
	if len(c.failed) > 0 {
		c.log.Warn().Strs("culprits", idStrings(c.ids(c.failed))).Msg("excluded from the aggregate")
	}
	c.clients.Drop(c.failed...)
	c.contributors = c.clients.Active()
	c.aggregates = make([][]uint64, len(failures))
	return c.publish(ctx, phase.TopicAggregation, transport.Frames{wire.EncodeIndices(c.clients.Dropouts())})
}

// exitAggregation reconstructs the sum from the aggregates of the survivors.
func (c *Coordinator) exitAggregation() error {
	c.dropMissing()
	survivors := c.clients.Active()
	if len(survivors) < c.sharing.D2 {
		return c.thresholdError(fmt.Errorf("%w: %d aggregates, need %d", protocol.ErrThreshold, len(survivors), c.sharing.D2))
	}

	e, err := c.sharing.Engine(c.clients.Len(), c.layout.V, c.pl)
	if err != nil {
		return err
	}
	rows := make([][]uint64, len(survivors))
	for k, i := range survivors {
		rows[k] = c.aggregates[i]
	}
	aggregate, err := e.ReconstructIndices(rows, survivors)
	if err != nil {
		return err
	}

	c.result = &Result{
		Aggregate:    aggregate,
		Clients:      c.clients.IDs(),
		Survivors:    survivors,
		Dropouts:     c.clients.Dropouts(),
		Failed:       c.failed,
		Sharing:      c.sharing,
		Contributors: c.contributors,
	}
	c.log.Info().Int("survivors", len(survivors)).Int("contributors", len(c.contributors)).Msg("aggregate reconstructed")
	return nil
}

// thresholdError scopes err to the current phase, blaming the dropouts.
func (c *Coordinator) thresholdError(err error) error {
	dropouts := c.clients.Dropouts()
	return protocol.Error{Phase: c.phase, Culprits: c.ids(dropouts), Indices: dropouts, Err: err}
}

func (c *Coordinator) ids(indices []int) []party.ID {
	out := make([]party.ID, len(indices))
	for k, i := range indices {
		out[k] = c.clients.ID(i)
	}
	return out
}

func idStrings(ids []party.ID) []string {
	out := make([]string, len(ids))
	for k, id := range ids {
		out[k] = string(id)
	}
	return out
}
