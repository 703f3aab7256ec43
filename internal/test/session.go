package test

import (
	"context"
	"time"

	"github.com/taurusgroup/secagg/pkg/params"
	"github.com/taurusgroup/secagg/pkg/party"
	"github.com/taurusgroup/secagg/protocols/secagg/coordinator"
	"github.com/taurusgroup/secagg/protocols/secagg/participant"
	"golang.org/x/sync/errgroup"
)

// Rule customizes the client at position i of a simulation.
type Rule func(i int, cfg *participant.Config)

// Outcome collects the results of a simulated session.
type Outcome struct {
	Result *coordinator.Result
	// Err is the coordinator's error.
	Err error
	// Outputs and Errs are indexed like the inputs.
	Outputs []*participant.Output
	Errs    []error
}

// Simulate runs a coordinator and one client per input over a Network.
//
// Clients register one after the other, so client i gets index i.
func Simulate(ctx context.Context, session params.Session, inputs [][]uint64, rule Rule) *Outcome {
	network := NewNetwork()
	defer network.Close()

	ids := PartyIDs(len(inputs))
	out := &Outcome{
		Outputs: make([]*participant.Output, len(inputs)),
		Errs:    make([]error, len(inputs)),
	}

	c, err := coordinator.New(coordinator.Config{Session: session}, network, network)
	if err != nil {
		out.Err = err
		return out
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	g.Go(func() error {
		out.Result, out.Err = c.Run(ctx)
		if out.Err != nil {
			// clients would otherwise wait for the next broadcast forever
			cancel()
		}
		return nil
	})

	for i := range inputs {
		i := i
		cfg := participant.Config{ID: ids[i], Session: session, Poll: time.Millisecond}
		if rule != nil {
			rule(i, &cfg)
		}
		client := network.Client(ids[i])
		g.Go(func() error {
			out.Outputs[i], out.Errs[i] = participant.Run(ctx, cfg, client, client, inputs[i])
			return nil
		})
		// wait for the hello to be processed so that indices are predictable
		waitRegistered(ctx, c, ids[i])
	}
	_ = g.Wait()
	return out
}

func waitRegistered(ctx context.Context, c *coordinator.Coordinator, id party.ID) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for !c.Registered(id) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sum adds the inputs of the given clients mod p.
func Sum(p uint64, inputs [][]uint64, clients []int) []uint64 {
	out := make([]uint64, len(inputs[0]))
	for _, i := range clients {
		for k, x := range inputs[i] {
			out[k] = (out[k] + x) % p
		}
	}
	return out
}
