package secagg_test

import (
	"context"
	"crypto/rand"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/internal/test"
	"github.com/taurusgroup/secagg/pkg/math/sample"
	"github.com/taurusgroup/secagg/pkg/params"
	"github.com/taurusgroup/secagg/pkg/pool"
	"github.com/taurusgroup/secagg/pkg/protocol"
	"github.com/taurusgroup/secagg/pkg/transport/httpbus"
	"github.com/taurusgroup/secagg/protocols/secagg/coordinator"
	"github.com/taurusgroup/secagg/protocols/secagg/participant"
	"github.com/taurusgroup/secagg/protocols/secagg/validity"
	"golang.org/x/sync/errgroup"
)

func session(clients, v, bits int, malicious bool) params.Session {
	s := params.DefaultSession()
	s.MaxClients = clients
	s.VectorSize = v
	s.InputBits = bits
	s.Malicious = malicious
	s.SessionMS = 5000
	return s
}

func randomInputs(n int, s params.Session) [][]uint64 {
	inputs := make([][]uint64, n)
	for i := range inputs {
		inputs[i] = sample.Bounded(rand.Reader, s.VectorSize, s.InputBits)
	}
	return inputs
}

func TestSemiHonestTwoClients(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := session(2, 1000, 16, false)
	ones := make([]uint64, 1000)
	for i := range ones {
		ones[i] = 1
	}
	out := test.Simulate(ctx, s, [][]uint64{ones, ones}, nil)
	require.NoError(t, out.Err)
	for _, err := range out.Errs {
		require.NoError(t, err)
	}

	twos := make([]uint64, 1000)
	for i := range twos {
		twos[i] = 2
	}
	assert.Equal(t, twos, out.Result.Aggregate)
	assert.Equal(t, []int{0, 1}, out.Result.Survivors)
	assert.Empty(t, out.Result.Dropouts)
}

func TestSemiHonestMany(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := session(7, 60, 20, false)
	s.ExpectedDropouts = 2
	inputs := randomInputs(7, s)
	pl := pool.NewPool(2)
	defer pl.TearDown()
	out := test.Simulate(ctx, s, inputs, func(i int, cfg *participant.Config) {
		if i%2 == 0 {
			cfg.Pool = pl
		}
	})
	require.NoError(t, out.Err)
	assert.Equal(t, test.Sum(s.Param.P, inputs, []int{0, 1, 2, 3, 4, 5, 6}), out.Result.Aggregate)
	assert.Equal(t, 4, out.Result.Sharing.D2)
	assert.Equal(t, 9, out.Result.Sharing.D3)
}

func TestMaliciousWrongSquareExcluded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := session(4, 8, 4, true)
	inputs := make([][]uint64, 4)
	for i := range inputs {
		inputs[i] = []uint64{3, 3, 3, 3, 3, 3, 3, 3}
	}
	out := test.Simulate(ctx, s, inputs, func(i int, cfg *participant.Config) {
		if i == 3 {
			cfg.Tamper = func(l validity.Layout, encoded []uint64) {
				for k := 0; k < l.V; k++ {
					encoded[l.SquareIndex(k)] = 9 + 1
				}
			}
		}
	})
	require.NoError(t, out.Err)
	assert.Equal(t, []int{3}, out.Result.Failed)
	assert.Equal(t, []int{3}, out.Result.Dropouts)
	assert.Equal(t, []int{0, 1, 2}, out.Result.Survivors)
	assert.Equal(t, test.Sum(s.Param.P, inputs, []int{0, 1, 2}), out.Result.Aggregate)

	assert.ErrorIs(t, out.Errs[3], participant.ErrExcluded)
	for i := 0; i < 3; i++ {
		require.NoError(t, out.Errs[i])
		assert.Equal(t, []int{3}, out.Outputs[i].Dropouts)
	}
}

func TestMaliciousHonestClientsPass(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := session(5, 12, 6, true)
	inputs := randomInputs(5, s)
	out := test.Simulate(ctx, s, inputs, nil)
	require.NoError(t, out.Err)
	assert.Empty(t, out.Result.Failed)
	assert.Equal(t, test.Sum(s.Param.P, inputs, []int{0, 1, 2, 3, 4}), out.Result.Aggregate)
}

func TestClientSilentAfterRegistration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := session(3, 10, 8, false)
	s.SessionMS = 300
	inputs := randomInputs(3, s)
	out := test.Simulate(ctx, s, inputs, func(i int, cfg *participant.Config) {
		if i == 2 {
			cfg.StopAfter = phase.Registration
		}
	})
	require.NoError(t, out.Err)
	assert.Len(t, out.Result.Clients, 3)
	assert.Equal(t, []int{2}, out.Result.Dropouts)
	assert.Equal(t, []int{0, 1}, out.Result.Survivors)
	assert.Empty(t, out.Result.Failed)
	assert.Equal(t, test.Sum(s.Param.P, inputs, []int{0, 1}), out.Result.Aggregate)
	assert.True(t, out.Outputs[2].Stopped)
}

func TestClientSilentAfterSharing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := session(4, 10, 8, false)
	s.SessionMS = 300
	s.ExpectedDropouts = 1
	inputs := randomInputs(4, s)
	out := test.Simulate(ctx, s, inputs, func(i int, cfg *participant.Config) {
		if i == 1 {
			cfg.StopAfter = phase.InputSharing
		}
	})
	require.NoError(t, out.Err)
	assert.Equal(t, []int{1}, out.Result.Dropouts)
	assert.Equal(t, []int{0, 2, 3}, out.Result.Contributors)
	assert.Equal(t, test.Sum(s.Param.P, inputs, []int{0, 2, 3}), out.Result.Aggregate)
}

func TestClientSilentAfterChecks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := session(4, 10, 8, false)
	s.SessionMS = 300
	s.ExpectedDropouts = 1
	inputs := randomInputs(4, s)
	out := test.Simulate(ctx, s, inputs, func(i int, cfg *participant.Config) {
		if i == 1 {
			cfg.StopAfter = phase.ErrorCorrection
		}
	})
	require.NoError(t, out.Err)
	require.True(t, out.Outputs[1].Stopped)

	// Client 1 passed the checks, so the others summed its shares before it
	// went silent.
	assert.Equal(t, []int{0, 1, 2, 3}, out.Result.Contributors)
	assert.Equal(t, []int{0, 2, 3}, out.Result.Survivors)
	assert.Equal(t, []int{1}, out.Result.Dropouts)
	assert.Empty(t, out.Result.Failed)
	assert.Equal(t, test.Sum(s.Param.P, inputs, []int{0, 1, 2, 3}), out.Result.Aggregate)
}

func TestNotEnoughClients(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := session(3, 8, 4, true)
	s.SessionMS = 200
	inputs := randomInputs(3, s)
	out := test.Simulate(ctx, s, inputs, func(i int, cfg *participant.Config) {
		if i > 0 {
			cfg.StopAfter = phase.Registration
		}
	})
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, protocol.ErrThreshold)
	var perr protocol.Error
	require.ErrorAs(t, out.Err, &perr)
	assert.Equal(t, phase.KeyExchange, perr.Phase)
	assert.Equal(t, []int{1, 2}, perr.Indices)
	assert.Equal(t, test.PartyIDs(3)[1:], perr.Culprits)
}

func TestOverHTTP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := session(3, 20, 8, false)
	bus := httpbus.NewServer(100 * time.Millisecond)
	defer bus.Close()
	unicast := httptest.NewServer(bus.UnicastHandler())
	defer unicast.Close()
	publish := httptest.NewServer(bus.PublishHandler())
	defer publish.Close()

	c, err := coordinator.New(coordinator.Config{Session: s}, bus, bus)
	require.NoError(t, err)

	inputs := randomInputs(3, s)
	var g errgroup.Group
	var result *coordinator.Result
	g.Go(func() error {
		var err error
		result, err = c.Run(ctx)
		return err
	})
	for i, id := range test.PartyIDs(3) {
		i, id := i, id
		g.Go(func() error {
			conn := httpbus.Dial(id, unicast.URL, publish.URL)
			_, err := participant.Run(ctx, participant.Config{ID: id, Session: s}, conn, conn, inputs[i])
			return err
		})
	}
	require.NoError(t, g.Wait())

	// registration order is not fixed here
	assert.Len(t, result.Survivors, 3)
	assert.Equal(t, test.Sum(s.Param.P, inputs, []int{0, 1, 2}), result.Aggregate)
}
