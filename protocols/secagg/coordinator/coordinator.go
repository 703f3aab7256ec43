// Package coordinator implements the server side of a secure aggregation
// session.
//
// The coordinator never sees an input. It assigns signing keys, relays the
// encrypted shares between clients, checks the clients' inputs through the
// responses of the other clients and finally reconstructs the sum of the
// surviving clients' inputs from their aggregated shares.
package coordinator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/keys"
	"github.com/taurusgroup/secagg/pkg/math/sample"
	"github.com/taurusgroup/secagg/pkg/params"
	"github.com/taurusgroup/secagg/pkg/party"
	"github.com/taurusgroup/secagg/pkg/pool"
	"github.com/taurusgroup/secagg/pkg/protocol"
	"github.com/taurusgroup/secagg/pkg/transport"
	"github.com/taurusgroup/secagg/protocols/secagg/validity"
	"golang.org/x/sync/errgroup"
)

// Config configures a session.
type Config struct {
	Session params.Session
	// Log defaults to a disabled logger.
	Log *zerolog.Logger
	// Pool parallelizes the checks and the reconstruction. It may be nil.
	Pool *pool.Pool
	// Workers is the number of goroutines handling inbound messages.
	Workers int
	// Rand is the source of the checks, crypto/rand by default.
	Rand io.Reader
	// Seed, if set and Rand is nil, makes the checks replayable by anyone
	// holding it.
	Seed []byte
}

// Result is the outcome of a successful session.
type Result struct {
	// Aggregate is the sum of the contributors' inputs, mod p.
	Aggregate []uint64 `cbor:"1,keyasint"`
	// Clients is the client list, indexed by client index.
	Clients []party.ID `cbor:"2,keyasint"`
	// Survivors are the indices whose aggregates were used to reconstruct.
	Survivors []int `cbor:"3,keyasint"`
	// Dropouts are all the indices outside Survivors. A client that dropped
	// out during aggregation is both a dropout and a contributor.
	Dropouts []int `cbor:"4,keyasint"`
	// Failed are the dropouts that did not pass the checks.
	Failed  []int          `cbor:"5,keyasint"`
	Sharing params.Sharing `cbor:"6,keyasint"`
	// Contributors are the indices whose inputs are in Aggregate, fixed when
	// the aggregation set is published.
	Contributors []int `cbor:"7,keyasint"`
}

// profile is what the coordinator knows about a client.
type profile struct {
	id       party.ID
	vk       *keys.VerificationKey
	exchange []byte
}

// Coordinator runs one session. It must not be reused.
type Coordinator struct {
	session params.Session
	router  transport.Router
	pub     transport.Publisher
	pl      *pool.Pool
	rand    io.Reader
	workers int
	log     zerolog.Logger

	// mu is held for reading while a message is handled, and for writing
	// while leaving a phase.
	mu      sync.RWMutex
	phase   phase.Number
	clients *party.List
	// profiles[i] is set once, when client i registers.
	profiles []*profile
	sharing  params.Sharing
	layout   validity.Layout
	checks   *validity.Checks
	// reports[j][i] is client j's response about contributor i, nil if j
	// could not decrypt i's shares.
	reports      [][]*validity.Response
	aggregates   [][]uint64
	failed       []int
	contributors []int
	result       *Result

	// slotMtx guards the delivery bookkeeping of the current phase.
	slotMtx   sync.Mutex
	delivered []bool
	count     int
	expected  int
	// exchanges maps each accepted exchange key to its owner.
	exchanges map[string]int

	notify chan struct{}
}

// New returns a coordinator for a session, serving on router and publisher.
func New(cfg Config, router transport.Router, publisher transport.Publisher) (*Coordinator, error) {
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		session:   cfg.Session,
		router:    router,
		pub:       publisher,
		pl:        cfg.Pool,
		rand:      cfg.Rand,
		workers:   cfg.Workers,
		phase:     phase.Registration,
		clients:   party.NewList(cfg.Session.MaxClients),
		profiles:  make([]*profile, cfg.Session.MaxClients),
		delivered: make([]bool, cfg.Session.MaxClients),
		exchanges: make(map[string]int),
		expected:  cfg.Session.MaxClients,
		notify:    make(chan struct{}, 1),
	}
	if c.rand == nil && len(cfg.Seed) > 0 {
		c.rand = sample.Stream("checks", cfg.Seed)
	}
	if c.rand == nil {
		c.rand = rand.Reader
	}
	if c.workers <= 0 {
		c.workers = 4
	}
	if cfg.Log != nil {
		c.log = cfg.Log.With().Str("protocol", "secagg").Str("role", "coordinator").Logger()
	} else {
		c.log = zerolog.Nop()
	}
	return c, nil
}

// Phase returns the current phase.
func (c *Coordinator) Phase() phase.Number {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Run serves the session until the aggregate is reconstructed, the session
// fails, or ctx is done.
//
// Failures for lack of clients are returned as a protocol.Error naming the
// phase.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	jobs := make(chan transport.Envelope)
	g.Go(func() error {
		defer close(jobs)
		for {
			env, err := c.router.Recv(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			select {
			case jobs <- env:
			case <-ctx.Done():
				return nil
			}
		}
	})
	for w := 0; w < c.workers; w++ {
		g.Go(func() error {
			for env := range jobs {
				c.handle(ctx, env)
			}
			return nil
		})
	}

	var result *Result
	g.Go(func() error {
		defer cancel()
		var err error
		result, err = c.loop(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, context.Canceled
	}
	return result, nil
}

// loop waits for the end of each phase, and leaves it.
func (c *Coordinator) loop(ctx context.Context) (*Result, error) {
	for {
		p := c.Phase()
		if p == phase.Reconstructed {
			return c.result, nil
		}
		c.log.Info().Stringer("phase", p).Int("expected", c.expectedCount()).Msg("phase started")

		timer := time.NewTimer(c.budget(p))
	wait:
		for !c.complete() {
			select {
			case <-c.notify:
			case <-timer.C:
				c.log.Info().Stringer("phase", p).Msg("phase timed out")
				break wait
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
		timer.Stop()

		if err := c.advance(ctx); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Error().Err(err).Stringer("phase", p).Msg("session failed")
			return nil, err
		}
	}
}

func (c *Coordinator) budget(p phase.Number) time.Duration {
	if p == phase.InputSharing {
		return c.session.InputSharingBudget()
	}
	return c.session.PhaseBudget()
}

// claim records that client i delivered in the current phase. It reports
// false if i already had.
func (c *Coordinator) claim(i int) bool {
	c.slotMtx.Lock()
	defer c.slotMtx.Unlock()
	if c.delivered[i] {
		return false
	}
	c.delivered[i] = true
	c.count++
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// claimExchange is claim for the key exchange, also rejecting a public key
// already accepted from another client.
func (c *Coordinator) claimExchange(i int, public []byte) error {
	c.slotMtx.Lock()
	defer c.slotMtx.Unlock()
	if owner, ok := c.exchanges[string(public)]; ok && owner != i {
		return fmt.Errorf("%w: exchange key already used by client %d", protocol.ErrUnexpectedFormat, owner)
	}
	if c.delivered[i] {
		return alreadyDelivered(c.profiles[i].id)
	}
	c.exchanges[string(public)] = i
	c.delivered[i] = true
	c.count++
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *Coordinator) complete() bool {
	c.slotMtx.Lock()
	defer c.slotMtx.Unlock()
	return c.count >= c.expected
}

func (c *Coordinator) expectedCount() int {
	c.slotMtx.Lock()
	defer c.slotMtx.Unlock()
	return c.expected
}

// deliveredSet returns the indices that delivered in the current phase.
func (c *Coordinator) deliveredSet() []int {
	c.slotMtx.Lock()
	defer c.slotMtx.Unlock()
	var out []int
	for i, ok := range c.delivered {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// reset starts the bookkeeping of a new phase.
func (c *Coordinator) reset(expected int) {
	c.slotMtx.Lock()
	defer c.slotMtx.Unlock()
	for i := range c.delivered {
		c.delivered[i] = false
	}
	c.count = 0
	c.expected = expected
}

// Registered reports whether id is in the client list.
func (c *Coordinator) Registered(id party.ID) bool {
	_, err := c.clients.Index(id)
	return err == nil
}
