// Package participant implements the client side of a secure aggregation
// session.
package participant

import (
	"bytes"
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
	"github.com/taurusgroup/secagg/pkg/math/field"
	"github.com/taurusgroup/secagg/pkg/params"
	"github.com/taurusgroup/secagg/pkg/party"
	"github.com/taurusgroup/secagg/pkg/pool"
	"github.com/taurusgroup/secagg/pkg/protocol"
	"github.com/taurusgroup/secagg/pkg/transport"
	"github.com/taurusgroup/secagg/pkg/wire"
	"github.com/taurusgroup/secagg/protocols/secagg"
	"github.com/taurusgroup/secagg/protocols/secagg/validity"
)

// ErrExcluded is returned when the coordinator dropped this client.
var ErrExcluded = errors.New("participant: excluded from the session")

// Config configures a client.
type Config struct {
	ID      party.ID
	Session params.Session
	// Log defaults to a disabled logger.
	Log *zerolog.Logger
	// Rand defaults to crypto/rand.
	Rand io.Reader
	// Pool, if set, is used to share the blocks of the input in parallel.
	Pool *pool.Pool
	// Poll is the interval at which the broadcast buffer is checked.
	Poll time.Duration

	// Tamper, if set, may rewrite the encoded input before it is shared.
	Tamper func(l validity.Layout, encoded []uint64)
	// StopAfter, if set, makes the client go silent once it has done its
	// part of the given phase.
	StopAfter phase.Number
}

// Output describes the client's view of a finished session.
type Output struct {
	// Index is the client's position in the list, or -1 if it stopped
	// before learning it.
	Index int
	// Dropouts is the final dropout set.
	Dropouts []int
	// Stopped is set when the client went silent because of StopAfter.
	Stopped bool
}

type participant struct {
	cfg    Config
	dealer transport.Dealer
	topics *topics
	log    zerolog.Logger

	sk       *keys.SigningKey
	exchange *keys.ExchangeKey
	index    int
	n        int
}

// Run takes part in a session with the given input, whose coordinates must
// be below 2ˢ.
func Run(ctx context.Context, cfg Config, dealer transport.Dealer, sub transport.Subscriber, input []uint64) (*Output, error) {
	if cfg.ID == "" {
		cfg.ID = party.NewID()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 10 * time.Millisecond
	}
	p := &participant{
		cfg:    cfg,
		dealer: dealer,
		topics: newTopics(),
		index:  -1,
	}
	if cfg.Log != nil {
		p.log = cfg.Log.With().Str("protocol", "secagg").Str("party", string(cfg.ID)).Logger()
	} else {
		p.log = zerolog.Nop()
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.topics.run(ctx, sub)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	return p.run(ctx, input)
}

func (p *participant) run(ctx context.Context, input []uint64) (*Output, error) {
	steps := []struct {
		phase phase.Number
		do    func(context.Context) error
	}{
		{phase.Registration, p.register},
		{phase.KeyExchange, p.handshake},
	}
	for _, step := range steps {
		if err := p.step(ctx, step.phase, step.do); err != nil {
			return nil, err
		}
		if p.cfg.StopAfter == step.phase {
			return &Output{Index: p.index, Stopped: true}, nil
		}
	}

	var s *session
	err := p.step(ctx, phase.InputSharing, func(ctx context.Context) error {
		var err error
		s, err = p.share(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	if p.cfg.StopAfter == phase.InputSharing {
		return &Output{Index: p.index, Stopped: true}, nil
	}
	if err = p.step(ctx, phase.ErrorCorrection, s.respond); err != nil {
		return nil, err
	}
	if p.cfg.StopAfter == phase.ErrorCorrection {
		return &Output{Index: p.index, Stopped: true}, nil
	}
	var dropouts []int
	err = p.step(ctx, phase.Aggregation, func(ctx context.Context) error {
		var err error
		dropouts, err = s.aggregate(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.log.Info().Int("index", p.index).Msg("session complete")
	return &Output{Index: p.index, Dropouts: dropouts}, nil
}

// step runs do with the logger and errors scoped to phase n.
func (p *participant) step(ctx context.Context, n phase.Number, do func(context.Context) error) error {
	p.log.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Stringer("phase", n)
	})
	p.log.Debug().Msg("phase started")
	if err := do(ctx); err != nil {
		var perr protocol.Error
		if errors.As(err, &perr) {
			return err
		}
		return protocol.Error{Phase: n, Err: err}
	}
	return nil
}

func (p *participant) send(ctx context.Context, frames ...[]byte) error {
	if err := p.dealer.Send(ctx, frames); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrSend, err)
	}
	return nil
}

// recv returns the next unicast message, failing on error replies.
func (p *participant) recv(ctx context.Context) (transport.Frames, error) {
	frames, err := p.dealer.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if err = wire.ReplyError(frames); err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrUnexpectedReply, err)
	}
	return frames, nil
}

func (p *participant) expectAck(ctx context.Context, ack string) error {
	frames, err := p.recv(ctx)
	if err != nil {
		return err
	}
	if len(frames) != 1 || string(frames[0]) != ack {
		return fmt.Errorf("%w: expected %q", protocol.ErrUnexpectedReply, ack)
	}
	return nil
}

// register says hello and stores the signing key assigned by the coordinator.
func (p *participant) register(ctx context.Context) error {
	if err := p.send(ctx, wire.Hello(p.cfg.ID)); err != nil {
		return err
	}
	frames, err := p.recv(ctx)
	if err != nil {
		return err
	}
	if len(frames) != 1 {
		return fmt.Errorf("%w: registration reply has %d frames", protocol.ErrUnexpectedReply, len(frames))
	}
	if p.sk, err = keys.ParseSigningKey(frames[0]); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrUnexpectedReply, err)
	}
	return nil
}

// handshake learns the client's index from the published verification keys,
// and sends a signed exchange key.
func (p *participant) handshake(ctx context.Context) error {
	vks, err := p.topics.await(ctx, phase.TopicHandshake, p.cfg.Poll)
	if err != nil {
		return err
	}
	own := p.sk.VerificationKey().Bytes()
	for i, vk := range vks {
		if bytes.Equal(vk, own) {
			p.index = i
		}
	}
	if p.index < 0 {
		return fmt.Errorf("%w: verification key not published", ErrExcluded)
	}
	p.n = len(vks)
	p.log.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Int("index", p.index)
	})

	if p.exchange, err = keys.GenerateExchangeKey(); err != nil {
		return err
	}
	public := p.exchange.Public()
	if err = p.send(ctx, public, p.sk.Sign(secagg.ContextKeyExchange, public)); err != nil {
		return err
	}
	return p.expectAck(ctx, secagg.AckKeyExchange)
}

// session holds what a client needs once it has shared its input.
type session struct {
	*participant
	f        field.Prime[uint64]
	layout   validity.Layout
	sharing  params.Sharing
	channels []*keys.Channel
	senders  map[string]int
	rows     [][]uint64
}

// share encrypts one share row for every active client, itself included.
func (p *participant) share(ctx context.Context, input []uint64) (*session, error) {
	ek := p.exchange
	public := ek.Public()
	publics, err := p.topics.await(ctx, phase.TopicKeys, p.cfg.Poll)
	if err != nil {
		return nil, err
	}
	if len(publics) != p.n {
		return nil, fmt.Errorf("%w: %d exchange keys for %d clients", protocol.ErrUnexpectedReply, len(publics), p.n)
	}
	if !bytes.Equal(publics[p.index], public) {
		return nil, fmt.Errorf("%w: exchange key not published", ErrExcluded)
	}
	frames, err := p.topics.await(ctx, phase.TopicInputSharing, p.cfg.Poll)
	if err != nil {
		return nil, err
	}
	s := &session{
		participant: p,
		channels:    make([]*keys.Channel, p.n),
		senders:     make(map[string]int, p.n),
		rows:        make([][]uint64, p.n),
	}
	if len(frames) != 1 {
		return nil, fmt.Errorf("%w: sharing has %d frames", protocol.ErrUnexpectedReply, len(frames))
	}
	if err = s.sharing.UnmarshalBinary(frames[0]); err != nil {
		return nil, err
	}
	if s.f, err = s.sharing.Field(); err != nil {
		return nil, err
	}
	if s.layout, err = validity.ForSession(p.cfg.Session, s.sharing); err != nil {
		return nil, err
	}

	encoded, err := s.layout.Encode(p.cfg.Rand, s.f, input)
	if err != nil {
		return nil, err
	}
	if p.cfg.Tamper != nil {
		p.cfg.Tamper(s.layout, encoded)
	}
	e, err := s.sharing.Engine(p.n, s.layout.Len(), p.cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrSharing, err)
	}
	if p.cfg.Pool != nil {
		e.SetRand(pool.NewLockedReader(p.cfg.Rand))
	} else {
		e.SetRand(p.cfg.Rand)
	}
	shares, err := e.Share(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrSharing, err)
	}

	ciphertexts := make([][]byte, p.n)
	for j, pk := range publics {
		if len(pk) == 0 {
			ciphertexts[j] = []byte{}
			continue
		}
		if s.channels[j], err = ek.Channel(pk); err != nil {
			return nil, fmt.Errorf("%w: client %d: %v", protocol.ErrUnexpectedReply, j, err)
		}
		s.senders[string(pk)] = j
		ciphertexts[j] = s.channels[j].Seal(wire.EncodeScalars(shares[j]))
	}
	return s, p.send(ctx, ciphertexts...)
}

// respond collects the shares forwarded by the coordinator and answers the
// checks for every contributor.
func (s *session) respond(ctx context.Context) error {
	frames, err := s.topics.await(ctx, phase.TopicChecks, s.cfg.Poll)
	if err != nil {
		return err
	}
	dropouts, checks, err := validity.Parse(frames, s.layout, s.sharing, s.n)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrUnexpectedReply, err)
	}
	dropped := indexSet(dropouts)
	if dropped[s.index] {
		return ErrExcluded
	}

	// every accepted contributor was forwarded to us before the checks
	// were published
	recvCtx, cancel := context.WithTimeout(ctx, s.cfg.Session.PhaseBudget())
	defer cancel()
	for k := 0; k < s.n-len(dropouts); k++ {
		msg, err := s.recv(recvCtx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn().Err(err).Int("missing", s.n-len(dropouts)-k).Msg("stopped waiting for shares")
			break
		}
		if err = s.store(msg); err != nil {
			s.log.Warn().Err(err).Msg("discarding share")
		}
	}

	responses := make([][]byte, s.n)
	for i, row := range s.rows {
		if dropped[i] || row == nil {
			responses[i] = []byte{}
			continue
		}
		r, err := checks.Respond(s.index, row)
		if err != nil {
			return err
		}
		if responses[i], err = r.MarshalBinary(); err != nil {
			return err
		}
	}
	return s.send(ctx, responses...)
}

// store decrypts a forwarded share row.
func (s *session) store(msg transport.Frames) error {
	if len(msg) != 2 {
		return fmt.Errorf("%w: share has %d frames", protocol.ErrUnexpectedReply, len(msg))
	}
	i, ok := s.senders[string(msg[0])]
	if !ok {
		return protocol.ErrUnidentified
	}
	plaintext, err := s.channels[i].Open(msg[1])
	if err != nil {
		return blame(phase.ErrorCorrection, i, protocol.ErrDecryption)
	}
	row, err := wire.DecodeScalarsN(plaintext, s.layout.SharedBlocks())
	if err != nil {
		return blame(phase.ErrorCorrection, i, fmt.Errorf("%w: %v", protocol.ErrDecryption, err))
	}
	for _, x := range row {
		if !s.f.Contains(x) {
			return blame(phase.ErrorCorrection, i, fmt.Errorf("%w: %v", protocol.ErrDecryption, field.ErrNotInField))
		}
	}
	s.rows[i] = row
	return nil
}

func blame(n phase.Number, client int, err error) error {
	return protocol.Error{Phase: n, Indices: []int{client}, Err: err}
}

// aggregate sums the input blocks of the surviving contributors, and sends
// the signed sum.
func (s *session) aggregate(ctx context.Context) ([]int, error) {
	frames, err := s.topics.await(ctx, phase.TopicAggregation, s.cfg.Poll)
	if err != nil {
		return nil, err
	}
	if len(frames) != 1 {
		return nil, fmt.Errorf("%w: dropouts have %d frames", protocol.ErrUnexpectedReply, len(frames))
	}
	dropouts, err := wire.DecodeIndices(frames[0], s.n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrUnexpectedReply, err)
	}
	dropped := indexSet(dropouts)
	if dropped[s.index] {
		return nil, ErrExcluded
	}

	sum := make([]uint64, s.layout.Blocks())
	for i, row := range s.rows {
		if dropped[i] {
			continue
		}
		if row == nil {
			return nil, blame(phase.Aggregation, i, fmt.Errorf("%w: no share from a surviving client", protocol.ErrDecryption))
		}
		for b := range sum {
			sum[b] = s.f.Add(sum[b], row[b])
		}
	}
	data := wire.EncodeScalars(sum)
	if err = s.send(ctx, data, s.sk.Sign(secagg.ContextAggregate, data)); err != nil {
		return nil, err
	}
	return dropouts, s.expectAck(ctx, secagg.AckAggregate)
}

func indexSet(indices []int) map[int]bool {
	out := make(map[int]bool, len(indices))
	for _, i := range indices {
		out[i] = true
	}
	return out
}
