package params

import (
	"encoding/binary"
	"fmt"

	"github.com/taurusgroup/secagg/pkg/math/field"
	"github.com/taurusgroup/secagg/pkg/pool"
	"github.com/taurusgroup/secagg/pkg/pss"
)

// SharingSize is the length of an encoded Sharing.
const SharingSize = 48

// Sharing are the parameters of one session's packed secret sharing, as
// published to clients at the start of input sharing.
type Sharing struct {
	P      uint64
	Omega2 uint64
	Omega3 uint64
	D2     int
	D3     int
	L      int
}

// Field returns ℤₚ.
func (s Sharing) Field() (field.Prime[uint64], error) {
	return field.New[uint64](s.P)
}

// Engine returns a PSS engine for n shares of vectors of length totalLen.
func (s Sharing) Engine(n, totalLen int, pl *pool.Pool) (*pss.Engine[uint64], error) {
	f, err := s.Field()
	if err != nil {
		return nil, err
	}
	return pss.New(pss.Parameters[uint64]{
		Field:    f,
		Omega2:   s.Omega2,
		Omega3:   s.Omega3,
		D2:       s.D2,
		D3:       s.D3,
		L:        s.L,
		N:        n,
		TotalLen: totalLen,
	}, pl)
}

// MarshalBinary encodes (P, ω₂, ω₃, d₂, d₃, L) as six little endian uint64.
func (s Sharing) MarshalBinary() ([]byte, error) {
	out := make([]byte, SharingSize)
	for i, v := range []uint64{s.P, s.Omega2, s.Omega3, uint64(s.D2), uint64(s.D3), uint64(s.L)} {
		binary.LittleEndian.PutUint64(out[8*i:], v)
	}
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Sharing) UnmarshalBinary(data []byte) error {
	if len(data) != SharingSize {
		return fmt.Errorf("params: sharing is %d bytes, want %d", len(data), SharingSize)
	}
	var v [6]uint64
	for i := range v {
		v[i] = binary.LittleEndian.Uint64(data[8*i:])
	}
	for _, d := range v[3:] {
		if d == 0 || d > 1<<32 {
			return fmt.Errorf("%w: degree %d out of range", ErrParam, d)
		}
	}
	*s = Sharing{P: v[0], Omega2: v[1], Omega3: v[2], D2: int(v[3]), D3: int(v[4]), L: int(v[5])}
	return nil
}

// Choose picks the sharing parameters for a session whose client list has n
// slots, live of which are still active.
//
// In semi-honest mode d₂ is the largest power of two ≤ live - D. In malicious
// mode it is the largest power of two ≤ min((live - D - 2T)/2, n/2), so that
// products of two sharings can still be interpolated. d₃ is the smallest
// power of three above n, so that no evaluation point ω₃ʲ⁺¹ equals 1. L is
// the largest divisor of the vector size not above d₂ (d₂ - T in malicious
// mode), so that every block is full.
func (p Param) Choose(s Session, n, live int) (Sharing, error) {
	tables, err := p.Tables()
	if err != nil {
		return Sharing{}, err
	}

	threshold := live - s.ExpectedDropouts
	if s.Malicious {
		threshold = (live - s.ExpectedDropouts - 2*s.ExpectedCorruptions) / 2
		if threshold > n/2 {
			threshold = n / 2
		}
	}
	if threshold < 1 {
		return Sharing{}, fmt.Errorf("%w: %d active clients of %d", ErrThreshold, live, n)
	}
	d2 := 1
	for 2*d2 <= threshold {
		d2 *= 2
	}
	bound := d2
	if s.Malicious {
		bound = d2 - s.ExpectedCorruptions
	}
	l := largestDivisor(s.VectorSize, bound)
	if l < 1 {
		return Sharing{}, fmt.Errorf("%w: packing length bound %d", ErrThreshold, bound)
	}

	d3 := 3
	for d3 <= n {
		d3 *= 3
	}

	omega2, err := tables.RootTwo(d2)
	if err != nil {
		return Sharing{}, err
	}
	omega3, err := tables.RootThree(d3)
	if err != nil {
		return Sharing{}, err
	}
	return Sharing{P: p.P, Omega2: omega2, Omega3: omega3, D2: d2, D3: d3, L: l}, nil
}

// largestDivisor returns the largest divisor of v in [1, bound], or 0.
func largestDivisor(v, bound int) int {
	if bound > v {
		bound = v
	}
	for l := bound; l >= 1; l-- {
		if v%l == 0 {
			return l
		}
	}
	return 0
}
