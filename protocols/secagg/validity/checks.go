package validity

import (
	"errors"
	"fmt"
	"io"

	"github.com/taurusgroup/secagg/pkg/math/field"
	"github.com/taurusgroup/secagg/pkg/math/sample"
	"github.com/taurusgroup/secagg/pkg/params"
	"github.com/taurusgroup/secagg/pkg/wire"
)

// FrameCount is the number of frames of the checks broadcast, in both modes.
const FrameCount = 9

var ErrFrames = errors.New("validity: malformed checks broadcast")

// Checks are the random coefficients drawn by the coordinator at the end of
// input sharing.
type Checks struct {
	Layout  Layout
	Sharing params.Sharing
	// N is the number of clients, including dropouts.
	N int

	// Degree weighs every block of the shared vector.
	Degree []uint64

	// The remaining vectors are only set in malicious mode.

	// InputBit weighs the bit blocks of x.
	InputBit []uint64
	// Quadratic weighs the blocks of x² - y.
	Quadratic []uint64
	// InputBound weighs the blocks of Σₖ 2ᵏ bitsₖ - x.
	InputBound []uint64
	// NormSum weighs Σ y - Σy.
	NormSum []uint64
	// NormBit weighs the bit blocks of Σy.
	NormBit []uint64
	// NormBound weighs Σy - Σₖ 2ᵏ bitsₖ.
	NormBound []uint64
	// TwoPowers[j] is client j's share of (2⁰, …, 2ʸ⁻¹).
	TwoPowers [][]uint64

	f field.Prime[uint64]
}

// Generate draws the checks for a session of n clients.
func Generate(rand io.Reader, l Layout, s params.Sharing, n int) (*Checks, error) {
	f, err := s.Field()
	if err != nil {
		return nil, err
	}
	c := &Checks{
		Layout:  l,
		Sharing: s,
		N:       n,
		Degree:  sample.Vector(rand, f, l.SharedBlocks()),
		f:       f,
	}
	if !l.Malicious {
		return c, nil
	}
	b := l.Blocks()
	c.InputBit = sample.Vector(rand, f, b*l.S)
	c.Quadratic = sample.Vector(rand, f, b)
	c.InputBound = sample.Vector(rand, f, b)
	c.NormSum = sample.Vector(rand, f, 1)
	c.NormBit = sample.Vector(rand, f, l.Y/l.L)
	c.NormBound = sample.Vector(rand, f, 1)

	e, err := s.Engine(n, l.Y, nil)
	if err != nil {
		return nil, err
	}
	e.SetRand(rand)
	powers := make([]uint64, l.Y)
	for k := range powers {
		powers[k] = f.Exp(2, uint64(k))
	}
	if c.TwoPowers, err = e.Share(powers); err != nil {
		return nil, err
	}
	return c, nil
}

// Frames encodes the checks, preceded by the dropout indices.
func (c *Checks) Frames(dropouts []int) [][]byte {
	out := make([][]byte, FrameCount)
	out[0] = wire.EncodeIndices(dropouts)
	out[1] = wire.EncodeScalars(c.Degree)
	if !c.Layout.Malicious {
		for i := 2; i < FrameCount; i++ {
			out[i] = []byte{}
		}
		return out
	}
	out[2] = wire.EncodeScalars(c.InputBit)
	out[3] = wire.EncodeScalars(c.Quadratic)
	out[4] = wire.EncodeScalars(c.InputBound)
	out[5] = wire.EncodeScalars(c.NormSum)
	out[6] = wire.EncodeScalars(c.NormBit)
	out[7] = wire.EncodeScalars(c.NormBound)
	flat := make([]uint64, 0, c.N*c.Layout.Y/c.Layout.L)
	for _, row := range c.TwoPowers {
		flat = append(flat, row...)
	}
	out[8] = wire.EncodeScalars(flat)
	return out
}

// Parse decodes a checks broadcast. Any frame whose size does not match the
// layout is rejected, including non empty malicious frames in semi-honest
// mode.
func Parse(frames [][]byte, l Layout, s params.Sharing, n int) ([]int, *Checks, error) {
	if len(frames) != FrameCount {
		return nil, nil, fmt.Errorf("%w: %d frames, want %d", ErrFrames, len(frames), FrameCount)
	}
	f, err := s.Field()
	if err != nil {
		return nil, nil, err
	}
	dropouts, err := wire.DecodeIndices(frames[0], n)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dropouts: %v", ErrFrames, err)
	}

	decode := func(i, size int) ([]uint64, error) {
		xs, err := wire.DecodeScalarsN(frames[i], size)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %v", ErrFrames, i, err)
		}
		for _, x := range xs {
			if !f.Contains(x) {
				return nil, fmt.Errorf("%w: frame %d: %v", ErrFrames, i, field.ErrNotInField)
			}
		}
		return xs, nil
	}

	c := &Checks{Layout: l, Sharing: s, N: n, f: f}
	if c.Degree, err = decode(1, l.SharedBlocks()); err != nil {
		return nil, nil, err
	}
	if !l.Malicious {
		for i := 2; i < FrameCount; i++ {
			if len(frames[i]) != 0 {
				return nil, nil, fmt.Errorf("%w: frame %d must be empty in semi-honest mode", ErrFrames, i)
			}
		}
		return dropouts, c, nil
	}

	b, yBlocks := l.Blocks(), l.Y/l.L
	targets := []struct {
		dst  *[]uint64
		size int
	}{
		{&c.InputBit, b * l.S},
		{&c.Quadratic, b},
		{&c.InputBound, b},
		{&c.NormSum, 1},
		{&c.NormBit, yBlocks},
		{&c.NormBound, 1},
	}
	for i, t := range targets {
		if *t.dst, err = decode(i+2, t.size); err != nil {
			return nil, nil, err
		}
	}
	flat, err := decode(8, n*yBlocks)
	if err != nil {
		return nil, nil, err
	}
	c.TwoPowers = make([][]uint64, n)
	for j := range c.TwoPowers {
		c.TwoPowers[j] = flat[j*yBlocks : (j+1)*yBlocks]
	}
	return dropouts, c, nil
}
