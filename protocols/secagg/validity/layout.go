// Package validity lets the coordinator check that a client's shared input is
// well formed without learning it.
//
// In malicious mode a client does not share its input x directly but an
// augmented vector: x, the squares yᵢ = xᵢ², their sum, the bits of the sum,
// the bits of every xᵢ and three masking blocks. After sharing, every client
// evaluates random linear combinations of simple identities on the shares it
// received, and the coordinator interpolates the results:
//
//   - A collects the identities that must hold coordinate-wise (every bit is
//     0 or 1, yᵢ = xᵢ²), so every secret of A is 0;
//   - B collects the identities that only hold summed over a block (x equals
//     the sum of its bits, the squares add up to the announced sum, which
//     equals the sum of its bits), so the secrets of B sum to 0.
//
// A third value checks that the client's shares lie on a polynomial of degree
// below d₂. In semi-honest mode only this degree check is run.
package validity

import (
	"errors"
	"fmt"
	"io"

	"github.com/taurusgroup/secagg/pkg/math/field"
	"github.com/taurusgroup/secagg/pkg/math/sample"
	"github.com/taurusgroup/secagg/pkg/params"
)

var (
	ErrLayout      = errors.New("validity: invalid layout")
	ErrInputLength = errors.New("validity: wrong input length")
	ErrInputRange  = errors.New("validity: input out of range")
)

// Layout describes the augmented input of a session.
//
//	x          V
//	y = x²     V
//	Σy, 0…     L
//	bits of Σy Y
//	bits of x  V⋅S, block b holds bit k of xᵦₗ, …, xᵦₗ₊ₗ₋₁ at position b⋅S + k
//	r_C        L  random
//	r_A        L  zero
//	r_B        L  random, summing to zero
type Layout struct {
	// V is the input length.
	V int
	// L is the packing length, which divides V.
	L int
	// S bounds the inputs: 0 ≤ xᵢ < 2ˢ.
	S int
	// Y is the number of bits reserved for Σy, a multiple of L.
	Y int

	Malicious bool
}

// NewLayout returns the layout for inputs of length v and s bits, packed by l.
func NewLayout(v, l, s int, malicious bool) (Layout, error) {
	if v < 1 || l < 1 || v%l != 0 {
		return Layout{}, fmt.Errorf("%w: L = %d does not divide V = %d", ErrLayout, l, v)
	}
	if s < 1 || s > 63 {
		return Layout{}, fmt.Errorf("%w: S = %d", ErrLayout, s)
	}
	bitLen := 2*s + params.CeilLog2(v)
	y := (bitLen + l - 1) / l * l
	return Layout{V: v, L: l, S: s, Y: y, Malicious: malicious}, nil
}

// ForSession returns the layout of a session, shared with the given sharing.
func ForSession(s params.Session, sharing params.Sharing) (Layout, error) {
	return NewLayout(s.VectorSize, sharing.L, s.InputBits, s.Malicious)
}

// Len is the length of the shared vector.
func (l Layout) Len() int {
	if !l.Malicious {
		return l.V
	}
	return 2*l.V + l.L + l.Y + l.V*l.S + 3*l.L
}

// Blocks is the number of input blocks, V / L.
func (l Layout) Blocks() int { return l.V / l.L }

// SharedBlocks is the number of blocks of the shared vector, Len / L.
func (l Layout) SharedBlocks() int { return l.Len() / l.L }

// The following are offsets in the shared vector, in elements.

func (l Layout) squares() int   { return l.V }
func (l Layout) sum() int       { return 2 * l.V }
func (l Layout) sumBits() int   { return 2*l.V + l.L }
func (l Layout) inputBits() int { return 2*l.V + l.L + l.Y }
func (l Layout) maskC() int     { return l.inputBits() + l.V*l.S }
func (l Layout) maskA() int     { return l.maskC() + l.L }
func (l Layout) maskB() int     { return l.maskA() + l.L }

// InputBitIndex returns the position of bit k of xᵢ in the shared vector.
func (l Layout) InputBitIndex(i, k int) int {
	b := i / l.L
	return l.inputBits() + (b*l.S+k)*l.L + i - b*l.L
}

// SquareIndex returns the position of yᵢ in the shared vector.
func (l Layout) SquareIndex(i int) int { return l.squares() + i }

// SumBitIndex returns the position of bit k of Σy in the shared vector.
func (l Layout) SumBitIndex(k int) int { return l.sumBits() + k }

// Encode builds the vector a client shares for input x.
func (l Layout) Encode(rand io.Reader, f field.Prime[uint64], x []uint64) ([]uint64, error) {
	if len(x) != l.V {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputLength, len(x), l.V)
	}
	for i, xi := range x {
		if xi>>l.S != 0 || !f.Contains(xi) {
			return nil, fmt.Errorf("%w: x[%d] = %d is not below 2^%d", ErrInputRange, i, xi, l.S)
		}
	}
	if !l.Malicious {
		return append([]uint64(nil), x...), nil
	}

	out := make([]uint64, l.Len())
	copy(out, x)
	var ySum uint64
	for i, xi := range x {
		y := f.Mul(xi, xi)
		out[l.SquareIndex(i)] = y
		ySum = f.Add(ySum, y)
	}
	out[l.sum()] = ySum
	for k := 0; k < l.Y && k < 64; k++ {
		out[l.SumBitIndex(k)] = ySum >> k & 1
	}
	for i, xi := range x {
		for k := 0; k < l.S; k++ {
			out[l.InputBitIndex(i, k)] = xi >> k & 1
		}
	}
	copy(out[l.maskC():], sample.Vector(rand, f, l.L))
	// r_A stays zero
	copy(out[l.maskB():], sample.ZeroSum(rand, f, l.L))
	return out, nil
}
