package sample

import (
	"fmt"
	"io"

	"github.com/cronokirby/saferith"
	"github.com/taurusgroup/secagg/internal/hash"
	"github.com/taurusgroup/secagg/pkg/math/field"
)

const maxIterations = 255

var ErrMaxIterations = fmt.Errorf("sample: failed to generate after %d iterations", maxIterations)

func mustReadBits(rand io.Reader, buf []byte) {
	for i := 0; i < maxIterations; i++ {
		if _, err := io.ReadFull(rand, buf); err == nil {
			return
		}
	}
	panic(ErrMaxIterations)
}

// ModN samples an element of ℤₙ by rejection.
//
// Bits above the length of n are cleared before comparing, so that each
// attempt succeeds with probability at least 1/2.
func ModN(rand io.Reader, n *saferith.Modulus) *saferith.Nat {
	out := new(saferith.Nat)
	buf := make([]byte, (n.BitLen()+7)/8)
	mask := byte(0xff >> (8*len(buf) - n.BitLen()))
	for {
		mustReadBits(rand, buf)
		buf[0] &= mask
		out.SetBytes(buf)
		_, _, lt := out.CmpMod(n)
		if lt == 1 {
			break
		}
	}
	return out
}

// Element samples a uniform element of f.
func Element[T field.Element](rand io.Reader, f field.Prime[T]) T {
	return T(ModN(rand, f.Modulus()).Uint64())
}

// Vector samples n uniform elements of f.
func Vector[T field.Element](rand io.Reader, f field.Prime[T], n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = Element(rand, f)
	}
	return out
}

// ZeroSum samples n elements of f, uniform under the constraint that they
// sum to 0.
func ZeroSum[T field.Element](rand io.Reader, f field.Prime[T], n int) []T {
	if n == 0 {
		return nil
	}
	out := Vector(rand, f, n-1)
	return append(out, f.Neg(f.Sum(out)))
}

// Bounded samples n integers in [0, 2ᵇⁱᵗˢ), bits ≤ 64.
func Bounded(rand io.Reader, n, bits int) []uint64 {
	out := make([]uint64, n)
	buf := make([]byte, 8)
	for i := range out {
		mustReadBits(rand, buf)
		var x uint64
		for _, b := range buf {
			x = x<<8 | uint64(b)
		}
		if bits < 64 {
			x &= 1<<bits - 1
		}
		out[i] = x
	}
	return out
}

// Stream returns a deterministic stream of random bytes derived from seed in
// the given context. Anyone holding the seed can replay it.
func Stream(context string, seed []byte) io.Reader {
	h := hash.New("secagg stream " + context)
	if err := h.WriteAny(seed); err != nil {
		panic(fmt.Sprintf("sample.Stream: internal hash failure: %v", err))
	}
	return h.Digest()
}
