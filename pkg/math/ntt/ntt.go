// Package ntt implements number theoretic transforms of length 2ᵏ and 3ᵏ
// over a prime field.
//
// A transform of length n with root ω evaluates the polynomial whose
// coefficients are the input at the points ω⁰, …, ωⁿ⁻¹. The backward
// transform interpolates, and includes the n⁻¹ scaling.
package ntt

import (
	"errors"
	"fmt"

	"github.com/taurusgroup/secagg/pkg/math/field"
)

var ErrLength = errors.New("ntt: input length does not match transform length")

// NumberTheoreticTransformer is implemented by Radix2 and Radix3.
//
// Forward and Backward write the transform of p1 into p2; p1 and p2 may be
// the same slice.
type NumberTheoreticTransformer[T field.Element] interface {
	Forward(p1, p2 []T) error
	Backward(p1, p2 []T) error
	Len() int
}

// base holds what both radixes need: the powers of ω and ω⁻¹, and n⁻¹.
type base[T field.Element] struct {
	f             field.Prime[T]
	n             int
	nInv          T
	rootsForward  []T
	rootsBackward []T
}

func newBase[T field.Element](f field.Prime[T], omega T, n int, radix uint64) (base[T], error) {
	if err := f.CheckRoot(omega, uint64(n), radix); err != nil {
		return base[T]{}, fmt.Errorf("ntt: length %d: %w", n, err)
	}
	omegaInv, err := f.Inv(omega)
	if err != nil {
		return base[T]{}, err
	}
	nInv, err := f.Inv(f.Reduce(uint64(n)))
	if err != nil {
		return base[T]{}, err
	}
	b := base[T]{
		f:             f,
		n:             n,
		nInv:          nInv,
		rootsForward:  powers(f, omega, n),
		rootsBackward: powers(f, omegaInv, n),
	}
	return b, nil
}

// powers returns [1, ω, ω², …, ωⁿ⁻¹].
func powers[T field.Element](f field.Prime[T], omega T, n int) []T {
	out := make([]T, n)
	acc := T(1)
	for i := range out {
		out[i] = acc
		acc = f.Mul(acc, omega)
	}
	return out
}

// Len returns the transform length.
func (b base[T]) Len() int { return b.n }

func (b base[T]) prepare(p1, p2 []T) error {
	if len(p1) != b.n || len(p2) != b.n {
		return fmt.Errorf("%w: got %d and %d, want %d", ErrLength, len(p1), len(p2), b.n)
	}
	if &p1[0] != &p2[0] {
		copy(p2, p1)
	}
	return nil
}

func (b base[T]) scale(p []T) {
	for i := range p {
		p[i] = b.f.Mul(p[i], b.nInv)
	}
}
