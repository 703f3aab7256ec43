package ntt

import "github.com/taurusgroup/secagg/pkg/math/field"

// Radix3 is a transform of length 3ᵏ built from length-3 butterflies
//
//	(x, y, z) ↦ (x + y + z, x + ωy + ω²z, x + ω²y + ωz)
//
// with ω = ω₃ⁿ⁄³ a primitive cube root of unity.
type Radix3[T field.Element] struct {
	base[T]
	trits int
}

// NewRadix3 returns the transform of length n for the primitive n-th root ω.
func NewRadix3[T field.Element](f field.Prime[T], omega T, n int) (*Radix3[T], error) {
	b, err := newBase(f, omega, n, 3)
	if err != nil {
		return nil, err
	}
	trits := 0
	for m := n; m > 1; m /= 3 {
		trits++
	}
	return &Radix3[T]{base: b, trits: trits}, nil
}

// Forward writes the evaluations of p1 at ω⁰, …, ωⁿ⁻¹ into p2.
func (r *Radix3[T]) Forward(p1, p2 []T) error {
	if err := r.prepare(p1, p2); err != nil {
		return err
	}
	r.butterflies(p2, r.rootsForward)
	return nil
}

// Backward writes the coefficients of the polynomial taking the values p1
// at ω⁰, …, ωⁿ⁻¹ into p2.
func (r *Radix3[T]) Backward(p1, p2 []T) error {
	if err := r.prepare(p1, p2); err != nil {
		return err
	}
	r.butterflies(p2, r.rootsBackward)
	r.scale(p2)
	return nil
}

func (r *Radix3[T]) butterflies(a []T, roots []T) {
	TritReverse(a, r.trits)
	f, n := r.f, r.n
	if n == 1 {
		return
	}
	w1, w2 := roots[n/3], roots[2*n/3]
	for step := 1; step < n; step *= 3 {
		jump := 3 * step
		stride := n / jump
		for group := 0; group < step; group++ {
			t1 := roots[group*stride]
			t2 := roots[2*group*stride]
			for i := group; i < n; i += jump {
				x := a[i]
				y := f.Mul(a[i+step], t1)
				z := f.Mul(a[i+2*step], t2)
				a[i] = f.Add(f.Add(x, y), z)
				a[i+step] = f.Add(f.Add(x, f.Mul(w1, y)), f.Mul(w2, z))
				a[i+2*step] = f.Add(f.Add(x, f.Mul(w2, y)), f.Mul(w1, z))
			}
		}
	}
}

// TritReverse permutes a, of length 3ᵏ, into base-3 digit-reversed index order.
func TritReverse[T any](a []T, trits int) {
	for i := range a {
		j := reverseTrits(i, trits)
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
}

func reverseTrits(i, trits int) int {
	r := 0
	for k := 0; k < trits; k++ {
		r = r*3 + i%3
		i /= 3
	}
	return r
}
