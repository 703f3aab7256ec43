package ntt

import "github.com/taurusgroup/secagg/pkg/math/field"

// Radix2 is a Cooley-Tukey transform of length 2ᵏ.
type Radix2[T field.Element] struct {
	base[T]
}

// NewRadix2 returns the transform of length n for the primitive n-th root ω.
func NewRadix2[T field.Element](f field.Prime[T], omega T, n int) (*Radix2[T], error) {
	b, err := newBase(f, omega, n, 2)
	if err != nil {
		return nil, err
	}
	return &Radix2[T]{base: b}, nil
}

// Forward writes the evaluations of p1 at ω⁰, …, ωⁿ⁻¹ into p2.
func (r *Radix2[T]) Forward(p1, p2 []T) error {
	if err := r.prepare(p1, p2); err != nil {
		return err
	}
	r.butterflies(p2, r.rootsForward)
	return nil
}

// Backward writes the coefficients of the polynomial taking the values p1
// at ω⁰, …, ωⁿ⁻¹ into p2.
func (r *Radix2[T]) Backward(p1, p2 []T) error {
	if err := r.prepare(p1, p2); err != nil {
		return err
	}
	r.butterflies(p2, r.rootsBackward)
	r.scale(p2)
	return nil
}

func (r *Radix2[T]) butterflies(a []T, roots []T) {
	BitReverse(a)
	f, n := r.f, r.n
	for m := 2; m <= n; m <<= 1 {
		half, stride := m/2, n/m
		for start := 0; start < n; start += m {
			for k := 0; k < half; k++ {
				u := a[start+k]
				v := f.Mul(a[start+k+half], roots[k*stride])
				a[start+k] = f.Add(u, v)
				a[start+k+half] = f.Sub(u, v)
			}
		}
	}
}

// BitReverse permutes a, of length 2ᵏ, into bit-reversed index order.
func BitReverse[T any](a []T) {
	n := len(a)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
}
