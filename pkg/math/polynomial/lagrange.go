package polynomial

import (
	"errors"
	"fmt"

	"github.com/taurusgroup/secagg/pkg/math/field"
)

var ErrDuplicatePoint = errors.New("polynomial: interpolation domain contains a duplicate point")

// Basis returns the Lagrange coefficients of the interpolation domain
// evaluated at each target, so that basis[t][j] = ℓⱼ(targets[t]).
//
// The following formula is taken from
// https://en.wikipedia.org/wiki/Lagrange_polynomial
//
//	         (r - x₀) ⋅⋅⋅ (r - xⱼ₋₁)⋅(r - xⱼ₊₁) ⋅⋅⋅ (r - xₖ)
//	ℓⱼ(r) = ------------------------------------------------
//	        (xⱼ - x₀) ⋅⋅⋅ (xⱼ - xⱼ₋₁)⋅(xⱼ - xⱼ₊₁) ⋅⋅⋅ (xⱼ - xₖ)
//
// Denominators do not depend on r and are inverted once, together.
// Numerators are obtained from prefix and suffix products of (r - xᵢ).
func Basis[T field.Element](f field.Prime[T], domain, targets []T) ([][]T, error) {
	k := len(domain)
	denominators := make([]T, k)
	for j, xJ := range domain {
		d := T(1)
		for i, xI := range domain {
			if i == j {
				continue
			}
			d = f.Mul(d, f.Sub(xJ, xI))
		}
		if d == 0 {
			return nil, fmt.Errorf("%w: x = %d", ErrDuplicatePoint, xJ)
		}
		denominators[j] = d
	}
	inverses, err := BatchInvert(f, denominators)
	if err != nil {
		return nil, err
	}

	basis := make([][]T, len(targets))
	prefix := make([]T, k+1)
	suffix := make([]T, k+1)
	for t, r := range targets {
		prefix[0], suffix[k] = 1, 1
		for i := 0; i < k; i++ {
			prefix[i+1] = f.Mul(prefix[i], f.Sub(r, domain[i]))
		}
		for i := k - 1; i >= 0; i-- {
			suffix[i] = f.Mul(suffix[i+1], f.Sub(r, domain[i]))
		}
		row := make([]T, k)
		for j := range row {
			// ℓⱼ(r) = ∏ᵢ≠ⱼ (r - xᵢ) / ∏ᵢ≠ⱼ (xⱼ - xᵢ)
			row[j] = f.Mul(f.Mul(prefix[j], suffix[j+1]), inverses[j])
		}
		basis[t] = row
	}
	return basis, nil
}

// Interpolate returns the values at targets of the unique polynomial of
// degree < len(domain) taking the values ys on domain.
func Interpolate[T field.Element](f field.Prime[T], domain, ys, targets []T) ([]T, error) {
	if len(domain) != len(ys) {
		return nil, fmt.Errorf("polynomial: %d points but %d values", len(domain), len(ys))
	}
	basis, err := Basis(f, domain, targets)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(targets))
	for t, row := range basis {
		out[t] = f.Dot(row, ys)
	}
	return out, nil
}

// DegreeTest checks that values taken at a fixed list of points lie on a
// single polynomial of degree < Bound. The first Bound points define the
// polynomial, the remaining ones are predicted from them.
type DegreeTest[T field.Element] struct {
	f     field.Prime[T]
	Bound int
	// predict[i] interpolates the value at point Bound+i.
	predict [][]T
	points  int
}

// NewDegreeTest precomputes the prediction of the values at xs[bound:]
// from those at xs[:bound].
func NewDegreeTest[T field.Element](f field.Prime[T], xs []T, bound int) (*DegreeTest[T], error) {
	if bound < 1 {
		return nil, fmt.Errorf("polynomial: degree bound %d", bound)
	}
	d := &DegreeTest[T]{f: f, Bound: bound, points: len(xs)}
	if len(xs) <= bound {
		return d, nil
	}
	var err error
	if d.predict, err = Basis(f, xs[:bound], xs[bound:]); err != nil {
		return nil, err
	}
	return d, nil
}

// Holds reports whether ys, the values at the points of the test, lie on a
// polynomial of degree < Bound.
func (d *DegreeTest[T]) Holds(ys []T) (bool, error) {
	if len(ys) != d.points {
		return false, fmt.Errorf("polynomial: %d values for %d points", len(ys), d.points)
	}
	for i, row := range d.predict {
		if d.f.Dot(row, ys[:d.Bound]) != ys[d.Bound+i] {
			return false, nil
		}
	}
	return true, nil
}

// BatchInvert inverts all xs with a single field inversion.
func BatchInvert[T field.Element](f field.Prime[T], xs []T) ([]T, error) {
	if len(xs) == 0 {
		return nil, nil
	}
	// acc[i] = x₀ ⋅⋅⋅ xᵢ₋₁
	acc := make([]T, len(xs))
	running := T(1)
	for i, x := range xs {
		acc[i] = running
		running = f.Mul(running, x)
	}
	inv, err := f.Inv(running)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(xs))
	for i := len(xs) - 1; i >= 0; i-- {
		out[i] = f.Mul(inv, acc[i])
		inv = f.Mul(inv, xs[i])
	}
	return out, nil
}
