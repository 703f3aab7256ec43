package field

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/cronokirby/saferith"
)

var (
	ErrOverflow   = errors.New("field: value does not fit in element type")
	ErrNotInField = errors.New("field: element is not reduced modulo p")
	ErrZeroInv    = errors.New("field: zero has no inverse")
	ErrNotRoot    = errors.New("field: not a primitive root of unity")
)

// Element is the storage type of a field element.
//
// Elements are always stored reduced, and widened to 64 bits for arithmetic,
// with products taken on 128 bits before reduction.
type Element interface {
	~uint32 | ~uint64
}

// Widen lifts a storage element to the arithmetic width.
func Widen[T Element](x T) uint64 {
	return uint64(x)
}

// Narrow converts x back to the storage type, failing if it does not fit.
func Narrow[T Element](x uint64) (T, error) {
	t := T(x)
	if uint64(t) != x {
		return 0, fmt.Errorf("narrow %d: %w", x, ErrOverflow)
	}
	return t, nil
}

// Prime is the field ℤₚ with elements stored as T.
//
// The zero value is not usable, use New.
type Prime[T Element] struct {
	p       uint64
	modulus *saferith.Modulus
}

// New returns the field ℤₚ. The primality of p is not checked, but p must be
// odd, at least 3, and fit in T.
func New[T Element](p uint64) (Prime[T], error) {
	if p < 3 || p&1 == 0 {
		return Prime[T]{}, fmt.Errorf("field: invalid modulus %d", p)
	}
	if _, err := Narrow[T](p); err != nil {
		return Prime[T]{}, err
	}
	return Prime[T]{p: p, modulus: saferith.ModulusFromUint64(p)}, nil
}

// MustNew is like New but panics on error.
func MustNew[T Element](p uint64) Prime[T] {
	f, err := New[T](p)
	if err != nil {
		panic(err)
	}
	return f
}

// P returns the modulus.
func (f Prime[T]) P() T { return T(f.p) }

// Modulus returns p as a saferith.Modulus.
func (f Prime[T]) Modulus() *saferith.Modulus { return f.modulus }

// Bits returns the bit length of p.
func (f Prime[T]) Bits() int { return bits.Len64(f.p) }

// Contains reports whether x is a reduced element.
func (f Prime[T]) Contains(x T) bool { return uint64(x) < f.p }

// Reduce returns x mod p.
func (f Prime[T]) Reduce(x uint64) T { return T(x % f.p) }

// Parse checks that x is reduced and converts it.
func (f Prime[T]) Parse(x uint64) (T, error) {
	if x >= f.p {
		return 0, fmt.Errorf("%d ≥ %d: %w", x, f.p, ErrNotInField)
	}
	return T(x), nil
}

// Add returns a + b mod p.
func (f Prime[T]) Add(a, b T) T {
	s, c := bits.Add64(uint64(a), uint64(b), 0)
	if c != 0 || s >= f.p {
		s -= f.p
	}
	return T(s)
}

// Sub returns a - b mod p, computed as a + (p - b).
func (f Prime[T]) Sub(a, b T) T {
	return f.Add(a, f.Neg(b))
}

// Neg returns -a mod p.
func (f Prime[T]) Neg(a T) T {
	if a == 0 {
		return 0
	}
	return T(f.p - uint64(a))
}

// Mul returns a⋅b mod p.
func (f Prime[T]) Mul(a, b T) T {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	return T(bits.Rem64(hi, lo, f.p))
}

// Exp returns aᵉ mod p by square-and-multiply.
func (f Prime[T]) Exp(a T, e uint64) T {
	result, base := T(1), a
	for ; e > 0; e >>= 1 {
		if e&1 == 1 {
			result = f.Mul(result, base)
		}
		base = f.Mul(base, base)
	}
	return result
}

// Inv returns a⁻¹ = aᵖ⁻² mod p.
func (f Prime[T]) Inv(a T) (T, error) {
	if uint64(a)%f.p == 0 {
		return 0, ErrZeroInv
	}
	return f.Exp(a, f.p-2), nil
}

// Sum returns Σ xs mod p.
func (f Prime[T]) Sum(xs []T) T {
	var s T
	for _, x := range xs {
		s = f.Add(s, x)
	}
	return s
}

// Dot returns Σ aᵢ⋅bᵢ mod p over the shortest of a and b.
func (f Prime[T]) Dot(a, b []T) T {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s T
	for i := 0; i < n; i++ {
		s = f.Add(s, f.Mul(a[i], b[i]))
	}
	return s
}

// CheckRoot verifies that ω is a primitive root of unity of order n = qᵏ,
// i.e. ωⁿ = 1 and ωⁿ⁄q ≠ 1.
//
// The check is done with saferith so that it does not depend on Mul and Exp.
func (f Prime[T]) CheckRoot(omega T, n, q uint64) error {
	if !IsPowerOf(n, q) {
		return fmt.Errorf("field: order %d is not a power of %d: %w", n, q, ErrNotRoot)
	}
	w := new(saferith.Nat).SetUint64(uint64(omega))
	one := new(saferith.Nat).SetUint64(1)
	full := new(saferith.Nat).Exp(w, new(saferith.Nat).SetUint64(n), f.modulus)
	if full.Eq(one) != 1 {
		return fmt.Errorf("field: %d^%d ≠ 1: %w", omega, n, ErrNotRoot)
	}
	if n == 1 {
		return nil
	}
	part := new(saferith.Nat).Exp(w, new(saferith.Nat).SetUint64(n/q), f.modulus)
	if part.Eq(one) == 1 {
		return fmt.Errorf("field: %d^%d = 1: %w", omega, n/q, ErrNotRoot)
	}
	return nil
}

// IsPowerOf reports whether n = qᵏ for some k ≥ 0.
func IsPowerOf(n, q uint64) bool {
	if n == 0 || q < 2 {
		return false
	}
	for n%q == 0 {
		n /= q
	}
	return n == 1
}
