// Package pss implements packed secret sharing over a prime field with NTT
// friendly roots of unity.
//
// L secrets are packed into one polynomial of degree < d₂, as its values at
// the secret points ω₂⁰, …, ω₂ᴸ⁻¹. The remaining d₂ - L values at ω₂ᴸ, …
// are random. The share of party j is the value of the polynomial at
// xⱼ = ω₃ʲ⁺¹, so any d₂ shares determine the secrets.
package pss

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/taurusgroup/secagg/pkg/math/field"
	"github.com/taurusgroup/secagg/pkg/math/ntt"
	"github.com/taurusgroup/secagg/pkg/math/polynomial"
	"github.com/taurusgroup/secagg/pkg/math/sample"
	"github.com/taurusgroup/secagg/pkg/pool"
)

var (
	ErrParameters   = errors.New("pss: invalid parameters")
	ErrSecretLength = errors.New("pss: wrong number of secrets")
	ErrNotEnough    = errors.New("pss: not enough shares to reconstruct")
)

// Parameters fix everything an Engine needs.
type Parameters[T field.Element] struct {
	Field field.Prime[T]
	// Omega2 is a primitive D2-th root of unity.
	Omega2 T
	// Omega3 is a primitive D3-th root of unity.
	Omega3 T
	D2, D3 int
	// L is the number of secrets packed in one polynomial.
	L int
	// N is the number of shares.
	N int
	// TotalLen is the length of the vectors being shared, a multiple of L.
	TotalLen int
}

// Validate checks the sizes, but not the roots.
func (p Parameters[T]) Validate() error {
	switch {
	case !field.IsPowerOf(uint64(p.D2), 2):
		return fmt.Errorf("%w: d₂ = %d is not a power of 2", ErrParameters, p.D2)
	case !field.IsPowerOf(uint64(p.D3), 3) || p.D3 < 3:
		return fmt.Errorf("%w: d₃ = %d is not a power of 3", ErrParameters, p.D3)
	case p.L < 1 || p.L > p.D2:
		return fmt.Errorf("%w: L = %d not in [1, d₂ = %d]", ErrParameters, p.L, p.D2)
	case p.N < p.D2:
		return fmt.Errorf("%w: N = %d < d₂ = %d", ErrParameters, p.N, p.D2)
	case p.N >= p.D3:
		return fmt.Errorf("%w: N = %d ≥ d₃ = %d", ErrParameters, p.N, p.D3)
	case p.TotalLen < 1 || p.TotalLen%p.L != 0:
		return fmt.Errorf("%w: length %d is not a positive multiple of L = %d", ErrParameters, p.TotalLen, p.L)
	}
	return nil
}

// Blocks returns the number of polynomials per shared vector.
func (p Parameters[T]) Blocks() int { return p.TotalLen / p.L }

// Engine shares and reconstructs vectors of length TotalLen.
//
// An Engine is safe for concurrent use.
type Engine[T field.Element] struct {
	Parameters[T]

	radix2       *ntt.Radix2[T]
	radix3       *ntt.Radix3[T]
	secretPoints []T
	evalPoints   []T

	pl   *pool.Pool
	rand io.Reader
}

// New validates p and precomputes the transforms. Blocks are processed in
// parallel on pl, which may be nil.
func New[T field.Element](p Parameters[T], pl *pool.Pool) (*Engine[T], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	radix2, err := ntt.NewRadix2(p.Field, p.Omega2, p.D2)
	if err != nil {
		return nil, fmt.Errorf("pss: %w", err)
	}
	radix3, err := ntt.NewRadix3(p.Field, p.Omega3, p.D3)
	if err != nil {
		return nil, fmt.Errorf("pss: %w", err)
	}

	e := &Engine[T]{
		Parameters:   p,
		radix2:       radix2,
		radix3:       radix3,
		secretPoints: make([]T, p.L),
		evalPoints:   make([]T, p.N),
		pl:           pl,
		rand:         rand.Reader,
	}
	x := T(1)
	for k := range e.secretPoints {
		e.secretPoints[k] = x
		x = p.Field.Mul(x, p.Omega2)
	}
	x = p.Omega3
	for j := range e.evalPoints {
		e.evalPoints[j] = x
		x = p.Field.Mul(x, p.Omega3)
	}
	return e, nil
}

// SetRand replaces the source of the padding randomness, crypto/rand by
// default. r must be safe for concurrent use if the engine has a pool.
func (e *Engine[T]) SetRand(r io.Reader) { e.rand = r }

// EvalPoint returns xⱼ = ω₃ʲ⁺¹.
func (e *Engine[T]) EvalPoint(j int) T { return e.evalPoints[j] }

// EvalPoints returns the points for the given share indices, in order.
func (e *Engine[T]) EvalPoints(indices []int) []T {
	out := make([]T, len(indices))
	for i, j := range indices {
		out[i] = e.evalPoints[j]
	}
	return out
}

// SecretPoints returns ω₂⁰, …, ω₂ᴸ⁻¹.
func (e *Engine[T]) SecretPoints() []T {
	return append([]T(nil), e.secretPoints...)
}

// Share splits secrets into N rows of Blocks() shares each; row j is the
// share of party j.
func (e *Engine[T]) Share(secrets []T) ([][]T, error) {
	if len(secrets) != e.TotalLen {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSecretLength, len(secrets), e.TotalLen)
	}
	for i, s := range secrets {
		if !e.Field.Contains(s) {
			return nil, fmt.Errorf("pss: secret %d: %w", i, field.ErrNotInField)
		}
	}

	blocks := e.Blocks()
	shares := make([][]T, e.N)
	for j := range shares {
		shares[j] = make([]T, blocks)
	}

	_, err := pool.MapErr(e.pl, blocks, func(b int) (struct{}, error) {
		evals, err := e.shareBlock(secrets[b*e.L : (b+1)*e.L])
		if err != nil {
			return struct{}{}, err
		}
		for j := range shares {
			shares[j][b] = evals[j+1]
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	return shares, nil
}

// shareBlock returns the evaluations at ω₃⁰, …, ω₃ᵈ³⁻¹ of a random
// polynomial of degree < d₂ taking the given values at the secret points.
func (e *Engine[T]) shareBlock(block []T) ([]T, error) {
	buf := make([]T, e.D3)
	copy(buf, block)
	copy(buf[e.L:e.D2], sample.Vector(e.rand, e.Field, e.D2-e.L))

	if err := e.radix2.Backward(buf[:e.D2], buf[:e.D2]); err != nil {
		return nil, err
	}
	if err := e.radix3.Forward(buf, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Reconstruct recovers the TotalLen secrets from shares[i], held at
// points[i]. At least d₂ rows are required.
func (e *Engine[T]) Reconstruct(shares [][]T, points []T) ([]T, error) {
	if len(shares) != len(points) {
		return nil, fmt.Errorf("pss: %d share rows for %d points", len(shares), len(points))
	}
	if len(points) < e.D2 {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrNotEnough, len(points), e.D2)
	}
	blocks := e.Blocks()
	for i, row := range shares {
		if len(row) != blocks {
			return nil, fmt.Errorf("%w: row %d has %d blocks, want %d", ErrNotEnough, i, len(row), blocks)
		}
	}

	basis, err := polynomial.Basis(e.Field, points, e.secretPoints)
	if err != nil {
		return nil, fmt.Errorf("pss: %w", err)
	}

	secrets := make([]T, e.TotalLen)
	e.pl.ForEach(blocks, func(b int) {
		column := make([]T, len(shares))
		for i, row := range shares {
			column[i] = row[b]
		}
		for k, coefficients := range basis {
			secrets[b*e.L+k] = e.Field.Dot(coefficients, column)
		}
	})
	return secrets, nil
}

// ReconstructIndices is Reconstruct with the points of the given share
// indices.
func (e *Engine[T]) ReconstructIndices(shares [][]T, indices []int) ([]T, error) {
	for _, j := range indices {
		if j < 0 || j >= e.N {
			return nil, fmt.Errorf("%w: share index %d out of range", ErrParameters, j)
		}
	}
	return e.Reconstruct(shares, e.EvalPoints(indices))
}
