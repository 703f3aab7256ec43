package polynomial

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/secagg/pkg/math/field"
	"github.com/taurusgroup/secagg/pkg/math/sample"
)

var f = field.MustNew[uint64](3073700804129980417)

func TestBasisSumsToOne(t *testing.T) {
	domain := sample.Vector(rand.Reader, f, 10)
	targets := sample.Vector(rand.Reader, f, 3)
	basis, err := Basis(f, domain, targets)
	require.NoError(t, err)
	for _, row := range basis {
		assert.Equal(t, uint64(1), f.Sum(row))
	}
}

func TestBasisAtDomainPoint(t *testing.T) {
	domain := []uint64{1, 2, 3, 4}
	basis, err := Basis(f, domain, []uint64{3})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 0, 1, 0}, basis[0])
}

func TestInterpolate(t *testing.T) {
	for _, degree := range []int{0, 1, 5, 15} {
		p := random(rand.Reader, f, degree, 42)
		xs := sample.Vector(rand.Reader, f, degree+1)
		ys := make([]uint64, len(xs))
		for i, x := range xs {
			ys[i] = p.evaluate(x)
		}
		got, err := Interpolate(f, xs, ys, []uint64{0, 7})
		require.NoError(t, err)
		assert.Equal(t, uint64(42), got[0])
		assert.Equal(t, p.evaluate(7), got[1])
	}
}

func TestDuplicatePoint(t *testing.T) {
	_, err := Basis(f, []uint64{5, 6, 5}, []uint64{0})
	assert.ErrorIs(t, err, ErrDuplicatePoint)
}

func TestDegreeTest(t *testing.T) {
	p := random(rand.Reader, f, 3, 1)
	xs := []uint64{1, 2, 3, 4, 5, 6, 7}
	ys := make([]uint64, len(xs))
	for i, x := range xs {
		ys[i] = p.evaluate(x)
	}

	four, err := NewDegreeTest(f, xs, 4)
	require.NoError(t, err)
	ok, err := four.Holds(ys)
	require.NoError(t, err)
	assert.True(t, ok)

	three, err := NewDegreeTest(f, xs, 3)
	require.NoError(t, err)
	ok, err = three.Holds(ys)
	require.NoError(t, err)
	assert.False(t, ok)

	ys[6] = f.Add(ys[6], 1)
	ok, err = four.Holds(ys)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = four.Holds(ys[:6])
	assert.Error(t, err)

	all, err := NewDegreeTest(f, xs, 7)
	require.NoError(t, err)
	ok, err = all.Holds(ys)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = NewDegreeTest(f, []uint64{1, 1, 2}, 2)
	assert.ErrorIs(t, err, ErrDuplicatePoint)
}

func TestBatchInvert(t *testing.T) {
	xs := sample.Vector(rand.Reader, f, 20)
	inv, err := BatchInvert(f, xs)
	require.NoError(t, err)
	for i := range xs {
		assert.Equal(t, uint64(1), f.Mul(xs[i], inv[i]))
	}
	_, err = BatchInvert(f, []uint64{1, 0})
	assert.ErrorIs(t, err, field.ErrZeroInv)
}
