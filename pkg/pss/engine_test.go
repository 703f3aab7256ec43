package pss

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/secagg/pkg/math/field"
	"github.com/taurusgroup/secagg/pkg/math/polynomial"
	"github.com/taurusgroup/secagg/pkg/math/sample"
	"github.com/taurusgroup/secagg/pkg/pool"
)

func smallParameters(totalLen int) Parameters[uint64] {
	return Parameters[uint64]{
		Field:    field.MustNew[uint64](3073700804129980417),
		Omega2:   414345200490731620,
		Omega3:   1697820560572790570,
		D2:       8,
		D3:       27,
		L:        2,
		N:        10,
		TotalLen: totalLen,
	}
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestShareSumReconstruct(t *testing.T) {
	e, err := New(smallParameters(2), nil)
	require.NoError(t, err)

	a, err := e.Share([]uint64{5, 5})
	require.NoError(t, err)
	b, err := e.Share([]uint64{5, 5})
	require.NoError(t, err)

	sum := make([][]uint64, e.N)
	for j := range sum {
		sum[j] = []uint64{e.Field.Add(a[j][0], b[j][0])}
	}
	secrets, err := e.ReconstructIndices(sum, indices(e.N))
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 10}, secrets)
}

func TestLargeFirstShares(t *testing.T) {
	p := Parameters[uint64]{
		Field:    field.MustNew[uint64](4610415792919412737),
		Omega2:   1266473570726112470,
		Omega3:   2230453091198852918,
		D2:       512,
		D3:       729,
		L:        512,
		N:        600,
		TotalLen: 512,
	}
	pl := pool.NewPool(0)
	defer pl.TearDown()
	e, err := New(p, pl)
	require.NoError(t, err)

	secrets := sample.Vector(rand.Reader, p.Field, 512)
	shares, err := e.Share(secrets)
	require.NoError(t, err)
	require.Len(t, shares, 600)

	got, err := e.ReconstructIndices(shares[:512], indices(512))
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

func TestAnyThresholdSubset(t *testing.T) {
	e, err := New(smallParameters(6), nil)
	require.NoError(t, err)
	secrets := []uint64{1, 2, 3, 4, 5, 6}
	shares, err := e.Share(secrets)
	require.NoError(t, err)

	for k := e.D2; k <= e.N; k++ {
		// take the last k shares
		idx := indices(e.N)[e.N-k:]
		got, err := e.ReconstructIndices(shares[e.N-k:], idx)
		require.NoError(t, err)
		assert.Equal(t, secrets, got, "k = %d", k)
	}

	_, err = e.ReconstructIndices(shares[:e.D2-1], indices(e.D2-1))
	assert.ErrorIs(t, err, ErrNotEnough)
}

func TestSharesHaveDegreeBelowD2(t *testing.T) {
	e, err := New(smallParameters(2), nil)
	require.NoError(t, err)
	shares, err := e.Share([]uint64{7, 8})
	require.NoError(t, err)

	ys := make([]uint64, e.N)
	for j := range ys {
		ys[j] = shares[j][0]
	}
	test, err := polynomial.NewDegreeTest(e.Field, e.EvalPoints(indices(e.N)), e.D2)
	require.NoError(t, err)
	ok, err := test.Holds(ys)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLinearity(t *testing.T) {
	e, err := New(smallParameters(4), nil)
	require.NoError(t, err)
	f := e.Field

	a := sample.Vector(rand.Reader, f, 4)
	b := sample.Vector(rand.Reader, f, 4)
	sa, err := e.Share(a)
	require.NoError(t, err)
	sb, err := e.Share(b)
	require.NoError(t, err)

	sum := make([][]uint64, e.N)
	for j := range sum {
		sum[j] = make([]uint64, e.Blocks())
		for k := range sum[j] {
			sum[j][k] = f.Add(sa[j][k], sb[j][k])
		}
	}
	got, err := e.ReconstructIndices(sum, indices(e.N))
	require.NoError(t, err)
	for i := range a {
		assert.Equal(t, f.Add(a[i], b[i]), got[i])
	}
}

func TestUint32Engine(t *testing.T) {
	f := field.MustNew[uint32](1693052929)
	p := Parameters[uint32]{
		Field:    f,
		Omega2:   f.Exp(345349465, 1<<8),        // order 16
		Omega3:   f.Exp(888845367, 3*3*3*3*3*3), // order 27
		D2:       16,
		D3:       27,
		L:        4,
		N:        20,
		TotalLen: 12,
	}
	e, err := New(p, nil)
	require.NoError(t, err)
	secrets := sample.Vector(rand.Reader, f, 12)
	shares, err := e.Share(secrets)
	require.NoError(t, err)
	got, err := e.ReconstructIndices(shares[3:19], indices(20)[3:19])
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Parameters[uint64])
	}{
		{"d2 not a power of two", func(p *Parameters[uint64]) { p.D2 = 6 }},
		{"L above d2", func(p *Parameters[uint64]) { p.L = 9 }},
		{"N at d3", func(p *Parameters[uint64]) { p.N = 27 }},
		{"N below d2", func(p *Parameters[uint64]) { p.N = 7 }},
		{"length not a multiple", func(p *Parameters[uint64]) { p.TotalLen = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := smallParameters(2)
			tt.modify(&p)
			_, err := New(p, nil)
			assert.ErrorIs(t, err, ErrParameters)
		})
	}

	p := smallParameters(2)
	p.Omega2 = p.Omega3
	_, err := New(p, nil)
	assert.ErrorIs(t, err, field.ErrNotRoot)

	e, err := New(smallParameters(2), nil)
	require.NoError(t, err)
	_, err = e.Share([]uint64{1})
	assert.ErrorIs(t, err, ErrSecretLength)
	_, err = e.Share([]uint64{1, 3073700804129980417})
	assert.ErrorIs(t, err, field.ErrNotInField)
}
