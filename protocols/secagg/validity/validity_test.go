package validity

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taurusgroup/secagg/pkg/math/field"
	"github.com/taurusgroup/secagg/pkg/math/sample"
	"github.com/taurusgroup/secagg/pkg/params"
)

const n = 20

var sharing = params.Sharing{
	P:      params.Default.P,
	Omega2: 414345200490731620,
	Omega3: 1697820560572790570,
	D2:     8,
	D3:     27,
	L:      4,
}

func setup(t *testing.T, malicious bool) (Layout, *Checks, field.Prime[uint64]) {
	l, err := NewLayout(8, sharing.L, 4, malicious)
	require.NoError(t, err)
	c, err := Generate(rand.Reader, l, sharing, n)
	require.NoError(t, err)
	f, err := sharing.Field()
	require.NoError(t, err)
	return l, c, f
}

// responses shares vector and lets every client respond on its row.
func responses(t *testing.T, c *Checks, vector []uint64, tamper func([][]uint64)) []Response {
	e, err := sharing.Engine(n, c.Layout.Len(), nil)
	require.NoError(t, err)
	shares, err := e.Share(vector)
	require.NoError(t, err)
	if tamper != nil {
		tamper(shares)
	}
	out := make([]Response, n)
	for j := range out {
		out[j], err = c.Respond(j, shares[j])
		require.NoError(t, err)
	}
	return out
}

func all() []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func threes(v int) []uint64 {
	x := make([]uint64, v)
	for i := range x {
		x[i] = 3
	}
	return x
}

func TestLayout(t *testing.T) {
	l, err := NewLayout(8, 4, 4, true)
	require.NoError(t, err)
	assert.Equal(t, 12, l.Y)
	assert.Equal(t, 76, l.Len())
	assert.Equal(t, 2, l.Blocks())
	assert.Equal(t, 2*8+4+12, l.InputBitIndex(0, 0))
	assert.Equal(t, 2*8+4+12+(1*4+2)*4+1, l.InputBitIndex(5, 2))

	_, err = NewLayout(10, 4, 4, true)
	assert.ErrorIs(t, err, ErrLayout)

	semi, err := NewLayout(8, 4, 4, false)
	require.NoError(t, err)
	assert.Equal(t, 8, semi.Len())
}

func TestEncode(t *testing.T) {
	l, _, f := setup(t, true)
	x := []uint64{0, 1, 2, 3, 15, 7, 8, 4}
	v, err := l.Encode(rand.Reader, f, x)
	require.NoError(t, err)
	require.Len(t, v, l.Len())

	var ySum uint64
	for i, xi := range x {
		assert.Equal(t, xi*xi, v[l.SquareIndex(i)])
		ySum += xi * xi
		var recomposed uint64
		for k := 0; k < l.S; k++ {
			recomposed += v[l.InputBitIndex(i, k)] << k
		}
		assert.Equal(t, xi, recomposed)
	}
	assert.Equal(t, ySum, v[l.sum()])
	assert.Zero(t, f.Sum(v[l.maskA():l.maskB()]))
	assert.Zero(t, f.Sum(v[l.maskB():]))

	_, err = l.Encode(rand.Reader, f, []uint64{16, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInputRange)
	_, err = l.Encode(rand.Reader, f, x[:4])
	assert.ErrorIs(t, err, ErrInputLength)
}

func TestHonestInputsPass(t *testing.T) {
	l, c, f := setup(t, true)
	x := sample.Bounded(rand.Reader, l.V, l.S)
	v, err := l.Encode(rand.Reader, f, x)
	require.NoError(t, err)

	verifier, err := c.Verifier(all())
	require.NoError(t, err)
	assert.NoError(t, verifier.Verify(responses(t, c, v, nil)))

	// any 2d₂ - 1 responders suffice
	subset := all()[n-c.MinResponders():]
	verifier, err = c.Verifier(subset)
	require.NoError(t, err)
	assert.NoError(t, verifier.Verify(responses(t, c, v, nil)[n-c.MinResponders():]))
}

func TestWrongSquareFails(t *testing.T) {
	l, c, f := setup(t, true)
	v, err := l.Encode(rand.Reader, f, threes(l.V))
	require.NoError(t, err)
	v[l.SquareIndex(0)] = 9 + 1

	verifier, err := c.Verifier(all())
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.Verify(responses(t, c, v, nil)), ErrProduct)
}

func TestFlippedBitFailsBound(t *testing.T) {
	l, c, f := setup(t, true)
	v, err := l.Encode(rand.Reader, f, threes(l.V))
	require.NoError(t, err)
	// 3 = 0b0011, bit 2 is still a bit but no longer recomposes x₀
	v[l.InputBitIndex(0, 2)] = 1

	verifier, err := c.Verifier(all())
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.Verify(responses(t, c, v, nil)), ErrBound)
}

func TestNonBitFailsProduct(t *testing.T) {
	l, c, f := setup(t, true)
	v, err := l.Encode(rand.Reader, f, threes(l.V))
	require.NoError(t, err)
	v[l.SumBitIndex(0)] = 2

	verifier, err := c.Verifier(all())
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.Verify(responses(t, c, v, nil)), ErrProduct)
}

func TestInconsistentSharesFailDegree(t *testing.T) {
	for _, malicious := range []bool{false, true} {
		l, c, f := setup(t, malicious)
		v, err := l.Encode(rand.Reader, f, threes(l.V))
		require.NoError(t, err)

		verifier, err := c.Verifier(all())
		require.NoError(t, err)
		rs := responses(t, c, v, func(shares [][]uint64) {
			shares[3][0] = f.Add(shares[3][0], 1)
		})
		assert.ErrorIs(t, verifier.Verify(rs), ErrDegree)
	}
}

func TestSemiHonest(t *testing.T) {
	l, c, f := setup(t, false)
	v, err := l.Encode(rand.Reader, f, threes(l.V))
	require.NoError(t, err)
	rs := responses(t, c, v, nil)
	for _, r := range rs {
		assert.Zero(t, r.A)
		assert.Zero(t, r.B)
	}
	verifier, err := c.Verifier(all()[:sharing.D2])
	require.NoError(t, err)
	assert.NoError(t, verifier.Verify(rs[:sharing.D2]))
}

func TestSeededChecksReplay(t *testing.T) {
	l, err := NewLayout(8, sharing.L, 4, true)
	require.NoError(t, err)
	seed := []byte("session 42")
	a, err := Generate(sample.Stream("checks", seed), l, sharing, n)
	require.NoError(t, err)
	b, err := Generate(sample.Stream("checks", seed), l, sharing, n)
	require.NoError(t, err)
	assert.Equal(t, a.Frames(nil), b.Frames(nil))

	c, err := Generate(sample.Stream("checks", []byte("session 43")), l, sharing, n)
	require.NoError(t, err)
	assert.NotEqual(t, a.Frames(nil), c.Frames(nil))
}

func TestTooFewResponders(t *testing.T) {
	_, c, _ := setup(t, true)
	_, err := c.Verifier(all()[:2*sharing.D2-2])
	assert.ErrorIs(t, err, ErrTooFewResponders)
}

func TestFrames(t *testing.T) {
	for _, malicious := range []bool{false, true} {
		l, c, _ := setup(t, malicious)
		frames := c.Frames([]int{4, 7})
		require.Len(t, frames, FrameCount)

		dropouts, parsed, err := Parse(frames, l, sharing, n)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 7}, dropouts)
		assert.Equal(t, c.Degree, parsed.Degree)
		assert.Equal(t, c.TwoPowers, parsed.TwoPowers)

		_, _, err = Parse(frames[:FrameCount-1], l, sharing, n)
		assert.ErrorIs(t, err, ErrFrames)
	}

	// a malicious broadcast is not a semi-honest one
	l, c, _ := setup(t, true)
	l.Malicious = false
	_, _, err := Parse(c.Frames(nil), l, sharing, n)
	assert.ErrorIs(t, err, ErrFrames)
}

func TestResponseEncoding(t *testing.T) {
	r := Response{Degree: 1, A: 2, B: 3}
	data, err := r.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, ResponseSize)

	var got Response
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, r, got)
	assert.Error(t, got.UnmarshalBinary(data[:16]))
}
