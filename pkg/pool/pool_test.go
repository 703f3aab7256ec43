package pool

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	for _, pl := range []*Pool{nil, NewPool(0), NewPool(3)} {
		squares := Map(pl, 100, func(i int) int { return i * i })
		for i, s := range squares {
			assert.Equal(t, i*i, s)
		}
		if pl != nil {
			pl.TearDown()
		}
	}
}

func TestMapErr(t *testing.T) {
	pl := NewPool(4)
	defer pl.TearDown()

	errOdd := errors.New("odd")
	_, err := MapErr(pl, 10, func(i int) (int, error) {
		if i%2 == 1 {
			return 0, errOdd
		}
		return i, nil
	})
	assert.ErrorIs(t, err, errOdd)

	out, err := MapErr(pl, 3, func(i int) (int, error) { return i + 1, nil })
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out)
}

func TestConcurrentCallers(t *testing.T) {
	pl := NewPool(2)
	defer pl.TearDown()

	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := Map(pl, 50, func(i int) int { return i })
			assert.Len(t, out, 50)
			assert.Equal(t, 49, out[49])
		}()
	}
	wg.Wait()
}

func TestLockedReader(t *testing.T) {
	r := NewLockedReader(bytes.NewReader(make([]byte, 64)))
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
}
