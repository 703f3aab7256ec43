package party

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListRegistration(t *testing.T) {
	l := NewList(3)
	for k, id := range []ID{"a", "b", "c"} {
		i, err := l.Add(id)
		require.NoError(t, err)
		assert.Equal(t, k, i)
	}
	_, err := l.Add("d")
	assert.ErrorIs(t, err, ErrFull)

	l = NewList(3)
	_, err = l.Add("a")
	require.NoError(t, err)
	_, err = l.Add("a")
	assert.ErrorIs(t, err, ErrDuplicate)

	l.Close()
	_, err = l.Add("b")
	assert.ErrorIs(t, err, ErrClosed)

	i, err := l.Index("a")
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	_, err = l.Index("z")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestDropoutsAreStable(t *testing.T) {
	l := NewList(5)
	for _, id := range []ID{"a", "b", "c", "d", "e"} {
		_, err := l.Add(id)
		require.NoError(t, err)
	}

	assert.Equal(t, []int{3, 1}, l.Drop(3, 1, 1, 7))
	assert.Equal(t, []int{4}, l.Drop(4, 3))
	assert.Equal(t, []int{1, 3, 4}, l.Dropouts())
	assert.Equal(t, []int{0, 2}, l.Active())
	assert.True(t, l.Dropped(3))
	assert.False(t, l.Dropped(2))

	// indices of the remaining clients are unchanged
	assert.Equal(t, ID("c"), l.ID(2))
	assert.Equal(t, 5, l.Len())
	assert.Len(t, l.IDs(), 5)
}

func TestNewID(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}
