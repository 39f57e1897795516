package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LazyCreate(t *testing.T) {
	s := New(5)
	assert.Nil(t, s.View("abc"))
	assert.Equal(t, 0, s.Depth("abc"))
	assert.Equal(t, 0, s.Len())

	s.Append("abc", 1.5)
	assert.Equal(t, []float64{1.5}, s.View("abc"))
	assert.Equal(t, 1, s.Len())
}

func TestStore_EvictsExactlyOldestAtCapacity(t *testing.T) {
	s := New(DefaultMaxHistory)
	for i := 0; i < DefaultMaxHistory; i++ {
		require.False(t, s.Append("tok", float64(i)))
	}
	require.Equal(t, DefaultMaxHistory, s.Depth("tok"))

	assert.True(t, s.Append("tok", 1000))

	view := s.View("tok")
	require.Len(t, view, DefaultMaxHistory)
	assert.Equal(t, 1.0, view[0], "sample 0 should be the only one evicted")
	assert.Equal(t, 1000.0, view[len(view)-1])
}

func TestStore_TokensAreIndependent(t *testing.T) {
	s := New(3)
	for i := 0; i < 10; i++ {
		s.Append("a", float64(i))
	}
	s.Append("b", 42)

	assert.Equal(t, []float64{7, 8, 9}, s.View("a"))
	assert.Equal(t, []float64{42}, s.View("b"))
	assert.Equal(t, 2, s.Len())
}

func TestStore_Tail(t *testing.T) {
	s := New(10)
	for i := 1; i <= 6; i++ {
		s.Append("a", float64(i))
	}
	assert.Equal(t, []float64{4, 5, 6}, s.Tail("a", 3))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, s.Tail("a", 15))
	assert.Nil(t, s.Tail("missing", 3))
}

func TestStore_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultMaxHistory, New(0).Capacity())
	assert.Equal(t, DefaultMaxHistory, New(-1).Capacity())
}
