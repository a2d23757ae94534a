package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryStaleHandle(t *testing.T) {
	r := NewRegistry[string](4)
	a := r.Insert("cube")
	b := r.Insert("sphere")
	assert.Equal(t, 2, r.Len())

	v, ok := r.Get(a)
	require.True(t, ok)
	assert.Equal(t, "cube", v)

	_, err := r.Remove(a)
	require.NoError(t, err)
	_, ok = r.Get(a)
	assert.False(t, ok, "removed handle must not resolve")

	c := r.Insert("plane")
	assert.Equal(t, a.Index, c.Index, "slot is reused")
	assert.NotEqual(t, a.Generation, c.Generation)
	_, ok = r.Get(a)
	assert.False(t, ok, "old generation stays stale after reuse")

	v, ok = r.Get(b)
	require.True(t, ok)
	assert.Equal(t, "sphere", v)

	_, err = r.Remove(a)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestRegistryZeroHandle(t *testing.T) {
	r := NewRegistry[int](0)
	r.Insert(7)
	_, ok := r.Get(Handle{})
	assert.False(t, ok)
}

func TestRegistryEach(t *testing.T) {
	r := NewRegistry[int](0)
	h := r.Insert(1)
	r.Insert(2)
	r.Insert(3)
	_, _ = r.Remove(h)

	sum := 0
	r.Each(func(_ Handle, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 5, sum)
}
