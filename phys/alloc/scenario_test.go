package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenario_ThreeFrames walks a three-frame allocator through exhaustion,
// reuse and a shared frame being released by both owners.
func TestScenario_ThreeFrames(t *testing.T) {
	a, rec := newTestAllocator(t, 3)

	// Three allocations give three distinct frames, the fourth finds nothing.
	p1, err := a.Alloc()
	require.NoError(t, err)
	p2, err := a.Alloc()
	require.NoError(t, err)
	p3, err := a.Alloc()
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
	assert.NotEqual(t, p2, p3)
	assert.NotEqual(t, p1, p3)
	assert.Equal(t, 0, a.FreeCount())

	_, err = a.Alloc()
	require.ErrorIs(t, err, ErrExhausted)

	// Free one; the next allocation returns it with a fresh count.
	require.NoError(t, a.Free(p2))
	assert.Equal(t, 1, a.FreeCount())
	again, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, p2, again)
	requireRefcount(t, a, again, 1)

	// Share p1: the first free leaves it allocated with one owner.
	require.NoError(t, a.Incref(p1))
	requireRefcount(t, a, p1, 2)

	require.NoError(t, a.Free(p1))
	requireRefcount(t, a, p1, 1)
	assert.Equal(t, 0, a.FreeCount())
	assert.False(t, onFreeList(t, a, p1))

	// The second free puts it back.
	require.NoError(t, a.Free(p1))
	requireRefcount(t, a, p1, 0)
	assert.Equal(t, 1, a.FreeCount())
	assert.True(t, onFreeList(t, a, p1))

	assert.Zero(t, rec.count())
}
