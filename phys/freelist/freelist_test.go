package freelist

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_LIFO(t *testing.T) {
	l := New(8)
	require.Len(t, l.next, 8)

	for _, i := range []int{3, 5, 1} {
		require.NoError(t, l.Push(i))
	}
	assert.Equal(t, 3, l.n)
	assert.Equal(t, 3, l.Count())
	assert.Equal(t, []int{1, 5, 3}, l.Slots())

	for _, want := range []int{1, 5, 3} {
		got, ok := l.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := l.Pop()
	assert.False(t, ok, "empty list")
	assert.Equal(t, 0, l.Count())
}

func TestList_Duplicate(t *testing.T) {
	l := New(4)
	require.NoError(t, l.Push(2))
	require.ErrorIs(t, l.Push(2), ErrDuplicate)
	assert.Equal(t, 1, l.Count(), "duplicate push must not grow the list")

	i, ok := l.Pop()
	require.True(t, ok)
	require.Equal(t, 2, i)
	require.NoError(t, l.Push(2), "slot can be freed again after Pop")
}

func TestList_Contains(t *testing.T) {
	l := New(4)
	assert.False(t, l.Contains(1))
	require.NoError(t, l.Push(1))
	assert.True(t, l.Contains(1))
	assert.False(t, l.Contains(-1))
	assert.False(t, l.Contains(4))
	l.Pop()
	assert.False(t, l.Contains(1))
}

func TestList_Bounds(t *testing.T) {
	l := New(2)
	require.ErrorIs(t, l.Push(-1), ErrIndex)
	require.ErrorIs(t, l.Push(2), ErrIndex)
	assert.Panics(t, func() { New(-1) })
}

func TestList_ConcurrentPushPop(t *testing.T) {
	const n = 1024
	l := New(n)
	for i := range n {
		require.NoError(t, l.Push(i))
	}

	// Every goroutine pops and re-pushes; no slot may ever be held twice.
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		held = make(map[int]bool)
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				i, ok := l.Pop()
				if !ok {
					continue
				}
				mu.Lock()
				assert.False(t, held[i], "slot %d popped twice", i)
				held[i] = true
				mu.Unlock()

				mu.Lock()
				delete(held, i)
				mu.Unlock()
				assert.NoError(t, l.Push(i))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n, l.n)
	assert.Equal(t, n, l.Count())
}
