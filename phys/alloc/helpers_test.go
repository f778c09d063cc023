package alloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/physmem/internal/format"
	"github.com/joshuapare/physmem/phys"
)

// testBase is where RAM starts in every test layout.
const testBase phys.Addr = 0x80000000

// trapRecorder collects fatal errors instead of panicking.
type trapRecorder struct {
	mu   sync.Mutex
	errs []*FatalError
}

func (r *trapRecorder) trap(fe *FatalError) {
	r.mu.Lock()
	r.errs = append(r.errs, fe)
	r.mu.Unlock()
}

func (r *trapRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func (r *trapRecorder) last() *FatalError {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

// newTestMemory opens RAM holding a one-frame kernel image followed by
// exactly frames managed frames.
func newTestMemory(t testing.TB, frames int) *phys.Memory {
	t.Helper()
	l := phys.NewLayout(testBase, format.FrameSize, uint64(1+frames)*format.FrameSize)
	m, err := phys.Open(l)
	require.NoError(t, err, "failed to open test memory")
	t.Cleanup(func() { m.Close() })
	return m
}

// newTestAllocator returns an allocator over frames managed frames whose
// fatal errors are recorded rather than raised.
func newTestAllocator(t testing.TB, frames int, opts ...Option) (*Allocator, *trapRecorder) {
	t.Helper()
	rec := &trapRecorder{}
	opts = append([]Option{WithTrap(rec.trap)}, opts...)
	a, err := New(newTestMemory(t, frames), opts...)
	require.NoError(t, err, "failed to create allocator")
	require.Equal(t, frames, a.FreeCount(), "every managed frame should be seeded")
	return a, rec
}

// requireFilled asserts every byte of the frame at addr equals want.
func requireFilled(t testing.TB, a *Allocator, addr phys.Addr, want byte) {
	t.Helper()
	page, err := a.Frame(addr)
	require.NoError(t, err)
	for i, b := range page {
		if b != want {
			require.Failf(t, "frame not filled",
				"frame %s byte %d = %#02x, want %#02x", addr, i, b, want)
		}
	}
}

// requireRefcount asserts the owner count of the frame at addr.
func requireRefcount(t testing.TB, a *Allocator, addr phys.Addr, want int32) {
	t.Helper()
	got, err := a.Refcount(addr)
	require.NoError(t, err)
	require.Equal(t, want, got, "refcount of %s", addr)
}

// onFreeList reports whether the frame at addr is on the free list.
func onFreeList(t testing.TB, a *Allocator, addr phys.Addr) bool {
	t.Helper()
	i, err := a.index(addr)
	require.NoError(t, err)
	return a.free.Contains(i)
}

// listOccurrences counts how many times the frame at addr appears on the free list.
func listOccurrences(t testing.TB, a *Allocator, addr phys.Addr) int {
	t.Helper()
	i, err := a.index(addr)
	require.NoError(t, err)
	n := 0
	for _, s := range a.free.Slots() {
		if s == i {
			n++
		}
	}
	return n
}
