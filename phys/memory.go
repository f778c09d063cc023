package phys

import (
	"fmt"
	"sync/atomic"

	"github.com/joshuapare/physmem/internal/buf"
	"github.com/joshuapare/physmem/internal/format"
	"github.com/joshuapare/physmem/internal/mmfile"
)

// Memory is the machine's RAM, backed by an anonymous mapping (unix) or a byte
// slice (others). Frame contents are shared by every caller holding a slice
// returned from Frame; synchronising writes to a frame is the owner's job.
//
// Close must not race with any other method.
type Memory struct {
	layout  Layout
	data    []byte
	unmap   func() error
	claimed atomic.Bool
}

// Open validates l and maps its RAM.
func Open(l Layout) (*Memory, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	data, unmap, err := mmfile.MapAnon(int(l.Size()))
	if err != nil {
		return nil, fmt.Errorf("phys: map %d bytes of RAM: %w", l.Size(), err)
	}
	return &Memory{layout: l, data: data, unmap: unmap}, nil
}

// Layout returns the address map this memory was opened with.
func (m *Memory) Layout() Layout { return m.layout }

// Claim marks m as owned by a frame allocator. Only the first Claim
// succeeds; later calls fail with ErrInUse.
func (m *Memory) Claim() error {
	if !m.claimed.CompareAndSwap(false, true) {
		return ErrInUse
	}
	return nil
}

// Frame returns the 4096 bytes of the frame at a. The slice aliases RAM.
func (m *Memory) Frame(a Addr) ([]byte, error) {
	if m.data == nil {
		return nil, ErrClosed
	}
	if !a.Aligned() || a < m.layout.Base {
		return nil, fmt.Errorf("%w: %s", ErrBadAddr, a)
	}
	page, ok := buf.Slice(m.data, uint64(a-m.layout.Base), format.FrameSize)
	if !ok {
		return nil, fmt.Errorf("%w: %s beyond top %s", ErrBadAddr, a, m.layout.Top)
	}
	return page, nil
}

// Close unmaps the arena. Further Frame calls fail with ErrClosed.
func (m *Memory) Close() error {
	if m.data == nil {
		return nil
	}
	m.data = nil
	return m.unmap()
}
