package alloc

import (
	"github.com/joshuapare/physmem/internal/format"
	"github.com/joshuapare/physmem/phys"
)

// seedRange releases every whole frame in [start, end) into the free list,
// rounding start up to a frame boundary. Frames here have never been
// allocated, so their count is 0 and Free enqueues them unconditionally.
// Returns the number of frames released.
func (a *Allocator) seedRange(start, end phys.Addr) (int, error) {
	n := 0
	if end < format.FrameSize {
		return 0, nil
	}
	last := end - format.FrameSize
	for p := start.RoundUp(); p <= last; p += format.FrameSize {
		if err := a.Free(p); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
