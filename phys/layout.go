package phys

import (
	"fmt"

	"github.com/joshuapare/physmem/internal/buf"
	"github.com/joshuapare/physmem/internal/format"
)

const (
	// DefaultBase is where RAM starts on the default layout (KERNBASE).
	DefaultBase Addr = 0x80000000

	// DefaultKernelSize is the size reserved for the kernel image on the
	// default layout.
	DefaultKernelSize = 256 << 10

	// DefaultRAMSize is the amount of installed RAM on the default layout.
	DefaultRAMSize = 128 << 20
)

// Layout fixes the physical address map at boot. It is immutable for the
// allocator's lifetime.
type Layout struct {
	Base      Addr // first byte of RAM
	KernelEnd Addr // first byte after the kernel image
	Top       Addr // first byte after installed RAM
}

// DefaultLayout returns a 128 MiB machine with RAM at 0x80000000 and a
// 256 KiB kernel image.
func DefaultLayout() Layout {
	return NewLayout(DefaultBase, DefaultKernelSize, DefaultRAMSize)
}

// NewLayout builds a layout of ramSize bytes at base whose first kernelSize
// bytes hold the kernel image.
func NewLayout(base Addr, kernelSize, ramSize uint64) Layout {
	return Layout{
		Base:      base,
		KernelEnd: base + Addr(kernelSize),
		Top:       base + Addr(ramSize),
	}
}

// Validate checks that the layout is well ordered, does not wrap the address
// space, and leaves at least one whole frame to manage.
func (l Layout) Validate() error {
	if l.KernelEnd < l.Base || l.Top < l.KernelEnd {
		return fmt.Errorf("%w: want base %s <= kernel end %s <= top %s",
			ErrBadLayout, l.Base, l.KernelEnd, l.Top)
	}
	if _, ok := buf.AddOverflowSafe(uint64(l.KernelEnd), format.FrameMask); !ok {
		return fmt.Errorf("%w: kernel end %s overflows when rounded", ErrBadLayout, l.KernelEnd)
	}
	if uint64(l.Top-l.Base) > uint64(maxInt) {
		return fmt.Errorf("%w: %d bytes of RAM cannot be mapped", ErrBadLayout, l.Top-l.Base)
	}
	start, end := l.Managed()
	if end <= start {
		return fmt.Errorf("%w: no whole frame between %s and %s", ErrBadLayout, l.KernelEnd, l.Top)
	}
	return nil
}

// Managed returns the half-open range [start, end) of frames handed to the
// allocator. Only meaningful on a validated layout.
func (l Layout) Managed() (start, end Addr) {
	start, end = l.KernelEnd.RoundUp(), l.Top.RoundDown()
	if end < start {
		end = start
	}
	return start, end
}

// ManagedFrames returns the number of frames in the managed range.
func (l Layout) ManagedFrames() int {
	start, end := l.Managed()
	return int(format.Frames(uint64(end - start)))
}

// Size returns the number of bytes of RAM.
func (l Layout) Size() uint64 { return uint64(l.Top - l.Base) }

func (l Layout) String() string {
	start, end := l.Managed()
	return fmt.Sprintf("ram [%s, %s) managed [%s, %s) %d frames",
		l.Base, l.Top, start, end, l.ManagedFrames())
}

const maxInt = int(^uint(0) >> 1)
