// Package phys models the physical memory of a machine: a byte arena spanning
// [Layout.Base, Layout.Top) addressed by physical address, and the layout
// that splits it into the kernel image and the range handed to the frame
// allocator.
//
// # Layout
//
// A Layout is described by three addresses:
//
//	Base       first byte of RAM (0x80000000 on the default layout)
//	KernelEnd  first byte after the kernel image
//	Top        first byte after installed RAM (PHYSTOP)
//
// The managed range is [RoundUp(KernelEnd), RoundDown(Top)): every whole,
// frame-aligned 4 KiB frame above the kernel image and below the top of RAM.
//
// # Memory
//
// Memory backs the whole of [Base, Top) with an anonymous mapping (see
// internal/mmfile) so frame contents can be read, written and poisoned like
// real RAM:
//
//	m, err := phys.Open(phys.DefaultLayout())
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	page, err := m.Frame(addr) // 4096-byte slice aliasing the arena
//
// # Related Packages
//
//   - github.com/joshuapare/physmem/phys/alloc: frame allocator over the managed range
//   - github.com/joshuapare/physmem/phys/cow: copy-on-write address spaces
//   - github.com/joshuapare/physmem/internal/format: frame geometry
package phys
