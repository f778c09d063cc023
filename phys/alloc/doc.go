// Package alloc provides the physical frame allocator with per-frame
// reference counting that copy-on-write process duplication is built on.
//
// # Overview
//
// The allocator owns every 4 KiB frame of the managed range of a phys.Memory
// (above the kernel image, below the top of RAM). It hands frames out one at
// a time, takes them back, and counts how many mappings point at each frame
// so that a frame shared by several address spaces is only reclaimed when its
// last owner lets go.
//
// # Operations
//
//   - New(mem, opts...): boot-time init; builds both tables and seeds the free list
//   - Alloc(): pop a frame, poison it, set its count to 1
//   - Free(addr): drop one owner; reclaim (poison + push) when none are left
//   - Incref(addr): add an owner to an allocated frame (COW fork)
//   - FreeCount(): walk the free list (diagnostic)
//
// There is no Decref: every owner, whether it allocated the frame or only
// shared it, releases it through Free.
//
// # Usage Example
//
//	mem, err := phys.Open(phys.DefaultLayout())
//	if err != nil {
//	    return err
//	}
//	a, err := alloc.New(mem)
//	if err != nil {
//	    return err
//	}
//
//	pa, err := a.Alloc()
//	if errors.Is(err, alloc.ErrExhausted) {
//	    return errNoMemory // recoverable: fail the request
//	}
//
//	// Share the frame with a child address space instead of copying it.
//	_ = a.Incref(pa)
//
//	// Each owner releases it once; the second Free reclaims it.
//	_ = a.Free(pa)
//	_ = a.Free(pa)
//
// # Errors
//
// Exhaustion (ErrExhausted) is the only recoverable error. Freeing or
// increfing an address that cannot be a live frame is a protocol violation
// by a trusted caller: the allocator logs it, passes a *FatalError to its
// Trap and returns it. The default Trap (PanicTrap) panics; tests install
// their own with WithTrap and assert on IsFatal.
//
// # Poisoning
//
// With the default Policy a freshly allocated frame reads 0x05 and a freed
// frame reads 0x01, so code that assumes zeroed memory or keeps using a
// released frame fails loudly. WithoutPoison turns both fills off.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The free list and the
// reference-count table each have their own mutex. Alloc takes the list lock,
// releases it, then takes the count lock; Free does the reverse. No lock is
// ever held while acquiring the other, so the two cannot deadlock.
// The combined "drop count, maybe reclaim" sequence is not atomic as a whole;
// only each structure's update is.
//
// # Related Packages
//
//   - github.com/joshuapare/physmem/phys/refcount: reference-count table
//   - github.com/joshuapare/physmem/phys/freelist: index-linked free list
//   - github.com/joshuapare/physmem/phys/cow: address spaces sharing frames copy-on-write
package alloc
