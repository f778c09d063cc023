// Package cow implements address spaces whose pages can be shared
// copy-on-write, as the consumer the frame allocator is built for.
//
// A Space maps virtual page numbers to frames obtained from an
// alloc.Allocator. Fork duplicates a space eagerly, copying every page.
// CowFork duplicates it lazily: both spaces point at the same frames, each
// frame gains an owner through Incref, and every mapping becomes read-only.
// The first write to such a page faults; the fault handler either copies the
// frame into a private one (when it is still shared) or simply makes the
// mapping writable again (when the other owners are gone).
//
//	parent := cow.NewSpace(a)
//	_ = parent.MapRange(0, 16)
//	_ = parent.Write(0, []byte("hello"))
//
//	child, err := parent.CowFork() // no frames copied
//	_ = child.Write(0, []byte("world")) // fault: child gets a private copy
//
// A Space is safe for concurrent use; distinct spaces sharing frames need no
// coordination beyond the allocator's.
package cow
