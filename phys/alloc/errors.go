package alloc

import (
	"errors"
	"fmt"

	"github.com/joshuapare/physmem/phys"
)

var (
	// ErrExhausted indicates that the free list is empty. It is the only
	// recoverable failure of Alloc; callers fail the request or reclaim memory.
	ErrExhausted = errors.New("alloc: no free frame")

	// ErrMisaligned indicates an address that is not a frame base.
	ErrMisaligned = errors.New("alloc: misaligned frame address")

	// ErrOutOfRange indicates an address outside the managed range.
	ErrOutOfRange = errors.New("alloc: frame address outside managed range")

	// ErrDoubleFree indicates a free of a frame that is already on the free list.
	ErrDoubleFree = errors.New("alloc: frame already free")

	// ErrNotAllocated indicates an incref of a frame with no owner.
	ErrNotAllocated = errors.New("alloc: frame not allocated")

	// ErrOverflow indicates an incref past the maximum reference count.
	ErrOverflow = errors.New("alloc: reference count overflow")

	// ErrBadPolicy indicates poison patterns that are zero or equal.
	ErrBadPolicy = errors.New("alloc: poison patterns must be non-zero and distinct")

	// ErrTooLarge indicates a managed range with more frames than the free list can index.
	ErrTooLarge = errors.New("alloc: managed range too large")
)

// FatalError is a protocol violation by a trusted caller: a free or incref of
// an address that cannot be a live frame. It is never returned for
// exhaustion. Every FatalError is handed to the allocator's Trap before it
// is returned.
type FatalError struct {
	Op   string    // "free" or "incref"
	Addr phys.Addr // offending address
	Err  error     // one of the sentinel errors above
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Trap is invoked with every fatal error before the failing call returns.
// A Trap that returns lets the caller observe the error; the default Trap
// does not return.
type Trap func(*FatalError)

// PanicTrap halts the calling goroutine by panicking with the FatalError.
// It is the default Trap.
func PanicTrap(fe *FatalError) { panic(fe) }
