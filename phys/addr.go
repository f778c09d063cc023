package phys

import (
	"fmt"

	"github.com/joshuapare/physmem/internal/format"
)

// Addr is a physical address.
type Addr uint64

// Aligned reports whether a is the base address of a frame.
func (a Addr) Aligned() bool { return format.Aligned(uint64(a)) }

// RoundUp returns a aligned up to the next frame boundary.
func (a Addr) RoundUp() Addr { return Addr(format.RoundUp(uint64(a))) }

// RoundDown returns a aligned down to its frame base.
func (a Addr) RoundDown() Addr { return Addr(format.RoundDown(uint64(a))) }

func (a Addr) String() string { return fmt.Sprintf("%#x", uint64(a)) }
