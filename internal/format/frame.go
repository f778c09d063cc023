// Package format holds the fixed geometry of physical memory: the frame
// size, the shift that converts between addresses and frame numbers, and the
// rounding helpers every other package uses to stay frame-aligned.
package format

const (
	// FrameShift is log2(FrameSize).
	FrameShift = 12

	// FrameSize is the size of one physical frame in bytes (4 KiB).
	FrameSize = 1 << FrameShift

	// FrameMask selects the offset-within-frame bits of an address.
	FrameMask = FrameSize - 1
)

// RoundUp returns n aligned up to the next frame boundary.
//
// Example:
//
//	RoundUp(1)    = 4096
//	RoundUp(4096) = 4096
//	RoundUp(4097) = 8192
func RoundUp(n uint64) uint64 {
	return (n + FrameMask) &^ FrameMask
}

// RoundDown returns n aligned down to the previous frame boundary.
//
// Example:
//
//	RoundDown(4095) = 0
//	RoundDown(4096) = 4096
//	RoundDown(8191) = 4096
func RoundDown(n uint64) uint64 {
	return n &^ FrameMask
}

// Aligned reports whether n sits exactly on a frame boundary.
func Aligned(n uint64) bool {
	return n&FrameMask == 0
}

// Frames returns the number of whole frames in n bytes.
func Frames(n uint64) uint64 {
	return n >> FrameShift
}
