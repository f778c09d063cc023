package phys

import "errors"

var (
	// ErrBadLayout indicates a layout whose bounds are inverted, overflow, or
	// leave no whole frame to manage.
	ErrBadLayout = errors.New("phys: bad memory layout")

	// ErrBadAddr indicates an address outside [Base, Top) or not frame-aligned.
	ErrBadAddr = errors.New("phys: bad frame address")

	// ErrInUse indicates a Memory that already has an allocator.
	ErrInUse = errors.New("phys: memory already claimed by an allocator")

	// ErrClosed indicates use of a Memory after Close.
	ErrClosed = errors.New("phys: memory closed")
)
