package alloc

import "sync/atomic"

// allocatorStats holds internal counters. Atomics keep them off both locks.
type allocatorStats struct {
	allocCalls    atomic.Uint64 // Alloc() calls
	allocFailures atomic.Uint64 // Alloc() calls that found the list empty
	freeCalls     atomic.Uint64 // Free() calls, including seeding
	reclaimed     atomic.Uint64 // frames pushed onto the free list
	increfs       atomic.Uint64 // successful Incref() calls
	fatal         atomic.Uint64 // protocol violations trapped
}

// Stats is a point-in-time view of the allocator. Counters are read one by
// one, so they are not mutually consistent under concurrent use.
type Stats struct {
	Frames        int    `json:"frames"`         // frames in the managed range
	FreeFrames    int    `json:"free_frames"`    // current free list length
	SharedFrames  int    `json:"shared_frames"`  // frames with more than one owner
	AllocCalls    uint64 `json:"alloc_calls"`    // Alloc() calls
	AllocFailures uint64 `json:"alloc_failures"` // Alloc() calls that returned ErrExhausted
	FreeCalls     uint64 `json:"free_calls"`     // Free() calls, seeding included
	Reclaimed     uint64 `json:"reclaimed"`      // frames returned to the free list
	Increfs       uint64 `json:"increfs"`        // successful Incref() calls
	Fatal         uint64 `json:"fatal"`          // protocol violations
}

// Stats returns the allocator's counters. It walks the free list and scans
// the reference-count table, so it is diagnostic only.
func (a *Allocator) Stats() Stats {
	return Stats{
		Frames:        a.NumFrames(),
		FreeFrames:    a.FreeCount(),
		SharedFrames:  a.refs.Shared(),
		AllocCalls:    a.stats.allocCalls.Load(),
		AllocFailures: a.stats.allocFailures.Load(),
		FreeCalls:     a.stats.freeCalls.Load(),
		Reclaimed:     a.stats.reclaimed.Load(),
		Increfs:       a.stats.increfs.Load(),
		Fatal:         a.stats.fatal.Load(),
	}
}
