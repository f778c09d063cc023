package alloc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joshuapare/physmem/internal/buf"
	"github.com/joshuapare/physmem/internal/format"
	"github.com/joshuapare/physmem/internal/logger"
	"github.com/joshuapare/physmem/phys"
	"github.com/joshuapare/physmem/phys/freelist"
	"github.com/joshuapare/physmem/phys/refcount"
)

// Allocator hands out whole frames of the managed range and counts their
// owners. It is safe for concurrent use.
//
// The free list and the reference-count table are guarded by separate locks.
// An operation touching both takes them one after the other and never holds
// both at once.
type Allocator struct {
	mem        *phys.Memory
	start, end phys.Addr

	refs *refcount.Table
	free *freelist.List

	policy Policy
	trap   Trap
	log    *slog.Logger

	stats allocatorStats
}

// New builds the allocator for the managed range of mem and seeds the free
// list with every frame in it. This is the boot-time init: a Memory takes one
// allocator, and a second New on it fails with phys.ErrInUse. Share the
// returned handle.
func New(mem *phys.Memory, opts ...Option) (*Allocator, error) {
	cfg := config{trap: PanicTrap, policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.logger == nil {
		cfg.logger = logger.FromEnv()
	}

	l := mem.Layout()
	start, end := l.Managed()
	n := l.ManagedFrames()
	if uint64(n) > freelist.MaxSlots {
		return nil, fmt.Errorf("%w: %d frames", ErrTooLarge, n)
	}

	if err := mem.Claim(); err != nil {
		return nil, fmt.Errorf("alloc: %w", err)
	}

	a := &Allocator{
		mem:    mem,
		start:  start,
		end:    end,
		refs:   refcount.New(n),
		free:   freelist.New(n),
		policy: cfg.policy,
		trap:   cfg.trap,
		log:    cfg.logger,
	}

	seeded, err := a.seedRange(l.KernelEnd, l.Top)
	if err != nil {
		return nil, fmt.Errorf("alloc: seed free list: %w", err)
	}
	a.log.Info("free list seeded",
		"start", start.String(), "end", end.String(), "frames", seeded)
	return a, nil
}

// Alloc removes one frame from the free list and returns it with a reference
// count of 1. When poisoning is on the frame is filled with the alloc
// pattern, never zeros. An empty free list yields ErrExhausted.
func (a *Allocator) Alloc() (phys.Addr, error) {
	a.stats.allocCalls.Add(1)

	i, ok := a.free.Pop()
	if !ok {
		a.stats.allocFailures.Add(1)
		a.log.Debug("free list exhausted")
		return 0, ErrExhausted
	}
	addr := a.addr(i)

	// The frame is off the list and not yet counted: only this call can see it.
	if a.policy.OnAlloc {
		a.fill(addr, a.policy.AllocPattern)
	}
	if err := a.refs.Claim(i); err != nil {
		return 0, fmt.Errorf("alloc: claim %s: %w", addr, err)
	}
	return addr, nil
}

// Free drops one owner of the frame at addr. While other owners remain the
// frame stays allocated. When the last owner goes the frame is filled with
// the free pattern and pushed onto the free list.
//
// A misaligned or out-of-range address, or a frame already on the free list,
// is a fatal protocol violation: the Trap runs and a *FatalError is returned.
//
// Double-free detection is best effort. The list check and the count update
// take different locks, so a stray Free that lands between another core's
// pop and claim in Alloc sees a count of 0 off the list and pushes the frame
// that is being handed out.
func (a *Allocator) Free(addr phys.Addr) error {
	a.stats.freeCalls.Add(1)

	i, err := a.index(addr)
	if err != nil {
		return a.fatal("free", addr, err)
	}
	if a.free.Contains(i) {
		return a.fatal("free", addr, ErrDoubleFree)
	}

	prev, err := a.refs.Release(i)
	if err != nil {
		return a.fatal("free", addr, err)
	}
	if prev > 1 {
		return nil
	}

	// Count 0 from here on: poison before publishing, another core may pop it
	// the moment it is pushed.
	if a.policy.OnFree {
		a.fill(addr, a.policy.FreePattern)
	}
	if err := a.free.Push(i); err != nil {
		if errors.Is(err, freelist.ErrDuplicate) {
			err = ErrDoubleFree
		}
		return a.fatal("free", addr, err)
	}
	a.stats.reclaimed.Add(1)
	return nil
}

// Incref records one more owner of the allocated frame at addr. It takes only
// the reference-count lock and never copies or reclaims anything.
//
// An address outside the managed range (or misaligned), a frame with no
// owner, or a count overflow is fatal.
func (a *Allocator) Incref(addr phys.Addr) error {
	i, err := a.index(addr)
	if err != nil {
		return a.fatal("incref", addr, err)
	}
	if _, err := a.refs.Inc(i); err != nil {
		switch {
		case errors.Is(err, refcount.ErrZero):
			err = ErrNotAllocated
		case errors.Is(err, refcount.ErrOverflow):
			err = ErrOverflow
		}
		return a.fatal("incref", addr, err)
	}
	a.stats.increfs.Add(1)
	return nil
}

// FreeCount walks the free list under its lock and returns its length.
// Diagnostic only: it is O(free frames).
func (a *Allocator) FreeCount() int {
	return a.free.Count()
}

// Refcount returns the owner count of the frame at addr. Bad addresses are
// reported as plain errors; introspection never traps.
func (a *Allocator) Refcount(addr phys.Addr) (int32, error) {
	i, err := a.index(addr)
	if err != nil {
		return 0, fmt.Errorf("refcount %s: %w", addr, err)
	}
	return a.refs.Get(i)
}

// Frame returns the bytes of the managed frame at addr.
func (a *Allocator) Frame(addr phys.Addr) ([]byte, error) {
	if _, err := a.index(addr); err != nil {
		return nil, fmt.Errorf("frame %s: %w", addr, err)
	}
	return a.mem.Frame(addr)
}

// Range returns the managed range [start, end).
func (a *Allocator) Range() (start, end phys.Addr) { return a.start, a.end }

// NumFrames returns the number of frames in the managed range.
func (a *Allocator) NumFrames() int { return a.refs.Len() }

// Policy returns the poison policy in effect.
func (a *Allocator) Policy() Policy { return a.policy }

// index maps a frame address to its slot in both tables.
func (a *Allocator) index(addr phys.Addr) (int, error) {
	if !addr.Aligned() {
		return 0, ErrMisaligned
	}
	if addr < a.start || addr >= a.end {
		return 0, ErrOutOfRange
	}
	return int(format.Frames(uint64(addr - a.start))), nil
}

func (a *Allocator) addr(i int) phys.Addr {
	return a.start + phys.Addr(uint64(i)<<format.FrameShift)
}

func (a *Allocator) fill(addr phys.Addr, pattern byte) {
	page, err := a.mem.Frame(addr)
	if err != nil {
		// The managed range lies inside RAM; this only fails after Close.
		a.log.Warn("poison skipped", "addr", addr.String(), "err", err)
		return
	}
	buf.Fill(page, pattern)
}

func (a *Allocator) fatal(op string, addr phys.Addr, err error) error {
	a.stats.fatal.Add(1)
	fe := &FatalError{Op: op, Addr: addr, Err: err}
	a.log.Error("allocator protocol violation",
		"op", op,
		"addr", addr.String(),
		"start", a.start.String(),
		"end", a.end.String(),
		"err", err)
	a.trap(fe)
	return fe
}
