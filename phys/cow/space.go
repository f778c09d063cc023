package cow

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/joshuapare/physmem/internal/format"
	"github.com/joshuapare/physmem/phys"
	"github.com/joshuapare/physmem/phys/alloc"
)

var (
	// ErrNoMemory indicates the allocator ran out of frames. The operation
	// that hit it has been undone.
	ErrNoMemory = errors.New("cow: out of memory")

	// ErrNotMapped indicates an access to an unmapped virtual page.
	ErrNotMapped = errors.New("cow: page not mapped")

	// ErrMapped indicates a Map of a virtual page that is already mapped.
	ErrMapped = errors.New("cow: page already mapped")

	// ErrReleased indicates use of a Space after Release.
	ErrReleased = errors.New("cow: address space released")
)

// pte is one mapping. A cow mapping is read-only until its first write.
type pte struct {
	pa  phys.Addr
	cow bool
}

// Counters records fault handling activity of one Space.
type Counters struct {
	Faults int // write faults taken on cow mappings
	Copies int // faults that had to copy the frame
	Reuses int // faults that found the frame no longer shared
}

// Space is a virtual address space of 4 KiB pages.
type Space struct {
	a *alloc.Allocator

	mu       sync.Mutex
	pages    map[uint64]pte // virtual page number -> mapping
	released bool
	counters Counters
}

// NewSpace returns an empty address space backed by a.
func NewSpace(a *alloc.Allocator) *Space {
	return &Space{a: a, pages: make(map[uint64]pte)}
}

// Map backs virtual page vpn with a fresh, zeroed, writable frame.
func (s *Space) Map(vpn uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	if _, ok := s.pages[vpn]; ok {
		return fmt.Errorf("%w: vpn %#x", ErrMapped, vpn)
	}
	pa, err := s.allocFrame()
	if err != nil {
		return err
	}
	page, err := s.a.Frame(pa)
	if err != nil {
		return errors.Join(err, s.a.Free(pa))
	}
	clear(page)
	s.pages[vpn] = pte{pa: pa}
	return nil
}

// MapRange maps n consecutive pages starting at vpn. On failure the pages it
// mapped are unmapped again.
func (s *Space) MapRange(vpn uint64, n int) error {
	for i := range n {
		if err := s.Map(vpn + uint64(i)); err != nil {
			for j := range i {
				_ = s.Unmap(vpn + uint64(j))
			}
			return err
		}
	}
	return nil
}

// Unmap drops the mapping of vpn and releases this space's share of its frame.
func (s *Space) Unmap(vpn uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	e, ok := s.pages[vpn]
	if !ok {
		return fmt.Errorf("%w: vpn %#x", ErrNotMapped, vpn)
	}
	delete(s.pages, vpn)
	return s.a.Free(e.pa)
}

// Translate returns the frame backing virtual address va and whether the
// mapping is currently copy-on-write.
func (s *Space) Translate(va uint64) (pa phys.Addr, cow bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return 0, false, ErrReleased
	}
	e, ok := s.pages[va>>format.FrameShift]
	if !ok {
		return 0, false, fmt.Errorf("%w: va %#x", ErrNotMapped, va)
	}
	return e.pa + phys.Addr(va&format.FrameMask), e.cow, nil
}

// Read copies len(p) bytes starting at virtual address va into p.
func (s *Space) Read(va uint64, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	return s.walk(va, len(p), false, func(page []byte, n int) {
		copy(p[n:], page)
	})
}

// Write copies p to virtual address va, breaking copy-on-write sharing of
// every page it touches.
func (s *Space) Write(va uint64, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	return s.walk(va, len(p), true, func(page []byte, n int) {
		copy(page, p[n:])
	})
}

// walk visits the frame slices covering [va, va+length). For writes it takes
// the copy-on-write fault on each cow page first. Called with s.mu held.
func (s *Space) walk(va uint64, length int, write bool, fn func(page []byte, n int)) error {
	for n := 0; n < length; {
		vpn, off := va>>format.FrameShift, va&format.FrameMask
		e, ok := s.pages[vpn]
		if !ok {
			return fmt.Errorf("%w: va %#x", ErrNotMapped, va)
		}
		if write && e.cow {
			var err error
			if e, err = s.fault(e); err != nil {
				return fmt.Errorf("write fault at va %#x: %w", va, err)
			}
			s.pages[vpn] = e
		}
		page, err := s.a.Frame(e.pa)
		if err != nil {
			return err
		}
		chunk := min(length-n, int(format.FrameSize-off))
		fn(page[off:off+uint64(chunk)], n)
		n += chunk
		va += uint64(chunk)
	}
	return nil
}

// fault resolves a write to a cow mapping. A frame nobody else owns is simply
// made writable; a shared frame is copied into a private one and this
// space's share of the old frame is released.
func (s *Space) fault(e pte) (pte, error) {
	s.counters.Faults++
	n, err := s.a.Refcount(e.pa)
	if err != nil {
		return e, err
	}
	if n == 1 {
		s.counters.Reuses++
		return pte{pa: e.pa}, nil
	}

	pa, err := s.allocFrame()
	if err != nil {
		return e, err
	}
	dst, err := s.a.Frame(pa)
	if err != nil {
		return e, errors.Join(err, s.a.Free(pa))
	}
	src, err := s.a.Frame(e.pa)
	if err != nil {
		return e, errors.Join(err, s.a.Free(pa))
	}
	copy(dst, src)
	if err := s.a.Free(e.pa); err != nil {
		return e, errors.Join(err, s.a.Free(pa))
	}
	s.counters.Copies++
	return pte{pa: pa}, nil
}

// Fork returns a copy of s in which every page is backed by a private copy
// of the parent's frame. If memory runs out midway the partial child is
// released and ErrNoMemory is returned.
func (s *Space) Fork() (*Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrReleased
	}

	child := NewSpace(s.a)
	for _, vpn := range s.sortedVPNs() {
		e := s.pages[vpn]
		pa, err := s.allocFrame()
		if err != nil {
			return nil, errors.Join(err, child.Release())
		}
		dst, err := s.a.Frame(pa)
		if err != nil {
			return nil, errors.Join(err, s.a.Free(pa), child.Release())
		}
		src, err := s.a.Frame(e.pa)
		if err != nil {
			return nil, errors.Join(err, s.a.Free(pa), child.Release())
		}
		copy(dst, src)
		child.pages[vpn] = pte{pa: pa}
	}
	return child, nil
}

// CowFork returns a space sharing every frame of s. Each frame gains one
// owner and both sides' mappings become copy-on-write. No frame is copied.
//
// Incref only fails on a protocol violation; if it does, the child's shares
// taken so far are released again so no frame stays over-counted.
func (s *Space) CowFork() (*Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrReleased
	}

	child := NewSpace(s.a)
	for _, vpn := range s.sortedVPNs() {
		e := s.pages[vpn]
		if err := s.a.Incref(e.pa); err != nil {
			return nil, errors.Join(err, child.Release())
		}
		e.cow = true
		s.pages[vpn] = e
		child.pages[vpn] = e
	}
	return child, nil
}

// Release unmaps every page, dropping this space's share of each frame.
// Release is idempotent.
func (s *Space) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	var errs []error
	for vpn, e := range s.pages {
		if err := s.a.Free(e.pa); err != nil {
			errs = append(errs, err)
		}
		delete(s.pages, vpn)
	}
	return errors.Join(errs...)
}

// Resident returns the number of mapped pages.
func (s *Space) Resident() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Counters returns the fault counters.
func (s *Space) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

func (s *Space) allocFrame() (phys.Addr, error) {
	pa, err := s.a.Alloc()
	if errors.Is(err, alloc.ErrExhausted) {
		return 0, ErrNoMemory
	}
	return pa, err
}

// sortedVPNs returns the mapped page numbers in ascending order so forks
// allocate deterministically.
func (s *Space) sortedVPNs() []uint64 {
	vpns := make([]uint64, 0, len(s.pages))
	for vpn := range s.pages {
		vpns = append(vpns, vpn)
	}
	sort.Slice(vpns, func(i, j int) bool { return vpns[i] < vpns[j] })
	return vpns
}
