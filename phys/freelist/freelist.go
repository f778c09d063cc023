// Package freelist implements the pool of free frames as an index-linked
// LIFO list over an array of frame slots.
//
// Slot i stands for the i-th frame of the managed range. A free slot stores
// the index of the next free slot, so the list needs no storage inside the
// frames themselves. A membership bit per slot guarantees that a frame is on
// the list at most once.
//
// The list carries its own mutex; Push and Pop are O(1) and Count walks the
// list under the lock.
package freelist

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Nil terminates the list.
const Nil = math.MaxUint32

// MaxSlots is the largest number of frames a list can index.
const MaxSlots = math.MaxUint32

var (
	// ErrIndex indicates a slot index outside the list.
	ErrIndex = errors.New("freelist: slot index out of range")

	// ErrDuplicate indicates a push of a slot that is already free.
	ErrDuplicate = errors.New("freelist: slot already on the free list")
)

// List is an index-linked free list. Use New to create one.
type List struct {
	mu   sync.Mutex
	next []uint32 // next[i] is the slot after i; valid only while free[i]
	free []bool
	head uint32
	n    int
}

// New returns an empty list able to hold slots [0, n). It panics if n is
// negative or exceeds MaxSlots.
func New(n int) *List {
	if n < 0 || uint64(n) > MaxSlots {
		panic(fmt.Sprintf("freelist: bad slot count %d", n))
	}
	return &List{
		next: make([]uint32, n),
		free: make([]bool, n),
		head: Nil,
	}
}

// Push puts slot i at the head of the list.
func (l *List) Push(i int) error {
	if i < 0 || i >= len(l.next) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndex, i, len(l.next))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.free[i] {
		return fmt.Errorf("%w: %d", ErrDuplicate, i)
	}
	l.next[i] = l.head
	l.head = uint32(i)
	l.free[i] = true
	l.n++
	return nil
}

// Pop removes and returns the most recently pushed slot. ok is false when the
// list is empty.
func (l *List) Pop() (i int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.head == Nil {
		return 0, false
	}
	h := l.head
	l.head = l.next[h]
	l.next[h] = Nil
	l.free[h] = false
	l.n--
	return int(h), true
}

// Contains reports whether slot i is currently free.
func (l *List) Contains(i int) bool {
	if i < 0 || i >= len(l.free) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.free[i]
}

// Count walks the list and returns the number of slots on it. The walk is
// bounded by the slot count so a corrupted link cannot loop forever.
func (l *List) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for i := l.head; i != Nil && count <= len(l.next); i = l.next[i] {
		count++
	}
	return count
}

// Slots returns the free slots in list order (head first).
func (l *List) Slots() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, 0, l.n)
	for i := l.head; i != Nil && len(out) <= len(l.next); i = l.next[i] {
		out = append(out, int(i))
	}
	return out
}
