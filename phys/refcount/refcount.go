// Package refcount implements the per-frame reference-count table.
//
// The table holds one int32 per frame of the managed range, indexed by frame
// number relative to the start of that range. It is sized once from the
// detected RAM extent and never resized. Every access is bounds-checked and
// serialised by the table's own mutex, independent of the free list's lock.
package refcount

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var (
	// ErrIndex indicates a frame index outside the table.
	ErrIndex = errors.New("refcount: frame index out of range")

	// ErrZero indicates an increment of a frame nobody owns.
	ErrZero = errors.New("refcount: frame has no owner")

	// ErrOverflow indicates an increment past math.MaxInt32 owners.
	ErrOverflow = errors.New("refcount: count overflow")
)

// Table is the reference-count table. The zero value is an empty table.
type Table struct {
	mu     sync.Mutex
	counts []int32
}

// New returns a table of n frames, all with count 0.
func New(n int) *Table {
	return &Table{counts: make([]int32, n)}
}

// Len returns the number of frames the table covers.
func (t *Table) Len() int { return len(t.counts) }

func (t *Table) check(i int) error {
	if i < 0 || i >= len(t.counts) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndex, i, len(t.counts))
	}
	return nil
}

// Get returns the count of frame i.
func (t *Table) Get(i int) (int32, error) {
	if err := t.check(i); err != nil {
		return 0, err
	}
	t.mu.Lock()
	c := t.counts[i]
	t.mu.Unlock()
	return c, nil
}

// Claim sets the count of frame i to 1: a freshly allocated frame has exactly
// one owner regardless of its previous count.
func (t *Table) Claim(i int) error {
	if err := t.check(i); err != nil {
		return err
	}
	t.mu.Lock()
	t.counts[i] = 1
	t.mu.Unlock()
	return nil
}

// Inc adds one owner to frame i and returns the new count. Frames with no
// owner cannot gain one here; that only happens through Claim.
func (t *Table) Inc(i int) (int32, error) {
	if err := t.check(i); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.counts[i]
	switch {
	case c == 0:
		return 0, ErrZero
	case c == math.MaxInt32:
		return c, ErrOverflow
	}
	t.counts[i] = c + 1
	return c + 1, nil
}

// Release drops one owner from frame i and returns the count it had before.
// The count never goes below zero: releasing a frame at 0 leaves it at 0 and
// returns 0. A result <= 1 means the frame has no owner left and must be
// reclaimed by the caller.
func (t *Table) Release(i int) (int32, error) {
	if err := t.check(i); err != nil {
		return 0, err
	}
	t.mu.Lock()
	prev := t.counts[i]
	if prev > 0 {
		t.counts[i] = prev - 1
	}
	t.mu.Unlock()
	return prev, nil
}

// Shared returns how many frames currently have more than one owner.
func (t *Table) Shared() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.counts {
		if c > 1 {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of every count, taken under the lock.
func (t *Table) Snapshot() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int32, len(t.counts))
	copy(out, t.counts)
	return out
}
