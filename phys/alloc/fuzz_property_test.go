package alloc

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/physmem/phys"
)

// Test_Fuzz_RandomAllocFreeIncref performs random operations against a model
// of owner counts and validates the allocator's invariants after every step.
func Test_Fuzz_RandomAllocFreeIncref(t *testing.T) {
	const frames = 24
	a, rec := newTestAllocator(t, frames)

	rng := rand.New(rand.NewSource(42)) // Fixed seed for reproducibility
	model := make(map[phys.Addr]int32)
	var live []phys.Addr

	for step := range 2000 {
		switch op := rng.Intn(3); {
		case op == 0: // Allocate
			pa, err := a.Alloc()
			if len(model) == frames {
				require.ErrorIs(t, err, ErrExhausted, "step %d", step)
				continue
			}
			require.NoError(t, err, "step %d", step)
			_, taken := model[pa]
			require.False(t, taken, "step %d: %s allocated twice", step, pa)
			model[pa] = 1
			live = append(live, pa)

		case op == 1 && len(live) > 0: // Share
			pa := live[rng.Intn(len(live))]
			require.NoError(t, a.Incref(pa), "step %d", step)
			model[pa]++

		case op == 2 && len(live) > 0: // Release one owner
			k := rng.Intn(len(live))
			pa := live[k]
			require.NoError(t, a.Free(pa), "step %d", step)
			model[pa]--
			if model[pa] == 0 {
				delete(model, pa)
				live[k] = live[len(live)-1]
				live = live[:len(live)-1]
			}
		}

		validateInvariants(t, a, model, step)
	}
	require.Zero(t, rec.count())
}

// validateInvariants checks the allocator against the model:
//   - no count is negative
//   - every owned frame has the model's count and is off the free list
//   - every unowned frame is on the free list exactly once
//   - FreeCount equals frames minus owned frames
func validateInvariants(t *testing.T, a *Allocator, model map[phys.Addr]int32, step int) {
	t.Helper()

	counts := a.refs.Snapshot()
	onList := make(map[int]int)
	for _, s := range a.free.Slots() {
		onList[s]++
	}

	for i, c := range counts {
		pa := a.addr(i)
		require.GreaterOrEqual(t, c, int32(0), "step %d: %s negative", step, pa)
		want := model[pa]
		require.Equal(t, want, c, "step %d: count of %s", step, pa)
		if want == 0 {
			require.Equal(t, 1, onList[i], "step %d: free frame %s list occurrences", step, pa)
		} else {
			require.Zero(t, onList[i], "step %d: owned frame %s on free list", step, pa)
		}
	}
	require.Equal(t, len(counts)-len(model), a.FreeCount(), "step %d", step)
}

// Test_Fuzz_FatalNeverCorrupts interleaves protocol violations with valid
// traffic; trapped calls must leave both tables untouched.
func Test_Fuzz_FatalNeverCorrupts(t *testing.T) {
	const frames = 8
	a, rec := newTestAllocator(t, frames)
	start, end := a.Range()

	rng := rand.New(rand.NewSource(7))
	model := make(map[phys.Addr]int32)
	bad := []phys.Addr{start - 1, start + 3, end, end + 4096, start - 4096}

	for step := range 500 {
		if rng.Intn(4) == 0 {
			addr := bad[rng.Intn(len(bad))]
			var err error
			if rng.Intn(2) == 0 {
				err = a.Free(addr)
			} else {
				err = a.Incref(addr)
			}
			require.True(t, IsFatal(err), "step %d", step)
		} else {
			pa, err := a.Alloc()
			if errors.Is(err, ErrExhausted) {
				for p := range model {
					require.NoError(t, a.Free(p))
					delete(model, p)
				}
				continue
			}
			require.NoError(t, err)
			model[pa] = 1
		}
		validateInvariants(t, a, model, step)
	}
	require.NotZero(t, rec.count())
}
