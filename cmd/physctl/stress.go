package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/physmem/internal/logger"
	"github.com/joshuapare/physmem/phys"
	"github.com/joshuapare/physmem/phys/alloc"
)

var (
	stressWorkers int
	stressCycles  int
	stressBatch   int
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressWorkers, "workers", 8, "Concurrent goroutines")
	cmd.Flags().IntVar(&stressCycles, "cycles", 1000, "Alloc/free cycles per worker")
	cmd.Flags().IntVar(&stressBatch, "batch", 4, "Frames held per cycle")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Hammer the allocator from many goroutines",
		Long: `The stress command runs several workers that each allocate a batch of
frames, stamp them with their own tag, verify the tag and free them again.
A frame handed to two workers at once, a tag overwritten by another worker
or a frame missing from the free list afterwards fails the run.

Example:
  physctl stress
  physctl stress --workers 32 --cycles 10000 --batch 16`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
}

// StressConfig describes one stress run.
type StressConfig struct {
	Workers int
	Cycles  int
	Batch   int
}

// StressResult is the outcome of a stress run.
type StressResult struct {
	Workers    int           `json:"workers"`
	Cycles     int           `json:"cycles"`
	Allocs     int64         `json:"allocs"`
	Exhausted  int64         `json:"exhausted"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	FreeBefore int           `json:"free_before"`
	FreeAfter  int           `json:"free_after"`
	Stats      alloc.Stats   `json:"stats"`
}

var errDoubleAlloc = errors.New("frame handed out twice")

func runStress() error {
	m, err := boot()
	if err != nil {
		return err
	}
	defer m.Close()

	res, err := stress(m.alloc, StressConfig{
		Workers: stressWorkers,
		Cycles:  stressCycles,
		Batch:   stressBatch,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}
	printInfo("Workers:     %d x %d cycles\n", res.Workers, res.Cycles)
	printInfo("Allocations: %d (%d exhausted)\n", res.Allocs, res.Exhausted)
	printInfo("Free frames: %d before, %d after\n", res.FreeBefore, res.FreeAfter)
	printInfo("Elapsed:     %s\n", res.Elapsed)
	return nil
}

// owners records which worker holds each frame.
type owners struct {
	mu sync.Mutex
	m  map[phys.Addr]int
}

func (o *owners) take(addr phys.Addr, worker int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if prev, ok := o.m[addr]; ok {
		return fmt.Errorf("%w: %s held by worker %d, given to worker %d", errDoubleAlloc, addr, prev, worker)
	}
	o.m[addr] = worker
	return nil
}

func (o *owners) drop(addr phys.Addr) {
	o.mu.Lock()
	delete(o.m, addr)
	o.mu.Unlock()
}

// stress runs cfg against a and checks that every frame came back.
func stress(a *alloc.Allocator, cfg StressConfig) (StressResult, error) {
	cfg.Workers = max(cfg.Workers, 1)
	cfg.Cycles = max(cfg.Cycles, 1)
	cfg.Batch = max(cfg.Batch, 1)

	res := StressResult{Workers: cfg.Workers, Cycles: cfg.Cycles, FreeBefore: a.FreeCount()}
	own := &owners{m: make(map[phys.Addr]int)}

	var (
		mu        sync.Mutex
		allocs    int64
		exhausted int64
	)

	start := time.Now()
	var g errgroup.Group
	for w := range cfg.Workers {
		g.Go(func() error {
			held := make([]phys.Addr, 0, cfg.Batch)
			var n, ex int64
			defer func() {
				logger.Debug("stress worker done", "worker", w, "allocs", n, "exhausted", ex)
				mu.Lock()
				allocs += n
				exhausted += ex
				mu.Unlock()
			}()

			for c := range cfg.Cycles {
				held = held[:0]
				tag := uint64(w)<<32 | uint64(c)
				for range cfg.Batch {
					addr, err := a.Alloc()
					if errors.Is(err, alloc.ErrExhausted) {
						ex++
						break
					}
					if err != nil {
						return err
					}
					n++
					if err := own.take(addr, w); err != nil {
						return err
					}
					frame, err := a.Frame(addr)
					if err != nil {
						return err
					}
					binary.LittleEndian.PutUint64(frame, tag)
					held = append(held, addr)
				}
				for _, addr := range held {
					frame, err := a.Frame(addr)
					if err != nil {
						return err
					}
					if got := binary.LittleEndian.Uint64(frame); got != tag {
						return fmt.Errorf("worker %d: frame %s tag %#x, want %#x", w, addr, got, tag)
					}
					own.drop(addr)
					if err := a.Free(addr); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Elapsed = time.Since(start)
	res.Allocs = allocs
	res.Exhausted = exhausted
	res.FreeAfter = a.FreeCount()
	res.Stats = a.Stats()
	if exhausted > 0 {
		logger.Warn("free list ran dry during stress", "exhausted", exhausted, "frames", a.NumFrames())
	}

	if res.FreeAfter != res.FreeBefore {
		return res, fmt.Errorf("free frames leaked: %d before, %d after", res.FreeBefore, res.FreeAfter)
	}
	return res, nil
}
