package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/physmem/internal/format"
	"github.com/joshuapare/physmem/internal/logger"
	"github.com/joshuapare/physmem/phys/alloc"
	"github.com/joshuapare/physmem/phys/cow"
)

var (
	benchForks int
	benchMiB   int
	benchMode  string
	benchWrite bool
)

func init() {
	cmd := newBenchCmd()
	cmd.Flags().IntVar(&benchForks, "forks", 10, "Number of children to fork")
	cmd.Flags().IntVar(&benchMiB, "mib", 8, "Parent memory to map before forking, in MiB")
	cmd.Flags().StringVar(&benchMode, "mode", "both", "Fork flavour: std, cow or both")
	cmd.Flags().BoolVar(&benchWrite, "write", false, "Children write every page before exiting")
	rootCmd.AddCommand(cmd)
}

func newBenchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bench",
		Short: "Compare memory consumed by eager and copy-on-write fork",
		Long: `The bench command maps a parent address space, fills every page, then
forks it repeatedly. All children stay alive until the last one is ready, at
which point the free-frame count is sampled. The difference from before the
first fork is the memory the children cost.

With --write every child writes each of its pages, forcing copy-on-write
children to break sharing page by page.

Example:
  physctl bench
  physctl bench --forks 20 --mode cow --write
  physctl bench --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench()
		},
	}
}

// BenchConfig describes one bench run.
type BenchConfig struct {
	Forks int  // children alive at the same time
	Pages int  // pages mapped by the parent
	COW   bool // CowFork instead of Fork
	Write bool // children write every page
}

// BenchResult is one line of bench output.
type BenchResult struct {
	Type     string        `json:"type"`  // STD or COW
	Mode     string        `json:"mode"`  // WRITE or NOWRITE
	Forks    int           `json:"forks"` // children forked
	Elapsed  time.Duration `json:"elapsed_ns"`
	Consumed int           `json:"pages_consumed"`
	Copies   int           `json:"cow_copies"`
}

func runBench() error {
	var cases []bool
	switch benchMode {
	case "std":
		cases = []bool{false}
	case "cow":
		cases = []bool{true}
	case "both":
		cases = []bool{false, true}
	default:
		return fmt.Errorf("invalid --mode %q (want std, cow or both)", benchMode)
	}
	if benchForks <= 0 {
		benchForks = 1
	}

	var results []BenchResult
	for _, isCOW := range cases {
		// Each flavour gets a freshly booted machine.
		m, err := boot()
		if err != nil {
			return err
		}
		cfg := BenchConfig{
			Forks: benchForks,
			Pages: benchMiB << 20 / format.FrameSize,
			COW:   isCOW,
			Write: benchWrite,
		}
		res, err := benchFork(m.alloc, cfg, progressWriter())
		m.Close()
		if err != nil {
			return err
		}
		logger.Info("bench case finished",
			"type", res.Type, "mode", res.Mode, "consumed", res.Consumed, "elapsed", res.Elapsed)
		results = append(results, res)
	}

	if jsonOut {
		return printJSON(results)
	}
	for _, r := range results {
		printInfo("%s %-7s forks=%d pages consumed=%d (%d KiB) copies=%d elapsed=%s\n",
			r.Type, r.Mode, r.Forks, r.Consumed, r.Consumed*format.FrameSize>>10, r.Copies, r.Elapsed)
	}
	for _, r := range results {
		// Machine-readable line for plotting scripts.
		printVerbose("DATA:%s,%s,%d,%d\n", r.Type, r.Mode, r.Elapsed.Milliseconds(), r.Consumed)
	}
	return nil
}

// progressWriter returns where the fork progress bar is drawn.
func progressWriter() io.Writer {
	if quiet || jsonOut {
		return io.Discard
	}
	return os.Stderr
}

// benchFork runs one bench case on a.
func benchFork(a *alloc.Allocator, cfg BenchConfig, progress io.Writer) (BenchResult, error) {
	res := BenchResult{Type: "STD", Mode: "NOWRITE", Forks: cfg.Forks}
	if cfg.COW {
		res.Type = "COW"
	}
	if cfg.Write {
		res.Mode = "WRITE"
	}

	parent := cow.NewSpace(a)
	defer parent.Release()
	if err := parent.MapRange(0, cfg.Pages); err != nil {
		return res, fmt.Errorf("map %d parent pages: %w", cfg.Pages, err)
	}
	if err := fillPages(parent, cfg.Pages, 'A'); err != nil {
		return res, err
	}

	bar := progressbar.NewOptions(cfg.Forks,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription(res.Type+" fork"),
		progressbar.OptionClearOnFinish(),
	)

	before := a.FreeCount()
	start := time.Now()

	children := make([]*cow.Space, 0, cfg.Forks)
	defer func() {
		for _, c := range children {
			c.Release()
		}
	}()
	for i := range cfg.Forks {
		fork := parent.Fork
		if cfg.COW {
			fork = parent.CowFork
		}
		child, err := fork()
		if errors.Is(err, cow.ErrNoMemory) {
			return res, fmt.Errorf("out of memory after %d of %d forks: %w", i, cfg.Forks, err)
		}
		if err != nil {
			return res, err
		}
		children = append(children, child)
		logger.Debug("forked child", "n", i+1, "of", cfg.Forks)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	// Children run concurrently, as forked processes would.
	if cfg.Write {
		var g errgroup.Group
		for _, c := range children {
			g.Go(func() error { return fillPages(c, cfg.Pages, 'B') })
		}
		if err := g.Wait(); err != nil {
			return res, err
		}
	}

	// Every child is alive and done writing: sample now.
	after := a.FreeCount()
	res.Elapsed = time.Since(start)
	res.Consumed = before - after
	for _, c := range children {
		res.Copies += c.Counters().Copies
	}
	return res, nil
}

// fillPages writes b to the first byte of each of the first n pages of s.
func fillPages(s *cow.Space, n int, b byte) error {
	for vpn := range n {
		if err := s.Write(uint64(vpn)<<format.FrameShift, []byte{b}); err != nil {
			return err
		}
	}
	return nil
}
