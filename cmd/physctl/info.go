package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/physmem/internal/format"
	"github.com/joshuapare/physmem/phys/alloc"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the machine layout and allocator state after boot",
		Long: `The info command boots the allocator with the layout flags and reports
the managed range, the number of frames seeded into the free list and the
poison policy in effect.

Example:
  physctl info
  physctl info --ram-mib 64 --kernel-kib 512
  physctl info --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo()
		},
	}
}

// InfoResult is the JSON form of the info command.
type InfoResult struct {
	RAMBase      string      `json:"ram_base"`
	RAMTop       string      `json:"ram_top"`
	KernelEnd    string      `json:"kernel_end"`
	ManagedStart string      `json:"managed_start"`
	ManagedEnd   string      `json:"managed_end"`
	FrameSize    int         `json:"frame_size"`
	FreeBytes    uint64      `json:"free_bytes"`
	Poison       bool        `json:"poison"`
	Stats        alloc.Stats `json:"stats"`
}

func runInfo() error {
	m, err := boot()
	if err != nil {
		return err
	}
	defer m.Close()

	l := m.mem.Layout()
	start, end := m.alloc.Range()
	stats := m.alloc.Stats()
	res := InfoResult{
		RAMBase:      l.Base.String(),
		RAMTop:       l.Top.String(),
		KernelEnd:    l.KernelEnd.String(),
		ManagedStart: start.String(),
		ManagedEnd:   end.String(),
		FrameSize:    format.FrameSize,
		FreeBytes:    uint64(stats.FreeFrames) * format.FrameSize,
		Poison:       m.alloc.Policy().OnAlloc || m.alloc.Policy().OnFree,
		Stats:        stats,
	}

	if jsonOut {
		return printJSON(res)
	}

	printInfo("RAM:           [%s, %s)\n", res.RAMBase, res.RAMTop)
	printInfo("Kernel image:  [%s, %s)\n", res.RAMBase, res.KernelEnd)
	printInfo("Managed range: [%s, %s)\n", res.ManagedStart, res.ManagedEnd)
	printInfo("Frames:        %d x %d bytes\n", stats.Frames, res.FrameSize)
	printInfo("Free frames:   %d (%d KiB)\n", stats.FreeFrames, res.FreeBytes>>10)
	printInfo("Poison:        %t\n", res.Poison)
	return nil
}
