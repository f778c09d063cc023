package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/physmem/internal/logger"
	"github.com/joshuapare/physmem/phys"
	"github.com/joshuapare/physmem/phys/alloc"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool

	// Machine layout flags
	ramBase   uint64
	ramMiB    uint64
	kernelKiB uint64
	noPoison  bool
)

// numbers prints counts with digit grouping.
var numbers = message.NewPrinter(language.English)

var rootCmd = &cobra.Command{
	Use:   "physctl",
	Short: "Inspect and exercise the copy-on-write frame allocator",
	Long: `physctl boots a reference-counted physical frame allocator over a
simulated machine and lets you inspect its layout, compare eager and
copy-on-write fork, and stress it from many goroutines.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.Options{
			Enabled: verbose && !quiet,
			Level:   slog.LevelDebug,
			Writer:  os.Stderr,
		})
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")

	rootCmd.PersistentFlags().Uint64Var(&ramBase, "base", uint64(phys.DefaultBase), "Physical address where RAM starts")
	rootCmd.PersistentFlags().Uint64Var(&ramMiB, "ram-mib", phys.DefaultRAMSize>>20, "Installed RAM in MiB")
	rootCmd.PersistentFlags().Uint64Var(&kernelKiB, "kernel-kib", phys.DefaultKernelSize>>10, "Kernel image size in KiB")
	rootCmd.PersistentFlags().BoolVar(&noPoison, "no-poison", false, "Disable alloc/free poison fills")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "err", err)
		printError("%v\n", err)
		os.Exit(1)
	}
}

// machine is a booted memory plus allocator.
type machine struct {
	mem   *phys.Memory
	alloc *alloc.Allocator
}

func (m *machine) Close() error { return m.mem.Close() }

// boot opens RAM per the layout flags and runs allocator init. Protocol
// violations print the diagnostic and exit with status 2.
func boot() (*machine, error) {
	l := phys.NewLayout(phys.Addr(ramBase), kernelKiB<<10, ramMiB<<20)
	printVerbose("Booting: %s\n", l)

	mem, err := phys.Open(l)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory: %w", err)
	}
	opts := []alloc.Option{
		alloc.WithLogger(logger.L),
		alloc.WithTrap(func(fe *alloc.FatalError) {
			printError("allocator halted: %v\n", fe)
			os.Exit(2)
		}),
	}
	if noPoison {
		opts = append(opts, alloc.WithoutPoison())
	}
	a, err := alloc.New(mem, opts...)
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("failed to init allocator: %w", err)
	}
	return &machine{mem: mem, alloc: a}, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		numbers.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
