package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/joshuapare/physmem/internal/format"
	"github.com/joshuapare/physmem/phys"
	"github.com/joshuapare/physmem/phys/alloc"
)

// resetFlags puts every global flag back to a small test machine.
func resetFlags() {
	verbose = false
	quiet = false
	jsonOut = false

	ramBase = uint64(phys.DefaultBase)
	ramMiB = 8
	kernelKiB = 256
	noPoison = false

	benchForks = 3
	benchMiB = 1
	benchMode = "both"
	benchWrite = false

	stressWorkers = 4
	stressCycles = 50
	stressBatch = 4
}

// testAllocator boots an allocator over frames managed frames.
func testAllocator(t *testing.T, frames int) *alloc.Allocator {
	t.Helper()
	l := phys.NewLayout(phys.DefaultBase, format.FrameSize, uint64(frames+1)*format.FrameSize)
	mem, err := phys.Open(l)
	if err != nil {
		t.Fatalf("failed to open memory: %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	a, err := alloc.New(mem, alloc.WithTrap(func(fe *alloc.FatalError) {
		t.Errorf("unexpected fatal error: %v", fe)
	}))
	if err != nil {
		t.Fatalf("failed to init allocator: %v", err)
	}
	return a
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	// Drain concurrently so large outputs cannot fill the pipe.
	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		defer close(done)
		_, _ = buf.ReadFrom(r)
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	<-done
	r.Close()

	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON
func assertJSON(t *testing.T, output string) {
	t.Helper()
	var result any
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}
