//go:build unix

package mmfile

import (
	"testing"
)

func TestMapAnonUnix(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mmap test in short mode")
	}
	data, cleanup, err := MapAnon(3 * 4096)
	if err != nil {
		t.Fatalf("MapAnon: %v", err)
	}
	defer func() {
		if cleanupErr := cleanup(); cleanupErr != nil {
			t.Fatalf("cleanup: %v", cleanupErr)
		}
	}()
	if len(data) != 3*4096 {
		t.Fatalf("len mismatch: got %d want %d", len(data), 3*4096)
	}
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: 0x%x", i, b)
		}
	}
	data[0], data[len(data)-1] = 0xde, 0xad
	if data[0] != 0xde || data[len(data)-1] != 0xad {
		t.Fatalf("mapping is not writable")
	}
}

func TestMapAnonUnixZeroLength(t *testing.T) {
	data, cleanup, err := MapAnon(0)
	if err != nil {
		t.Fatalf("MapAnon: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected zero-length mapping, got %d", len(data))
	}
	if cleanup == nil {
		t.Fatalf("expected cleanup function")
	}
	if cleanupErr := cleanup(); cleanupErr != nil {
		t.Fatalf("cleanup: %v", cleanupErr)
	}
}

func TestMapAnonUnixDoubleCleanup(t *testing.T) {
	_, cleanup, err := MapAnon(4096)
	if err != nil {
		t.Fatalf("MapAnon: %v", err)
	}
	if err := cleanup(); err != nil {
		t.Fatalf("first cleanup: %v", err)
	}
	if err := cleanup(); err != nil {
		t.Fatalf("second cleanup should be a no-op, got %v", err)
	}
}

func TestMapAnonNegative(t *testing.T) {
	if _, _, err := MapAnon(-1); err == nil {
		t.Fatalf("expected error for negative size")
	}
}
