package alloc

import (
	"fmt"
	"log/slog"
)

const (
	// DefaultAllocPattern fills freshly allocated frames so code relying on
	// zeroed memory breaks visibly.
	DefaultAllocPattern byte = 0x05

	// DefaultFreePattern fills released frames so stale references read junk.
	DefaultFreePattern byte = 0x01
)

// Policy controls frame poisoning.
type Policy struct {
	OnAlloc      bool // fill frames with AllocPattern when handed out
	OnFree       bool // fill frames with FreePattern when reclaimed
	AllocPattern byte
	FreePattern  byte
}

// DefaultPolicy poisons on both alloc and free.
func DefaultPolicy() Policy {
	return Policy{
		OnAlloc:      true,
		OnFree:       true,
		AllocPattern: DefaultAllocPattern,
		FreePattern:  DefaultFreePattern,
	}
}

// Validate checks that the patterns are non-zero and different from each other.
func (p Policy) Validate() error {
	if p.AllocPattern == 0 || p.FreePattern == 0 || p.AllocPattern == p.FreePattern {
		return fmt.Errorf("%w: alloc %#02x free %#02x", ErrBadPolicy, p.AllocPattern, p.FreePattern)
	}
	return nil
}

// Option configures an Allocator.
type Option func(*config)

type config struct {
	logger *slog.Logger
	trap   Trap
	policy Policy
}

// WithLogger sets the logger for seeding, exhaustion and fatal diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTrap replaces PanicTrap. Tests use it to observe fatal errors without
// crashing.
func WithTrap(t Trap) Option {
	return func(c *config) { c.trap = t }
}

// WithPolicy sets the poison policy.
func WithPolicy(p Policy) Option {
	return func(c *config) { c.policy = p }
}

// WithoutPoison disables both fills, keeping the default patterns.
func WithoutPoison() Option {
	return func(c *config) {
		c.policy.OnAlloc = false
		c.policy.OnFree = false
	}
}
