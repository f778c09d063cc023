// Package mmfile provides platform-specific helpers for backing the physical
// memory arena with anonymous mappings: mmap on unix, a heap slice elsewhere.
package mmfile
