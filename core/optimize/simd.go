// Package optimize holds small comparison helpers shared by the hot path.
package optimize

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// Wide-register capability detection. On capable CPUs the chunked compare
// below is auto-vectorized; elsewhere the native comparison wins.
var useWide bool

func init() {
	if cpu.ARM64.HasASIMD {
		// NEON is standard on ARMv8 (ASIMD = Advanced SIMD)
		useWide = true
	}
	if cpu.X86.HasAVX2 {
		useWide = true
	}
}

// EqualString compares two strings, taking the wide path for long inputs.
// Used by the fast-route table to verify hash matches on literal paths.
func EqualString(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	// Short strings: the native comparison is already a couple of loads.
	if len(a) < 16 || !useWide {
		return a == b
	}

	return equalWide(
		unsafe.Slice(unsafe.StringData(a), len(a)),
		unsafe.Slice(unsafe.StringData(b), len(b)),
	)
}

// EqualBytes compares two byte slices, taking the wide path for long inputs.
func EqualBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	if len(a) < 16 || !useWide {
		return string(a) == string(b)
	}

	return equalWide(a, b)
}

// equalWide compares in 8-byte words. len(a) == len(b) >= 16 is the caller's
// responsibility. The straight-line word loop vectorizes on AVX2/NEON.
func equalWide(a, b []byte) bool {
	n := len(a)
	i := 0

	for ; i+8 <= n; i += 8 {
		wa := *(*uint64)(unsafe.Pointer(&a[i]))
		wb := *(*uint64)(unsafe.Pointer(&b[i]))
		if wa != wb {
			return false
		}
	}

	// Tail: one overlapping 8-byte load instead of a byte loop.
	if i < n {
		wa := *(*uint64)(unsafe.Pointer(&a[n-8]))
		wb := *(*uint64)(unsafe.Pointer(&b[n-8]))
		return wa == wb
	}

	return true
}
