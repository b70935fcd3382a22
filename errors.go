package keel

import "errors"

// Sentinel errors for the three failure classes a kernel can hit before it
// produces output. Entry points validate first and allocate second, so an
// error always means zero buffers were handed to the caller.
var (
	// ErrInvalidConfig reports a rejected configuration value, such as a
	// non-positive worker count or a hash table length that is not a power
	// of two.
	ErrInvalidConfig = errors.New("keel: invalid configuration")

	// ErrLengthMismatch reports paired buffers of unequal length (keys vs
	// values, data vs out-params, columns vs validity bitmaps).
	ErrLengthMismatch = errors.New("keel: length mismatch")

	// ErrTooLarge reports an input that exceeds the int32 row-index space
	// or a table sizing computation that would overflow. Heap exhaustion
	// itself panics, as everywhere in Go; this covers the cases that are
	// checkable up front.
	ErrTooLarge = errors.New("keel: input too large")
)
