package keel

import "fmt"

// ============================================================================
// Gather
// ============================================================================
//
// Materializes output columns through join/sort index arrays. A -1 index is
// the null sentinel emitted by left joins and writes the zero value.

// GatherF64 copies src[indices[i]] into dst[i]; -1 writes 0
func GatherF64(src []float64, indices []int32, dst []float64) error {
	if len(dst) != len(indices) {
		return fmt.Errorf("dst length %d, indices length %d: %w", len(dst), len(indices), ErrLengthMismatch)
	}
	for i, ix := range indices {
		if ix < 0 {
			dst[i] = 0
			continue
		}
		dst[i] = src[ix]
	}
	return nil
}

// GatherI64 copies src[indices[i]] into dst[i]; -1 writes 0
func GatherI64(src []int64, indices []int32, dst []int64) error {
	if len(dst) != len(indices) {
		return fmt.Errorf("dst length %d, indices length %d: %w", len(dst), len(indices), ErrLengthMismatch)
	}
	for i, ix := range indices {
		if ix < 0 {
			dst[i] = 0
			continue
		}
		dst[i] = src[ix]
	}
	return nil
}

// GatherI32 copies src[indices[i]] into dst[i]; -1 writes 0
func GatherI32(src []int32, indices []int32, dst []int32) error {
	if len(dst) != len(indices) {
		return fmt.Errorf("dst length %d, indices length %d: %w", len(dst), len(indices), ErrLengthMismatch)
	}
	for i, ix := range indices {
		if ix < 0 {
			dst[i] = 0
			continue
		}
		dst[i] = src[ix]
	}
	return nil
}

// GatherF32 copies src[indices[i]] into dst[i]; -1 writes 0
func GatherF32(src []float32, indices []int32, dst []float32) error {
	if len(dst) != len(indices) {
		return fmt.Errorf("dst length %d, indices length %d: %w", len(dst), len(indices), ErrLengthMismatch)
	}
	for i, ix := range indices {
		if ix < 0 {
			dst[i] = 0
			continue
		}
		dst[i] = src[ix]
	}
	return nil
}
