package keel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/xxh3"
)

// ============================================================================
// Column Hashing
// ============================================================================
//
// Every key column entering a join or groupby is first reduced to 64-bit
// digests. Float columns canonicalize -0.0 to 0.0 before hashing so the two
// zeros land in the same group (they compare equal); NaN hashes by bit
// pattern.

// hashU64 returns the 64-bit digest of a single 8-byte value
func hashU64(v uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return xxh3.Hash(b[:])
}

// hashU32 returns the 64-bit digest of a single 4-byte value
func hashU32(v uint32) uint64 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return xxh3.Hash(b[:])
}

// HashI64Column writes the per-row digest of data into out
func HashI64Column(data []int64, out []uint64) error {
	if len(out) != len(data) {
		return fmt.Errorf("out length %d, data length %d: %w", len(out), len(data), ErrLengthMismatch)
	}
	for i, v := range data {
		out[i] = hashU64(uint64(v))
	}
	return nil
}

// HashI32Column writes the per-row digest of data into out
func HashI32Column(data []int32, out []uint64) error {
	if len(out) != len(data) {
		return fmt.Errorf("out length %d, data length %d: %w", len(out), len(data), ErrLengthMismatch)
	}
	for i, v := range data {
		out[i] = hashU32(uint32(v))
	}
	return nil
}

// HashF64Column writes the per-row digest of data into out.
// -0.0 hashes as 0.0; NaN hashes by bit pattern.
func HashF64Column(data []float64, out []uint64) error {
	if len(out) != len(data) {
		return fmt.Errorf("out length %d, data length %d: %w", len(out), len(data), ErrLengthMismatch)
	}
	for i, v := range data {
		bits := math.Float64bits(v)
		if v == 0 {
			bits = 0
		}
		out[i] = hashU64(bits)
	}
	return nil
}

// HashF32Column writes the per-row digest of data into out.
// -0.0 hashes as 0.0; NaN hashes by bit pattern.
func HashF32Column(data []float32, out []uint64) error {
	if len(out) != len(data) {
		return fmt.Errorf("out length %d, data length %d: %w", len(out), len(data), ErrLengthMismatch)
	}
	for i, v := range data {
		bits := math.Float32bits(v)
		if v == 0 {
			bits = 0
		}
		out[i] = hashU32(bits)
	}
	return nil
}

// combineHash mixes a second digest into the first (boost-style)
func combineHash(h1, h2 uint64) uint64 {
	return h1 ^ (h2 + 0x9e3779b97f4a7c15 + (h1 << 6) + (h1 >> 2))
}

// CombineHashes folds other into hashes in place, for multi-column keys
func CombineHashes(hashes, other []uint64) error {
	if len(hashes) != len(other) {
		return fmt.Errorf("hashes length %d, other length %d: %w", len(hashes), len(other), ErrLengthMismatch)
	}
	for i := range hashes {
		hashes[i] = combineHash(hashes[i], other[i])
	}
	return nil
}

// hashI64 fills out with per-row digests, splitting large columns across
// the worker pool. out must be len(data).
func (e *Exec) hashI64(data []int64, out []uint64) {
	e.parallelFor(len(data), OpHash, func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = hashU64(uint64(data[i]))
		}
	})
}
