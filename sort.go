package keel

import (
	"math"
	"sort"
	"sync"
)

// ============================================================================
// Sorting Engine
// ============================================================================
//
// 64-bit keys go through an LSD radix sort over a monotonic bit
// reinterpretation, so unsigned digit order equals native order: floats flip
// the sign bit when positive and invert every bit when negative (negative
// values sort first, NaN lands after +Inf); signed ints flip the sign bit.
// 32-bit keys use a stable comparison sort. Above the cost threshold the
// input is cut into per-worker chunks, each radix-sorted independently, then
// merged by binary doubling. Descending order complements the transformed
// keys, which keeps every path identical.

const (
	signMask64 = uint64(1) << 63
	signMask32 = uint32(1) << 31

	radixPasses = 8
)

func f64ToSortable(f float64) uint64 {
	b := math.Float64bits(f)
	if b&signMask64 != 0 {
		return ^b
	}
	return b | signMask64
}

func i64ToSortable(v int64) uint64 {
	return uint64(v) ^ signMask64
}

func f32ToSortable(f float32) uint32 {
	b := math.Float32bits(f)
	if b&signMask32 != 0 {
		return ^b
	}
	return b | signMask32
}

func i32ToSortable(v int32) uint32 {
	return uint32(v) ^ signMask32
}

// radixSortPairs sorts (keys, idx) pairs by key, stable, least significant
// digit first. tmpKeys and tmpIdx must be at least len(keys).
func radixSortPairs(keys []uint64, idx []uint32, tmpKeys []uint64, tmpIdx []uint32) {
	n := len(keys)
	if n < 2 {
		return
	}
	srcK, srcI := keys, idx
	dstK, dstI := tmpKeys[:n], tmpIdx[:n]
	flipped := false

	var counts [256]int
	for pass := 0; pass < radixPasses; pass++ {
		shift := uint(pass * 8)

		for i := range counts {
			counts[i] = 0
		}
		for _, k := range srcK {
			counts[(k>>shift)&0xff]++
		}

		// A pass where every key shares the digit moves nothing
		maxCount := 0
		for _, c := range counts {
			if c > maxCount {
				maxCount = c
			}
		}
		if maxCount == n {
			continue
		}

		sum := 0
		for d := 0; d < 256; d++ {
			c := counts[d]
			counts[d] = sum
			sum += c
		}

		for i, k := range srcK {
			d := (k >> shift) & 0xff
			p := counts[d]
			counts[d]++
			dstK[p] = k
			dstI[p] = srcI[i]
		}

		srcK, dstK = dstK, srcK
		srcI, dstI = dstI, srcI
		flipped = !flipped
	}

	if flipped {
		copy(keys, srcK)
		copy(idx, srcI)
	}
}

// mergeRuns merges src[lo:mid] and src[mid:hi] into dst, stable
func mergeRuns(srcK []uint64, srcI []uint32, dstK []uint64, dstI []uint32, lo, mid, hi int) {
	i, j, k := lo, mid, lo
	for i < mid && j < hi {
		if srcK[i] <= srcK[j] {
			dstK[k], dstI[k] = srcK[i], srcI[i]
			i++
		} else {
			dstK[k], dstI[k] = srcK[j], srcI[j]
			j++
		}
		k++
	}
	for i < mid {
		dstK[k], dstI[k] = srcK[i], srcI[i]
		i++
		k++
	}
	for j < hi {
		dstK[k], dstI[k] = srcK[j], srcI[j]
		j++
		k++
	}
}

// parallelSortPairs radix-sorts per-worker chunks on the pool, then merges
// runs by binary doubling. Chunks hold contiguous original indices and
// merges take the left run on ties, so the whole path stays stable.
func (e *Exec) parallelSortPairs(keys []uint64, idx []uint32, tmpKeys []uint64, tmpIdx []uint32) {
	n := len(keys)
	workers := e.cfg.numWorkers()
	chunk := (n + workers - 1) / workers
	if chunk < 1 {
		chunk = 1
	}

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		lo, hi := start, start+chunk
		if hi > n {
			hi = n
		}
		e.spawn(&wg, func() {
			radixSortPairs(keys[lo:hi], idx[lo:hi], tmpKeys[lo:hi], tmpIdx[lo:hi])
		})
	}
	wg.Wait()

	srcK, srcI := keys, idx
	dstK, dstI := tmpKeys[:n], tmpIdx[:n]
	flipped := false
	for size := chunk; size < n; size *= 2 {
		var mw sync.WaitGroup
		for lo := 0; lo < n; lo += 2 * size {
			lo := lo
			mid, hi := lo+size, lo+2*size
			if mid > n {
				mid = n
			}
			if hi > n {
				hi = n
			}
			e.spawn(&mw, func() {
				mergeRuns(srcK, srcI, dstK, dstI, lo, mid, hi)
			})
		}
		mw.Wait()
		srcK, dstK = dstK, srcK
		srcI, dstI = dstI, srcI
		flipped = !flipped
	}
	if flipped {
		copy(keys, srcK)
		copy(idx, srcI)
	}
}

// argsortU64 produces the permutation ordering the transformed keys.
// keys is scratch and comes back reordered.
func (e *Exec) argsortU64(keys []uint64) []uint32 {
	n := len(keys)
	idx := make([]uint32, n)
	for i := range idx {
		idx[i] = uint32(i)
	}
	if n < 2 {
		return idx
	}

	tmpK := getUint64Slice(n)
	tmpI := getUint32Slice(n)
	if e.cfg.shouldParallelize(n) && e.shouldParallelizeOp(OpSort, n) && e.cfg.numWorkers() > 1 {
		e.parallelSortPairs(keys, idx, tmpK.Data, tmpI.Data)
	} else {
		radixSortPairs(keys, idx, tmpK.Data, tmpI.Data)
	}
	tmpI.Release()
	tmpK.Release()
	return idx
}

// ============================================================================
// Argsort
// ============================================================================

// ArgsortF64 returns the permutation that orders data. Reading data through
// the result yields ascending (or descending) order; ties keep their
// original relative order. NaN sorts after +Inf ascending.
func (e *Exec) ArgsortF64(data []float64, ascending bool) []uint32 {
	keys := getUint64Slice(len(data))
	if ascending {
		for i, v := range data {
			keys.Data[i] = f64ToSortable(v)
		}
	} else {
		for i, v := range data {
			keys.Data[i] = ^f64ToSortable(v)
		}
	}
	idx := e.argsortU64(keys.Data)
	keys.Release()
	return idx
}

// ArgsortI64 returns the permutation that orders data
func (e *Exec) ArgsortI64(data []int64, ascending bool) []uint32 {
	keys := getUint64Slice(len(data))
	if ascending {
		for i, v := range data {
			keys.Data[i] = i64ToSortable(v)
		}
	} else {
		for i, v := range data {
			keys.Data[i] = ^i64ToSortable(v)
		}
	}
	idx := e.argsortU64(keys.Data)
	keys.Release()
	return idx
}

// ArgsortF32 returns the permutation that orders data. 32-bit keys take a
// stable comparison sort; the radix machinery is reserved for 64-bit keys.
func (e *Exec) ArgsortF32(data []float32, ascending bool) []uint32 {
	keys := getUint32Slice(len(data))
	if ascending {
		for i, v := range data {
			keys.Data[i] = f32ToSortable(v)
		}
	} else {
		for i, v := range data {
			keys.Data[i] = ^f32ToSortable(v)
		}
	}
	idx := argsortU32(keys.Data)
	keys.Release()
	return idx
}

// ArgsortI32 returns the permutation that orders data
func (e *Exec) ArgsortI32(data []int32, ascending bool) []uint32 {
	keys := getUint32Slice(len(data))
	if ascending {
		for i, v := range data {
			keys.Data[i] = i32ToSortable(v)
		}
	} else {
		for i, v := range data {
			keys.Data[i] = ^i32ToSortable(v)
		}
	}
	idx := argsortU32(keys.Data)
	keys.Release()
	return idx
}

func argsortU32(keys []uint32) []uint32 {
	idx := make([]uint32, len(keys))
	for i := range idx {
		idx[i] = uint32(i)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]] < keys[idx[b]]
	})
	return idx
}

// ArgsortF64 orders data on the default execution context
func ArgsortF64(data []float64, ascending bool) []uint32 {
	return DefaultExec().ArgsortF64(data, ascending)
}

// ArgsortI64 orders data on the default execution context
func ArgsortI64(data []int64, ascending bool) []uint32 {
	return DefaultExec().ArgsortI64(data, ascending)
}

// ArgsortF32 orders data on the default execution context
func ArgsortF32(data []float32, ascending bool) []uint32 {
	return DefaultExec().ArgsortF32(data, ascending)
}

// ArgsortI32 orders data on the default execution context
func ArgsortI32(data []int32, ascending bool) []uint32 {
	return DefaultExec().ArgsortI32(data, ascending)
}

// ============================================================================
// Sorted Copies
// ============================================================================

// SortF64 returns a sorted copy of data; the input is untouched
func (e *Exec) SortF64(data []float64, ascending bool) []float64 {
	idx := e.ArgsortF64(data, ascending)
	out := make([]float64, len(data))
	for i, j := range idx {
		out[i] = data[j]
	}
	return out
}

// SortI64 returns a sorted copy of data; the input is untouched
func (e *Exec) SortI64(data []int64, ascending bool) []int64 {
	idx := e.ArgsortI64(data, ascending)
	out := make([]int64, len(data))
	for i, j := range idx {
		out[i] = data[j]
	}
	return out
}

// SortF64 sorts on the default execution context
func SortF64(data []float64, ascending bool) []float64 {
	return DefaultExec().SortF64(data, ascending)
}

// SortI64 sorts on the default execution context
func SortI64(data []int64, ascending bool) []int64 {
	return DefaultExec().SortI64(data, ascending)
}

// ============================================================================
// Sortedness Probes
// ============================================================================

// isSortedI64 reports whether data is ascending. O(n), exits on the first
// inversion; the groupby selector and merge-join detector call this before
// committing to a sorted-input strategy.
func isSortedI64(data []int64) bool {
	for i := 1; i < len(data); i++ {
		if data[i-1] > data[i] {
			return false
		}
	}
	return true
}

// isSortedF64 reports whether data is ascending. Any NaN reads as unsorted,
// which routes NaN-bearing columns away from the sorted-run fast paths.
func isSortedF64(data []float64) bool {
	for i := 1; i < len(data); i++ {
		if !(data[i-1] <= data[i]) {
			return false
		}
	}
	return true
}
