package keel

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

// ============================================================================
// Morsel-Based Work Distribution
// ============================================================================

// Morsel represents a range of rows to process
type Morsel struct {
	Start int
	End   int
}

// MorselIterator provides work-stealing morsel distribution
type MorselIterator struct {
	totalRows  int
	morselSize int
	nextStart  int64 // atomic counter for work-stealing
}

// NewMorselIterator creates a new morsel iterator
func NewMorselIterator(totalRows, morselSize int) *MorselIterator {
	if morselSize <= 0 {
		morselSize = DefaultConfig().MorselSize
	}
	return &MorselIterator{
		totalRows:  totalRows,
		morselSize: morselSize,
		nextStart:  0,
	}
}

// Next returns the next morsel, or nil if exhausted.
// This is safe for concurrent use (work-stealing).
func (mi *MorselIterator) Next() *Morsel {
	for {
		start := atomic.LoadInt64(&mi.nextStart)
		if int(start) >= mi.totalRows {
			return nil
		}

		end := int(start) + mi.morselSize
		if end > mi.totalRows {
			end = mi.totalRows
		}

		// Try to claim this morsel
		if atomic.CompareAndSwapInt64(&mi.nextStart, start, int64(end)) {
			return &Morsel{Start: int(start), End: end}
		}
		// Another worker claimed it, try again
	}
}

// ============================================================================
// Parallel Execution Helpers
// ============================================================================

// parallelFor executes fn over [0, totalRows) morsels using work-stealing.
// Falls back to a single sequential call when the cost model says the rows
// do not justify the spawn overhead.
func (e *Exec) parallelFor(totalRows int, op OperationType, fn func(start, end int)) {
	if totalRows <= 0 {
		return
	}
	if !e.cfg.shouldParallelize(totalRows) || !e.shouldParallelizeOp(op, totalRows) {
		fn(0, totalRows)
		return
	}

	numWorkers := e.cfg.numWorkers()
	morselIter := NewMorselIterator(totalRows, e.cfg.MorselSize)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		e.spawn(&wg, func() {
			for {
				morsel := morselIter.Next()
				if morsel == nil {
					return
				}
				fn(morsel.Start, morsel.End)
			}
		})
	}
	wg.Wait()
}

// parallelCollect executes fn over morsels and returns one buffer per worker.
// fn receives and returns the worker-local buffer so it can append without
// synchronization; buffers are concatenated by the caller in worker order.
func parallelCollect[T any](e *Exec, totalRows int, op OperationType, fn func(start, end int, buf []T) []T) [][]T {
	if totalRows <= 0 {
		return nil
	}
	if !e.cfg.shouldParallelize(totalRows) || !e.shouldParallelizeOp(op, totalRows) {
		return [][]T{fn(0, totalRows, nil)}
	}

	numWorkers := e.cfg.numWorkers()
	workerBufs := make([][]T, numWorkers)
	workerIdx := int64(0)

	morselIter := NewMorselIterator(totalRows, e.cfg.MorselSize)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		e.spawn(&wg, func() {
			myIdx := atomic.AddInt64(&workerIdx, 1) - 1
			var buf []T
			for {
				morsel := morselIter.Next()
				if morsel == nil {
					break
				}
				buf = fn(morsel.Start, morsel.End, buf)
			}
			workerBufs[myIdx] = buf
		})
	}
	wg.Wait()

	return workerBufs
}

// ============================================================================
// Partitioned Join Index
// ============================================================================

// partitionedJoinIndex is a chained hash index built without locks: each
// partition is owned by exactly one worker, selected by the high bits of the
// hash so partition choice stays independent of the bucket bits.
type partitionedJoinIndex struct {
	parts []joinPartition
	next  []int32 // shared chain array; each row written by its owner only
	shift uint
}

type joinPartition struct {
	table []int32
	mask  uint64
}

// nextPowerOf2 returns the next power of 2 >= n
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

// buildPartitionedJoinIndex builds the index over hashes in parallel.
// Each worker scans all hashes but only inserts rows belonging to its
// partition, so no two workers ever write the same chain.
func buildPartitionedJoinIndex(e *Exec, hashes []uint64) *partitionedJoinIndex {
	numParts := nextPowerOf2(e.cfg.numWorkers())
	shift := uint(64 - bits.Len(uint(numParts-1))) // 64 when numParts == 1, h>>64 == 0

	idx := &partitionedJoinIndex{
		parts: make([]joinPartition, numParts),
		next:  make([]int32, len(hashes)),
		shift: shift,
	}

	var wg sync.WaitGroup
	for p := 0; p < numParts; p++ {
		partID := p
		e.spawn(&wg, func() {
			count := 0
			for _, h := range hashes {
				if int(h>>shift) == partID {
					count++
				}
			}
			size := nextPowerOf2(count * 2)
			if size < 16 {
				size = 16
			}
			table := make([]int32, size)
			for i := range table {
				table[i] = -1
			}
			mask := uint64(size - 1)
			for row, h := range hashes {
				if int(h>>shift) != partID {
					continue
				}
				b := h & mask
				idx.next[row] = table[b]
				table[b] = int32(row)
			}
			idx.parts[partID] = joinPartition{table: table, mask: mask}
		})
	}
	wg.Wait()
	return idx
}

// lookup returns the head of the chain for hash, or -1
func (x *partitionedJoinIndex) lookup(h uint64) int32 {
	p := &x.parts[h>>x.shift]
	return p.table[h&p.mask]
}

// ============================================================================
// Cost-Based Parallelization Decisions
// ============================================================================

// OperationType represents different operation types for cost estimation
type OperationType int

const (
	OpFilter OperationType = iota
	OpHash
	OpSort
	OpJoinBuild
	OpJoinProbe
	OpGroupByHash
	OpGroupByAgg
	OpGather
)

// EstimatedCostPerRow returns nanoseconds per row for an operation
func EstimatedCostPerRow(op OperationType) int {
	switch op {
	case OpFilter:
		return 2 // Very fast with SIMD
	case OpHash:
		return 6 // Digest per element
	case OpSort:
		return 50 // O(n log n) amortized
	case OpJoinBuild:
		return 20 // Hash + table insert
	case OpJoinProbe:
		return 30 // Hash + table lookup + key compare
	case OpGroupByHash:
		return 15 // Hash computation
	case OpGroupByAgg:
		return 5 // Accumulation
	case OpGather:
		return 3 // Memory copy
	default:
		return 10
	}
}

// shouldParallelizeOp decides based on operation type and data size
func (e *Exec) shouldParallelizeOp(op OperationType, rows int) bool {
	if !e.cfg.Enabled {
		return false
	}

	// Estimate total work in nanoseconds
	totalWorkNs := rows * EstimatedCostPerRow(op)

	// Overhead of spawning goroutines + synchronization (~5us per worker)
	numWorkers := e.cfg.numWorkers()
	overheadNs := 5000 * numWorkers

	// Only parallelize if work is at least 10x the overhead
	return totalWorkNs > overheadNs*10
}
