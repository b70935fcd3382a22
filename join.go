package keel

import (
	"fmt"
	"math"

	"github.com/apache/arrow/go/v17/arrow/memory"
)

// ============================================================================
// Hash Join Engine
// ============================================================================
//
// Four strategies behind one contract: every (left, right) pair with equal
// keys is emitted exactly once; a left join additionally emits (i, -1) once
// for each matchless left row. The order matches are emitted in is NOT part
// of the contract. It differs between strategies and, for the parallel
// ones, between runs. Strategy choice is a pure function of the input
// sizes, sortedness, and configuration, so identical inputs always take the
// identical path.

// joinMatch is one emitted row pair; right is -1 for unmatched left rows
type joinMatch struct {
	left  int32
	right int32
}

// JoinResult holds the matched row-index pairs of a join. Left and Right
// have equal length. The arrays are allocator-owned: callers must Release
// exactly once when done, after which the slices are invalid.
type JoinResult struct {
	Left  []int32
	Right []int32

	bufs     []*memory.Buffer
	released bool
}

// NumMatches returns the number of emitted pairs
func (r *JoinResult) NumMatches() int {
	return len(r.Left)
}

// Release returns the index buffers to the allocator. Safe to call twice.
func (r *JoinResult) Release() {
	if r.released {
		return
	}
	r.released = true
	r.Left = nil
	r.Right = nil
	releaseBuffers(r.bufs)
	r.bufs = nil
}

// ============================================================================
// Strategy Selection
// ============================================================================

type joinStrategy uint8

const (
	joinSinglePass joinStrategy = iota
	joinWorkStealing
	joinLockFree
	joinSortedMerge
)

func (s joinStrategy) String() string {
	switch s {
	case joinSinglePass:
		return "single-pass"
	case joinWorkStealing:
		return "work-stealing"
	case joinLockFree:
		return "lock-free"
	case joinSortedMerge:
		return "sorted-merge"
	default:
		return "unknown"
	}
}

// Both sides at or above this row count make overlapping the build across
// workers worth the CAS traffic.
const joinLockFreeMinRows = 1 << 17

// chooseJoinStrategy is a total, deterministic function of the input shape
// and configuration. Sorted inputs merge without a table; large inputs on
// both sides build lock-free; a large probe side over a smaller build side
// steals morsels against a read-only table; everything else runs single
// threaded.
func (e *Exec) chooseJoinStrategy(leftN, rightN int, leftSorted, rightSorted bool) joinStrategy {
	if leftSorted && rightSorted {
		return joinSortedMerge
	}
	parallel := e.cfg.Enabled && e.cfg.numWorkers() > 1 &&
		e.cfg.shouldParallelize(leftN) && e.shouldParallelizeOp(OpJoinProbe, leftN)
	if !parallel {
		return joinSinglePass
	}
	if leftN >= joinLockFreeMinRows && rightN >= joinLockFreeMinRows {
		return joinLockFree
	}
	return joinWorkStealing
}

func checkJoinSizes(leftN, rightN int) error {
	if leftN > math.MaxInt32 {
		return fmt.Errorf("left side %d rows: %w", leftN, ErrTooLarge)
	}
	if rightN > math.MaxInt32 {
		return fmt.Errorf("right side %d rows: %w", rightN, ErrTooLarge)
	}
	return nil
}

// ============================================================================
// Public Entry Points
// ============================================================================

// InnerJoinI64 returns every (left, right) index pair whose keys are equal
func (e *Exec) InnerJoinI64(leftKeys, rightKeys []int64) (*JoinResult, error) {
	if err := checkJoinSizes(len(leftKeys), len(rightKeys)); err != nil {
		return nil, err
	}
	switch e.chooseJoinStrategy(len(leftKeys), len(rightKeys), isSortedI64(leftKeys), isSortedI64(rightKeys)) {
	case joinSortedMerge:
		return e.innerJoinSortedMerge(leftKeys, rightKeys)
	case joinLockFree:
		return e.innerJoinLockFree(leftKeys, rightKeys)
	case joinWorkStealing:
		return e.innerJoinWorkStealing(leftKeys, rightKeys)
	default:
		return e.innerJoinSinglePass(leftKeys, rightKeys)
	}
}

// LeftJoinI64 returns every matching pair plus one (i, -1) pair for each
// left row with no match
func (e *Exec) LeftJoinI64(leftKeys, rightKeys []int64) (*JoinResult, error) {
	if err := checkJoinSizes(len(leftKeys), len(rightKeys)); err != nil {
		return nil, err
	}
	switch e.chooseJoinStrategy(len(leftKeys), len(rightKeys), isSortedI64(leftKeys), isSortedI64(rightKeys)) {
	case joinSortedMerge:
		return e.leftJoinSortedMerge(leftKeys, rightKeys)
	case joinLockFree:
		return e.leftJoinLockFree(leftKeys, rightKeys)
	case joinWorkStealing:
		return e.leftJoinWorkStealing(leftKeys, rightKeys)
	default:
		return e.leftJoinSinglePass(leftKeys, rightKeys)
	}
}

// InnerJoinI64 joins on the default execution context
func InnerJoinI64(leftKeys, rightKeys []int64) (*JoinResult, error) {
	return DefaultExec().InnerJoinI64(leftKeys, rightKeys)
}

// LeftJoinI64 joins on the default execution context
func LeftJoinI64(leftKeys, rightKeys []int64) (*JoinResult, error) {
	return DefaultExec().LeftJoinI64(leftKeys, rightKeys)
}

// ParallelInnerJoinI64 pins the work-stealing strategy regardless of size
func ParallelInnerJoinI64(leftKeys, rightKeys []int64) (*JoinResult, error) {
	e := DefaultExec()
	if err := checkJoinSizes(len(leftKeys), len(rightKeys)); err != nil {
		return nil, err
	}
	return e.innerJoinWorkStealing(leftKeys, rightKeys)
}

// ParallelLeftJoinI64 pins the work-stealing strategy regardless of size
func ParallelLeftJoinI64(leftKeys, rightKeys []int64) (*JoinResult, error) {
	e := DefaultExec()
	if err := checkJoinSizes(len(leftKeys), len(rightKeys)); err != nil {
		return nil, err
	}
	return e.leftJoinWorkStealing(leftKeys, rightKeys)
}

// ============================================================================
// Low-Level Chained Table
// ============================================================================

// buildChained fills a power-of-two bucket array and per-row chain links.
// Duplicate buckets prepend, so chains run newest row first.
func buildChained(hashes []uint64, table, next []int32) {
	for i := range table {
		table[i] = -1
	}
	mask := uint64(len(table) - 1)
	for i, h := range hashes {
		b := h & mask
		next[i] = table[b]
		table[b] = int32(i)
	}
}

// joinTableSize returns the bucket count for n build rows
func joinTableSize(n int) int {
	size := nextPowerOf2(n * 2)
	if size < 16 {
		size = 16
	}
	return size
}

// BuildJoinHashTable exposes the chained build-side layout: table holds the
// newest row index per bucket (-1 when empty), next chains older rows in
// the same bucket. The table length must be a power of two; next must be
// len(hashes).
func BuildJoinHashTable(hashes []uint64, table, next []int32) error {
	if len(table) == 0 || len(table)&(len(table)-1) != 0 {
		return fmt.Errorf("table length %d is not a power of two: %w", len(table), ErrInvalidConfig)
	}
	if len(next) != len(hashes) {
		return fmt.Errorf("next length %d, hashes length %d: %w", len(next), len(hashes), ErrLengthMismatch)
	}
	if len(hashes) > math.MaxInt32 {
		return fmt.Errorf("build side %d rows: %w", len(hashes), ErrTooLarge)
	}
	buildChained(hashes, table, next)
	return nil
}

// ProbeJoinHashTable probes a table built by BuildJoinHashTable and writes
// matching (probe, build) index pairs. Matching is on hash equality here;
// the collision-checking key comparisons live in the join entry points.
// Returns the number of pairs written, erroring without partial output
// when the out arrays cannot hold every match.
func ProbeJoinHashTable(probeHashes, buildHashes []uint64, table, next []int32, outLeft, outRight []int32) (int, error) {
	if len(table) == 0 || len(table)&(len(table)-1) != 0 {
		return 0, fmt.Errorf("table length %d is not a power of two: %w", len(table), ErrInvalidConfig)
	}
	if len(next) != len(buildHashes) {
		return 0, fmt.Errorf("next length %d, build hashes length %d: %w", len(next), len(buildHashes), ErrLengthMismatch)
	}
	if len(outLeft) != len(outRight) {
		return 0, fmt.Errorf("outLeft length %d, outRight length %d: %w", len(outLeft), len(outRight), ErrLengthMismatch)
	}

	mask := uint64(len(table) - 1)

	// Count first so a too-small output errors before anything is written
	total := 0
	for _, h := range probeHashes {
		for j := table[h&mask]; j >= 0; j = next[j] {
			if buildHashes[j] == h {
				total++
			}
		}
	}
	if total > len(outLeft) {
		return 0, fmt.Errorf("out capacity %d, need %d: %w", len(outLeft), total, ErrLengthMismatch)
	}

	n := 0
	for i, h := range probeHashes {
		for j := table[h&mask]; j >= 0; j = next[j] {
			if buildHashes[j] == h {
				outLeft[n] = int32(i)
				outRight[n] = j
				n++
			}
		}
	}
	return n, nil
}

// ============================================================================
// Single-Pass Strategy
// ============================================================================

// innerJoinSinglePass builds a chained table over the smaller side and
// probes with the larger
func (e *Exec) innerJoinSinglePass(leftKeys, rightKeys []int64) (*JoinResult, error) {
	if len(leftKeys) == 0 || len(rightKeys) == 0 {
		return materializeJoin(e.mem, nil), nil
	}

	buildRight := len(rightKeys) <= len(leftKeys)
	buildKeys, probeKeys := rightKeys, leftKeys
	if !buildRight {
		buildKeys, probeKeys = leftKeys, rightKeys
	}

	buildHashes := getUint64Slice(len(buildKeys))
	defer buildHashes.Release()
	e.hashI64(buildKeys, buildHashes.Data)

	probeHashes := getUint64Slice(len(probeKeys))
	defer probeHashes.Release()
	e.hashI64(probeKeys, probeHashes.Data)

	table := getInt32Slice(joinTableSize(len(buildKeys)))
	defer table.Release()
	next := getInt32Slice(len(buildKeys))
	defer next.Release()
	buildChained(buildHashes.Data, table.Data, next.Data)

	var matches []joinMatch
	mask := uint64(len(table.Data) - 1)
	for i, h := range probeHashes.Data {
		for j := table.Data[h&mask]; j >= 0; j = next.Data[j] {
			if buildKeys[j] == probeKeys[i] {
				if buildRight {
					matches = append(matches, joinMatch{int32(i), j})
				} else {
					matches = append(matches, joinMatch{j, int32(i)})
				}
			}
		}
	}
	return materializeJoin(e.mem, [][]joinMatch{matches}), nil
}

// leftJoinSinglePass always builds the right side so unmatched left rows
// fall out of the probe loop directly
func (e *Exec) leftJoinSinglePass(leftKeys, rightKeys []int64) (*JoinResult, error) {
	if len(leftKeys) == 0 {
		return materializeJoin(e.mem, nil), nil
	}

	rightHashes := getUint64Slice(len(rightKeys))
	defer rightHashes.Release()
	e.hashI64(rightKeys, rightHashes.Data)

	leftHashes := getUint64Slice(len(leftKeys))
	defer leftHashes.Release()
	e.hashI64(leftKeys, leftHashes.Data)

	table := getInt32Slice(joinTableSize(len(rightKeys)))
	defer table.Release()
	next := getInt32Slice(len(rightKeys))
	defer next.Release()
	buildChained(rightHashes.Data, table.Data, next.Data)

	var matches []joinMatch
	mask := uint64(len(table.Data) - 1)
	for i, h := range leftHashes.Data {
		matched := false
		for j := table.Data[h&mask]; j >= 0; j = next.Data[j] {
			if rightKeys[j] == leftKeys[i] {
				matches = append(matches, joinMatch{int32(i), j})
				matched = true
			}
		}
		if !matched {
			matches = append(matches, joinMatch{int32(i), -1})
		}
	}
	return materializeJoin(e.mem, [][]joinMatch{matches}), nil
}

// ============================================================================
// Work-Stealing Strategy
// ============================================================================
//
// The build table is completed before any prober attaches, so the probe
// phase shares it read-only: workers claim probe morsels off an atomic
// counter and append matches to worker-local buffers, concatenated at the
// end without any merge.

func (e *Exec) innerJoinWorkStealing(leftKeys, rightKeys []int64) (*JoinResult, error) {
	if len(leftKeys) == 0 || len(rightKeys) == 0 {
		return materializeJoin(e.mem, nil), nil
	}

	rightHashes := getUint64Slice(len(rightKeys))
	defer rightHashes.Release()
	e.hashI64(rightKeys, rightHashes.Data)

	leftHashes := getUint64Slice(len(leftKeys))
	defer leftHashes.Release()
	e.hashI64(leftKeys, leftHashes.Data)

	var parts [][]joinMatch
	if e.cfg.shouldParallelize(len(rightKeys)) && e.shouldParallelizeOp(OpJoinBuild, len(rightKeys)) {
		// Build side is itself large: partition it across the workers
		idx := buildPartitionedJoinIndex(e, rightHashes.Data)
		parts = parallelCollect(e, len(leftKeys), OpJoinProbe, func(start, end int, buf []joinMatch) []joinMatch {
			for i := start; i < end; i++ {
				for j := idx.lookup(leftHashes.Data[i]); j >= 0; j = idx.next[j] {
					if rightKeys[j] == leftKeys[i] {
						buf = append(buf, joinMatch{int32(i), j})
					}
				}
			}
			return buf
		})
	} else {
		table := getInt32Slice(joinTableSize(len(rightKeys)))
		defer table.Release()
		next := getInt32Slice(len(rightKeys))
		defer next.Release()
		buildChained(rightHashes.Data, table.Data, next.Data)

		mask := uint64(len(table.Data) - 1)
		parts = parallelCollect(e, len(leftKeys), OpJoinProbe, func(start, end int, buf []joinMatch) []joinMatch {
			for i := start; i < end; i++ {
				h := leftHashes.Data[i]
				for j := table.Data[h&mask]; j >= 0; j = next.Data[j] {
					if rightKeys[j] == leftKeys[i] {
						buf = append(buf, joinMatch{int32(i), j})
					}
				}
			}
			return buf
		})
	}
	return materializeJoin(e.mem, parts), nil
}

func (e *Exec) leftJoinWorkStealing(leftKeys, rightKeys []int64) (*JoinResult, error) {
	if len(leftKeys) == 0 {
		return materializeJoin(e.mem, nil), nil
	}

	rightHashes := getUint64Slice(len(rightKeys))
	defer rightHashes.Release()
	e.hashI64(rightKeys, rightHashes.Data)

	leftHashes := getUint64Slice(len(leftKeys))
	defer leftHashes.Release()
	e.hashI64(leftKeys, leftHashes.Data)

	var parts [][]joinMatch
	if e.cfg.shouldParallelize(len(rightKeys)) && e.shouldParallelizeOp(OpJoinBuild, len(rightKeys)) {
		idx := buildPartitionedJoinIndex(e, rightHashes.Data)
		parts = parallelCollect(e, len(leftKeys), OpJoinProbe, func(start, end int, buf []joinMatch) []joinMatch {
			for i := start; i < end; i++ {
				matched := false
				for j := idx.lookup(leftHashes.Data[i]); j >= 0; j = idx.next[j] {
					if rightKeys[j] == leftKeys[i] {
						buf = append(buf, joinMatch{int32(i), j})
						matched = true
					}
				}
				if !matched {
					buf = append(buf, joinMatch{int32(i), -1})
				}
			}
			return buf
		})
	} else {
		table := getInt32Slice(joinTableSize(len(rightKeys)))
		defer table.Release()
		next := getInt32Slice(len(rightKeys))
		defer next.Release()
		buildChained(rightHashes.Data, table.Data, next.Data)

		mask := uint64(len(table.Data) - 1)
		parts = parallelCollect(e, len(leftKeys), OpJoinProbe, func(start, end int, buf []joinMatch) []joinMatch {
			for i := start; i < end; i++ {
				h := leftHashes.Data[i]
				matched := false
				for j := table.Data[h&mask]; j >= 0; j = next.Data[j] {
					if rightKeys[j] == leftKeys[i] {
						buf = append(buf, joinMatch{int32(i), j})
						matched = true
					}
				}
				if !matched {
					buf = append(buf, joinMatch{int32(i), -1})
				}
			}
			return buf
		})
	}
	return materializeJoin(e.mem, parts), nil
}

// ============================================================================
// Lock-Free Strategy
// ============================================================================
//
// Build inserts run concurrently under CAS slot claims; the fork/join
// barrier between the phases guarantees every insert is published before
// the first probe, and the probe then also fans out across all workers.

func (e *Exec) innerJoinLockFree(leftKeys, rightKeys []int64) (*JoinResult, error) {
	if len(leftKeys) == 0 || len(rightKeys) == 0 {
		return materializeJoin(e.mem, nil), nil
	}

	rightHashes := getUint64Slice(len(rightKeys))
	defer rightHashes.Release()
	e.hashI64(rightKeys, rightHashes.Data)

	leftHashes := getUint64Slice(len(leftKeys))
	defer leftHashes.Release()
	e.hashI64(leftKeys, leftHashes.Data)

	t := newLockFreeTable(len(rightKeys))
	e.parallelFor(len(rightKeys), OpJoinBuild, func(start, end int) {
		for j := start; j < end; j++ {
			t.insert(rightHashes.Data[j], rightKeys[j], int32(j))
		}
	})

	parts := parallelCollect(e, len(leftKeys), OpJoinProbe, func(start, end int, buf []joinMatch) []joinMatch {
		for i := start; i < end; i++ {
			for j := t.lookup(leftHashes.Data[i], leftKeys[i]); j >= 0; j = t.next[j] {
				buf = append(buf, joinMatch{int32(i), j})
			}
		}
		return buf
	})
	return materializeJoin(e.mem, parts), nil
}

func (e *Exec) leftJoinLockFree(leftKeys, rightKeys []int64) (*JoinResult, error) {
	if len(leftKeys) == 0 {
		return materializeJoin(e.mem, nil), nil
	}

	rightHashes := getUint64Slice(len(rightKeys))
	defer rightHashes.Release()
	e.hashI64(rightKeys, rightHashes.Data)

	leftHashes := getUint64Slice(len(leftKeys))
	defer leftHashes.Release()
	e.hashI64(leftKeys, leftHashes.Data)

	t := newLockFreeTable(len(rightKeys))
	e.parallelFor(len(rightKeys), OpJoinBuild, func(start, end int) {
		for j := start; j < end; j++ {
			t.insert(rightHashes.Data[j], rightKeys[j], int32(j))
		}
	})

	parts := parallelCollect(e, len(leftKeys), OpJoinProbe, func(start, end int, buf []joinMatch) []joinMatch {
		for i := start; i < end; i++ {
			j := t.lookup(leftHashes.Data[i], leftKeys[i])
			if j < 0 {
				buf = append(buf, joinMatch{int32(i), -1})
				continue
			}
			for ; j >= 0; j = t.next[j] {
				buf = append(buf, joinMatch{int32(i), j})
			}
		}
		return buf
	})
	return materializeJoin(e.mem, parts), nil
}

// ============================================================================
// Sorted-Merge Strategy
// ============================================================================
//
// Both inputs verified ascending: a linear merge with duplicate-block cross
// products, no hash table at all.

func (e *Exec) innerJoinSortedMerge(leftKeys, rightKeys []int64) (*JoinResult, error) {
	var matches []joinMatch
	nL, nR := len(leftKeys), len(rightKeys)
	i, j := 0, 0
	for i < nL && j < nR {
		switch {
		case leftKeys[i] < rightKeys[j]:
			i++
		case leftKeys[i] > rightKeys[j]:
			j++
		default:
			v := leftKeys[i]
			iEnd := i
			for iEnd < nL && leftKeys[iEnd] == v {
				iEnd++
			}
			jEnd := j
			for jEnd < nR && rightKeys[jEnd] == v {
				jEnd++
			}
			for a := i; a < iEnd; a++ {
				for b := j; b < jEnd; b++ {
					matches = append(matches, joinMatch{int32(a), int32(b)})
				}
			}
			i, j = iEnd, jEnd
		}
	}
	return materializeJoin(e.mem, [][]joinMatch{matches}), nil
}

func (e *Exec) leftJoinSortedMerge(leftKeys, rightKeys []int64) (*JoinResult, error) {
	var matches []joinMatch
	nL, nR := len(leftKeys), len(rightKeys)
	i, j := 0, 0
	for i < nL && j < nR {
		switch {
		case leftKeys[i] < rightKeys[j]:
			matches = append(matches, joinMatch{int32(i), -1})
			i++
		case leftKeys[i] > rightKeys[j]:
			j++
		default:
			v := leftKeys[i]
			iEnd := i
			for iEnd < nL && leftKeys[iEnd] == v {
				iEnd++
			}
			jEnd := j
			for jEnd < nR && rightKeys[jEnd] == v {
				jEnd++
			}
			for a := i; a < iEnd; a++ {
				for b := j; b < jEnd; b++ {
					matches = append(matches, joinMatch{int32(a), int32(b)})
				}
			}
			i, j = iEnd, jEnd
		}
	}
	for ; i < nL; i++ {
		matches = append(matches, joinMatch{int32(i), -1})
	}
	return materializeJoin(e.mem, [][]joinMatch{matches}), nil
}

// ============================================================================
// Result Materialization
// ============================================================================

// materializeJoin concatenates per-worker match buffers into allocator-owned
// index arrays
func materializeJoin(mem memory.Allocator, parts [][]joinMatch) *JoinResult {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	bufL, left := allocInt32(mem, total)
	bufR, right := allocInt32(mem, total)
	k := 0
	for _, p := range parts {
		for _, m := range p {
			left[k] = m.left
			right[k] = m.right
			k++
		}
	}
	return &JoinResult{
		Left:  left,
		Right: right,
		bufs:  []*memory.Buffer{bufL, bufR},
	}
}
