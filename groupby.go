package keel

import (
	"fmt"
	"math"

	"github.com/apache/arrow/go/v17/arrow/bitutil"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/axiomhq/hyperloglog"
)

// ============================================================================
// GroupBy Aggregation Engine
// ============================================================================
//
// Grouping happens in two layers. The kernel layer maps rows to dense group
// ids (ComputeGroupIDs*) and folds values by id (AggregateXByGroup). The
// keyed layer (GroupBySumI64F64 and friends) does both in one call, picking
// one of three strategies: a hash table streaming aggregates in first-seen
// order, a linear run scan when the keys are already sorted, or an argsort
// followed by the run scan when cardinality is high enough that hash table
// growth would dominate. The selector is a total, deterministic function of
// (size, presortedness, cardinality estimate).
//
// Output ordering is strategy-dependent: hash results come out in first-seen
// key order, sorted-run and radix results in ascending key order. The
// key -> aggregate mapping is identical either way.

// Grouping maps each input row to a dense group id. IDs[i] is row i's group,
// FirstRowIdx[g] is the first row where group g appeared, GroupCounts[g] its
// row count. Ids are assigned in first-seen order. Allocator-owned: callers
// must Release exactly once.
type Grouping struct {
	IDs         []uint32
	FirstRowIdx []uint32
	GroupCounts []uint32
	NumGroups   int

	bufs     []*memory.Buffer
	released bool
}

// Release returns the id buffers to the allocator. Safe to call twice.
func (g *Grouping) Release() {
	if g.released {
		return
	}
	g.released = true
	g.IDs = nil
	g.FirstRowIdx = nil
	g.GroupCounts = nil
	releaseBuffers(g.bufs)
	g.bufs = nil
}

// groupTableHint caps the initial table size; growth handles the rest
func groupTableHint(n int) int {
	if n > 1024 {
		return 1024
	}
	return n
}

// ComputeGroupIDs assigns dense group ids to pre-hashed rows. Rows with
// equal hashes land in the same group, so callers needing collision-proof
// grouping use ComputeGroupIDsWithKeys instead.
func (e *Exec) ComputeGroupIDs(hashes []uint64) (*Grouping, error) {
	if len(hashes) > math.MaxInt32 {
		return nil, fmt.Errorf("%d rows: %w", len(hashes), ErrTooLarge)
	}
	n := len(hashes)
	bufIDs, ids := allocUint32(e.mem, n)

	t := newSwissTable[uint64](groupTableHint(n))
	var first, counts []uint32
	for i, h := range hashes {
		slot, inserted := t.findOrInsert(h, h)
		var gid uint32
		if inserted {
			gid = uint32(len(first))
			t.setValue(slot, int32(gid))
			first = append(first, uint32(i))
			counts = append(counts, 0)
		} else {
			gid = uint32(t.value(slot))
		}
		ids[i] = gid
		counts[gid]++
	}
	return materializeGrouping(e.mem, bufIDs, ids, first, counts), nil
}

// ComputeGroupIDsWithKeys assigns dense group ids by key equality, using the
// hashes only to accelerate the table probes. Hash collisions between
// distinct keys stay distinct groups.
func (e *Exec) ComputeGroupIDsWithKeys(keys []int64, hashes []uint64) (*Grouping, error) {
	if len(keys) != len(hashes) {
		return nil, fmt.Errorf("keys length %d, hashes length %d: %w", len(keys), len(hashes), ErrLengthMismatch)
	}
	if len(keys) > math.MaxInt32 {
		return nil, fmt.Errorf("%d rows: %w", len(keys), ErrTooLarge)
	}
	n := len(keys)
	bufIDs, ids := allocUint32(e.mem, n)

	t := newSwissTable[int64](groupTableHint(n))
	var first, counts []uint32
	for i, k := range keys {
		slot, inserted := t.findOrInsert(hashes[i], k)
		var gid uint32
		if inserted {
			gid = uint32(len(first))
			t.setValue(slot, int32(gid))
			first = append(first, uint32(i))
			counts = append(counts, 0)
		} else {
			gid = uint32(t.value(slot))
		}
		ids[i] = gid
		counts[gid]++
	}
	return materializeGrouping(e.mem, bufIDs, ids, first, counts), nil
}

// ComputeGroupIDs groups pre-hashed rows on the default execution context
func ComputeGroupIDs(hashes []uint64) (*Grouping, error) {
	return DefaultExec().ComputeGroupIDs(hashes)
}

// ComputeGroupIDsWithKeys groups keyed rows on the default execution context
func ComputeGroupIDsWithKeys(keys []int64, hashes []uint64) (*Grouping, error) {
	return DefaultExec().ComputeGroupIDsWithKeys(keys, hashes)
}

func materializeGrouping(mem memory.Allocator, bufIDs *memory.Buffer, ids, first, counts []uint32) *Grouping {
	numGroups := len(first)
	bufFirst, firstOut := allocUint32(mem, numGroups)
	copy(firstOut, first)
	bufCounts, countsOut := allocUint32(mem, numGroups)
	copy(countsOut, counts)
	return &Grouping{
		IDs:         ids,
		FirstRowIdx: firstOut,
		GroupCounts: countsOut,
		NumGroups:   numGroups,
		bufs:        []*memory.Buffer{bufIDs, bufFirst, bufCounts},
	}
}

// ============================================================================
// Aggregation Kernels
// ============================================================================
//
// Fold values into out by group id. out must hold one entry per group; the
// kernel initializes it. A group whose inputs include NaN yields NaN from
// min/max unless a validity mask excludes the row.

// AggregateSumF64ByGroup sums values per group id
func AggregateSumF64ByGroup(values []float64, groupIDs []uint32, out []float64) error {
	if len(values) != len(groupIDs) {
		return fmt.Errorf("values length %d, groupIDs length %d: %w", len(values), len(groupIDs), ErrLengthMismatch)
	}
	for i := range out {
		out[i] = 0
	}
	for i, v := range values {
		out[groupIDs[i]] += v
	}
	return nil
}

// AggregateSumI64ByGroup sums values per group id
func AggregateSumI64ByGroup(values []int64, groupIDs []uint32, out []int64) error {
	if len(values) != len(groupIDs) {
		return fmt.Errorf("values length %d, groupIDs length %d: %w", len(values), len(groupIDs), ErrLengthMismatch)
	}
	for i := range out {
		out[i] = 0
	}
	for i, v := range values {
		out[groupIDs[i]] += v
	}
	return nil
}

// AggregateMinF64ByGroup takes the minimum per group id, NaN propagating
func AggregateMinF64ByGroup(values []float64, groupIDs []uint32, out []float64) error {
	if len(values) != len(groupIDs) {
		return fmt.Errorf("values length %d, groupIDs length %d: %w", len(values), len(groupIDs), ErrLengthMismatch)
	}
	for i := range out {
		out[i] = math.Inf(1)
	}
	for i, v := range values {
		g := groupIDs[i]
		if v != v || v < out[g] {
			out[g] = v
		}
	}
	return nil
}

// AggregateMaxF64ByGroup takes the maximum per group id, NaN propagating
func AggregateMaxF64ByGroup(values []float64, groupIDs []uint32, out []float64) error {
	if len(values) != len(groupIDs) {
		return fmt.Errorf("values length %d, groupIDs length %d: %w", len(values), len(groupIDs), ErrLengthMismatch)
	}
	for i := range out {
		out[i] = math.Inf(-1)
	}
	for i, v := range values {
		g := groupIDs[i]
		if v != v || v > out[g] {
			out[g] = v
		}
	}
	return nil
}

// AggregateMinI64ByGroup takes the minimum per group id
func AggregateMinI64ByGroup(values []int64, groupIDs []uint32, out []int64) error {
	if len(values) != len(groupIDs) {
		return fmt.Errorf("values length %d, groupIDs length %d: %w", len(values), len(groupIDs), ErrLengthMismatch)
	}
	for i := range out {
		out[i] = math.MaxInt64
	}
	for i, v := range values {
		if v < out[groupIDs[i]] {
			out[groupIDs[i]] = v
		}
	}
	return nil
}

// AggregateMaxI64ByGroup takes the maximum per group id
func AggregateMaxI64ByGroup(values []int64, groupIDs []uint32, out []int64) error {
	if len(values) != len(groupIDs) {
		return fmt.Errorf("values length %d, groupIDs length %d: %w", len(values), len(groupIDs), ErrLengthMismatch)
	}
	for i := range out {
		out[i] = math.MinInt64
	}
	for i, v := range values {
		if v > out[groupIDs[i]] {
			out[groupIDs[i]] = v
		}
	}
	return nil
}

// CountByGroup counts rows per group id
func CountByGroup(groupIDs []uint32, out []uint32) {
	for i := range out {
		out[i] = 0
	}
	for _, g := range groupIDs {
		out[g]++
	}
}

// ============================================================================
// Masked Aggregation Kernels
// ============================================================================
//
// validity is an Arrow-style LSB bitmap: bit i set means row i participates.
// Masked-out rows contribute nothing, including NaN values.

func checkValidity(validity []byte, n int) error {
	if len(validity) < (n+7)/8 {
		return fmt.Errorf("validity bitmap %d bytes, need %d for %d rows: %w", len(validity), (n+7)/8, n, ErrLengthMismatch)
	}
	return nil
}

// AggregateSumF64ByGroupMasked sums valid rows per group id
func AggregateSumF64ByGroupMasked(values []float64, groupIDs []uint32, validity []byte, out []float64) error {
	if len(values) != len(groupIDs) {
		return fmt.Errorf("values length %d, groupIDs length %d: %w", len(values), len(groupIDs), ErrLengthMismatch)
	}
	if err := checkValidity(validity, len(values)); err != nil {
		return err
	}
	for i := range out {
		out[i] = 0
	}
	for i, v := range values {
		if bitutil.BitIsSet(validity, i) {
			out[groupIDs[i]] += v
		}
	}
	return nil
}

// AggregateSumI64ByGroupMasked sums valid rows per group id
func AggregateSumI64ByGroupMasked(values []int64, groupIDs []uint32, validity []byte, out []int64) error {
	if len(values) != len(groupIDs) {
		return fmt.Errorf("values length %d, groupIDs length %d: %w", len(values), len(groupIDs), ErrLengthMismatch)
	}
	if err := checkValidity(validity, len(values)); err != nil {
		return err
	}
	for i := range out {
		out[i] = 0
	}
	for i, v := range values {
		if bitutil.BitIsSet(validity, i) {
			out[groupIDs[i]] += v
		}
	}
	return nil
}

// AggregateMinF64ByGroupMasked takes the minimum over valid rows per group
// id. Groups with no valid rows are left at +Inf.
func AggregateMinF64ByGroupMasked(values []float64, groupIDs []uint32, validity []byte, out []float64) error {
	if len(values) != len(groupIDs) {
		return fmt.Errorf("values length %d, groupIDs length %d: %w", len(values), len(groupIDs), ErrLengthMismatch)
	}
	if err := checkValidity(validity, len(values)); err != nil {
		return err
	}
	for i := range out {
		out[i] = math.Inf(1)
	}
	for i, v := range values {
		if !bitutil.BitIsSet(validity, i) {
			continue
		}
		g := groupIDs[i]
		if v != v || v < out[g] {
			out[g] = v
		}
	}
	return nil
}

// AggregateMaxF64ByGroupMasked takes the maximum over valid rows per group
// id. Groups with no valid rows are left at -Inf.
func AggregateMaxF64ByGroupMasked(values []float64, groupIDs []uint32, validity []byte, out []float64) error {
	if len(values) != len(groupIDs) {
		return fmt.Errorf("values length %d, groupIDs length %d: %w", len(values), len(groupIDs), ErrLengthMismatch)
	}
	if err := checkValidity(validity, len(values)); err != nil {
		return err
	}
	for i := range out {
		out[i] = math.Inf(-1)
	}
	for i, v := range values {
		if !bitutil.BitIsSet(validity, i) {
			continue
		}
		g := groupIDs[i]
		if v != v || v > out[g] {
			out[g] = v
		}
	}
	return nil
}

// CountByGroupMasked counts valid rows per group id
func CountByGroupMasked(groupIDs []uint32, validity []byte, out []uint32) error {
	if err := checkValidity(validity, len(groupIDs)); err != nil {
		return err
	}
	for i := range out {
		out[i] = 0
	}
	for i, g := range groupIDs {
		if bitutil.BitIsSet(validity, i) {
			out[g]++
		}
	}
	return nil
}

// ============================================================================
// Strategy Selection
// ============================================================================

type groupByStrategy uint8

const (
	groupByHash groupByStrategy = iota
	groupBySortedRun
	groupByRadix
)

func (s groupByStrategy) String() string {
	switch s {
	case groupByHash:
		return "hash"
	case groupBySortedRun:
		return "sorted-run"
	case groupByRadix:
		return "radix"
	default:
		return "unknown"
	}
}

// Below this row count the cardinality estimate is not worth its scan and
// the hash path always wins.
const groupByRadixMinRows = 1 << 16

// chooseGroupByStrategy is a total, deterministic function of the input
// shape. Sorted keys scan linearly; high-cardinality keys (more than half
// the rows distinct) argsort first to avoid hash table growth churn;
// everything else streams through the hash table.
func chooseGroupByStrategy(n int, sorted bool, cardinality int) groupByStrategy {
	if sorted {
		return groupBySortedRun
	}
	if n >= groupByRadixMinRows && cardinality > n/2 {
		return groupByRadix
	}
	return groupByHash
}

// estimateCardinalityI64 sketches the distinct key count in one pass
func estimateCardinalityI64(keys []int64) int {
	sk := hyperloglog.New14()
	for _, k := range keys {
		sk.InsertHash(hashU64(uint64(k)))
	}
	return int(sk.Estimate())
}

// ============================================================================
// Keyed Results
// ============================================================================

// GroupBySumResult pairs each distinct key with its aggregate.
// Allocator-owned: callers must Release exactly once.
type GroupBySumResult struct {
	Keys      []int64
	Sums      []float64
	NumGroups int

	bufs     []*memory.Buffer
	released bool
}

// Release returns the result buffers to the allocator. Safe to call twice.
func (r *GroupBySumResult) Release() {
	if r.released {
		return
	}
	r.released = true
	r.Keys = nil
	r.Sums = nil
	releaseBuffers(r.bufs)
	r.bufs = nil
}

// GroupByCountResult pairs each distinct key with its row count.
// Allocator-owned: callers must Release exactly once.
type GroupByCountResult struct {
	Keys      []int64
	Counts    []int64
	NumGroups int

	bufs     []*memory.Buffer
	released bool
}

// Release returns the result buffers to the allocator. Safe to call twice.
func (r *GroupByCountResult) Release() {
	if r.released {
		return
	}
	r.released = true
	r.Keys = nil
	r.Counts = nil
	releaseBuffers(r.bufs)
	r.bufs = nil
}

// GroupByMultiAggResult carries sum, min, max, and count per distinct key
// from a single pass. Allocator-owned: callers must Release exactly once.
type GroupByMultiAggResult struct {
	Keys      []int64
	Sums      []float64
	Mins      []float64
	Maxs      []float64
	Counts    []int64
	NumGroups int

	bufs     []*memory.Buffer
	released bool
}

// Release returns the result buffers to the allocator. Safe to call twice.
func (r *GroupByMultiAggResult) Release() {
	if r.released {
		return
	}
	r.released = true
	r.Keys = nil
	r.Sums = nil
	r.Mins = nil
	r.Maxs = nil
	r.Counts = nil
	releaseBuffers(r.bufs)
	r.bufs = nil
}

// ============================================================================
// Keyed Entry Points
// ============================================================================

// GroupBySumI64F64 sums values by key
func (e *Exec) GroupBySumI64F64(keys []int64, values []float64) (*GroupBySumResult, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("keys length %d, values length %d: %w", len(keys), len(values), ErrLengthMismatch)
	}
	if len(keys) > math.MaxInt32 {
		return nil, fmt.Errorf("%d rows: %w", len(keys), ErrTooLarge)
	}
	switch e.groupByPlan(keys) {
	case groupBySortedRun:
		outKeys, outSums := sumRuns(keys, values, nil)
		return materializeSumResult(e.mem, outKeys, outSums), nil
	case groupByRadix:
		perm := e.ArgsortI64(keys, true)
		outKeys, outSums := sumRuns(keys, values, perm)
		return materializeSumResult(e.mem, outKeys, outSums), nil
	default:
		return e.groupBySumHash(keys, values)
	}
}

// GroupByMeanI64F64 averages values by key
func (e *Exec) GroupByMeanI64F64(keys []int64, values []float64) (*GroupBySumResult, error) {
	ma, err := e.GroupByMultiAggI64F64(keys, values)
	if err != nil {
		return nil, err
	}
	defer ma.Release()

	outKeys := make([]int64, ma.NumGroups)
	copy(outKeys, ma.Keys)
	means := make([]float64, ma.NumGroups)
	for i := range means {
		means[i] = ma.Sums[i] / float64(ma.Counts[i])
	}
	return materializeSumResult(e.mem, outKeys, means), nil
}

// GroupByCountI64 counts rows by key
func (e *Exec) GroupByCountI64(keys []int64) (*GroupByCountResult, error) {
	if len(keys) > math.MaxInt32 {
		return nil, fmt.Errorf("%d rows: %w", len(keys), ErrTooLarge)
	}
	switch e.groupByPlan(keys) {
	case groupBySortedRun:
		outKeys, outCounts := countRuns(keys, nil)
		return materializeCountResult(e.mem, outKeys, outCounts), nil
	case groupByRadix:
		perm := e.ArgsortI64(keys, true)
		outKeys, outCounts := countRuns(keys, perm)
		return materializeCountResult(e.mem, outKeys, outCounts), nil
	default:
		return e.groupByCountHash(keys)
	}
}

// GroupByMultiAggI64F64 computes sum, min, max, and count by key in one pass
func (e *Exec) GroupByMultiAggI64F64(keys []int64, values []float64) (*GroupByMultiAggResult, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("keys length %d, values length %d: %w", len(keys), len(values), ErrLengthMismatch)
	}
	if len(keys) > math.MaxInt32 {
		return nil, fmt.Errorf("%d rows: %w", len(keys), ErrTooLarge)
	}
	switch e.groupByPlan(keys) {
	case groupBySortedRun:
		return materializeMultiAgg(e.mem, multiAggRuns(keys, values, nil)), nil
	case groupByRadix:
		perm := e.ArgsortI64(keys, true)
		return materializeMultiAgg(e.mem, multiAggRuns(keys, values, perm)), nil
	default:
		return e.groupByMultiAggHash(keys, values)
	}
}

// GroupBySumI64F64 aggregates on the default execution context
func GroupBySumI64F64(keys []int64, values []float64) (*GroupBySumResult, error) {
	return DefaultExec().GroupBySumI64F64(keys, values)
}

// GroupByMeanI64F64 aggregates on the default execution context
func GroupByMeanI64F64(keys []int64, values []float64) (*GroupBySumResult, error) {
	return DefaultExec().GroupByMeanI64F64(keys, values)
}

// GroupByCountI64 aggregates on the default execution context
func GroupByCountI64(keys []int64) (*GroupByCountResult, error) {
	return DefaultExec().GroupByCountI64(keys)
}

// GroupByMultiAggI64F64 aggregates on the default execution context
func GroupByMultiAggI64F64(keys []int64, values []float64) (*GroupByMultiAggResult, error) {
	return DefaultExec().GroupByMultiAggI64F64(keys, values)
}

// groupByPlan runs the presortedness probe, estimates cardinality only when
// radix is even a candidate, and hands both to the selector
func (e *Exec) groupByPlan(keys []int64) groupByStrategy {
	n := len(keys)
	sorted := isSortedI64(keys)
	card := 0
	if !sorted && n >= groupByRadixMinRows {
		card = estimateCardinalityI64(keys)
	}
	return chooseGroupByStrategy(n, sorted, card)
}

// ============================================================================
// Hash Strategy
// ============================================================================

func (e *Exec) groupBySumHash(keys []int64, values []float64) (*GroupBySumResult, error) {
	n := len(keys)
	hashes := getUint64Slice(n)
	defer hashes.Release()
	e.hashI64(keys, hashes.Data)

	t := newSwissTable[int64](groupTableHint(n))
	var outKeys []int64
	var outSums []float64
	for i, k := range keys {
		slot, inserted := t.findOrInsert(hashes.Data[i], k)
		if inserted {
			t.setValue(slot, int32(len(outKeys)))
			outKeys = append(outKeys, k)
			outSums = append(outSums, values[i])
		} else {
			outSums[t.value(slot)] += values[i]
		}
	}
	return materializeSumResult(e.mem, outKeys, outSums), nil
}

func (e *Exec) groupByCountHash(keys []int64) (*GroupByCountResult, error) {
	n := len(keys)
	hashes := getUint64Slice(n)
	defer hashes.Release()
	e.hashI64(keys, hashes.Data)

	t := newSwissTable[int64](groupTableHint(n))
	var outKeys []int64
	var outCounts []int64
	for i, k := range keys {
		slot, inserted := t.findOrInsert(hashes.Data[i], k)
		if inserted {
			t.setValue(slot, int32(len(outKeys)))
			outKeys = append(outKeys, k)
			outCounts = append(outCounts, 1)
		} else {
			outCounts[t.value(slot)]++
		}
	}
	return materializeCountResult(e.mem, outKeys, outCounts), nil
}

func (e *Exec) groupByMultiAggHash(keys []int64, values []float64) (*GroupByMultiAggResult, error) {
	n := len(keys)
	hashes := getUint64Slice(n)
	defer hashes.Release()
	e.hashI64(keys, hashes.Data)

	t := newSwissTable[int64](groupTableHint(n))
	var acc multiAggAccum
	for i, k := range keys {
		v := values[i]
		slot, inserted := t.findOrInsert(hashes.Data[i], k)
		if inserted {
			t.setValue(slot, int32(len(acc.keys)))
			acc.push(k, v)
			continue
		}
		acc.fold(int(t.value(slot)), v)
	}
	return materializeMultiAgg(e.mem, acc), nil
}

// ============================================================================
// Run Scans
// ============================================================================
//
// The shared tail of the sorted-run and radix strategies: keys are visited
// in ascending order, directly or through a permutation, and an aggregate
// flushes whenever the key changes.

func sumRuns(keys []int64, values []float64, perm []uint32) ([]int64, []float64) {
	n := len(keys)
	if n == 0 {
		return nil, nil
	}
	var outKeys []int64
	var outSums []float64
	if perm == nil {
		cur, acc := keys[0], values[0]
		for i := 1; i < n; i++ {
			if keys[i] != cur {
				outKeys = append(outKeys, cur)
				outSums = append(outSums, acc)
				cur, acc = keys[i], values[i]
				continue
			}
			acc += values[i]
		}
		return append(outKeys, cur), append(outSums, acc)
	}
	cur, acc := keys[perm[0]], values[perm[0]]
	for i := 1; i < n; i++ {
		r := perm[i]
		if keys[r] != cur {
			outKeys = append(outKeys, cur)
			outSums = append(outSums, acc)
			cur, acc = keys[r], values[r]
			continue
		}
		acc += values[r]
	}
	return append(outKeys, cur), append(outSums, acc)
}

func countRuns(keys []int64, perm []uint32) ([]int64, []int64) {
	n := len(keys)
	if n == 0 {
		return nil, nil
	}
	var outKeys []int64
	var outCounts []int64
	if perm == nil {
		cur, cnt := keys[0], int64(1)
		for i := 1; i < n; i++ {
			if keys[i] != cur {
				outKeys = append(outKeys, cur)
				outCounts = append(outCounts, cnt)
				cur, cnt = keys[i], 1
				continue
			}
			cnt++
		}
		return append(outKeys, cur), append(outCounts, cnt)
	}
	cur, cnt := keys[perm[0]], int64(1)
	for i := 1; i < n; i++ {
		r := perm[i]
		if keys[r] != cur {
			outKeys = append(outKeys, cur)
			outCounts = append(outCounts, cnt)
			cur, cnt = keys[r], 1
			continue
		}
		cnt++
	}
	return append(outKeys, cur), append(outCounts, cnt)
}

// multiAggAccum grows one entry per distinct key across all four aggregates
type multiAggAccum struct {
	keys   []int64
	sums   []float64
	mins   []float64
	maxs   []float64
	counts []int64
}

func (a *multiAggAccum) push(k int64, v float64) {
	a.keys = append(a.keys, k)
	a.sums = append(a.sums, v)
	a.mins = append(a.mins, v)
	a.maxs = append(a.maxs, v)
	a.counts = append(a.counts, 1)
}

func (a *multiAggAccum) fold(g int, v float64) {
	a.sums[g] += v
	if v != v || v < a.mins[g] {
		a.mins[g] = v
	}
	if v != v || v > a.maxs[g] {
		a.maxs[g] = v
	}
	a.counts[g]++
}

func multiAggRuns(keys []int64, values []float64, perm []uint32) multiAggAccum {
	var acc multiAggAccum
	n := len(keys)
	if n == 0 {
		return acc
	}
	if perm == nil {
		acc.push(keys[0], values[0])
		for i := 1; i < n; i++ {
			if keys[i] != acc.keys[len(acc.keys)-1] {
				acc.push(keys[i], values[i])
				continue
			}
			acc.fold(len(acc.keys)-1, values[i])
		}
		return acc
	}
	r0 := perm[0]
	acc.push(keys[r0], values[r0])
	for i := 1; i < n; i++ {
		r := perm[i]
		if keys[r] != acc.keys[len(acc.keys)-1] {
			acc.push(keys[r], values[r])
			continue
		}
		acc.fold(len(acc.keys)-1, values[r])
	}
	return acc
}

// ============================================================================
// Result Materialization
// ============================================================================

func materializeSumResult(mem memory.Allocator, keys []int64, sums []float64) *GroupBySumResult {
	bufK, outK := allocInt64(mem, len(keys))
	copy(outK, keys)
	bufS, outS := allocFloat64(mem, len(sums))
	copy(outS, sums)
	return &GroupBySumResult{
		Keys:      outK,
		Sums:      outS,
		NumGroups: len(keys),
		bufs:      []*memory.Buffer{bufK, bufS},
	}
}

func materializeCountResult(mem memory.Allocator, keys, counts []int64) *GroupByCountResult {
	bufK, outK := allocInt64(mem, len(keys))
	copy(outK, keys)
	bufC, outC := allocInt64(mem, len(counts))
	copy(outC, counts)
	return &GroupByCountResult{
		Keys:      outK,
		Counts:    outC,
		NumGroups: len(keys),
		bufs:      []*memory.Buffer{bufK, bufC},
	}
}

func materializeMultiAgg(mem memory.Allocator, acc multiAggAccum) *GroupByMultiAggResult {
	n := len(acc.keys)
	bufK, outK := allocInt64(mem, n)
	copy(outK, acc.keys)
	bufS, outS := allocFloat64(mem, n)
	copy(outS, acc.sums)
	bufMin, outMin := allocFloat64(mem, n)
	copy(outMin, acc.mins)
	bufMax, outMax := allocFloat64(mem, n)
	copy(outMax, acc.maxs)
	bufC, outC := allocInt64(mem, n)
	copy(outC, acc.counts)
	return &GroupByMultiAggResult{
		Keys:      outK,
		Sums:      outS,
		Mins:      outMin,
		Maxs:      outMax,
		Counts:    outC,
		NumGroups: n,
		bufs:      []*memory.Buffer{bufK, bufS, bufMin, bufMax, bufC},
	}
}
