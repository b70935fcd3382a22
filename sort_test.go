package keel

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

// ============================================================================
// Sort Key Transform Tests
// ============================================================================

func TestF64ToSortable_MonotonicLadder(t *testing.T) {
	// Total order the transform pins: negatives ascending, -0.0 before 0.0,
	// positives ascending, NaN after +Inf
	ladder := []float64{
		math.Inf(-1),
		-math.MaxFloat64,
		-5.0,
		-2.5,
		-math.SmallestNonzeroFloat64,
		math.Copysign(0, -1),
		0.0,
		math.SmallestNonzeroFloat64,
		2.5,
		5.0,
		math.MaxFloat64,
		math.Inf(1),
		math.NaN(),
	}
	for i := 1; i < len(ladder); i++ {
		lo := f64ToSortable(ladder[i-1])
		hi := f64ToSortable(ladder[i])
		if lo >= hi {
			t.Errorf("transform not monotonic at %v -> %v: %#x >= %#x", ladder[i-1], ladder[i], lo, hi)
		}
	}
}

func TestF64ToSortable_MixedSignPairs(t *testing.T) {
	pairs := [][2]float64{
		{-5.0, 3.0},
		{-3.0, -2.0},
		{1.5, 2.5},
		{math.Inf(-1), -math.MaxFloat64},
		{math.MaxFloat64, math.Inf(1)},
	}
	for _, p := range pairs {
		if f64ToSortable(p[0]) >= f64ToSortable(p[1]) {
			t.Errorf("transform(%v) should be < transform(%v)", p[0], p[1])
		}
	}
}

func TestI64ToSortable_Monotonic(t *testing.T) {
	ladder := []int64{math.MinInt64, math.MinInt64 + 1, -1000, -1, 0, 1, 1000, math.MaxInt64 - 1, math.MaxInt64}
	for i := 1; i < len(ladder); i++ {
		if i64ToSortable(ladder[i-1]) >= i64ToSortable(ladder[i]) {
			t.Errorf("transform not monotonic at %d -> %d", ladder[i-1], ladder[i])
		}
	}
}

func TestF32ToSortable_Monotonic(t *testing.T) {
	ladder := []float32{float32(math.Inf(-1)), -100.5, -0.25, 0, 0.25, 100.5, float32(math.Inf(1))}
	for i := 1; i < len(ladder); i++ {
		if f32ToSortable(ladder[i-1]) >= f32ToSortable(ladder[i]) {
			t.Errorf("transform not monotonic at %v -> %v", ladder[i-1], ladder[i])
		}
	}
}

func TestI32ToSortable_Monotonic(t *testing.T) {
	ladder := []int32{math.MinInt32, -7, 0, 7, math.MaxInt32}
	for i := 1; i < len(ladder); i++ {
		if i32ToSortable(ladder[i-1]) >= i32ToSortable(ladder[i]) {
			t.Errorf("transform not monotonic at %d -> %d", ladder[i-1], ladder[i])
		}
	}
}

// ============================================================================
// Argsort Correctness Tests
// ============================================================================

func checkPermutation(t *testing.T, idx []uint32, n int) {
	t.Helper()
	if len(idx) != n {
		t.Fatalf("permutation length %d, want %d", len(idx), n)
	}
	seen := make([]bool, n)
	for _, j := range idx {
		if int(j) >= n {
			t.Fatalf("index %d out of range [0,%d)", j, n)
		}
		if seen[j] {
			t.Fatalf("index %d appears twice", j)
		}
		seen[j] = true
	}
}

func TestCorrectness_ArgsortI64_MatchesManual(t *testing.T) {
	data := []int64{5, -3, 8, 0, -3, 8, 1}

	idx := ArgsortI64(data, true)
	checkPermutation(t, idx, len(data))

	// Stable reference
	want := make([]uint32, len(data))
	for i := range want {
		want[i] = uint32(i)
	}
	sort.SliceStable(want, func(a, b int) bool {
		return data[want[a]] < data[want[b]]
	})

	for i := range idx {
		if idx[i] != want[i] {
			t.Fatalf("argsort mismatch at %d: got %v, want %v", i, idx, want)
		}
	}
}

func TestCorrectness_ArgsortF64_MatchesManual(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	data := make([]float64, 5000)
	for i := range data {
		data[i] = r.NormFloat64() * 100
	}

	idx := ArgsortF64(data, true)
	checkPermutation(t, idx, len(data))

	want := make([]uint32, len(data))
	for i := range want {
		want[i] = uint32(i)
	}
	sort.SliceStable(want, func(a, b int) bool {
		return data[want[a]] < data[want[b]]
	})

	for i := range idx {
		if idx[i] != want[i] {
			t.Fatalf("argsort mismatch at %d: got idx %d, want %d", i, idx[i], want[i])
		}
	}
}

func TestArgsortI64_LargeRandom_Bijection(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	n := 150_000
	data := make([]int64, n)
	for i := range data {
		data[i] = r.Int63n(1_000_000)
	}

	idx := ArgsortI64(data, true)
	checkPermutation(t, idx, n)

	for i := 1; i < n; i++ {
		if data[idx[i-1]] > data[idx[i]] {
			t.Fatalf("not ascending at %d: %d > %d", i, data[idx[i-1]], data[idx[i]])
		}
	}
}

func TestArgsortF64_Descending(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	data := make([]float64, 3000)
	for i := range data {
		data[i] = r.NormFloat64()
	}

	idx := ArgsortF64(data, false)
	checkPermutation(t, idx, len(data))

	for i := 1; i < len(idx); i++ {
		if data[idx[i-1]] < data[idx[i]] {
			t.Fatalf("not descending at %d: %v < %v", i, data[idx[i-1]], data[idx[i]])
		}
	}
}

func TestArgsort_TiesKeepOriginalOrder(t *testing.T) {
	dataI64 := []int64{5, 3, 5, 3, 1}
	wantI64 := []uint32{4, 1, 3, 0, 2}
	gotI64 := ArgsortI64(dataI64, true)
	for i := range wantI64 {
		if gotI64[i] != wantI64[i] {
			t.Errorf("i64 ties: got %v, want %v", gotI64, wantI64)
			break
		}
	}

	dataF32 := []float32{5, 3, 5, 3, 1}
	gotF32 := ArgsortF32(dataF32, true)
	for i := range wantI64 {
		if gotF32[i] != wantI64[i] {
			t.Errorf("f32 ties: got %v, want %v", gotF32, wantI64)
			break
		}
	}
}

func TestArgsortI32_MatchesManual(t *testing.T) {
	data := []int32{9, -2, 0, 9, -5}
	idx := ArgsortI32(data, true)
	checkPermutation(t, idx, len(data))
	for i := 1; i < len(idx); i++ {
		if data[idx[i-1]] > data[idx[i]] {
			t.Fatalf("not ascending: %v via %v", data, idx)
		}
	}
}

func TestArgsort_EmptyAndSingle(t *testing.T) {
	if got := ArgsortI64(nil, true); len(got) != 0 {
		t.Errorf("empty argsort returned %v", got)
	}
	if got := ArgsortI64([]int64{42}, true); len(got) != 1 || got[0] != 0 {
		t.Errorf("single argsort returned %v", got)
	}
}

// ============================================================================
// Sorted Copy Tests
// ============================================================================

func TestCorrectness_SortF64_MatchesManual(t *testing.T) {
	data := []float64{3.5, -1.25, 0, 7.75, -1.25}

	got := SortF64(data, true)

	want := append([]float64(nil), data...)
	sort.Float64s(want)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sorted copy mismatch: got %v, want %v", got, want)
		}
	}
	if !isSortedF64(got) {
		t.Error("sorted output fails isSortedF64")
	}
}

func TestSortI64_SortedOutput(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	data := make([]int64, 20_000)
	for i := range data {
		data[i] = r.Int63n(5000) - 2500
	}
	before := append([]int64(nil), data...)

	got := SortI64(data, true)

	if !isSortedI64(got) {
		t.Error("sorted output fails isSortedI64")
	}
	for i := range data {
		if data[i] != before[i] {
			t.Fatal("input mutated by SortI64")
		}
	}
}

func TestSortF64_NaNAfterInf(t *testing.T) {
	data := []float64{3, math.NaN(), math.Inf(-1), math.Inf(1), 1}
	got := SortF64(data, true)

	want := []float64{math.Inf(-1), 1, 3, math.Inf(1)}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("position %d: got %v, want %v", i, got[i], w)
		}
	}
	if !math.IsNaN(got[4]) {
		t.Errorf("NaN should sort last, got %v", got[4])
	}
}

func TestSortF64_NegativeZeroBeforePositiveZero(t *testing.T) {
	got := SortF64([]float64{0.0, math.Copysign(0, -1)}, true)
	if !math.Signbit(got[0]) || math.Signbit(got[1]) {
		t.Errorf("want [-0.0, 0.0], got signs [%v, %v]", math.Signbit(got[0]), math.Signbit(got[1]))
	}
}

// ============================================================================
// Parallel Path Tests
// ============================================================================

func TestArgsortI64_ParallelMatchesSerial(t *testing.T) {
	serial, err := NewExec(&Config{MinRowsForParallel: 8192, MorselSize: 4096, MaxWorkers: 1, Enabled: false}, nil)
	if err != nil {
		t.Fatalf("serial exec: %v", err)
	}
	defer serial.Release()

	parallel, err := NewExec(&Config{MinRowsForParallel: 1024, MorselSize: 1024, MaxWorkers: 4, Enabled: true}, nil)
	if err != nil {
		t.Fatalf("parallel exec: %v", err)
	}
	defer parallel.Release()

	r := rand.New(rand.NewSource(42))
	data := make([]int64, 100_000)
	for i := range data {
		data[i] = r.Int63n(10_000)
	}

	// Both paths are stable, so the permutations must be identical
	got := parallel.ArgsortI64(data, true)
	want := serial.ArgsortI64(data, true)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parallel and serial argsort diverge at %d: %d vs %d", i, got[i], want[i])
		}
	}
}

func TestSortF64_ParallelMatchesSerial(t *testing.T) {
	serial, err := NewExec(&Config{MinRowsForParallel: 8192, MorselSize: 4096, MaxWorkers: 1, Enabled: false}, nil)
	if err != nil {
		t.Fatalf("serial exec: %v", err)
	}
	defer serial.Release()

	parallel, err := NewExec(&Config{MinRowsForParallel: 1024, MorselSize: 1024, MaxWorkers: 8, Enabled: true}, nil)
	if err != nil {
		t.Fatalf("parallel exec: %v", err)
	}
	defer parallel.Release()

	r := rand.New(rand.NewSource(99))
	data := make([]float64, 120_000)
	for i := range data {
		data[i] = r.NormFloat64() * 1e6
	}

	got := parallel.SortF64(data, true)
	want := serial.SortF64(data, true)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parallel and serial sort diverge at %d: %v vs %v", i, got[i], want[i])
		}
	}
}

// ============================================================================
// Sortedness Probe Tests
// ============================================================================

func TestIsSortedI64(t *testing.T) {
	tests := []struct {
		name string
		data []int64
		want bool
	}{
		{"empty", nil, true},
		{"single", []int64{5}, true},
		{"ascending", []int64{1, 2, 2, 3}, true},
		{"descending", []int64{3, 2, 1}, false},
		{"one inversion", []int64{1, 5, 4, 9}, false},
		{"all equal", []int64{7, 7, 7}, true},
	}
	for _, tt := range tests {
		if got := isSortedI64(tt.data); got != tt.want {
			t.Errorf("%s: isSortedI64 = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsSortedF64(t *testing.T) {
	tests := []struct {
		name string
		data []float64
		want bool
	}{
		{"empty", nil, true},
		{"ascending", []float64{-1.5, 0, 2.5}, true},
		{"inversion", []float64{2, 1}, false},
		{"nan reads unsorted", []float64{1, math.NaN(), 3}, false},
		{"trailing nan reads unsorted", []float64{1, 2, math.NaN()}, false},
	}
	for _, tt := range tests {
		if got := isSortedF64(tt.data); got != tt.want {
			t.Errorf("%s: isSortedF64 = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// ============================================================================
// Radix Internals
// ============================================================================

func TestRadixSortPairs_AgainstStableReference(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	n := 10_000
	keys := make([]uint64, n)
	idx := make([]uint32, n)
	for i := range keys {
		keys[i] = r.Uint64() >> 40 // heavy duplicates across high digits
		idx[i] = uint32(i)
	}
	wantKeys := append([]uint64(nil), keys...)
	wantIdx := append([]uint32(nil), idx...)
	sort.SliceStable(wantIdx, func(a, b int) bool {
		return wantKeys[wantIdx[a]] < wantKeys[wantIdx[b]]
	})

	tmpK := make([]uint64, n)
	tmpI := make([]uint32, n)
	radixSortPairs(keys, idx, tmpK, tmpI)

	for i := 0; i < n; i++ {
		if idx[i] != wantIdx[i] {
			t.Fatalf("radix order diverges from stable reference at %d", i)
		}
		if keys[i] != wantKeys[wantIdx[i]] {
			t.Fatalf("keys not reordered with indices at %d", i)
		}
	}
}
