package keel

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"
)

// Benchmark configurations
var benchSizes = []int{1_000, 10_000, 100_000, 1_000_000}

// Input shapes that hit different paths: the presortedness probe
// short-circuits Sorted, the radix passes dominate Random, Reverse and
// NearlySorted defeat the probe but keep locality.
var benchPatterns = []struct {
	name string
	gen  func(int) []float64
}{
	{"Random", makeRandomF64},
	{"Sorted", makeSortedF64},
	{"Reverse", makeReverseSortedF64},
	{"NearlySorted", func(n int) []float64 { return makeNearlySortedF64(n, 0.01) }},
}

// ============================================================================
// Input Pattern Benchmarks
// ============================================================================

func BenchmarkSortPatternsF64(b *testing.B) {
	for _, pattern := range benchPatterns {
		for _, size := range benchSizes {
			data := pattern.gen(size)

			b.Run(fmt.Sprintf("%s/Argsort_%d", pattern.name, size), func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					ArgsortF64(data, true)
				}
			})

			b.Run(fmt.Sprintf("%s/Sort_%d", pattern.name, size), func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					SortF64(data, true)
				}
			})
		}
	}
}

func BenchmarkSortRandomI64(b *testing.B) {
	for _, size := range benchSizes {
		data := makeRandomI64(size)

		b.Run(fmt.Sprintf("Argsort_%d", size), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				ArgsortI64(data, true)
			}
		})

		b.Run(fmt.Sprintf("Sort_%d", size), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				SortI64(data, true)
			}
		})
	}
}

// Descending rides the complement transform, so it should track ascending
// closely; a gap here means the transform stopped being branch-free.
func BenchmarkSortDescending(b *testing.B) {
	const size = 1_000_000
	f64 := makeRandomF64(size)
	i64 := makeRandomI64(size)

	b.Run("Argsort_F64_1M", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			ArgsortF64(f64, false)
		}
	})
	b.Run("Sort_F64_1M", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			SortF64(f64, false)
		}
	})
	b.Run("Argsort_I64_1M", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			ArgsortI64(i64, false)
		}
	})
	b.Run("Sort_I64_1M", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			SortI64(i64, false)
		}
	})
}

// ============================================================================
// Serial vs Parallel Summary Test
// ============================================================================

func TestSortScalingComparison(t *testing.T) {
	if testing.Short() {
		t.Skip("scaling comparison is slow")
	}

	serial, err := NewExec(&Config{MinRowsForParallel: 8192, MorselSize: 4096, MaxWorkers: 1, Enabled: false}, nil)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	defer serial.Release()
	parallel := DefaultExec()

	sizes := []int{10_000, 100_000, 1_000_000}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("ARGSORT SCALING: Serial vs Parallel")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("\n%-20s %10s %15s %15s %10s\n", "Pattern", "Size", "Serial (ms)", "Parallel (ms)", "Speedup")
	fmt.Println(strings.Repeat("-", 75))

	for _, pattern := range benchPatterns {
		for _, size := range sizes {
			data := pattern.gen(size)

			// Warm up
			serial.ArgsortF64(data, true)
			parallel.ArgsortF64(data, true)

			iterations := getIterations(size)
			start := time.Now()
			for i := 0; i < iterations; i++ {
				serial.ArgsortF64(data, true)
			}
			serialDuration := time.Since(start) / time.Duration(iterations)

			start = time.Now()
			for i := 0; i < iterations; i++ {
				parallel.ArgsortF64(data, true)
			}
			parallelDuration := time.Since(start) / time.Duration(iterations)

			speedup := float64(serialDuration) / float64(parallelDuration)
			fmt.Printf("%-20s %10d %15.3f %15.3f %9.2fx\n",
				pattern.name,
				size,
				float64(serialDuration.Microseconds())/1000.0,
				float64(parallelDuration.Microseconds())/1000.0,
				speedup,
			)
		}
	}
	fmt.Println()
}

// ============================================================================
// Helper Functions
// ============================================================================

func makeRandomF64(n int) []float64 {
	rng := rand.New(rand.NewSource(42))
	data := make([]float64, n)
	for i := range data {
		data[i] = rng.Float64()*1000 - 500
	}
	return data
}

func makeRandomI64(n int) []int64 {
	rng := rand.New(rand.NewSource(42))
	data := make([]int64, n)
	for i := range data {
		data[i] = rng.Int63n(1000000) - 500000
	}
	return data
}

func makeSortedF64(n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return data
}

func makeReverseSortedF64(n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(n - i)
	}
	return data
}

func makeNearlySortedF64(n int, swapFraction float64) []float64 {
	data := makeSortedF64(n)
	rng := rand.New(rand.NewSource(42))

	// Swap a fraction of elements
	swaps := int(float64(n) * swapFraction)
	for i := 0; i < swaps; i++ {
		a := rng.Intn(n)
		b := rng.Intn(n)
		data[a], data[b] = data[b], data[a]
	}
	return data
}

func getIterations(size int) int {
	switch {
	case size >= 1_000_000:
		return 5
	case size >= 100_000:
		return 20
	case size >= 10_000:
		return 100
	default:
		return 500
	}
}
