// keelbench times the vectorized kernels over synthetic data or over a
// key/value column pair loaded from a Parquet file.
//
// Usage:
//
//	keelbench                          synthetic 1M rows
//	keelbench -rows 10000000           synthetic 10M rows
//	keelbench -gen bench.parquet       write synthetic data and exit
//	keelbench -file bench.parquet      load key/value columns from a file
package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"github.com/NerdMeNot/keel"
)

func main() {
	rows := flag.Int("rows", 1_000_000, "synthetic row count")
	groups := flag.Int("groups", 0, "distinct keys in synthetic data (default rows/10)")
	threads := flag.Int("threads", runtime.NumCPU(), "worker threads")
	iters := flag.Int("iters", 5, "iterations per kernel")
	file := flag.String("file", "", "parquet file with a key (int64) and value (double) column")
	gen := flag.String("gen", "", "write synthetic data to this parquet file and exit")
	flag.Parse()

	if *groups <= 0 {
		*groups = *rows / 10
	}

	if *gen != "" {
		if err := writeBenchFile(*gen, *rows, *groups); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", *gen, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %d rows to %s\n", *rows, *gen)
		return
	}

	if err := keel.SetMaxThreads(*threads); err != nil {
		fmt.Fprintf(os.Stderr, "threads: %v\n", err)
		os.Exit(1)
	}

	var keys []int64
	var values []float64
	var err error
	if *file != "" {
		keys, values, err = loadBenchFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *file, err)
			os.Exit(1)
		}
	} else {
		keys, values = syntheticData(*rows, *groups)
	}

	fmt.Println("=== Keel Kernel Benchmark ===")
	fmt.Printf("Rows: %d, Threads: %d, SIMD: %s (%d-byte vectors), Iterations: %d\n\n",
		len(keys), keel.GetMaxThreads(), keel.GetSimdLevelName(), keel.GetSimdVectorBytes(), *iters)

	hashes := make([]uint64, len(keys))

	bench("Hash I64", *iters, func() {
		keel.HashI64Column(keys, hashes)
	})
	bench("Argsort F64", *iters, func() {
		keel.ArgsortF64(values, true)
	})
	bench("Sort F64", *iters, func() {
		keel.SortF64(values, true)
	})
	bench("Argsort I64", *iters, func() {
		keel.ArgsortI64(keys, true)
	})
	bench("Group IDs", *iters, func() {
		g, err := keel.ComputeGroupIDs(hashes)
		if err == nil {
			g.Release()
		}
	})
	bench("GroupBy Sum", *iters, func() {
		res, err := keel.GroupBySumI64F64(keys, values)
		if err == nil {
			res.Release()
		}
	})
	bench("GroupBy MultiAgg", *iters, func() {
		res, err := keel.GroupByMultiAggI64F64(keys, values)
		if err == nil {
			res.Release()
		}
	})

	// Same shape as the Polars comparison: probe=n rows, build=n/2
	rightKeys := keys[:len(keys)/2]
	bench("Inner Join", *iters, func() {
		res, err := keel.InnerJoinI64(keys, rightKeys)
		if err == nil {
			res.Release()
		}
	})
	bench("Left Join", *iters, func() {
		res, err := keel.LeftJoinI64(keys, rightKeys)
		if err == nil {
			res.Release()
		}
	})
}

func bench(name string, iterations int, fn func()) {
	// Warmup
	fn()

	start := time.Now()
	for i := 0; i < iterations; i++ {
		fn()
	}
	avg := time.Since(start) / time.Duration(iterations)
	fmt.Printf("%-18s %12v\n", name, avg)
}

func syntheticData(n, numKeys int) ([]int64, []float64) {
	r := rand.New(rand.NewSource(42))
	keys := make([]int64, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		keys[i] = int64(r.Intn(numKeys))
		values[i] = r.NormFloat64() * 100
	}
	return keys, values
}

// writeBenchFile lays out key/value rows in snappy-compressed row groups.
// Group fields sort alphabetically, so key is leaf 0 and value leaf 1.
func writeBenchFile(path string, n, numKeys int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	schema := parquet.NewSchema("bench", parquet.Group{
		"key":   parquet.Leaf(parquet.Int64Type),
		"value": parquet.Leaf(parquet.DoubleType),
	})
	pw := parquet.NewWriter(f, schema, parquet.Compression(&parquet.Snappy))

	keys, values := syntheticData(n, numKeys)
	const batchSize = 1000
	rows := make([]parquet.Row, 0, batchSize)
	for i := 0; i < n; i++ {
		rows = append(rows, parquet.Row{
			parquet.Int64Value(keys[i]),
			parquet.DoubleValue(values[i]),
		})
		if len(rows) >= batchSize {
			if _, err := pw.WriteRows(rows); err != nil {
				return fmt.Errorf("write rows at %d: %w", i-len(rows)+1, err)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err := pw.WriteRows(rows); err != nil {
			return fmt.Errorf("write final rows: %w", err)
		}
	}
	return pw.Close()
}

// loadBenchFile reads the key and value columns, one goroutine per row group.
func loadBenchFile(path string) ([]int64, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, nil, err
	}

	schema := pf.Schema()
	keyIdx, valIdx := -1, -1
	for i, col := range schema.Columns() {
		if len(col) != 1 {
			continue
		}
		switch col[0] {
		case "key":
			keyIdx = i
		case "value":
			valIdx = i
		}
	}
	if keyIdx < 0 || valIdx < 0 {
		return nil, nil, fmt.Errorf("file needs top-level key and value columns, got %v", schema.Columns())
	}
	for _, field := range schema.Fields() {
		switch field.Name() {
		case "key":
			if field.Type().Kind() != parquet.Int64 {
				return nil, nil, fmt.Errorf("key column kind %v, want INT64", field.Type().Kind())
			}
		case "value":
			if field.Type().Kind() != parquet.Double {
				return nil, nil, fmt.Errorf("value column kind %v, want DOUBLE", field.Type().Kind())
			}
		}
	}

	rowGroups := pf.RowGroups()
	keyParts := make([][]int64, len(rowGroups))
	valParts := make([][]float64, len(rowGroups))

	var g errgroup.Group
	for idx := range rowGroups {
		g.Go(func() error {
			rg := rowGroups[idx]
			rows := rg.Rows()
			defer rows.Close()

			ks := make([]int64, 0, rg.NumRows())
			vs := make([]float64, 0, rg.NumRows())
			rowBuf := make([]parquet.Row, 1000)
			for {
				n, err := rows.ReadRows(rowBuf)
				if err != nil && err != io.EOF {
					return fmt.Errorf("row group %d: %w", idx, err)
				}
				if n == 0 {
					break
				}
				for _, row := range rowBuf[:n] {
					if row[keyIdx].IsNull() || row[valIdx].IsNull() {
						ks = append(ks, 0)
						vs = append(vs, 0)
						continue
					}
					ks = append(ks, row[keyIdx].Int64())
					vs = append(vs, row[valIdx].Double())
				}
			}
			keyParts[idx] = ks
			valParts[idx] = vs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	total := 0
	for _, p := range keyParts {
		total += len(p)
	}
	keys := make([]int64, 0, total)
	values := make([]float64, 0, total)
	for i := range keyParts {
		keys = append(keys, keyParts[i]...)
		values = append(values, valParts[i]...)
	}
	return keys, values, nil
}
