package keel

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/panjf2000/ants/v2"
)

// ============================================================================
// Execution Configuration
// ============================================================================

// Config controls parallelization behavior
type Config struct {
	// MinRowsForParallel is the minimum rows to justify parallel overhead
	MinRowsForParallel int

	// MorselSize is the number of rows per work unit (default 4096)
	MorselSize int

	// MaxWorkers limits the number of worker goroutines (0 = NumCPU)
	MaxWorkers int

	// Enabled controls whether parallelism is used at all
	Enabled bool
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MinRowsForParallel: 8192, // ~8K rows minimum
		MorselSize:         4096, // ~4K rows per morsel
		MaxWorkers:         0,    // Use all CPUs
		Enabled:            true,
	}
}

// Validate rejects configurations no kernel could run under
func (cfg *Config) Validate() error {
	if cfg.MaxWorkers < 0 {
		return fmt.Errorf("max workers %d: %w", cfg.MaxWorkers, ErrInvalidConfig)
	}
	if cfg.MorselSize <= 0 {
		return fmt.Errorf("morsel size %d: %w", cfg.MorselSize, ErrInvalidConfig)
	}
	if cfg.MinRowsForParallel < 0 {
		return fmt.Errorf("min rows for parallel %d: %w", cfg.MinRowsForParallel, ErrInvalidConfig)
	}
	return nil
}

// numWorkers returns the number of workers to use
func (cfg *Config) numWorkers() int {
	if cfg.MaxWorkers > 0 {
		return cfg.MaxWorkers
	}
	return runtime.NumCPU()
}

// shouldParallelize determines if an operation should be parallelized
func (cfg *Config) shouldParallelize(rows int) bool {
	return cfg.Enabled && rows >= cfg.MinRowsForParallel
}

// ============================================================================
// Execution Context
// ============================================================================

// Exec is a caller-owned execution context: a bounded worker pool plus the
// configuration and allocator consulted by every kernel. Kernels are also
// reachable through package-level functions that run on a shared default
// context. A Config held by an Exec is read at kernel entry; callers must
// not reconfigure concurrently with an in-flight kernel.
type Exec struct {
	cfg  Config
	mem  memory.Allocator
	pool *ants.Pool
}

// NewExec creates an execution context. A nil cfg uses DefaultConfig, a nil
// mem uses the default Go allocator.
func NewExec(cfg *Config, mem memory.Allocator) (*Exec, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	pool, err := ants.NewPool(cfg.numWorkers())
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	return &Exec{cfg: *cfg, mem: mem, pool: pool}, nil
}

// Release shuts down the worker pool. Safe to call more than once. Kernels
// invoked afterwards fall back to plain goroutines.
func (e *Exec) Release() {
	if e.pool != nil {
		e.pool.Release()
		e.pool = nil
	}
}

// NumWorkers returns the worker ceiling this context runs under
func (e *Exec) NumWorkers() int {
	return e.cfg.numWorkers()
}

// Allocator returns the allocator backing this context's result buffers
func (e *Exec) Allocator() memory.Allocator {
	return e.mem
}

// spawn runs task on the worker pool, falling back to a goroutine when the
// pool is unavailable. wg is done when the task finishes.
func (e *Exec) spawn(wg *sync.WaitGroup, task func()) {
	wg.Add(1)
	run := func() {
		defer wg.Done()
		task()
	}
	if e.pool != nil {
		if err := e.pool.Submit(run); err == nil {
			return
		}
	}
	go run()
}

// ============================================================================
// Default Context & Thread Configuration
// ============================================================================

var (
	defaultExecMu sync.Mutex
	defaultExec   *Exec
	threadsAuto   = true
)

// DefaultExec returns the shared execution context, creating it on first use
// with auto-detected thread count.
func DefaultExec() *Exec {
	defaultExecMu.Lock()
	defer defaultExecMu.Unlock()
	if defaultExec == nil {
		defaultExec, _ = NewExec(nil, nil) // DefaultConfig always validates
	}
	return defaultExec
}

// SetMaxThreads replaces the default context with one capped at n workers.
// n must be >= 1. Callers are responsible for serializing this against
// in-flight kernels on the default context.
func SetMaxThreads(n int) error {
	if n < 1 {
		return fmt.Errorf("max threads %d: %w", n, ErrInvalidConfig)
	}
	cfg := DefaultConfig()
	cfg.MaxWorkers = n
	e, err := NewExec(cfg, nil)
	if err != nil {
		return err
	}
	defaultExecMu.Lock()
	defer defaultExecMu.Unlock()
	if defaultExec != nil {
		defaultExec.Release()
	}
	defaultExec = e
	threadsAuto = false
	return nil
}

// GetMaxThreads returns the worker ceiling of the default context
func GetMaxThreads() int {
	return DefaultExec().NumWorkers()
}

// IsThreadsAutoDetected reports whether the thread count is still the
// auto-detected default rather than one pinned via SetMaxThreads.
func IsThreadsAutoDetected() bool {
	defaultExecMu.Lock()
	defer defaultExecMu.Unlock()
	return threadsAuto
}

// ThreadConfig holds thread configuration information
type ThreadConfig struct {
	MaxThreads   int
	AutoDetected bool
}

// GetThreadConfig returns the current thread configuration.
func GetThreadConfig() ThreadConfig {
	return ThreadConfig{
		MaxThreads:   GetMaxThreads(),
		AutoDetected: IsThreadsAutoDetected(),
	}
}
