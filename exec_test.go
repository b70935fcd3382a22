package keel

import (
	"errors"
	"testing"
)

// ============================================================================
// Configuration Tests
// ============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MinRowsForParallel != 8192 {
		t.Errorf("MinRowsForParallel = %d, want 8192", cfg.MinRowsForParallel)
	}
	if cfg.MorselSize != 4096 {
		t.Errorf("MorselSize = %d, want 4096", cfg.MorselSize)
	}
	if cfg.MaxWorkers != 0 {
		t.Errorf("MaxWorkers = %d, want 0 (auto)", cfg.MaxWorkers)
	}
	if !cfg.Enabled {
		t.Error("Enabled should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", *DefaultConfig(), true},
		{"explicit workers", Config{MinRowsForParallel: 1, MorselSize: 1, MaxWorkers: 4, Enabled: true}, true},
		{"negative workers", Config{MinRowsForParallel: 1, MorselSize: 1, MaxWorkers: -1}, false},
		{"zero morsel", Config{MinRowsForParallel: 1, MorselSize: 0}, false},
		{"negative min rows", Config{MinRowsForParallel: -1, MorselSize: 1}, false},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: want ErrInvalidConfig, got %v", tt.name, err)
		}
	}
}

func TestConfig_ShouldParallelize(t *testing.T) {
	cfg := &Config{MinRowsForParallel: 1000, MorselSize: 100, Enabled: true}
	if cfg.shouldParallelize(999) {
		t.Error("999 rows should stay serial")
	}
	if !cfg.shouldParallelize(1000) {
		t.Error("1000 rows should go parallel")
	}
	cfg.Enabled = false
	if cfg.shouldParallelize(1_000_000) {
		t.Error("disabled config should never parallelize")
	}
}

// ============================================================================
// Execution Context Tests
// ============================================================================

func TestNewExec_NilDefaults(t *testing.T) {
	e, err := NewExec(nil, nil)
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}
	defer e.Release()

	if e.NumWorkers() < 1 {
		t.Errorf("NumWorkers = %d, want >= 1", e.NumWorkers())
	}
	if e.Allocator() == nil {
		t.Error("Allocator should never be nil")
	}
}

func TestNewExec_RejectsInvalidConfig(t *testing.T) {
	_, err := NewExec(&Config{MaxWorkers: -2, MorselSize: 1}, nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("want ErrInvalidConfig, got %v", err)
	}
}

func TestExec_ReleaseIdempotent(t *testing.T) {
	e, err := NewExec(nil, nil)
	if err != nil {
		t.Fatalf("NewExec: %v", err)
	}
	e.Release()
	e.Release() // must not panic

	// Kernels still run via the goroutine fallback after release
	idx := e.ArgsortI64([]int64{3, 1, 2}, true)
	want := []uint32{1, 2, 0}
	for i := range want {
		if idx[i] != want[i] {
			t.Fatalf("argsort after release: got %v, want %v", idx, want)
		}
	}
}

// ============================================================================
// Thread Ceiling Tests
// ============================================================================

func TestSetMaxThreads(t *testing.T) {
	prev := GetMaxThreads()
	defer SetMaxThreads(prev)

	if err := SetMaxThreads(3); err != nil {
		t.Fatalf("SetMaxThreads(3): %v", err)
	}
	if got := GetMaxThreads(); got != 3 {
		t.Errorf("GetMaxThreads = %d, want 3", got)
	}
	if IsThreadsAutoDetected() {
		t.Error("explicit thread count should clear the auto flag")
	}
}

func TestGetThreadConfig(t *testing.T) {
	prev := GetMaxThreads()
	defer SetMaxThreads(prev)

	if err := SetMaxThreads(2); err != nil {
		t.Fatalf("SetMaxThreads(2): %v", err)
	}
	tc := GetThreadConfig()
	if tc.MaxThreads != 2 {
		t.Errorf("MaxThreads = %d, want 2", tc.MaxThreads)
	}
	if tc.AutoDetected {
		t.Error("AutoDetected should be false after SetMaxThreads")
	}
}

func TestSetMaxThreads_RejectsZero(t *testing.T) {
	if err := SetMaxThreads(0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetMaxThreads(0): want ErrInvalidConfig, got %v", err)
	}
	if err := SetMaxThreads(-5); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetMaxThreads(-5): want ErrInvalidConfig, got %v", err)
	}
}

func TestGetMaxThreads_Positive(t *testing.T) {
	if n := GetMaxThreads(); n < 1 {
		t.Errorf("GetMaxThreads = %d, want >= 1", n)
	}
}

func TestKernelsRunUnderSetMaxThreads(t *testing.T) {
	prev := GetMaxThreads()
	defer SetMaxThreads(prev)

	if err := SetMaxThreads(2); err != nil {
		t.Fatalf("SetMaxThreads: %v", err)
	}

	keys := []int64{4, 2, 2, 9}
	idx := ArgsortI64(keys, true)
	checkPermutation(t, idx, len(keys))

	res, err := InnerJoinI64([]int64{1, 2}, []int64{2, 3})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer res.Release()
	if res.NumMatches() != 1 {
		t.Errorf("matches = %d, want 1", res.NumMatches())
	}
}
