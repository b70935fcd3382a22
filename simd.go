package keel

import "github.com/klauspost/cpuid/v2"

// ============================================================================
// SIMD Level Detection
// ============================================================================
//
// The kernels themselves are portable Go; the detected level sizes probe
// groups and reports what the hardware would give a vectorized build. It is
// exposed for diagnostics so callers can explain performance differences
// across machines.

// SimdLevel identifies the widest vector instruction set available
type SimdLevel uint8

const (
	SimdScalar SimdLevel = iota
	SimdSSE4
	SimdAVX2
	SimdAVX512
)

// String returns the human-readable level name
func (l SimdLevel) String() string {
	switch l {
	case SimdScalar:
		return "Scalar"
	case SimdSSE4:
		return "SSE4"
	case SimdAVX2:
		return "AVX2"
	case SimdAVX512:
		return "AVX-512"
	default:
		return "Unknown"
	}
}

// VectorBytes returns the vector register width in bytes for the level
func (l SimdLevel) VectorBytes() int {
	switch l {
	case SimdAVX512:
		return 64
	case SimdAVX2:
		return 32
	case SimdSSE4:
		return 16
	default:
		return 8
	}
}

// SimdConfig describes the detected vector capability
type SimdConfig struct {
	Level       SimdLevel
	LevelName   string
	VectorBytes int
}

var detectedSimdLevel = detectSimdLevel()

func detectSimdLevel() SimdLevel {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512BW, cpuid.AVX512DQ):
		return SimdAVX512
	case cpuid.CPU.Supports(cpuid.AVX2):
		return SimdAVX2
	case cpuid.CPU.Supports(cpuid.SSE42):
		return SimdSSE4
	default:
		return SimdScalar
	}
}

// GetSimdLevel returns the detected SIMD level for this process
func GetSimdLevel() SimdLevel {
	return detectedSimdLevel
}

// GetSimdLevelName returns the detected SIMD level as a string
func GetSimdLevelName() string {
	return detectedSimdLevel.String()
}

// GetSimdVectorBytes returns the vector register width in bytes
// (8 for scalar, 16 for SSE4, 32 for AVX2, 64 for AVX-512)
func GetSimdVectorBytes() int {
	return detectedSimdLevel.VectorBytes()
}

// GetSimdConfig returns the full detected vector configuration
func GetSimdConfig() SimdConfig {
	return SimdConfig{
		Level:       detectedSimdLevel,
		LevelName:   detectedSimdLevel.String(),
		VectorBytes: GetSimdVectorBytes(),
	}
}
