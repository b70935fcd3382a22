package keel

import (
	"sync"
)

// Pooled scratch slices for kernel intermediates (hash columns, radix
// buffers, chained join tables). Call Release() when done to return one to
// its pool. Contents are NOT zeroed on reuse; every kernel fully overwrites
// what it borrows.

// Uint64Slice is a pooled uint64 slice for hash and radix-key scratch
type Uint64Slice struct {
	Data []uint64
	pool *sync.Pool
}

// Release returns the slice to the pool for reuse
func (s *Uint64Slice) Release() {
	if s.pool != nil && s.Data != nil {
		s.pool.Put(s)
	}
}

// Uint32Slice is a pooled uint32 slice for index operations
type Uint32Slice struct {
	Data []uint32
	pool *sync.Pool
}

// Release returns the slice to the pool for reuse
func (s *Uint32Slice) Release() {
	if s.pool != nil && s.Data != nil {
		s.pool.Put(s)
	}
}

// Int32Slice is a pooled int32 slice for chained-table scratch
type Int32Slice struct {
	Data []int32
	pool *sync.Pool
}

// Release returns the slice to the pool for reuse
func (s *Int32Slice) Release() {
	if s.pool != nil && s.Data != nil {
		s.pool.Put(s)
	}
}

// Pool sizes - we use power-of-2 buckets for efficiency
var (
	uint64Pools [32]*sync.Pool // pools for sizes 2^0 to 2^31
	uint32Pools [32]*sync.Pool
	int32Pools  [32]*sync.Pool
	poolInit    sync.Once
)

func initPools() {
	poolInit.Do(func() {
		for i := range uint64Pools {
			size := 1 << i
			uint64Pools[i] = &sync.Pool{
				New: func() interface{} {
					return &Uint64Slice{
						Data: make([]uint64, size),
					}
				},
			}
			uint32Pools[i] = &sync.Pool{
				New: func() interface{} {
					return &Uint32Slice{
						Data: make([]uint32, size),
					}
				},
			}
			int32Pools[i] = &sync.Pool{
				New: func() interface{} {
					return &Int32Slice{
						Data: make([]int32, size),
					}
				},
			}
		}
	})
}

// getBucket returns the pool bucket index for a given size
func getBucket(size int) int {
	if size <= 0 {
		return 0
	}
	// Find the smallest power of 2 >= size
	bucket := 0
	n := size - 1
	for n > 0 {
		n >>= 1
		bucket++
	}
	if bucket >= 32 {
		bucket = 31
	}
	return bucket
}

// getUint64Slice gets a uint64 slice from the pool with at least 'size' capacity
func getUint64Slice(size int) *Uint64Slice {
	initPools()
	bucket := getBucket(size)
	pool := uint64Pools[bucket]
	slice := pool.Get().(*Uint64Slice)
	slice.pool = pool

	poolSize := 1 << bucket
	if len(slice.Data) != size {
		slice.Data = slice.Data[:size]
	}
	if size > poolSize {
		slice.Data = make([]uint64, size)
	}

	return slice
}

// getUint32Slice gets a uint32 slice from the pool with at least 'size' capacity
func getUint32Slice(size int) *Uint32Slice {
	initPools()
	bucket := getBucket(size)
	pool := uint32Pools[bucket]
	slice := pool.Get().(*Uint32Slice)
	slice.pool = pool

	poolSize := 1 << bucket
	if len(slice.Data) != size {
		slice.Data = slice.Data[:size]
	}
	if size > poolSize {
		slice.Data = make([]uint32, size)
	}

	return slice
}

// getInt32Slice gets an int32 slice from the pool with at least 'size' capacity
func getInt32Slice(size int) *Int32Slice {
	initPools()
	bucket := getBucket(size)
	pool := int32Pools[bucket]
	slice := pool.Get().(*Int32Slice)
	slice.pool = pool

	poolSize := 1 << bucket
	if len(slice.Data) != size {
		slice.Data = slice.Data[:size]
	}
	if size > poolSize {
		slice.Data = make([]int32, size)
	}

	return slice
}
