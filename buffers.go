package keel

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Result arrays that cross the API boundary are backed by allocator buffers,
// so ownership transfers to the caller with an explicit paired Release
// rather than an implicit GC dependency. The typed slices below alias the
// buffer bytes; they go invalid when the owning handle is released.

func allocInt32(mem memory.Allocator, n int) (*memory.Buffer, []int32) {
	buf := memory.NewResizableBuffer(mem)
	buf.Resize(n * arrow.Int32SizeBytes)
	return buf, arrow.Int32Traits.CastFromBytes(buf.Bytes())
}

func allocUint32(mem memory.Allocator, n int) (*memory.Buffer, []uint32) {
	buf := memory.NewResizableBuffer(mem)
	buf.Resize(n * arrow.Uint32SizeBytes)
	return buf, arrow.Uint32Traits.CastFromBytes(buf.Bytes())
}

func allocInt64(mem memory.Allocator, n int) (*memory.Buffer, []int64) {
	buf := memory.NewResizableBuffer(mem)
	buf.Resize(n * arrow.Int64SizeBytes)
	return buf, arrow.Int64Traits.CastFromBytes(buf.Bytes())
}

func allocFloat64(mem memory.Allocator, n int) (*memory.Buffer, []float64) {
	buf := memory.NewResizableBuffer(mem)
	buf.Resize(n * arrow.Float64SizeBytes)
	return buf, arrow.Float64Traits.CastFromBytes(buf.Bytes())
}

func releaseBuffers(bufs []*memory.Buffer) {
	for _, b := range bufs {
		if b != nil {
			b.Release()
		}
	}
}
