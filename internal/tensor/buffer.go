package tensor

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/x448/float16"

	"inferd/internal/status"
)

// Ownership says who is responsible for a buffer's memory.
type Ownership int

const (
	// Owned memory was allocated by this package and is released with the buffer.
	Owned Ownership = iota
	// Aliased shares the memory of another buffer (see AliasOf).
	Aliased
	// Borrowed wraps caller memory; the caller keeps ownership.
	Borrowed
)

func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	case Aliased:
		return "aliased"
	case Borrowed:
		return "borrowed"
	}
	return fmt.Sprintf("Ownership(%d)", int(o))
}

// Buffer is a typed, shaped memory region (a blob).
type Buffer struct {
	desc   Desc
	data   []byte
	own    Ownership
	target *Buffer
}

// Allocator creates Owned buffers. The zero value has no size limit.
type Allocator struct {
	// MaxBytes rejects single allocations larger than this; 0 disables the check.
	MaxBytes int64
	// Observe, if set, is told the size of every successful allocation.
	Observe func(desc Desc, bytes int)
}

var defaultAllocator Allocator

// Allocate returns a zeroed Owned buffer using the default allocator.
func Allocate(desc Desc) (*Buffer, error) { return defaultAllocator.Allocate(desc) }

// Allocate returns a zeroed Owned buffer. Failures are AllocationFailed and are
// never retried. An out-of-memory condition inside the Go runtime is fatal and
// cannot be reported.
func (a Allocator) Allocate(desc Desc) (b *Buffer, err error) {
	desc = NewDesc(desc.Precision, desc.Dims, desc.Layout)
	n, err := desc.ByteSize()
	if err != nil {
		return nil, err
	}
	if a.MaxBytes > 0 && int64(n) > a.MaxBytes {
		return nil, status.Newf(status.AllocationFailed, "%d bytes for %s %s exceeds limit of %d", n, desc.Precision, desc.Dims, a.MaxBytes)
	}
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, status.Newf(status.AllocationFailed, "%d bytes for %s %s: %v", n, desc.Precision, desc.Dims, r)
		}
	}()
	b = &Buffer{desc: desc, data: alignedBytes(n), own: Owned}
	if a.Observe != nil {
		a.Observe(desc, n)
	}
	return b, nil
}

// alignedBytes backs the slice with uint64 words so typed views are aligned.
func alignedBytes(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}

// Wrap borrows caller memory. len(data) must equal the descriptor's byte size.
func Wrap(desc Desc, data []byte) (*Buffer, error) {
	desc = NewDesc(desc.Precision, desc.Dims, desc.Layout)
	n, err := desc.ByteSize()
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, status.Newf(status.IncompatibleBlob, "wrap %s %s: got %d bytes, want %d", desc.Precision, desc.Dims, len(data), n)
	}
	return &Buffer{desc: desc, data: data, own: Borrowed}, nil
}

// WrapFloat32s borrows a float32 slice without copying.
func WrapFloat32s(dims Shape, l Layout, v []float32) (*Buffer, error) {
	return Wrap(NewDesc(FP32, dims, l), sliceBytes(v))
}

// WrapInt32s borrows an int32 slice without copying.
func WrapInt32s(dims Shape, l Layout, v []int32) (*Buffer, error) {
	return Wrap(NewDesc(I32, dims, l), sliceBytes(v))
}

// WrapUint8s borrows a uint8 slice without copying.
func WrapUint8s(dims Shape, l Layout, v []uint8) (*Buffer, error) {
	return Wrap(NewDesc(U8, dims, l), v)
}

func sliceBytes[T any](v []T) []byte {
	if len(v) == 0 {
		return []byte{}
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*int(unsafe.Sizeof(zero)))
}

// Alias returns a view sharing b's memory and descriptor.
func Alias(b *Buffer) *Buffer {
	return &Buffer{desc: b.desc, data: b.data, own: Aliased, target: b}
}

// Desc returns a copy of the descriptor.
func (b *Buffer) Desc() Desc { return NewDesc(b.desc.Precision, b.desc.Dims, b.desc.Layout) }

func (b *Buffer) Precision() Precision { return b.desc.Precision }
func (b *Buffer) Dims() Shape          { return b.desc.Dims.Clone() }
func (b *Buffer) Layout() Layout       { return b.desc.Layout }
func (b *Buffer) Ownership() Ownership { return b.own }

// AliasOf returns the buffer an Aliased view refers to, nil otherwise.
func (b *Buffer) AliasOf() *Buffer { return b.target }

// Len is the element count.
func (b *Buffer) Len() int { return b.desc.Dims.Size() }

// Bytes exposes the raw memory.
func (b *Buffer) Bytes() []byte { return b.data }

// SameMemory reports whether both buffers start at the same address.
func (b *Buffer) SameMemory(o *Buffer) bool {
	if b == nil || o == nil || len(b.data) == 0 || len(o.data) == 0 {
		return false
	}
	return &b.data[0] == &o.data[0]
}

// Release drops Owned memory. Borrowed and Aliased buffers are left alone.
func (b *Buffer) Release() {
	if b.own == Owned {
		b.data = nil
	}
}

func typed[T any](b *Buffer, want Precision) []T {
	if b.desc.Precision != want {
		panic(fmt.Sprintf("tensor: %s view of %s buffer", want, b.desc.Precision))
	}
	if len(b.data) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*T)(unsafe.Pointer(&b.data[0])), len(b.data)/int(unsafe.Sizeof(zero)))
}

func (b *Buffer) Uint8s() []uint8             { return typed[uint8](b, U8) }
func (b *Buffer) Int32s() []int32             { return typed[int32](b, I32) }
func (b *Buffer) Float32s() []float32         { return typed[float32](b, FP32) }
func (b *Buffer) Float16s() []float16.Float16 { return typed[float16.Float16](b, FP16) }

// Float64s copies the contents out as float64, whatever the precision.
func (b *Buffer) Float64s() []float64 {
	out := make([]float64, 0, b.Len())
	switch b.desc.Precision {
	case U8:
		for _, v := range b.Uint8s() {
			out = append(out, float64(v))
		}
	case I32:
		for _, v := range b.Int32s() {
			out = append(out, float64(v))
		}
	case FP32:
		for _, v := range b.Float32s() {
			out = append(out, float64(v))
		}
	case FP16:
		for _, v := range b.Float16s() {
			out = append(out, float64(v.Float32()))
		}
	}
	return out
}

// SetFloat64s fills the buffer from float64 values, truncating and saturating
// for integer precisions.
func (b *Buffer) SetFloat64s(v []float64) error {
	if len(v) != b.Len() {
		return status.Newf(status.IncompatibleBlob, "got %d values for %s buffer of %d elements", len(v), b.desc.Dims, b.Len())
	}
	switch b.desc.Precision {
	case U8:
		dst := b.Uint8s()
		for i, x := range v {
			dst[i] = uint8(clampTrunc(x, 0, math.MaxUint8))
		}
	case I32:
		dst := b.Int32s()
		for i, x := range v {
			dst[i] = int32(clampTrunc(x, math.MinInt32, math.MaxInt32))
		}
	case FP32:
		dst := b.Float32s()
		for i, x := range v {
			dst[i] = float32(x)
		}
	case FP16:
		dst := b.Float16s()
		for i, x := range v {
			dst[i] = float16.Fromfloat32(float32(x))
		}
	default:
		return status.Newf(status.InvalidArgument, "cannot fill %s buffer", b.desc.Precision)
	}
	return nil
}

func clampTrunc(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	x = math.Trunc(x)
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
