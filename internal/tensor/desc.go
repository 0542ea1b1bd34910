// Package tensor provides precision- and shape-tagged memory blocks
// (buffers) with explicit ownership. It holds no execution logic.
package tensor

import (
	"math"

	"inferd/internal/status"
)

// Desc describes the element type, dimensions and layout of a buffer.
type Desc struct {
	Precision Precision
	Dims      Shape
	Layout    Layout
}

// NewDesc copies dims so later mutation by the caller cannot change the descriptor.
func NewDesc(p Precision, dims Shape, l Layout) Desc {
	if l == "" {
		l = LayoutAny
	}
	if l == LayoutScalar && len(dims) > 0 {
		l = LayoutAny
	}
	return Desc{Precision: p, Dims: dims.Clone(), Layout: l}
}

// Equal is layout-compatibility: precision and dims match exactly.
func (d Desc) Equal(o Desc) bool {
	return d.Precision == o.Precision && d.Dims.Equal(o.Dims)
}

// ByteSize returns the storage size, failing with AllocationFailed on overflow.
func (d Desc) ByteSize() (int, error) {
	es := d.Precision.Size()
	if es == 0 {
		return 0, status.Newf(status.InvalidArgument, "precision %s has no storage size", d.Precision)
	}
	n := int64(es)
	for _, dim := range d.Dims {
		if dim < 0 {
			return 0, status.Newf(status.InvalidArgument, "negative dimension in %s", d.Dims)
		}
		if dim != 0 && n > math.MaxInt64/int64(dim) {
			return 0, status.Newf(status.AllocationFailed, "size of %s %s overflows", d.Precision, d.Dims)
		}
		n *= int64(dim)
	}
	if n > math.MaxInt {
		return 0, status.Newf(status.AllocationFailed, "size of %s %s overflows", d.Precision, d.Dims)
	}
	return int(n), nil
}
