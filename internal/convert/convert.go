// Package convert implements element-wise precision conversion between
// buffers of equal element count. Supported pairs live in a closed dispatch
// table; extending the converter means adding a table entry.
package convert

import (
	"context"
	"math"

	"github.com/chewxy/math32"
	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"

	"inferd/internal/status"
	"inferd/internal/tensor"
)

type pair struct{ src, dst tensor.Precision }

type kernel func(src, dst *tensor.Buffer)

var table = map[pair]kernel{
	{tensor.U8, tensor.FP32}:   u8ToF32,
	{tensor.FP32, tensor.U8}:   f32ToU8,
	{tensor.U8, tensor.I32}:    u8ToI32,
	{tensor.I32, tensor.U8}:    i32ToU8,
	{tensor.I32, tensor.FP32}:  i32ToF32,
	{tensor.FP32, tensor.I32}:  f32ToI32,
	{tensor.U8, tensor.FP16}:   u8ToF16,
	{tensor.FP32, tensor.FP16}: f32ToF16,
	{tensor.FP16, tensor.FP32}: f16ToF32,
}

// Supported reports whether Convert accepts the pair. Equal precisions are
// always supported (plain copy).
func Supported(src, dst tensor.Precision) bool {
	if src == dst {
		return src.Size() > 0
	}
	_, ok := table[pair{src, dst}]
	return ok
}

// Convert writes src's elements into dst with dst's precision.
func Convert(src, dst *tensor.Buffer) error {
	if src.Len() != dst.Len() {
		return status.Newf(status.IncompatibleBlob, "convert %s%s -> %s%s: element count mismatch",
			src.Precision(), src.Dims(), dst.Precision(), dst.Dims())
	}
	if src.Precision() == dst.Precision() {
		if src.SameMemory(dst) {
			return nil
		}
		copy(dst.Bytes(), src.Bytes())
		return nil
	}
	k, ok := table[pair{src.Precision(), dst.Precision()}]
	if !ok {
		return status.Newf(status.UnsupportedPrecisionConversion, "from %s to %s", src.Precision(), dst.Precision())
	}
	k(src, dst)
	return nil
}

// Job is one conversion for ConvertAll.
type Job struct {
	Src, Dst *tensor.Buffer
}

// ConvertAll runs independent conversions concurrently. Destinations must be
// disjoint. The first failure is returned.
func ConvertAll(ctx context.Context, jobs []Job) error {
	switch len(jobs) {
	case 0:
		return nil
	case 1:
		return Convert(jobs[0].Src, jobs[0].Dst)
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return Convert(j.Src, j.Dst)
		})
	}
	return g.Wait()
}

func u8ToF32(src, dst *tensor.Buffer) {
	d := dst.Float32s()
	for i, v := range src.Uint8s() {
		d[i] = float32(v)
	}
}

func u8ToI32(src, dst *tensor.Buffer) {
	d := dst.Int32s()
	for i, v := range src.Uint8s() {
		d[i] = int32(v)
	}
}

func u8ToF16(src, dst *tensor.Buffer) {
	d := dst.Float16s()
	for i, v := range src.Uint8s() {
		d[i] = float16.Fromfloat32(float32(v))
	}
}

// NaN maps to 0, values truncate toward zero, then saturate to [0, 255].
func f32ToU8(src, dst *tensor.Buffer) {
	d := dst.Uint8s()
	for i, v := range src.Float32s() {
		switch {
		case math32.IsNaN(v) || v <= 0:
			d[i] = 0
		case v >= 255:
			d[i] = 255
		default:
			d[i] = uint8(math32.Trunc(v))
		}
	}
}

func i32ToU8(src, dst *tensor.Buffer) {
	d := dst.Uint8s()
	for i, v := range src.Int32s() {
		switch {
		case v < 0:
			d[i] = 0
		case v > math.MaxUint8:
			d[i] = math.MaxUint8
		default:
			d[i] = uint8(v)
		}
	}
}

func i32ToF32(src, dst *tensor.Buffer) {
	d := dst.Float32s()
	for i, v := range src.Int32s() {
		d[i] = float32(v)
	}
}

// NaN maps to 0, values truncate toward zero, then saturate to the int32 range.
func f32ToI32(src, dst *tensor.Buffer) {
	d := dst.Int32s()
	for i, v := range src.Float32s() {
		switch {
		case math32.IsNaN(v):
			d[i] = 0
		case v >= 2147483648:
			d[i] = math.MaxInt32
		case v < -2147483648:
			d[i] = math.MinInt32
		default:
			d[i] = int32(math32.Trunc(v))
		}
	}
}

func f32ToF16(src, dst *tensor.Buffer) {
	d := dst.Float16s()
	for i, v := range src.Float32s() {
		d[i] = float16.Fromfloat32(v)
	}
}

func f16ToF32(src, dst *tensor.Buffer) {
	d := dst.Float32s()
	for i, v := range src.Float16s() {
		d[i] = v.Float32()
	}
}
