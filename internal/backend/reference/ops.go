package reference

import (
	gotensor "gorgonia.org/tensor"

	"inferd/internal/backend"
	"inferd/internal/convert"
	"inferd/internal/status"
	"inferd/internal/tensor"
)

func evalNode(n backend.Node, args []*tensor.Buffer) (*tensor.Buffer, error) {
	switch n.Op {
	case "Identity":
		return clone(args[0])
	case "Add", "Subtract", "Multiply":
		return arith(n.Op, args[0], args[1])
	case "Relu":
		return mapFloat(args[0], func(x float64) float64 {
			if x < 0 {
				return 0
			}
			return x
		})
	case "Scale":
		return mapFloat(args[0], func(x float64) float64 { return x * n.Value })
	case "Convert":
		out, err := tensor.Allocate(tensor.NewDesc(n.Precision, args[0].Dims(), args[0].Layout()))
		if err != nil {
			return nil, err
		}
		return out, convert.Convert(args[0], out)
	case "FilterPositive":
		return filterPositive(args[0])
	}
	return nil, status.Newf(status.InvalidArgument, "unknown op %q", n.Op)
}

func clone(b *tensor.Buffer) (*tensor.Buffer, error) {
	out, err := tensor.Allocate(b.Desc())
	if err != nil {
		return nil, err
	}
	copy(out.Bytes(), b.Bytes())
	return out, nil
}

// arith runs elementwise arithmetic on equal-shaped operands with gorgonia
// dense tensors. FP16 is computed in float32.
func arith(op string, a, b *tensor.Buffer) (*tensor.Buffer, error) {
	if a.Precision() != b.Precision() {
		return nil, status.Newf(status.IncompatibleBlob, "%s: operand precisions %s and %s differ", op, a.Precision(), b.Precision())
	}
	if !a.Dims().Equal(b.Dims()) {
		return nil, status.Newf(status.IncompatibleBlob, "%s: operand shapes %s and %s differ", op, a.Dims(), b.Dims())
	}
	if a.Precision() == tensor.FP16 {
		return viaFloat32(a, b, func(x, y *tensor.Buffer) (*tensor.Buffer, error) { return arith(op, x, y) })
	}
	da, err := dense(a)
	if err != nil {
		return nil, err
	}
	db, err := dense(b)
	if err != nil {
		return nil, err
	}
	var r *gotensor.Dense
	switch op {
	case "Add":
		r, err = da.Add(db)
	case "Subtract":
		r, err = da.Sub(db)
	case "Multiply":
		r, err = da.Mul(db)
	}
	if err != nil {
		return nil, status.Wrap(status.ExecutionFailed, err, op)
	}
	out, err := tensor.Allocate(a.Desc())
	if err != nil {
		return nil, err
	}
	switch data := r.Data().(type) {
	case []float32:
		copy(out.Float32s(), data)
	case []int32:
		copy(out.Int32s(), data)
	case []uint8:
		copy(out.Uint8s(), data)
	default:
		return nil, status.Newf(status.ExecutionFailed, "%s: unexpected result type %T", op, data)
	}
	return out, nil
}

// dense wraps a copy of b's elements in a gorgonia tensor.
func dense(b *tensor.Buffer) (*gotensor.Dense, error) {
	shape := []int(b.Dims())
	if len(shape) == 0 {
		shape = []int{1}
	}
	if b.Len() == 0 {
		return nil, status.Newf(status.InvalidArgument, "empty operand %s", b.Dims())
	}
	var backing interface{}
	switch b.Precision() {
	case tensor.FP32:
		backing = append([]float32(nil), b.Float32s()...)
	case tensor.I32:
		backing = append([]int32(nil), b.Int32s()...)
	case tensor.U8:
		backing = append([]uint8(nil), b.Uint8s()...)
	default:
		return nil, status.Newf(status.InvalidArgument, "no dense kernel for %s", b.Precision())
	}
	return gotensor.New(gotensor.WithShape(shape...), gotensor.WithBacking(backing)), nil
}

func viaFloat32(a, b *tensor.Buffer, f func(x, y *tensor.Buffer) (*tensor.Buffer, error)) (*tensor.Buffer, error) {
	up := func(v *tensor.Buffer) (*tensor.Buffer, error) {
		o, err := tensor.Allocate(tensor.NewDesc(tensor.FP32, v.Dims(), v.Layout()))
		if err != nil {
			return nil, err
		}
		return o, convert.Convert(v, o)
	}
	fa, err := up(a)
	if err != nil {
		return nil, err
	}
	fb, err := up(b)
	if err != nil {
		return nil, err
	}
	r, err := f(fa, fb)
	if err != nil {
		return nil, err
	}
	out, err := tensor.Allocate(a.Desc())
	if err != nil {
		return nil, err
	}
	return out, convert.Convert(r, out)
}

// mapFloat applies f to every element, storing back with saturation for
// integer precisions.
func mapFloat(b *tensor.Buffer, f func(float64) float64) (*tensor.Buffer, error) {
	out, err := tensor.Allocate(b.Desc())
	if err != nil {
		return nil, err
	}
	vals := b.Float64s()
	for i, v := range vals {
		vals[i] = f(v)
	}
	return out, out.SetFloat64s(vals)
}

// filterPositive returns the positive elements as a rank-1 tensor. Its length
// depends on the data, which makes the result shape dynamic.
func filterPositive(b *tensor.Buffer) (*tensor.Buffer, error) {
	var keep []float64
	for _, v := range b.Float64s() {
		if v > 0 {
			keep = append(keep, v)
		}
	}
	out, err := tensor.Allocate(tensor.NewDesc(b.Precision(), tensor.Shape{len(keep)}, tensor.LayoutC))
	if err != nil {
		return nil, err
	}
	return out, out.SetFloat64s(keep)
}
