// Package reference is a host-memory interpreter implementing backend.Backend.
// It exists to exercise the runtime end to end; kernels favor clarity over speed.
package reference

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"inferd/internal/backend"
	"inferd/internal/status"
	"inferd/internal/tensor"
)

// Device is the registry name of this backend.
const Device = "REFERENCE"

// Backend compiles graphs into interpreted programs.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (*Backend) Name() string { return Device }

// Register adds the reference backend to r.
func Register(r *backend.Registry) { r.Register(Device, New()) }

// Compile validates g and returns a program that owns a copy of it.
func (*Backend) Compile(g *backend.Graph) (backend.Program, error) {
	if g == nil {
		return nil, status.Newf(status.InvalidArgument, "nil graph")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	cp := *g
	cp.Parameters = append([]backend.Port(nil), g.Parameters...)
	cp.Results = append([]backend.Port(nil), g.Results...)
	cp.Nodes = append([]backend.Node(nil), g.Nodes...)
	return &Program{graph: &cp}, nil
}

// Program interprets a graph node by node. It keeps no per-call state and is
// safe for concurrent Call with distinct tensors.
type Program struct {
	graph *backend.Graph
}

// Graph returns the compiled graph. Callers must not modify it.
func (p *Program) Graph() *backend.Graph { return p.graph }

// CreateTensor returns a host tensor. With no options the tensor is an empty
// placeholder resolved by Call.
func (p *Program) CreateTensor(opts ...backend.TensorOption) (backend.Tensor, error) {
	spec := backend.ApplyOptions(opts...)
	t := &Tensor{prec: spec.Precision}
	if !spec.HasShape {
		if spec.Memory != nil {
			return nil, status.Newf(status.InvalidArgument, "tensor memory without a shape")
		}
		return t, nil
	}
	desc := tensor.NewDesc(spec.Precision, spec.Shape, tensor.LayoutAny)
	var (
		buf *tensor.Buffer
		err error
	)
	if spec.Memory != nil {
		buf, err = tensor.Wrap(desc, spec.Memory)
	} else {
		buf, err = tensor.Allocate(desc)
	}
	if err != nil {
		return nil, err
	}
	t.buf = buf
	return t, nil
}

// Call binds inputs to parameters, runs every node, and stores each result in
// the matching output tensor.
func (p *Program) Call(ctx context.Context, outputs, inputs []backend.Tensor) error {
	g := p.graph
	if len(inputs) != len(g.Parameters) {
		return status.Newf(status.InvalidArgument, "%s: want %d inputs, got %d", g.Name, len(g.Parameters), len(inputs))
	}
	if len(outputs) != len(g.Results) {
		return status.Newf(status.InvalidArgument, "%s: want %d outputs, got %d", g.Name, len(g.Results), len(outputs))
	}
	env := make(map[string]*tensor.Buffer, len(g.Parameters)+len(g.Nodes))
	for i, port := range g.Parameters {
		in, ok := inputs[i].(*Tensor)
		if !ok || in.buf == nil {
			return status.Named(status.InvalidArgument, port.Name, "%s: input is not a materialized reference tensor", g.Name)
		}
		if in.buf.Precision() != port.Precision {
			return status.Named(status.IncompatibleBlob, port.Name, "%s: input precision %s, want %s", g.Name, in.buf.Precision(), port.Precision)
		}
		if !port.Shape.Compatible(in.buf.Dims()) {
			return status.Named(status.IncompatibleBlob, port.Name, "%s: input shape %s does not fit %s", g.Name, in.buf.Dims(), port.Shape)
		}
		env[port.Name] = in.buf
	}
	for i, n := range g.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.DelayMS > 0 {
			if err := sleep(ctx, time.Duration(n.DelayMS)*time.Millisecond); err != nil {
				return err
			}
		}
		args := make([]*tensor.Buffer, len(n.Inputs))
		for j, name := range n.Inputs {
			args[j] = env[name]
		}
		out, err := evalNode(n, args)
		if err != nil {
			return errors.Wrapf(err, "%s: node %d (%s)", g.Name, i, n.Op)
		}
		env[n.Output] = out
	}
	for i, port := range g.Results {
		val := env[port.Name]
		if val.Precision() != port.Precision {
			return status.Named(status.ExecutionFailed, port.Name, "%s: result precision %s, declared %s", g.Name, val.Precision(), port.Precision)
		}
		if !port.Shape.Compatible(val.Dims()) {
			return status.Named(status.ExecutionFailed, port.Name, "%s: result shape %s does not fit %s", g.Name, val.Dims(), port.Shape)
		}
		out, ok := outputs[i].(*Tensor)
		if !ok {
			return status.Named(status.InvalidArgument, port.Name, "%s: output is not a reference tensor", g.Name)
		}
		out.set(val)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Tensor is a host buffer, possibly not yet materialized.
type Tensor struct {
	prec tensor.Precision
	buf  *tensor.Buffer
}

func (t *Tensor) Precision() tensor.Precision {
	if t.buf != nil {
		return t.buf.Precision()
	}
	return t.prec
}

func (t *Tensor) Shape() (tensor.Shape, bool) {
	if t.buf == nil {
		return nil, false
	}
	return t.buf.Dims(), true
}

func (t *Tensor) Bytes() []byte {
	if t.buf == nil {
		return nil
	}
	return t.buf.Bytes()
}

func (t *Tensor) Read(dst []byte) error {
	if t.buf == nil {
		return status.Newf(status.ShapeNotResolved, "read of unresolved tensor")
	}
	if len(dst) != len(t.buf.Bytes()) {
		return status.Newf(status.IncompatibleBlob, "read into %d bytes, tensor has %d", len(dst), len(t.buf.Bytes()))
	}
	copy(dst, t.buf.Bytes())
	return nil
}

// set stores a result. A tensor created over caller memory with a matching
// size receives a copy so the caller's memory sees the data.
func (t *Tensor) set(v *tensor.Buffer) {
	if t.buf != nil && t.buf.Precision() == v.Precision() && len(t.buf.Bytes()) == len(v.Bytes()) {
		if !t.buf.SameMemory(v) {
			copy(t.buf.Bytes(), v.Bytes())
		}
		if !t.buf.Dims().Equal(v.Dims()) {
			t.buf, _ = tensor.Wrap(v.Desc(), t.buf.Bytes())
		}
		return
	}
	t.buf = v
}
