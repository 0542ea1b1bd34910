// Package backend defines the contract between the inference runtime and a
// device: compile a graph into a Program, create tensors for it and execute it.
package backend

import (
	"context"

	"inferd/internal/tensor"
)

// Backend compiles graphs for one device.
type Backend interface {
	Name() string
	Compile(g *Graph) (Program, error)
}

// Program is a compiled graph. Implementations must allow concurrent Call
// invocations with distinct tensors.
type Program interface {
	// CreateTensor with no options returns an empty placeholder whose shape
	// and contents are resolved by Call.
	CreateTensor(opts ...TensorOption) (Tensor, error)
	// Call executes the program. inputs follow the graph's parameter order and
	// outputs its result order. ctx is polled cooperatively; cancellation is
	// best effort.
	Call(ctx context.Context, outputs, inputs []Tensor) error
}

// Tensor is a device-side value.
type Tensor interface {
	Precision() tensor.Precision
	// Shape reports false while the shape is still unresolved.
	Shape() (tensor.Shape, bool)
	Bytes() []byte
	// Read copies the contents into dst, which must have len(Bytes()).
	Read(dst []byte) error
}

// Transferer is implemented by programs that need explicit host/device copies.
type Transferer interface {
	TransferIn(ctx context.Context, inputs []Tensor) error
	TransferOut(ctx context.Context, outputs []Tensor) error
}

// TensorSpec is the resolved result of applying TensorOptions.
type TensorSpec struct {
	Precision tensor.Precision
	Shape     tensor.Shape
	HasShape  bool
	Memory    []byte
}

// TensorOption configures CreateTensor.
type TensorOption func(*TensorSpec)

func WithPrecision(p tensor.Precision) TensorOption {
	return func(s *TensorSpec) { s.Precision = p }
}

func WithShape(dims tensor.Shape) TensorOption {
	return func(s *TensorSpec) { s.Shape = dims.Clone(); s.HasShape = true }
}

// WithMemory makes the tensor a view over caller memory instead of allocating.
func WithMemory(b []byte) TensorOption {
	return func(s *TensorSpec) { s.Memory = b }
}

// ApplyOptions folds opts into a TensorSpec.
func ApplyOptions(opts ...TensorOption) TensorSpec {
	var s TensorSpec
	for _, o := range opts {
		if o != nil {
			o(&s)
		}
	}
	return s
}
