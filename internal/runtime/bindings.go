package runtime

import (
	"inferd/internal/convert"
	"inferd/internal/preprocess"
	"inferd/internal/status"
	"inferd/internal/tensor"
)

// binding relates one declared input or output to its user-facing buffer and
// the buffer in the compiled program's precision.
type binding struct {
	port    Port
	isInput bool
	// user is nil while unmaterialized (dynamic shape at construction).
	user *tensor.Buffer
	// network aliases user when precisions match, otherwise it is Owned.
	network *tensor.Buffer
	pre     *preprocess.Info
	// shape is a per-request input shape override.
	shape tensor.Shape
	// produced is the output shape from the most recent Execute.
	produced tensor.Shape
}

type bindingTable struct {
	alloc   tensor.Allocator
	inputs  []*binding
	outputs []*binding
	byName  map[string]*binding
	// batch overrides dim 0 of every input when > 0.
	batch int
}

// initialize allocates user and network buffers for every statically shaped
// port and leaves dynamic ones unmaterialized.
func (t *bindingTable) initialize(inputs, outputs []Port, alloc tensor.Allocator) error {
	t.alloc = alloc
	t.byName = make(map[string]*binding, len(inputs)+len(outputs))
	add := func(p Port, isInput bool) (*binding, error) {
		b := &binding{port: p, isInput: isInput}
		if dims, ok := p.Shape.ToShape(); ok {
			user, err := t.alloc.Allocate(tensor.NewDesc(p.Precision, dims, p.Layout))
			if err != nil {
				return nil, err
			}
			b.user = user
			if err := t.deriveNetwork(b, dims); err != nil {
				return nil, err
			}
		}
		t.byName[p.Name] = b
		return b, nil
	}
	for _, p := range inputs {
		b, err := add(p, true)
		if err != nil {
			return err
		}
		t.inputs = append(t.inputs, b)
	}
	for _, p := range outputs {
		b, err := add(p, false)
		if err != nil {
			return err
		}
		t.outputs = append(t.outputs, b)
	}
	return nil
}

func (t *bindingTable) lookup(name string) (*binding, error) {
	b, ok := t.byName[name]
	if !ok {
		return nil, status.Named(status.NotFound, name, "no input or output with this name")
	}
	return b, nil
}

// deriveNetwork makes b.network consistent with b.user: an alias when the
// precisions match and no preprocessing sits in between, otherwise an Owned
// buffer of the compiled precision with the given dims.
func (t *bindingTable) deriveNetwork(b *binding, dims tensor.Shape) error {
	if b.pre == nil && b.user != nil && b.user.Precision() == b.port.NetworkPrecision {
		if b.network == nil || b.network.AliasOf() != b.user {
			b.releaseNetwork()
			b.network = tensor.Alias(b.user)
		}
		return nil
	}
	if b.network != nil && b.network.Ownership() == tensor.Owned && b.network.Dims().Equal(dims) {
		return nil
	}
	nb, err := t.alloc.Allocate(tensor.NewDesc(b.port.NetworkPrecision, dims, b.port.Layout))
	if err != nil {
		return err
	}
	b.releaseNetwork()
	b.network = nb
	return nil
}

func (b *binding) releaseNetwork() {
	if b.network != nil && b.network.Ownership() == tensor.Owned {
		b.network.Release()
	}
	b.network = nil
}

// inputDims resolves the shape the network will see for an input.
func (t *bindingTable) inputDims(b *binding) (tensor.Shape, error) {
	if b.shape != nil {
		return b.shape.Clone(), nil
	}
	dims, ok := b.port.Shape.ToShape()
	if !ok {
		return nil, status.Named(status.ShapeNotResolved, b.port.Name, "dynamic input %s has no shape set", b.port.Shape)
	}
	if t.batch > 0 && len(dims) > 0 {
		dims[0] = t.batch
	}
	return dims, nil
}

// outputDims prefers the shape produced by the last execution, then the
// declared static shape.
func (t *bindingTable) outputDims(b *binding) (tensor.Shape, error) {
	if b.produced != nil {
		return b.produced.Clone(), nil
	}
	if dims, ok := b.port.Shape.ToShape(); ok {
		return dims, nil
	}
	return nil, status.Named(status.ShapeNotResolved, b.port.Name, "output shape %s is not known before the first inference", b.port.Shape)
}

// get returns the user buffer, materializing or reallocating it when its dims
// no longer match the resolved shape.
func (t *bindingTable) get(name string) (*tensor.Buffer, error) {
	b, err := t.lookup(name)
	if err != nil {
		return nil, err
	}
	if b.isInput && b.pre != nil && b.pre.Resize != preprocess.ResizeNone && b.user != nil {
		return b.user, nil
	}
	var dims tensor.Shape
	if b.isInput {
		dims, err = t.inputDims(b)
	} else {
		dims, err = t.outputDims(b)
	}
	if err != nil {
		return nil, err
	}
	if err := t.materialize(b, dims); err != nil {
		return nil, err
	}
	return b.user, nil
}

func (t *bindingTable) materialize(b *binding, dims tensor.Shape) error {
	if b.user == nil || !b.user.Dims().Equal(dims) {
		user, err := t.alloc.Allocate(tensor.NewDesc(b.port.Precision, dims, b.port.Layout))
		if err != nil {
			return err
		}
		b.user = user
	}
	return t.deriveNetwork(b, dims)
}

// set installs a caller-supplied buffer. The previous user buffer is dropped,
// not released, since the caller may still hold it from get.
func (t *bindingTable) set(name string, buf *tensor.Buffer) error {
	b, err := t.lookup(name)
	if err != nil {
		return err
	}
	if buf == nil {
		return status.Named(status.IncompatibleBlob, name, "nil buffer")
	}
	if buf.Precision() != b.port.Precision {
		return status.Named(status.IncompatibleBlob, name, "buffer precision %s, want %s", buf.Precision(), b.port.Precision)
	}
	dims := buf.Dims()
	if b.isInput {
		if want, err := t.inputDims(b); err == nil && b.port.Shape.IsStatic() {
			if !want.Equal(dims) {
				return status.Named(status.IncompatibleBlob, name, "buffer shape %s, want %s", dims, want)
			}
		} else if !t.compatible(b, dims) {
			return status.Named(status.IncompatibleBlob, name, "buffer shape %s does not fit %s", dims, b.port.Shape)
		}
	} else if !t.compatible(b, dims) {
		return status.Named(status.IncompatibleBlob, name, "buffer shape %s does not fit %s", dims, b.port.Shape)
	}
	b.user = buf
	b.pre = nil
	if b.isInput && !b.port.Shape.IsStatic() {
		b.shape = dims
	}
	return t.deriveNetwork(b, dims)
}

// compatible checks dims against the declared partial shape, treating dim 0
// as free when a batch override is active.
func (t *bindingTable) compatible(b *binding, dims tensor.Shape) bool {
	ps := b.port.Shape
	if t.batch > 0 && len(ps) > 0 && len(dims) == len(ps) {
		ps = append(tensor.PartialShape{tensor.Dynamic}, ps[1:]...)
	}
	return ps.Compatible(dims)
}

// setWithPreprocess binds an image that is resized and/or color converted
// into the network buffer during Preprocess.
func (t *bindingTable) setWithPreprocess(name string, buf *tensor.Buffer, info preprocess.Info) error {
	b, err := t.lookup(name)
	if err != nil {
		return err
	}
	if !b.isInput {
		return status.Named(status.IncompatibleBlob, name, "preprocessing applies to inputs only")
	}
	if buf == nil {
		return status.Named(status.IncompatibleBlob, name, "nil buffer")
	}
	if info.IsZero() {
		return t.set(name, buf)
	}
	dims, err := t.inputDims(b)
	if err != nil {
		return err
	}
	netDesc := tensor.NewDesc(b.port.NetworkPrecision, dims, b.port.Layout)
	if err := preprocess.Validate(buf, netDesc, info); err != nil {
		return err
	}
	b.user = buf
	b.pre = &info
	return t.deriveNetwork(b, dims)
}

// setShape records a per-request input shape.
func (t *bindingTable) setShape(name string, dims tensor.Shape) error {
	b, err := t.lookup(name)
	if err != nil {
		return err
	}
	if !b.isInput {
		return status.Named(status.InvalidArgument, name, "shape overrides apply to inputs only")
	}
	if !t.compatible(b, dims) {
		return status.Named(status.IncompatibleBlob, name, "shape %s does not fit %s", dims, b.port.Shape)
	}
	b.shape = dims.Clone()
	return nil
}

// setBatch overrides dim 0 of every input.
func (t *bindingTable) setBatch(n int) error {
	if n < 1 {
		return status.Newf(status.InvalidArgument, "batch must be positive, got %d", n)
	}
	for _, b := range t.inputs {
		if len(b.port.Shape) == 0 {
			return status.Named(status.InvalidArgument, b.port.Name, "scalar input has no batch dimension")
		}
		if d := b.port.Shape[0]; d != tensor.Dynamic && int(d) < n {
			return status.Named(status.InvalidArgument, b.port.Name, "batch %d exceeds declared %d", n, d)
		}
	}
	t.batch = n
	for _, b := range t.inputs {
		if b.shape != nil && len(b.shape) > 0 {
			b.shape[0] = n
		}
	}
	return nil
}

// prepareInputs brings every input's network buffer up to date for one
// episode and returns the conversions still to run.
func (t *bindingTable) prepareInputs(netColor preprocess.ColorFormat) ([]convert.Job, []tensor.Shape, error) {
	var jobs []convert.Job
	dims := make([]tensor.Shape, len(t.inputs))
	for i, b := range t.inputs {
		d, err := t.inputDims(b)
		if err != nil {
			return nil, nil, err
		}
		dims[i] = d
		if b.pre != nil {
			if err := t.deriveNetwork(b, d); err != nil {
				return nil, nil, err
			}
			if err := preprocess.Apply(b.user, b.network, *b.pre, netColor); err != nil {
				return nil, nil, err
			}
			continue
		}
		// Owned buffers follow batch and shape overrides; caller buffers must fit.
		if b.user == nil || (b.user.Ownership() == tensor.Owned && !b.user.Dims().Equal(d)) {
			if err := t.materialize(b, d); err != nil {
				return nil, nil, err
			}
		}
		if !b.user.Dims().Equal(d) {
			return nil, nil, status.Named(status.IncompatibleBlob, b.port.Name, "bound buffer shape %s, network expects %s", b.user.Dims(), d)
		}
		if err := t.deriveNetwork(b, d); err != nil {
			return nil, nil, err
		}
		if b.network.Ownership() != tensor.Aliased {
			jobs = append(jobs, convert.Job{Src: b.user, Dst: b.network})
		}
	}
	return jobs, dims, nil
}

// release drops every Owned buffer held by the table.
func (t *bindingTable) release() {
	for _, b := range t.byName {
		b.releaseNetwork()
		if b.user != nil {
			b.user.Release()
		}
		b.user = nil
	}
}
