package runtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inferd/internal/backend"
	"inferd/internal/backend/reference"
	"inferd/internal/tensor"
)

// fakeProgram wraps the reference interpreter with hooks to block, stall or
// fail Execute.
type fakeProgram struct {
	inner backend.Program

	started   chan struct{}
	release   chan struct{}
	ignoreCtx bool
	delays    []time.Duration
	err       atomic.Value // error

	calls atomic.Int32
}

func (p *fakeProgram) CreateTensor(opts ...backend.TensorOption) (backend.Tensor, error) {
	return p.inner.CreateTensor(opts...)
}

func (p *fakeProgram) Call(ctx context.Context, outputs, inputs []backend.Tensor) error {
	n := int(p.calls.Add(1))
	if p.started != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			if !p.ignoreCtx {
				return ctx.Err()
			}
			<-p.release
		}
	}
	if n <= len(p.delays) {
		time.Sleep(p.delays[n-1])
	}
	if v, ok := p.err.Load().(errBox); ok && v.error != nil {
		return v.error
	}
	if p.ignoreCtx {
		ctx = context.Background()
	}
	return p.inner.Call(ctx, outputs, inputs)
}

func (p *fakeProgram) setErr(err error) { p.err.Store(errBox{err}) }

type errBox struct{ error }

// transferProgram also implements backend.Transferer.
type transferProgram struct {
	*fakeProgram
	in, out atomic.Int32
}

func (p *transferProgram) TransferIn(context.Context, []backend.Tensor) error {
	p.in.Add(1)
	return nil
}

func (p *transferProgram) TransferOut(context.Context, []backend.Tensor) error {
	p.out.Add(1)
	return nil
}

type fakeBackend struct {
	prog     *fakeProgram
	transfer bool
	wrapped  *transferProgram
}

func (b *fakeBackend) Name() string { return "FAKE" }

func (b *fakeBackend) Compile(g *backend.Graph) (backend.Program, error) {
	inner, err := reference.New().Compile(g)
	if err != nil {
		return nil, err
	}
	b.prog.inner = inner
	if b.transfer {
		b.wrapped = &transferProgram{fakeProgram: b.prog}
		return b.wrapped, nil
	}
	return b.prog, nil
}

func graph(t *testing.T, src string) *backend.Graph {
	t.Helper()
	g, err := backend.ParseGraph([]byte(src), ".yaml")
	require.NoError(t, err)
	require.NoError(t, g.Validate())
	return g
}

const identityGraph = `
name: ident
parameters: [{name: x, precision: FP32, shape: [1, 3], layout: NC}]
results: [{name: y, precision: FP32, shape: [1, 3], layout: NC}]
nodes: [{op: Identity, inputs: [x], output: y}]
`

const scaleGraph = `
name: scale
parameters: [{name: in, precision: FP32, shape: [1, 3], layout: NC}]
results: [{name: out, precision: FP32, shape: [1, 3], layout: NC}]
nodes: [{op: Scale, inputs: [in], output: out, value: 1.5}]
`

const filterGraph = `
name: filter
parameters: [{name: x, precision: FP32, shape: [1, 4], layout: NC}]
results: [{name: pos, precision: FP32, shape: [-1], layout: C}]
nodes: [{op: FilterPositive, inputs: [x], output: pos}]
`

const dynamicInputGraph = `
name: dyn
parameters: [{name: x, precision: FP32, shape: [1, -1], layout: NC}]
results: [{name: y, precision: FP32, shape: [1, -1], layout: NC}]
nodes: [{op: Relu, inputs: [x], output: y}]
`

func loadFake(t *testing.T, src string, cfg Config) (*Network, *fakeProgram) {
	t.Helper()
	prog := &fakeProgram{}
	n, err := LoadNetwork(&fakeBackend{prog: prog}, graph(t, src), cfg)
	require.NoError(t, err)
	return n, prog
}

func loadRef(t *testing.T, src string, cfg Config) *Network {
	t.Helper()
	n, err := LoadNetwork(reference.New(), graph(t, src), cfg)
	require.NoError(t, err)
	return n
}

func newRequest(t *testing.T, n *Network) *Request {
	t.Helper()
	r, err := n.CreateInferRequest()
	require.NoError(t, err)
	return r
}

func fill(t *testing.T, r *Request, name string, v ...float64) *tensor.Buffer {
	t.Helper()
	b, err := r.GetBlob(name)
	require.NoError(t, err)
	require.NoError(t, b.SetFloat64s(v))
	return b
}

func blob(t *testing.T, r *Request, name string) *tensor.Buffer {
	t.Helper()
	b, err := r.GetBlob(name)
	require.NoError(t, err)
	return b
}

// blockingNetwork returns a network whose Execute blocks until release is
// closed or the context ends.
func blockingNetwork(t *testing.T, ignoreCtx bool) (*Network, *fakeProgram) {
	t.Helper()
	prog := &fakeProgram{
		started:   make(chan struct{}, 16),
		release:   make(chan struct{}),
		ignoreCtx: ignoreCtx,
	}
	n, err := LoadNetwork(&fakeBackend{prog: prog}, graph(t, identityGraph), Config{Streams: 4})
	require.NoError(t, err)
	return n, prog
}

func waitStarted(t *testing.T, p *fakeProgram) {
	t.Helper()
	select {
	case <-p.started:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not start")
	}
}
