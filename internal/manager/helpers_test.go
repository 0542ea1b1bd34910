package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inferd/internal/backend"
	"inferd/internal/registry"
	"inferd/internal/runtime"
	"inferd/pkg/types"
)

const addGraph = `
name: add
parameters:
  - {name: a, precision: FP32, shape: [1, 3], layout: NC}
  - {name: b, precision: FP32, shape: [1, 3], layout: NC}
results: [{name: sum, precision: FP32, shape: [1, 3], layout: NC}]
nodes: [{op: Add, inputs: [a, b], output: sum}]
`

const identGraph = `
name: ident
parameters: [{name: x, precision: FP32, shape: [1, 3], layout: NC}]
results: [{name: y, precision: FP32, shape: [1, 3], layout: NC}]
nodes: [{op: Identity, inputs: [x], output: y}]
`

const dynGraph = `
name: dyn
parameters: [{name: x, precision: FP32, shape: [1, -1], layout: NC}]
results: [{name: y, precision: FP32, shape: [1, -1], layout: NC}]
nodes: [{op: Relu, inputs: [x], output: y}]
`

const slowGraph = `
name: slow
parameters: [{name: x, precision: FP32, shape: [1, 3], layout: NC}]
results: [{name: y, precision: FP32, shape: [1, 3], layout: NC}]
nodes: [{op: Identity, inputs: [x], output: y, delay_ms: 400}]
`

const stuckGraph = `
name: stuck
parameters: [{name: x, precision: FP32, shape: [1, 3], layout: NC}]
results: [{name: y, precision: FP32, shape: [1, 3], layout: NC}]
nodes: [{op: Identity, inputs: [x], output: y, delay_ms: 5000}]
`

const imageGraph = `
name: image
parameters: [{name: img, precision: U8, shape: [1, 3, 2, 2], layout: NCHW}]
results: [{name: out, precision: U8, shape: [1, 3, 2, 2], layout: NCHW}]
nodes: [{op: Identity, inputs: [img], output: out}]
`

func entries(t *testing.T, srcs ...string) []registry.Entry {
	t.Helper()
	out := make([]registry.Entry, 0, len(srcs))
	for _, src := range srcs {
		g, err := backend.ParseGraph([]byte(src), ".yaml")
		require.NoError(t, err)
		out = append(out, registry.Entry{Info: registry.Describe(g, ""), Graph: g})
	}
	return out
}

func newTestManager(t *testing.T, cfg ManagerConfig) (*Manager, *runtime.MemoryPublisher) {
	t.Helper()
	pub := runtime.NewMemoryPublisher()
	cfg.Events = pub
	m := NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m, pub
}

func vec(network string, inputs map[string][]float64) types.InferRequest {
	in := types.InferRequest{Network: network, Inputs: map[string]types.TensorData{}}
	for k, v := range inputs {
		in.Inputs[k] = types.TensorData{Data: v}
	}
	return in
}

func waitInflight(t *testing.T, m *Manager, network string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, is := range m.Status().Instances {
			if is.Network == network && is.Inflight == n {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
}

func hasEvent(pub *runtime.MemoryPublisher, name string) bool {
	for _, n := range pub.Names() {
		if n == name {
			return true
		}
	}
	return false
}

type inferResult struct {
	resp types.InferResponse
	err  error
}

func inferAsync(m *Manager, in types.InferRequest) <-chan inferResult {
	ch := make(chan inferResult, 1)
	go func() {
		resp, err := m.Infer(context.Background(), in)
		ch <- inferResult{resp, err}
	}()
	return ch
}
