package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferd/internal/backend/reference"
	"inferd/internal/status"
	"inferd/internal/tensor"
)

func TestCreateInferRequestNames(t *testing.T) {
	pub := NewMemoryPublisher()
	n := loadRef(t, identityGraph, Config{Events: pub})
	assert.Equal(t, "ident", n.Name())
	assert.Equal(t, reference.Device, n.Device())

	r1 := newRequest(t, n)
	r2 := newRequest(t, n)
	assert.Equal(t, "ident_Req1", r1.Name())
	assert.Equal(t, "ident_Req2", r2.Name())
	assert.Same(t, n, r1.Network())
	assert.EqualValues(t, 2, n.ActiveRequests())

	require.NoError(t, r1.Close())
	assert.EqualValues(t, 1, n.ActiveRequests())
	assert.Equal(t, []string{EventNetworkLoaded, EventRequestCreated, EventRequestCreated, EventRequestClosed}, pub.Names())
}

func TestNetworkPorts(t *testing.T) {
	n := loadRef(t, scaleGraph, Config{OutputPrecisions: map[string]tensor.Precision{"out": tensor.I32}})

	in, ok := n.Input("in")
	require.True(t, ok)
	assert.Equal(t, tensor.FP32, in.Precision)
	assert.Equal(t, tensor.LayoutNC, in.Layout)

	out, ok := n.Output("out")
	require.True(t, ok)
	assert.Equal(t, tensor.I32, out.Precision)
	assert.Equal(t, tensor.FP32, out.NetworkPrecision)

	_, ok = n.Input("out")
	assert.False(t, ok)

	ports := n.Inputs()
	ports[0].Shape[0] = 99
	assert.Equal(t, tensor.PartialShape{1, 3}, n.Inputs()[0].Shape)
	assert.Len(t, n.Outputs(), 1)
	assert.Positive(t, n.Config().Streams)
}

func TestLoadNetworkRejects(t *testing.T) {
	const fp16Graph = `
name: half
parameters: [{name: x, precision: FP16, shape: [2]}]
results: [{name: y, precision: FP16, shape: [2]}]
nodes: [{op: Identity, inputs: [x], output: y}]
`
	_, err := LoadNetwork(reference.New(), graph(t, fp16Graph),
		Config{OutputPrecisions: map[string]tensor.Precision{"y": tensor.I32}})
	assert.True(t, status.IsUnsupportedConversion(err))

	_, err = LoadNetwork(reference.New(), graph(t, fp16Graph),
		Config{InputPrecisions: map[string]tensor.Precision{"x": tensor.I32}})
	assert.True(t, status.IsUnsupportedConversion(err))

	_, err = LoadNetwork(reference.New(), graph(t, identityGraph),
		Config{InputPrecisions: map[string]tensor.Precision{"nope": tensor.U8}})
	assert.True(t, status.IsNotFound(err))

	_, err = LoadNetwork(reference.New(), graph(t, identityGraph),
		Config{OutputPrecisions: map[string]tensor.Precision{"x": tensor.U8}})
	assert.True(t, status.IsNotFound(err))

	_, err = LoadNetwork(nil, graph(t, identityGraph), Config{})
	assert.True(t, status.Is(err, status.InvalidArgument))
}

func TestCreateInferRequestAllocationLimit(t *testing.T) {
	n := loadRef(t, identityGraph, Config{MaxBufferBytes: 8})
	_, err := n.CreateInferRequest()
	require.Error(t, err)
	assert.True(t, status.IsAllocationFailed(err))
	assert.EqualValues(t, 0, n.ActiveRequests())
}

func TestNetworkClose(t *testing.T) {
	n, prog := blockingNetwork(t, false)
	r := newRequest(t, n)

	require.NoError(t, r.StartAsync())
	waitStarted(t, prog)
	close(prog.release)
	require.NoError(t, n.Close())
	assert.True(t, n.Closed())
	assert.Equal(t, StateCompleted, r.State())
	require.NoError(t, n.Close())

	_, err := n.CreateInferRequest()
	assert.True(t, status.Is(err, status.NetworkClosed))
	assert.Panics(t, func() { _ = r.Infer() })
	assert.Panics(t, func() { _, _ = r.GetBlob("x") })
	assert.NoError(t, r.Close())
}

func TestStartAsyncRejectedWhileClosing(t *testing.T) {
	n := loadRef(t, identityGraph, Config{})
	r := newRequest(t, n)
	fill(t, r, "x", 1, 2, 3)

	n.exec.shutdown()
	err := r.StartAsync()
	require.Error(t, err)
	assert.True(t, status.Is(err, status.NetworkClosed))
	assert.Equal(t, StateFailed, r.State())
	assert.Equal(t, StatusFailed, r.Wait(WaitResultReady))
	require.NoError(t, n.Close())
	assert.True(t, n.Closed())
}

func TestRelaxBatchLeavesGraphUntouched(t *testing.T) {
	g := graph(t, identityGraph)
	cp := relaxBatch(g)
	assert.Equal(t, tensor.PartialShape{tensor.Dynamic, 3}, cp.Parameters[0].Shape)
	assert.Equal(t, tensor.PartialShape{tensor.Dynamic, 3}, cp.Results[0].Shape)
	assert.Equal(t, tensor.PartialShape{1, 3}, g.Parameters[0].Shape)
}

// stateSetup drives a fresh request into one state. The returned func lets
// any blocked episode finish.
type stateSetup func(t *testing.T) (*Request, func())

var stateSetups = map[State]stateSetup{
	StateIdle: func(t *testing.T) (*Request, func()) {
		n, _ := loadFake(t, identityGraph, Config{})
		return newRequest(t, n), func() {}
	},
	StateCompleted: func(t *testing.T) (*Request, func()) {
		n, _ := loadFake(t, identityGraph, Config{})
		r := newRequest(t, n)
		require.NoError(t, r.Infer())
		return r, func() {}
	},
	StateFailed: func(t *testing.T) (*Request, func()) {
		n, prog := loadFake(t, identityGraph, Config{})
		r := newRequest(t, n)
		prog.setErr(errors.New("boom"))
		require.Error(t, r.Infer())
		prog.setErr(nil)
		return r, func() {}
	},
	StateCancelled: func(t *testing.T) (*Request, func()) {
		n, prog := blockingNetwork(t, false)
		r := newRequest(t, n)
		require.NoError(t, r.StartAsync())
		waitStarted(t, prog)
		require.NoError(t, r.Cancel())
		require.Equal(t, StatusCancelled, r.Wait(WaitResultReady))
		close(prog.release)
		return r, func() {}
	},
	StateRunning: func(t *testing.T) (*Request, func()) {
		n, prog := blockingNetwork(t, false)
		r := newRequest(t, n)
		require.NoError(t, r.StartAsync())
		waitStarted(t, prog)
		return r, func() { close(prog.release); r.Wait(WaitResultReady) }
	},
	StateCancelRequested: func(t *testing.T) (*Request, func()) {
		n, prog := blockingNetwork(t, true)
		r := newRequest(t, n)
		require.NoError(t, r.StartAsync())
		waitStarted(t, prog)
		require.NoError(t, r.Cancel())
		return r, func() { close(prog.release); r.Wait(WaitResultReady) }
	},
}

func TestStateMachineTotality(t *testing.T) {
	type outcome struct {
		code  status.Code
		state State
	}
	ok := status.OK
	busy := func(s State) outcome { return outcome{status.RequestBusy, s} }

	calls := map[string]func(r *Request) error{
		"Infer": func(r *Request) error { return r.Infer() },
		"GetBlob": func(r *Request) error {
			_, err := r.GetBlob("x")
			return err
		},
		"Cancel": func(r *Request) error { return r.Cancel() },
	}
	want := map[State]map[string]outcome{
		StateIdle: {
			"Infer":   {ok, StateCompleted},
			"GetBlob": {ok, StateIdle},
			"Cancel":  {status.NotStarted, StateIdle},
		},
		StateCompleted: {
			"Infer":   {ok, StateCompleted},
			"GetBlob": {ok, StateIdle},
			"Cancel":  {status.NotStarted, StateIdle},
		},
		StateFailed: {
			"Infer":   {ok, StateCompleted},
			"GetBlob": {ok, StateIdle},
			"Cancel":  {status.NotStarted, StateIdle},
		},
		StateCancelled: {
			"Infer":   {ok, StateCompleted},
			"GetBlob": {ok, StateIdle},
			"Cancel":  {status.NotStarted, StateIdle},
		},
		StateRunning: {
			"Infer":   busy(StateRunning),
			"GetBlob": busy(StateRunning),
			"Cancel":  {ok, StateCancelRequested},
		},
		StateCancelRequested: {
			"Infer":   busy(StateCancelRequested),
			"GetBlob": busy(StateCancelRequested),
			"Cancel":  {ok, StateCancelRequested},
		},
	}

	for from, byCall := range want {
		for name, exp := range byCall {
			t.Run(string(from)+"/"+name, func(t *testing.T) {
				r, finish := stateSetups[from](t)
				defer finish()
				require.Equal(t, from, r.State())

				err := calls[name](r)
				if exp.code == ok {
					assert.NoError(t, err)
				} else {
					require.Error(t, err)
					assert.Equal(t, exp.code, status.CodeOf(err))
				}
				assert.Equal(t, exp.state, r.State())
			})
		}
	}
}

func TestWaitStatusPerState(t *testing.T) {
	want := map[State]Status{
		StateIdle:            StatusNotStarted,
		StateCompleted:       StatusOK,
		StateFailed:          StatusFailed,
		StateCancelled:       StatusCancelled,
		StateRunning:         StatusResultNotReady,
		StateCancelRequested: StatusResultNotReady,
	}
	for from, st := range want {
		t.Run(string(from), func(t *testing.T) {
			r, finish := stateSetups[from](t)
			defer finish()
			assert.Equal(t, st, r.Wait(WaitStatusOnly))
			assert.Equal(t, from, r.State())
		})
	}
}
