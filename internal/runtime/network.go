package runtime

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"inferd/internal/backend"
	"inferd/internal/convert"
	"inferd/internal/status"
	"inferd/internal/tensor"
)

// Network is an executable network: a compiled program plus the immutable
// descriptor tables shared by every request it creates. Requests hold a
// reference back to it and must be closed before it.
type Network struct {
	name    string
	device  string
	program backend.Program
	cfg     Config

	inputs    []Port
	outputs   []Port
	inputIdx  map[string]int
	outputIdx map[string]int

	alloc tensor.Allocator
	exec  *executor

	// requests names requests and counts live ones; collisions are cosmetic.
	requests atomic.Int64
	closed   atomic.Bool
}

// LoadNetwork compiles g on b. External precisions may be overridden per
// port through cfg; every override must be convertible both ways the
// pipeline needs.
func LoadNetwork(b backend.Backend, g *backend.Graph, cfg Config) (*Network, error) {
	if b == nil || g == nil {
		return nil, status.Newf(status.InvalidArgument, "load network: nil backend or graph")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	n := &Network{
		name:      g.Name,
		device:    b.Name(),
		cfg:       cfg,
		inputIdx:  make(map[string]int, len(g.Parameters)),
		outputIdx: make(map[string]int, len(g.Results)),
		exec:      newExecutor(cfg.Streams),
	}
	for i, p := range g.Parameters {
		port, err := userPort(p, cfg.InputPrecisions)
		if err != nil {
			return nil, err
		}
		if !convert.Supported(port.Precision, port.NetworkPrecision) {
			return nil, status.Named(status.UnsupportedPrecisionConversion, p.Name, "input %s -> %s", port.Precision, port.NetworkPrecision)
		}
		n.inputs = append(n.inputs, port)
		n.inputIdx[p.Name] = i
	}
	for i, r := range g.Results {
		port, err := userPort(r, cfg.OutputPrecisions)
		if err != nil {
			return nil, err
		}
		if !convert.Supported(port.NetworkPrecision, port.Precision) {
			return nil, status.Named(status.UnsupportedPrecisionConversion, r.Name, "output %s -> %s", port.NetworkPrecision, port.Precision)
		}
		n.outputs = append(n.outputs, port)
		n.outputIdx[r.Name] = i
	}
	for name := range cfg.InputPrecisions {
		if _, ok := n.inputIdx[name]; !ok {
			return nil, status.Named(status.NotFound, name, "precision override for unknown input")
		}
	}
	for name := range cfg.OutputPrecisions {
		if _, ok := n.outputIdx[name]; !ok {
			return nil, status.Named(status.NotFound, name, "precision override for unknown output")
		}
	}

	compiled := g
	if cfg.DynamicBatch {
		compiled = relaxBatch(g)
	}
	prog, err := b.Compile(compiled)
	if err != nil {
		return nil, errors.Wrapf(err, "compile %s on %s", g.Name, b.Name())
	}
	n.program = prog

	counter := allocatedBytes.WithLabelValues(n.name)
	n.alloc = tensor.Allocator{
		MaxBytes: cfg.MaxBufferBytes,
		Observe: func(d tensor.Desc, size int) {
			counter.Add(float64(size))
			zlog.Debug().Str("network", n.name).Str("precision", d.Precision.String()).
				Str("dims", d.Dims.String()).Str("size", humanize.Bytes(uint64(size))).Msg("buffer_allocated")
		},
	}
	zlog.Info().Str("network", n.name).Str("device", n.device).Int("inputs", len(n.inputs)).
		Int("outputs", len(n.outputs)).Int("streams", cfg.Streams).Msg("network_loaded")
	cfg.Events.Publish(Event{Name: EventNetworkLoaded, Network: n.name, Fields: map[string]any{"device": n.device}})
	return n, nil
}

func userPort(p backend.Port, overrides map[string]tensor.Precision) (Port, error) {
	port := Port{
		Name:             p.Name,
		Precision:        p.Precision,
		NetworkPrecision: p.Precision,
		Shape:            append(tensor.PartialShape(nil), p.Shape...),
		Layout:           p.Layout,
	}
	if port.Layout == "" {
		port.Layout = tensor.LayoutAny
	}
	if prec, ok := overrides[p.Name]; ok {
		if prec.Size() == 0 {
			return Port{}, status.Named(status.InvalidArgument, p.Name, "precision override %s has no storage size", prec)
		}
		port.Precision = prec
	}
	return port, nil
}

// relaxBatch returns a copy of g whose parameters and results have a dynamic dim 0.
func relaxBatch(g *backend.Graph) *backend.Graph {
	cp := *g
	relax := func(ports []backend.Port) []backend.Port {
		out := make([]backend.Port, len(ports))
		for i, p := range ports {
			out[i] = p
			if len(p.Shape) > 0 {
				out[i].Shape = append(tensor.PartialShape{tensor.Dynamic}, p.Shape[1:]...)
			}
		}
		return out
	}
	cp.Parameters = relax(g.Parameters)
	cp.Results = relax(g.Results)
	return &cp
}

// CreateInferRequest builds a request and eagerly allocates every statically
// shaped buffer. This can be the most expensive call of the API for large
// networks.
func (n *Network) CreateInferRequest() (*Request, error) {
	if n.closed.Load() {
		return nil, status.Named(status.NetworkClosed, n.name, "cannot create requests on a closed network")
	}
	id := n.requests.Add(1)
	r := &Request{
		net:        n,
		name:       fmt.Sprintf("%s_Req%d", n.name, id),
		state:      StateIdle,
		lastStatus: StatusNotStarted,
	}
	if err := r.bind.initialize(n.inputs, n.outputs, n.alloc); err != nil {
		n.requests.Add(-1)
		r.bind.release()
		return nil, err
	}
	activeRequests.WithLabelValues(n.name).Inc()
	zlog.Debug().Str("network", n.name).Str("request", r.name).Msg("request_created")
	n.cfg.Events.Publish(Event{Name: EventRequestCreated, Network: n.name, Request: r.name})
	return r, nil
}

func (n *Network) Name() string   { return n.name }
func (n *Network) Device() string { return n.device }

// Config returns the effective configuration with defaults applied.
func (n *Network) Config() Config { return n.cfg }

// Inputs returns the user-facing input descriptors in parameter order.
func (n *Network) Inputs() []Port { return clonePorts(n.inputs) }

// Outputs returns the user-facing output descriptors in result order.
func (n *Network) Outputs() []Port { return clonePorts(n.outputs) }

// Input looks up one input by name.
func (n *Network) Input(name string) (Port, bool) {
	i, ok := n.inputIdx[name]
	if !ok {
		return Port{}, false
	}
	return clonePorts(n.inputs[i : i+1])[0], true
}

// Output looks up one output by name.
func (n *Network) Output(name string) (Port, bool) {
	i, ok := n.outputIdx[name]
	if !ok {
		return Port{}, false
	}
	return clonePorts(n.outputs[i : i+1])[0], true
}

// ActiveRequests is the number of requests created and not yet closed.
func (n *Network) ActiveRequests() int64 { return n.requests.Load() }

// Closed reports whether Close was called.
func (n *Network) Closed() bool { return n.closed.Load() }

// Close waits for in-flight async episodes, then marks the network closed.
// Requests still alive afterwards must not be used; doing so panics.
func (n *Network) Close() error {
	if n.closed.Load() {
		return nil
	}
	n.exec.shutdown()
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	zlog.Info().Str("network", n.name).Int64("live_requests", n.requests.Load()).Msg("network_closed")
	n.cfg.Events.Publish(Event{Name: EventNetworkClosed, Network: n.name})
	return nil
}

func clonePorts(ps []Port) []Port {
	out := make([]Port, len(ps))
	for i, p := range ps {
		out[i] = p
		out[i].Shape = append(tensor.PartialShape(nil), p.Shape...)
	}
	return out
}
