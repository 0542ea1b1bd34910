package manager

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"inferd/internal/preprocess"
	"inferd/internal/runtime"
	"inferd/internal/status"
	"inferd/internal/tensor"
	"inferd/pkg/types"
)

// Infer binds the request's inputs to a pooled inference request of the
// target network, runs it on the caller's goroutine and collects the outputs.
func (m *Manager) Infer(ctx context.Context, in types.InferRequest) (types.InferResponse, error) {
	s, err := m.open(ctx, in)
	if err != nil {
		return types.InferResponse{}, err
	}
	defer s.close()
	if err := s.req.InferContext(ctx); err != nil {
		return types.InferResponse{}, err
	}
	return s.collect(in.Outputs)
}

// session is one admitted use of an instance's request.
type session struct {
	m       *Manager
	inst    *Instance
	req     *runtime.Request
	release func()
	// dirty requests had their bindings reshaped or replaced and are not
	// returned to the pool.
	dirty bool
}

func (m *Manager) open(ctx context.Context, in types.InferRequest) (*session, error) {
	inst, err := m.ensure(ctx, in.Network)
	if err != nil {
		return nil, err
	}
	release, err := m.beginInference(ctx, inst)
	if err != nil {
		return nil, err
	}
	s := &session{m: m, inst: inst, release: release}
	if s.req, err = m.acquireRequest(inst); err != nil {
		release()
		return nil, err
	}
	for _, name := range in.Outputs {
		if _, ok := inst.net.Output(name); !ok {
			s.close()
			return nil, status.Named(status.NotFound, name, "no such output in network %s", inst.Name)
		}
	}
	if err := s.bind(in); err != nil {
		s.dirty = true
		s.close()
		return nil, err
	}
	return s, nil
}

func (m *Manager) acquireRequest(inst *Instance) (*runtime.Request, error) {
	var r *runtime.Request
	select {
	case r = <-inst.pool:
	default:
		var err error
		if r, err = inst.net.CreateInferRequest(); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	inst.inflight[r] = struct{}{}
	m.mu.Unlock()
	return r, nil
}

func (s *session) bind(in types.InferRequest) error {
	net := s.inst.net
	if in.Batch > 0 {
		s.dirty = true
		if err := s.req.SetBatch(in.Batch); err != nil {
			return err
		}
	}
	for name := range in.Inputs {
		if _, ok := net.Input(name); !ok {
			return status.Named(status.NotFound, name, "no such input in network %s", net.Name())
		}
	}
	for name := range in.Preprocess {
		if _, ok := in.Inputs[name]; !ok {
			return status.Named(status.NotFound, name, "preprocessing given for an input without data")
		}
	}
	for _, p := range net.Inputs() {
		data, ok := in.Inputs[p.Name]
		if !ok {
			return status.Named(status.InvalidArgument, p.Name, "missing input")
		}
		var err error
		if spec, ok := in.Preprocess[p.Name]; ok {
			err = s.bindImage(p, data, spec)
		} else {
			err = s.bindTensor(p, data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// bindImage wraps data as a U8 image in the port's layout and binds it with
// preprocessing. The input is replaced, so the request becomes dirty.
func (s *session) bindImage(p runtime.Port, data types.TensorData, spec types.PreprocessSpec) error {
	s.dirty = true
	resize, err := preprocess.ParseResize(spec.Resize)
	if err != nil {
		return status.Wrap(status.InvalidArgument, err, p.Name)
	}
	color, err := preprocess.ParseColor(spec.Color)
	if err != nil {
		return status.Wrap(status.InvalidArgument, err, p.Name)
	}
	if data.Precision != "" && data.Precision != tensor.U8.String() {
		return status.Named(status.IncompatibleBlob, p.Name, "preprocessed inputs must be U8, got %s", data.Precision)
	}
	if len(data.Shape) != 4 {
		return status.Named(status.InvalidArgument, p.Name, "preprocessed inputs need a 4D shape")
	}
	buf, err := tensor.Allocate(tensor.NewDesc(tensor.U8, tensor.Shape(data.Shape), p.Layout))
	if err != nil {
		return err
	}
	if err := buf.SetFloat64s(data.Data); err != nil {
		return errors.Wrap(err, p.Name)
	}
	return s.req.SetBlobWithPreprocess(p.Name, buf, preprocess.Info{Resize: resize, Color: color})
}

// bindTensor writes data into the request's own input buffer.
func (s *session) bindTensor(p runtime.Port, data types.TensorData) error {
	if data.Precision != "" {
		prec, err := tensor.ParsePrecision(data.Precision)
		if err != nil {
			return status.Wrap(status.InvalidArgument, err, p.Name)
		}
		if prec != p.Precision {
			return status.Named(status.IncompatibleBlob, p.Name, "precision %s, port expects %s", prec, p.Precision)
		}
	}
	if !p.Shape.IsStatic() && len(data.Shape) > 0 {
		s.dirty = true
		if err := s.req.SetShape(p.Name, tensor.Shape(data.Shape)); err != nil {
			return err
		}
	}
	buf, err := s.req.GetBlob(p.Name)
	if err != nil {
		return err
	}
	if len(data.Shape) > 0 && !buf.Dims().Equal(tensor.Shape(data.Shape)) {
		return status.Named(status.IncompatibleBlob, p.Name, "shape %v, port expects %s", data.Shape, buf.Dims())
	}
	return buf.SetFloat64s(data.Data)
}

// collect reads the named outputs, all of them when names is empty.
func (s *session) collect(names []string) (types.InferResponse, error) {
	net := s.inst.net
	if len(names) == 0 {
		for _, p := range net.Outputs() {
			names = append(names, p.Name)
		}
	}
	resp := types.InferResponse{
		Network: net.Name(),
		Request: s.req.Name(),
		Outputs: make(map[string]types.TensorData, len(names)),
	}
	sort.Strings(names)
	for _, name := range names {
		buf, err := s.req.GetBlob(name)
		if err != nil {
			return types.InferResponse{}, err
		}
		resp.Outputs[name] = types.TensorData{
			Precision: buf.Precision().String(),
			Shape:     []int(buf.Dims()),
			Data:      buf.Float64s(),
		}
	}
	for _, c := range s.req.GetPerformanceCounts() {
		resp.Perf = append(resp.Perf, types.PerfEntry{Stage: c.Name, Micros: c.Duration.Microseconds()})
	}
	return resp, nil
}

// close returns the request to the pool when it is reusable and frees the
// admission slots.
func (s *session) close() {
	m, inst := s.m, s.inst
	m.mu.Lock()
	delete(inst.inflight, s.req)
	reuse := !s.dirty && inst.State != StateDraining && s.req.State() != runtime.StateRunning
	m.mu.Unlock()
	pooled := false
	if reuse {
		select {
		case inst.pool <- s.req:
			pooled = true
		default:
		}
	}
	if !pooled {
		if err := s.req.Close(); err != nil {
			zlog.Debug().Err(err).Str("network", inst.Name).Str("request", s.req.Name()).Msg("request_close_failed")
		}
	}
	s.release()
}
