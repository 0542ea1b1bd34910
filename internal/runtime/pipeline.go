package runtime

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"inferd/internal/backend"
	"inferd/internal/convert"
	"inferd/internal/status"
	"inferd/internal/tensor"
)

type stageFunc func(ctx context.Context) error

// run executes the five stages in order. The context is checked before each
// stage; a cancelled context ends the episode at that checkpoint.
func (r *Request) run(ctx context.Context) error {
	prog := r.net.program
	var inputs, outputs []backend.Tensor

	stages := [numStages]stageFunc{
		StagePreprocess: func(ctx context.Context) (err error) {
			inputs, outputs, err = r.preprocess(ctx)
			return err
		},
		StageTransferIn: func(ctx context.Context) error {
			if tr, ok := prog.(backend.Transferer); ok {
				return status.Wrap(status.ExecutionFailed, tr.TransferIn(ctx, inputs), "transfer in")
			}
			return nil
		},
		StageExecute: func(ctx context.Context) error {
			err := prog.Call(ctx, outputs, inputs)
			if err == nil || (isCancellation(err) && ctx.Err() != nil) {
				return err
			}
			return status.Wrap(status.ExecutionFailed, err, "execute "+r.net.name)
		},
		StageTransferOut: func(ctx context.Context) error {
			if tr, ok := prog.(backend.Transferer); ok {
				return status.Wrap(status.ExecutionFailed, tr.TransferOut(ctx, outputs), "transfer out")
			}
			return nil
		},
		StagePostprocess: func(ctx context.Context) error {
			return r.postprocess(ctx, outputs)
		},
	}
	for s, fn := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := fn(ctx)
		r.record(Stage(s), time.Since(start))
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Request) record(s Stage, d time.Duration) {
	r.mu.Lock()
	r.perf[s] = d
	r.mu.Unlock()
	stageDuration.WithLabelValues(r.net.name, s.Label()).Observe(d.Seconds())
}

// preprocess applies image preprocessing, converts inputs whose precision
// differs from the compiled one, and creates the backend tensors: views over
// the network buffers for inputs, empty placeholders for outputs.
func (r *Request) preprocess(ctx context.Context) (inputs, outputs []backend.Tensor, err error) {
	jobs, dims, err := r.bind.prepareInputs(r.net.cfg.ColorFormat)
	if err != nil {
		return nil, nil, err
	}
	if err := convert.ConvertAll(ctx, jobs); err != nil {
		return nil, nil, err
	}
	prog := r.net.program
	inputs = make([]backend.Tensor, len(r.bind.inputs))
	for i, b := range r.bind.inputs {
		t, err := prog.CreateTensor(
			backend.WithPrecision(b.port.NetworkPrecision),
			backend.WithShape(dims[i]),
			backend.WithMemory(b.network.Bytes()),
		)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "input %s", b.port.Name)
		}
		inputs[i] = t
	}
	outputs = make([]backend.Tensor, len(r.bind.outputs))
	for i, b := range r.bind.outputs {
		t, err := prog.CreateTensor(backend.WithPrecision(b.port.NetworkPrecision))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "output %s", b.port.Name)
		}
		outputs[i] = t
	}
	return inputs, outputs, nil
}

// postprocess materializes every output with the shape the backend produced,
// copies the backend data into the network buffer and converts it into the
// user buffer when the precisions differ.
func (r *Request) postprocess(ctx context.Context, outputs []backend.Tensor) error {
	var jobs []convert.Job
	for i, b := range r.bind.outputs {
		out := outputs[i]
		dims, ok := out.Shape()
		if !ok {
			return status.Named(status.ShapeNotResolved, b.port.Name, "backend did not produce a shape")
		}
		if out.Precision() != b.port.NetworkPrecision {
			return status.Named(status.ExecutionFailed, b.port.Name, "backend produced %s, compiled precision is %s", out.Precision(), b.port.NetworkPrecision)
		}
		b.produced = dims
		if err := r.bind.materialize(b, dims); err != nil {
			return err
		}
		if err := out.Read(b.network.Bytes()); err != nil {
			return status.Wrap(status.ExecutionFailed, err, "read output "+b.port.Name)
		}
		if b.network.Ownership() != tensor.Aliased {
			jobs = append(jobs, convert.Job{Src: b.network, Dst: b.user})
		}
	}
	return convert.ConvertAll(ctx, jobs)
}
