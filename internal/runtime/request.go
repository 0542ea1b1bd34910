package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"inferd/internal/preprocess"
	"inferd/internal/status"
	"inferd/internal/tensor"
)

// CompletionCallback observes the end of an async episode.
type CompletionCallback func(r *Request, st Status, err error)

// Request is one inference request: a binding table plus the state machine
// that drives the five pipeline stages over it.
//
// Binding calls are rejected with RequestBusy while an episode is in flight;
// the pipeline therefore owns the bindings exclusively while it runs.
//
// The completion callback runs on the worker goroutine after the terminal
// state is recorded and before Wait callers are released. Until it returns
// the episode still counts as in flight: Infer, StartAsync and binding calls
// fail with RequestBusy, while State, LastError, GetPerformanceCounts and
// Wait(WaitStatusOnly) answer normally. A blocking Wait from inside the
// callback deadlocks.
type Request struct {
	net  *Network
	name string

	mu         sync.Mutex
	state      State
	bind       bindingTable
	perf       PerfRecord
	lastErr    error
	lastStatus Status
	done       chan struct{}
	cancel     context.CancelFunc
	episode    uint64
	inCallback bool
	callback   CompletionCallback
	closed     bool
}

func (r *Request) Name() string      { return r.name }
func (r *Request) Network() *Network { return r.net }

// State returns the current state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastError returns the failure of the most recent episode, an InferCancelled
// error if it was cancelled, or nil.
func (r *Request) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// checkNetwork enforces that the network outlives its requests.
func (r *Request) checkNetwork() {
	if r.net.closed.Load() {
		panic(fmt.Sprintf("runtime: request %s used after network %s was closed", r.name, r.net.name))
	}
}

func (r *Request) busyLocked() bool {
	return r.state == StateRunning || r.state == StateCancelRequested || r.inCallback
}

// enterLocked is the prologue of every mutating call: it rejects busy or
// closed requests and moves a finished episode back to Idle.
func (r *Request) enterLocked(op string) error {
	if r.closed {
		return status.Named(status.InvalidArgument, r.name, "%s on a closed request", op)
	}
	if r.busyLocked() {
		return status.Named(status.RequestBusy, r.name, "%s while %s", op, r.state)
	}
	if r.state.terminal() {
		r.state = StateIdle
	}
	return nil
}

// GetBlob returns the user buffer bound to name, allocating it when it is not
// materialized yet or its dims changed. Dynamic outputs fail with
// ShapeNotResolved until an inference produced their shape.
func (r *Request) GetBlob(name string) (*tensor.Buffer, error) {
	r.checkNetwork()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enterLocked("GetBlob"); err != nil {
		return nil, err
	}
	return r.bind.get(name)
}

// SetBlob binds a caller buffer. Its precision must equal the port's and its
// dims must fit the declared shape.
func (r *Request) SetBlob(name string, buf *tensor.Buffer) error {
	r.checkNetwork()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enterLocked("SetBlob"); err != nil {
		return err
	}
	return r.bind.set(name, buf)
}

// SetBlobWithPreprocess binds a U8 image that Preprocess resizes and/or
// color converts into the network input.
func (r *Request) SetBlobWithPreprocess(name string, buf *tensor.Buffer, info preprocess.Info) error {
	r.checkNetwork()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enterLocked("SetBlob"); err != nil {
		return err
	}
	return r.bind.setWithPreprocess(name, buf, info)
}

// SetShape sets the shape of a dynamic input for the following episodes.
func (r *Request) SetShape(name string, dims tensor.Shape) error {
	r.checkNetwork()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enterLocked("SetShape"); err != nil {
		return err
	}
	return r.bind.setShape(name, dims)
}

// SetBatch overrides dim 0 of every input. The network must have been
// loaded with Config.DynamicBatch.
func (r *Request) SetBatch(n int) error {
	r.checkNetwork()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enterLocked("SetBatch"); err != nil {
		return err
	}
	if !r.net.cfg.DynamicBatch {
		return status.Named(status.InvalidArgument, r.net.name, "dynamic batch is not enabled")
	}
	return r.bind.setBatch(n)
}

// SetCompletionCallback installs cb for the following StartAsync episodes.
// A nil cb removes it.
func (r *Request) SetCompletionCallback(cb CompletionCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enterLocked("SetCompletionCallback"); err != nil {
		return err
	}
	r.callback = cb
	return nil
}

// Infer runs the pipeline on the calling goroutine.
func (r *Request) Infer() error { return r.InferContext(context.Background()) }

// InferContext is Infer whose episode is cancelled when ctx ends.
func (r *Request) InferContext(ctx context.Context) error {
	r.checkNetwork()
	epCtx, ep, err := r.begin("Infer", false)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { r.cancelEpisode(ep) })
	runErr := r.run(epCtx)
	stop()
	_, err = r.finish(runErr, false)
	return err
}

// StartAsync schedules the pipeline on the network's executor and returns
// immediately.
func (r *Request) StartAsync() error {
	r.checkNetwork()
	ctx, _, err := r.begin("StartAsync", true)
	if err != nil {
		return err
	}
	accepted := r.net.exec.submit(ctx, func(admitErr error) {
		runErr := admitErr
		if runErr == nil {
			runErr = r.run(ctx)
		}
		r.finish(runErr, true)
	})
	if !accepted {
		_, err = r.finish(status.Named(status.NetworkClosed, r.net.name, "network is closing"), false)
		return err
	}
	return nil
}

func (r *Request) begin(op string, async bool) (context.Context, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enterLocked(op); err != nil {
		return nil, 0, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.state = StateRunning
	r.cancel = cancel
	r.done = make(chan struct{})
	r.episode++
	r.lastErr = nil
	zlog.Debug().Str("request", r.name).Bool("async", async).Msg("infer_start")
	r.net.cfg.Events.Publish(Event{Name: EventInferStart, Network: r.net.name, Request: r.name,
		Fields: map[string]any{"async": async}})
	return ctx, r.episode, nil
}

// finish records the outcome of an episode. For async episodes it runs the
// completion callback before releasing Wait callers.
func (r *Request) finish(runErr error, async bool) (Status, error) {
	r.mu.Lock()
	var (
		st  Status
		err error
	)
	switch {
	case runErr == nil:
		r.state, st = StateCompleted, StatusOK
	case r.state == StateCancelRequested && isCancellation(runErr):
		r.state, st = StateCancelled, StatusCancelled
		err = status.Named(status.InferCancelled, r.name, "inference cancelled")
	default:
		r.state, st = StateFailed, StatusFailed
		err = runErr
	}
	r.lastStatus, r.lastErr = st, err
	r.cancel()
	r.cancel = nil
	done := r.done
	cb := r.callback
	if !async {
		cb = nil
	}
	r.inCallback = cb != nil
	r.mu.Unlock()

	requestsTotal.WithLabelValues(r.net.name, st.String()).Inc()
	ev := zlog.Debug()
	if err != nil && st == StatusFailed {
		ev = zlog.Warn().Err(err)
	}
	ev.Str("request", r.name).Str("status", st.String()).Msg("infer_done")
	fields := map[string]any{"status": st.String()}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.net.cfg.Events.Publish(Event{Name: EventInferDone, Network: r.net.name, Request: r.name, Fields: fields})

	if cb != nil {
		r.invokeCallback(cb, st, err)
		r.mu.Lock()
		r.inCallback = false
		r.mu.Unlock()
	}
	close(done)
	return st, err
}

func (r *Request) invokeCallback(cb CompletionCallback, st Status, err error) {
	defer func() {
		if p := recover(); p != nil {
			zlog.Error().Str("request", r.name).Interface("panic", p).Msg("completion_callback_panic")
		}
	}()
	cb(r, st, err)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Cancel asks a running episode to stop at its next checkpoint. Cancellation
// is cooperative and best effort: a backend call that never polls its
// context runs to completion. Cancelling an idle request fails with
// NotStarted; cancelling twice is harmless.
func (r *Request) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelLocked()
}

func (r *Request) cancelLocked() error {
	switch {
	case r.closed:
		return status.Named(status.InvalidArgument, r.name, "Cancel on a closed request")
	case r.inCallback:
	case r.state == StateRunning:
		r.state = StateCancelRequested
		r.cancel()
		zlog.Debug().Str("request", r.name).Msg("cancel_requested")
		r.net.cfg.Events.Publish(Event{Name: EventCancelRequested, Network: r.net.name, Request: r.name})
		return nil
	case r.state == StateCancelRequested:
		return nil
	case r.state.terminal():
		r.state = StateIdle
	}
	return status.Named(status.NotStarted, r.name, "no inference in progress")
}

// cancelEpisode cancels only if episode ep is still running.
func (r *Request) cancelEpisode(ep uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.episode == ep && r.state == StateRunning && !r.inCallback {
		_ = r.cancelLocked()
	}
}

// outcomeLocked maps the current state to a Wait status.
func (r *Request) outcomeLocked() Status {
	if r.state == StateRunning || r.state == StateCancelRequested {
		return StatusResultNotReady
	}
	return r.lastStatus
}

// Wait observes the current episode. WaitStatusOnly polls, WaitResultReady
// (or any negative value) blocks until the episode ends, and a positive
// timeout blocks at most that long. A timed out Wait does not cancel. Wait
// never returns an error; read it with LastError.
func (r *Request) Wait(timeout time.Duration) Status {
	r.mu.Lock()
	if !r.busyLocked() {
		st := r.outcomeLocked()
		r.mu.Unlock()
		return st
	}
	if timeout == WaitStatusOnly {
		st := r.outcomeLocked()
		r.mu.Unlock()
		return st
	}
	done := r.done
	r.mu.Unlock()

	if timeout < 0 {
		<-done
	} else {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
			return StatusResultNotReady
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomeLocked()
}

// WaitContext blocks until the episode ends or ctx is done, in which case it
// reports StatusResultNotReady.
func (r *Request) WaitContext(ctx context.Context) Status {
	r.mu.Lock()
	if !r.busyLocked() {
		st := r.outcomeLocked()
		r.mu.Unlock()
		return st
	}
	done := r.done
	r.mu.Unlock()
	select {
	case <-done:
	case <-ctx.Done():
		return StatusResultNotReady
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomeLocked()
}

// GetPerformanceCounts returns the latest duration of each stage in stage order.
func (r *Request) GetPerformanceCounts() []PerfCounter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perf.counters()
}

// PerfCounts is GetPerformanceCounts keyed by stage name.
func (r *Request) PerfCounts() map[string]time.Duration {
	out := make(map[string]time.Duration, numStages)
	for _, c := range r.GetPerformanceCounts() {
		out[c.Name] = c.Duration
	}
	return out
}

// Close releases the request's owned buffers. It fails with RequestBusy while
// an episode is in flight and is a no-op when already closed.
func (r *Request) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if r.busyLocked() {
		return status.Named(status.RequestBusy, r.name, "Close while %s", r.state)
	}
	r.closed = true
	r.bind.release()
	r.net.requests.Add(-1)
	activeRequests.WithLabelValues(r.net.name).Dec()
	zlog.Debug().Str("request", r.name).Msg("request_closed")
	r.net.cfg.Events.Publish(Event{Name: EventRequestClosed, Network: r.net.name, Request: r.name})
	return nil
}
