package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"inferd/internal/runtime"
	"inferd/internal/status"
	"inferd/pkg/types"
)

// Async operation statuses.
const (
	OpQueued    = "queued"
	OpRunning   = "running"
	OpOK        = "ok"
	OpCancelled = "cancelled"
	OpFailed    = "failed"
)

type operation struct {
	id       string
	network  string
	created  time.Time
	status   string
	cancel   context.CancelFunc
	done     chan struct{}
	result   *types.InferResponse
	err      error
	finished time.Time
}

// StartAsync admits an inference that runs in the background and returns its
// operation ID. The operation outlives ctx; use CancelOp to stop it.
func (m *Manager) StartAsync(ctx context.Context, in types.InferRequest) (string, error) {
	name, err := m.resolve(in.Network)
	if err != nil {
		return "", err
	}
	if _, ok := m.getGraph(name); !ok {
		return "", ErrNetworkNotFound(name)
	}
	in.Network = name
	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	op := &operation{
		id:      uuid.NewString(),
		network: name,
		created: time.Now(),
		status:  OpQueued,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.mu.Lock()
	m.sweepOpsLocked(op.created)
	m.ops[op.id] = op
	m.opsWG.Add(1)
	m.mu.Unlock()
	m.publish(EventOpStart, name, map[string]any{"op": op.id})

	go func() {
		defer m.opsWG.Done()
		defer cancel()
		resp, err := m.runAsync(opCtx, op, in)
		st := OpOK
		switch {
		case err == nil:
		case status.IsCancelled(err) || errors.Is(err, context.Canceled):
			st = OpCancelled
		default:
			st = OpFailed
		}
		m.mu.Lock()
		op.status = st
		op.err = err
		if err == nil {
			op.result = &resp
		}
		op.finished = time.Now()
		close(op.done)
		m.mu.Unlock()
		fields := map[string]any{"op": op.id, "status": st}
		if err != nil {
			fields["error"] = err.Error()
		}
		m.publish(EventOpDone, name, fields)
	}()
	return op.id, nil
}

// runAsync drives the request through StartAsync and Wait; ctx cancellation
// is forwarded to Request.Cancel.
func (m *Manager) runAsync(ctx context.Context, op *operation, in types.InferRequest) (types.InferResponse, error) {
	s, err := m.open(ctx, in)
	if err != nil {
		return types.InferResponse{}, err
	}
	defer s.close()
	m.mu.Lock()
	op.status = OpRunning
	m.mu.Unlock()

	r := s.req
	err = r.SetCompletionCallback(func(r *runtime.Request, st runtime.Status, err error) {
		zlog.Debug().Str("op", op.id).Str("request", r.Name()).Str("status", st.String()).Msg("async_complete")
	})
	if err != nil {
		return types.InferResponse{}, err
	}
	if err := r.StartAsync(); err != nil {
		return types.InferResponse{}, err
	}
	stop := context.AfterFunc(ctx, func() { _ = r.Cancel() })
	st := r.Wait(runtime.WaitResultReady)
	stop()
	_ = r.SetCompletionCallback(nil)
	if st != runtime.StatusOK {
		if err := r.LastError(); err != nil {
			return types.InferResponse{}, err
		}
		return types.InferResponse{}, status.Newf(status.ExecutionFailed, "request %s ended with %s", r.Name(), st)
	}
	return s.collect(in.Outputs)
}

// Poll reports an operation. A positive wait blocks up to that long for it to
// finish.
func (m *Manager) Poll(id string, wait time.Duration) (types.AsyncStatus, error) {
	m.mu.RLock()
	op, ok := m.ops[id]
	m.mu.RUnlock()
	if !ok {
		return types.AsyncStatus{}, opNotFoundError{id: id}
	}
	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-op.done:
		case <-t.C:
		}
		t.Stop()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := types.AsyncStatus{
		ID:          op.id,
		Network:     op.network,
		Status:      op.status,
		Result:      op.result,
		CreatedUnix: op.created.Unix(),
	}
	if op.err != nil {
		out.Error = op.err.Error()
	}
	return out, nil
}

// CancelOp requests cancellation of a pending or running operation.
func (m *Manager) CancelOp(id string) error {
	m.mu.RLock()
	op, ok := m.ops[id]
	finished := ok && !op.finished.IsZero()
	m.mu.RUnlock()
	if !ok {
		return opNotFoundError{id: id}
	}
	if finished {
		return status.Named(status.NotStarted, id, "operation already finished")
	}
	op.cancel()
	m.publish(EventOpCancel, op.network, map[string]any{"op": id})
	return nil
}

// sweepOpsLocked forgets operations that finished more than opTTL ago.
func (m *Manager) sweepOpsLocked(now time.Time) {
	for id, op := range m.ops {
		if !op.finished.IsZero() && now.Sub(op.finished) > m.opTTL {
			delete(m.ops, id)
		}
	}
}

func (m *Manager) pendingOps() int {
	n := 0
	for _, op := range m.ops {
		if op.finished.IsZero() {
			n++
		}
	}
	return n
}
