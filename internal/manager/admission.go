package manager

import (
	"context"
	"time"
)

// beginInference reserves a queue slot and then one of the instance's
// stream slots. Returns a release func to be deferred.
func (m *Manager) beginInference(ctx context.Context, inst *Instance) (func(), error) {
	noop := func() {}
	m.mu.RLock()
	draining := inst.State == StateDraining
	m.mu.RUnlock()
	// If draining, reject new work to allow graceful shutdown/unload
	if draining {
		return noop, tooBusyError{network: inst.Name}
	}
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return noop, err
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case inst.queueCh <- struct{}{}:
		// reserved queue slot
	case <-inst.drain:
		return noop, tooBusyError{network: inst.Name}
	case <-ctx.Done():
		return noop, ctx.Err()
	case <-timer.C:
		return noop, tooBusyError{network: inst.Name}
	}

	// Wait to acquire a stream slot
	acquired := false
	defer func() {
		if !acquired {
			<-inst.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return noop, err
	}
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case inst.genCh <- struct{}{}:
		acquired = true
		m.mu.Lock()
		inst.LastUsed = time.Now()
		m.mu.Unlock()
		return func() { <-inst.genCh; <-inst.queueCh }, nil
	case <-inst.drain:
		return noop, tooBusyError{network: inst.Name}
	case <-ctx.Done():
		return noop, ctx.Err()
	case <-timer2.C:
		return noop, tooBusyError{network: inst.Name}
	}
}
