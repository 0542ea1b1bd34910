package manager

import (
	"time"

	"inferd/internal/runtime"
)

// onEvict is the LRU eviction callback. It runs with m.mu held, inside the
// cache call that evicted the entry.
func (m *Manager) onEvict(key, value interface{}) {
	inst := value.(*Instance)
	if inst.State == StateError || !m.markDrainingLocked(inst) {
		return
	}
	m.evictionsTotal++
	zlog.Info().Str("network", inst.Name).Msg("evicted")
	m.retiring.Add(1)
	go func() {
		defer m.retiring.Done()
		m.publish(EventEvicted, inst.Name, nil)
		m.retire(inst, "evicted")
	}()
}

// retire waits for queued and in-flight work on a draining instance, cancels
// what is left after the drain timeout, then closes its requests and network.
func (m *Manager) retire(inst *Instance, reason string) {
	<-inst.ready
	m.mu.Lock()
	m.draining[inst] = struct{}{}
	m.mu.Unlock()
	m.publish(EventUnloadStart, inst.Name, map[string]any{"reason": reason})

	deadline := time.Now().Add(m.drainTimeout)
	timedOut := false
	for {
		m.mu.RLock()
		qlen := len(inst.queueCh)
		inflight := len(inst.genCh)
		m.mu.RUnlock()
		if inflight == 0 && qlen == 0 {
			break
		}
		if !timedOut && time.Now().After(deadline) {
			zlog.Warn().Str("network", inst.Name).Int("inflight", inflight).Int("queue", qlen).Msg("unload_timeout")
			m.publish(EventUnloadTimeout, inst.Name, map[string]any{"inflight": inflight, "queue": qlen})
			timedOut = true
		}
		// Requests admitted but not yet started ignore Cancel, so repeat it.
		if timedOut {
			m.cancelInflight(inst)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if inst.net != nil {
		closePool(inst.pool)
		_ = inst.net.Close()
	}
	m.mu.Lock()
	delete(m.draining, inst)
	m.mu.Unlock()
	zlog.Info().Str("network", inst.Name).Str("reason", reason).Msg("unload_done")
	m.publish(EventUnloadDone, inst.Name, map[string]any{"reason": reason})
}

func (m *Manager) cancelInflight(inst *Instance) {
	m.mu.RLock()
	reqs := make([]*runtime.Request, 0, len(inst.inflight))
	for r := range inst.inflight {
		reqs = append(reqs, r)
	}
	m.mu.RUnlock()
	for _, r := range reqs {
		_ = r.Cancel()
	}
}

func closePool(pool chan *runtime.Request) {
	for {
		select {
		case r := <-pool:
			_ = r.Close()
		default:
			return
		}
	}
}
