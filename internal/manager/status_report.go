package manager

import (
	"time"

	"inferd/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Current: m.cur, Err: m.err}
}

// Status builds a detailed status response for /status. Cached instances are
// listed most recently used last, followed by the ones still draining.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		Error:          m.err,
		State:          string(m.state),
		CacheSize:      m.cacheSize,
		UptimeSeconds:  int64(now.Sub(m.startTime) / time.Second),
		ServerTimeUnix: now.Unix(),
		EvictionsTotal: m.evictionsTotal,
		LoadsTotal:     m.loadsTotal,
		PendingOps:     m.pendingOps(),
	}
	var insts []*Instance
	for _, k := range m.cache.Keys() {
		if v, ok := m.cache.Peek(k); ok {
			insts = append(insts, v.(*Instance))
		}
	}
	for inst := range m.draining {
		insts = append(insts, inst)
	}
	resp.Instances = make([]types.InstanceStatus, 0, len(insts))
	for _, inst := range insts {
		switch inst.State {
		case StateLoading:
			resp.WarmupsInProgress++
		case StateDraining:
			resp.DrainingCount++
		}
		is := types.InstanceStatus{
			Network:       inst.Name,
			Device:        m.device,
			State:         string(inst.State),
			LastUsed:      inst.LastUsed.Unix(),
			QueueLen:      inst.queued(),
			Inflight:      len(inst.genCh),
			MaxQueueDepth: inst.queueCap,
			Streams:       inst.streams(),
		}
		if inst.net != nil {
			is.Device = inst.net.Device()
			is.ActiveRequests = inst.net.ActiveRequests()
		}
		resp.Instances = append(resp.Instances, is)
	}
	return resp
}
