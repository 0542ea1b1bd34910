package manager

import (
	"time"

	"inferd/internal/backend"
	"inferd/internal/runtime"
)

// Helper: resolve an empty name to the default network.
func (m *Manager) resolve(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if m.defaultNetwork == "" {
		return "", ErrNetworkNotFound("(unspecified)")
	}
	return m.defaultNetwork, nil
}

// Helper: find a graph in the registry by network name.
func (m *Manager) getGraph(name string) (*backend.Graph, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.graphs[name]
	return g, ok
}

// networkConfig is the base runtime config plus the per-network precision
// overrides, publishing to the manager's event publisher.
func (m *Manager) networkConfig(name string) runtime.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.runtimeCfg
	if p, ok := m.precisions[name]; ok {
		cfg.InputPrecisions = p.Inputs
		cfg.OutputPrecisions = p.Outputs
	}
	cfg.Events = m.publisher
	return cfg
}

func newInstance(name string, maxQueueDepth int) *Instance {
	return &Instance{
		Name:     name,
		State:    StateLoading,
		LastUsed: time.Now(),
		ready:    make(chan struct{}),
		drain:    make(chan struct{}),
		inflight: make(map[*runtime.Request]struct{}),
		queueCap: maxQueueDepth,
	}
}

// markDrainingLocked moves inst to StateDraining once. Callers hold m.mu.
func (m *Manager) markDrainingLocked(inst *Instance) bool {
	if inst.State == StateDraining {
		return false
	}
	inst.State = StateDraining
	close(inst.drain)
	return true
}
