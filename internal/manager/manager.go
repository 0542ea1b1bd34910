package manager

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"inferd/internal/backend"
	"inferd/internal/registry"
	"inferd/internal/runtime"
	"inferd/pkg/types"
)

type Manager struct {
	mu             sync.RWMutex
	state          State
	cur            string
	err            string
	registry       []registry.Entry
	graphs         map[string]*backend.Graph
	backends       *backend.Registry
	device         string
	defaultNetwork string
	runtimeCfg     runtime.Config
	precisions     map[string]Precisions
	publisher      runtime.EventPublisher

	// cache holds *Instance by network name, least recently used first.
	cache     *lru.Cache
	cacheSize int
	// draining holds instances removed from the cache and not yet closed.
	draining map[*Instance]struct{}
	retiring sync.WaitGroup

	ops   map[string]*operation
	opsWG sync.WaitGroup
	opTTL time.Duration

	// Queue config
	maxQueueDepth int
	maxWait       time.Duration
	drainTimeout  time.Duration

	loadsTotal     uint64
	evictionsTotal uint64
	startTime      time.Time
}

// New builds a manager over reg on the reference device.
func New(reg []registry.Entry, defaultNetwork string) *Manager {
	return NewWithConfig(ManagerConfig{
		Registry:       reg,
		DefaultNetwork: defaultNetwork,
	})
}

// Ready reports whether at least one network is loaded and serving and the
// last load did not fail.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateError {
		return false
	}
	for _, k := range m.cache.Keys() {
		if v, ok := m.cache.Peek(k); ok && v.(*Instance).State == StateReady {
			return true
		}
	}
	return false
}

// ListNetworks returns the registry contents.
func (m *Manager) ListNetworks() []types.NetworkInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.NetworkInfo, len(m.registry))
	for i, e := range m.registry {
		out[i] = e.Info
	}
	return out
}

// Close cancels pending async operations and drains every loaded network.
func (m *Manager) Close() error {
	m.mu.Lock()
	for _, op := range m.ops {
		op.cancel()
	}
	m.mu.Unlock()
	m.opsWG.Wait()

	m.mu.Lock()
	var insts []*Instance
	for _, k := range m.cache.Keys() {
		if v, ok := m.cache.Peek(k); ok {
			inst := v.(*Instance)
			m.markDrainingLocked(inst)
			insts = append(insts, inst)
		}
	}
	m.cache.Purge()
	m.cur = ""
	m.mu.Unlock()

	for _, inst := range insts {
		m.retire(inst, "shutdown")
	}
	m.retiring.Wait()
	return nil
}
