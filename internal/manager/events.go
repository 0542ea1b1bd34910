package manager

import "inferd/internal/runtime"

// Manager event names. Request events published by the runtime share the
// same publisher.
const (
	EventEnsureStart    = "ensure_start"
	EventEnsureReady    = "ensure_ready"
	EventEnsureError    = "ensure_error"
	EventEnsureNotFound = "ensure_network_not_found"
	EventEvicted        = "evicted"
	EventUnloadStart    = "unload_start"
	EventUnloadTimeout  = "unload_timeout"
	EventUnloadDone     = "unload_done"
	EventOpStart        = "op_start"
	EventOpCancel       = "op_cancel"
	EventOpDone         = "op_done"
)

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(runtime.Event) {}

// SetEventPublisher installs p for manager events and for the networks
// loaded afterwards. A nil p restores the default.
func (m *Manager) SetEventPublisher(p runtime.EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

func (m *Manager) publish(name, network string, fields map[string]any) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	p.Publish(runtime.Event{Name: name, Network: network, Fields: fields})
}
