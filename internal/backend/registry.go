package backend

import (
	"sort"
	"strings"
	"sync"

	"inferd/internal/status"
)

// Registry maps device names to backends. Names are case-insensitive.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds b under device, replacing any previous entry.
func (r *Registry) Register(device string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[strings.ToUpper(device)] = b
}

// Get returns the backend for device or a NotFound error.
func (r *Registry) Get(device string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[strings.ToUpper(device)]
	if !ok {
		return nil, status.Named(status.NotFound, device, "no backend registered for device")
	}
	return b, nil
}

// Devices lists registered device names in sorted order.
func (r *Registry) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for k := range r.backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
