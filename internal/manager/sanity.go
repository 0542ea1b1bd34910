package manager

import (
	"inferd/internal/runtime"
)

// SanityReport describes the startup checks of the configured device and
// default network.
type SanityReport struct {
	Device         string   `json:"device"`
	BackendFound   bool     `json:"backend_found"`
	Devices        []string `json:"devices"`
	Networks       int      `json:"networks"`
	DefaultNetwork string   `json:"default_network,omitempty"`
	DefaultFound   bool     `json:"default_found"`
	Error          string   `json:"error,omitempty"`
}

// SanityCheck validates that the configured device has a backend and that the
// default network, if any, is registered. It does not mutate state and is safe
// to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := SanityReport{
		Device:         m.device,
		Devices:        m.backends.Devices(),
		Networks:       len(m.registry),
		DefaultNetwork: m.defaultNetwork,
	}
	if _, err := m.backends.Get(m.device); err == nil {
		r.BackendFound = true
	} else {
		r.Error = err.Error()
	}
	if m.defaultNetwork != "" {
		_, r.DefaultFound = m.graphs[m.defaultNetwork]
		if !r.DefaultFound && r.Error == "" {
			r.Error = "default network not in registry: " + m.defaultNetwork
		}
	}
	return r
}

// PreflightCheck is one named startup check.
type PreflightCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Preflight compiles every registered network on the configured device
// without caching it, reporting one check per network after the backend
// check.
func (m *Manager) Preflight() []PreflightCheck {
	rep := m.SanityCheck()
	checks := []PreflightCheck{{Name: "backend_registered", OK: rep.BackendFound}}
	if !rep.BackendFound {
		checks[0].Message = rep.Error
		return checks
	}
	b, _ := m.backends.Get(m.device)
	for _, e := range m.ListNetworks() {
		c := PreflightCheck{Name: "compile:" + e.Name, OK: true}
		g, _ := m.getGraph(e.Name)
		cfg := m.networkConfig(e.Name)
		cfg.Events = nil
		net, err := runtime.LoadNetwork(b, g, cfg)
		if err != nil {
			c.OK = false
			c.Message = err.Error()
		} else {
			_ = net.Close()
		}
		checks = append(checks, c)
	}
	return checks
}
