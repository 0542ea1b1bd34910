package manager

// Unload initiates a graceful drain of a network and removes it.
//   - Removes the instance from the cache and rejects new admissions.
//   - Waits up to drainTimeout for in-flight and queued requests to finish,
//     then cancels the stragglers and waits for them.
//   - Closes the pooled requests and the network.
func (m *Manager) Unload(name string) error {
	if name == "" {
		return ErrNetworkNotFound("(unspecified)")
	}
	m.mu.Lock()
	v, ok := m.cache.Peek(name)
	if !ok {
		m.mu.Unlock()
		return ErrNetworkNotFound(name)
	}
	inst := v.(*Instance)
	if !m.markDrainingLocked(inst) {
		m.mu.Unlock()
		return tooBusyError{network: name}
	}
	m.cache.Remove(name)
	if m.cur == name {
		m.cur = ""
	}
	m.mu.Unlock()

	m.retire(inst, "unload")
	return nil
}
