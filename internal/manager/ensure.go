package manager

import (
	"context"
	"time"

	"inferd/internal/runtime"
)

// EnsureNetwork loads and compiles a network unless it is already loaded.
// An empty name selects the default network.
func (m *Manager) EnsureNetwork(ctx context.Context, name string) error {
	_, err := m.ensure(ctx, name)
	return err
}

// ensure returns a ready instance for name. Concurrent callers for the same
// network wait for a single load.
func (m *Manager) ensure(ctx context.Context, name string) (*Instance, error) {
	startTs := time.Now()
	name, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	for {
		m.mu.Lock()
		v, ok := m.cache.Get(name)
		if !ok {
			break
		}
		inst := v.(*Instance)
		switch inst.State {
		case StateReady:
			inst.LastUsed = time.Now()
			m.mu.Unlock()
			return inst, nil
		case StateLoading:
			ready := inst.ready
			m.mu.Unlock()
			select {
			case <-ready:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if inst.loadErr != nil {
				return nil, inst.loadErr
			}
		default:
			m.mu.Unlock()
			return nil, tooBusyError{network: name}
		}
	}

	// m.mu is held here.
	g, ok := m.graphs[name]
	if !ok {
		m.mu.Unlock()
		zlog.Warn().Str("network", name).Msg("ensure_network_not_found")
		m.publish(EventEnsureNotFound, name, nil)
		return nil, ErrNetworkNotFound(name)
	}
	inst := newInstance(name, m.maxQueueDepth)
	m.state = StateLoading
	m.err = ""
	m.cache.Add(name, inst)
	m.mu.Unlock()

	zlog.Info().Str("network", name).Str("device", m.device).Msg("ensure_start")
	m.publish(EventEnsureStart, name, map[string]any{"device": m.device})

	var net *runtime.Network
	b, err := m.backends.Get(m.device)
	if err != nil {
		err = ErrDependencyUnavailable("no backend for device " + m.device)
	} else {
		net, err = runtime.LoadNetwork(b, g, m.networkConfig(name))
	}

	m.mu.Lock()
	if err != nil {
		evicted := inst.State == StateDraining
		inst.State = StateError
		inst.loadErr = err
		m.state = StateError
		m.err = err.Error()
		if !evicted {
			m.cache.Remove(name)
		}
		close(inst.ready)
		m.mu.Unlock()
		zlog.Error().Err(err).Str("network", name).Msg("ensure_error")
		m.publish(EventEnsureError, name, map[string]any{"error": err.Error()})
		return nil, err
	}
	inst.attach(net)
	m.loadsTotal++
	m.state = StateReady
	m.err = ""
	evicted := inst.State == StateDraining
	if !evicted {
		inst.State = StateReady
		inst.LastUsed = time.Now()
		m.cur = name
	}
	close(inst.ready)
	m.mu.Unlock()

	if evicted {
		return nil, tooBusyError{network: name}
	}
	dur := time.Since(startTs)
	zlog.Info().Str("network", name).Dur("dur", dur).Msg("ensure_ready")
	m.publish(EventEnsureReady, name, map[string]any{"dur_ms": int(dur / time.Millisecond)})
	return inst, nil
}
