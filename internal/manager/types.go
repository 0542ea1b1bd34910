package manager

import (
	"time"

	"inferd/internal/runtime"
)

// State represents lifecycle state of the manager/instances.
type State string

const (
	StateReady    State = "ready"
	StateLoading  State = "loading"
	StateError    State = "error"
	StateDraining State = "draining"
)

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State   State
	Current string
	Err     string
}

// Instance is a loaded network plus its admission slots and a pool of idle
// inference requests.
type Instance struct {
	Name     string
	State    State
	LastUsed time.Time

	net *runtime.Network
	// ready is closed when loading ends, successfully or not.
	ready   chan struct{}
	loadErr error
	// drain is closed when the instance starts draining.
	drain chan struct{}

	// Queueing primitives, created once the network is loaded.
	genCh    chan struct{} // buffered: one slot per stream
	queueCh  chan struct{} // buffered: queue slots plus in-flight slots
	queueCap int
	// pool holds idle requests for reuse.
	pool chan *runtime.Request
	// inflight tracks requests currently bound to a caller, for cancellation
	// when a drain times out.
	inflight map[*runtime.Request]struct{}
}

func (inst *Instance) streams() int { return cap(inst.genCh) }

// attach installs the loaded network and sizes the admission channels.
func (inst *Instance) attach(net *runtime.Network) {
	streams := net.Config().Streams
	inst.net = net
	inst.genCh = make(chan struct{}, streams)
	inst.queueCh = make(chan struct{}, inst.queueCap+streams)
	inst.pool = make(chan *runtime.Request, streams)
}

// queued is the number of admitted callers still waiting for a stream.
func (inst *Instance) queued() int {
	if n := len(inst.queueCh) - len(inst.genCh); n > 0 {
		return n
	}
	return 0
}