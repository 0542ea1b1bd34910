package runtime

import (
	"time"

	"inferd/internal/tensor"
)

// State is the lifecycle state of an inference request.
type State string

const (
	StateIdle            State = "idle"
	StateRunning         State = "running"
	StateCancelRequested State = "cancel_requested"
	StateCancelled       State = "cancelled"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// terminal reports whether the state ends an episode.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Status is what Wait observes.
type Status int

const (
	StatusOK Status = iota
	StatusResultNotReady
	StatusCancelled
	StatusFailed
	StatusNotStarted
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusResultNotReady:
		return "result_not_ready"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	case StatusNotStarted:
		return "not_started"
	}
	return "unknown"
}

// Wait timeouts with special meaning. Any other negative value also blocks.
const (
	WaitStatusOnly  time.Duration = 0
	WaitResultReady time.Duration = -1
)

// Port is the user-facing description of a network input or output.
type Port struct {
	Name string
	// Precision is what callers bind and read.
	Precision tensor.Precision
	// NetworkPrecision is what the compiled program consumes or produces.
	NetworkPrecision tensor.Precision
	Shape            tensor.PartialShape
	Layout           tensor.Layout
}
