package runtime

// Event is a request or network lifecycle event: a name, the network and
// request it concerns, and optional fields.
type Event struct {
	Name    string
	Network string
	Request string
	Fields  map[string]any
}

// EventPublisher receives runtime events. Publish is called on pipeline
// goroutines and must be fast and must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Event names.
const (
	EventRequestCreated  = "request_created"
	EventRequestClosed   = "request_closed"
	EventInferStart      = "infer_start"
	EventInferDone       = "infer_done"
	EventCancelRequested = "cancel_requested"
	EventNetworkLoaded   = "network_loaded"
	EventNetworkClosed   = "network_closed"
)
