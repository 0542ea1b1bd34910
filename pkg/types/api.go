package types

// TensorData is a tensor on the wire: precision name, dims and row-major values.
type TensorData struct {
	// Element precision (U8, I32, FP16, FP32). Optional on input; defaults to the port precision.
	// example: FP32
	Precision string `json:"precision,omitempty" example:"FP32"`
	// Dimensions. Optional on input for statically shaped ports.
	// example: [1,3]
	Shape []int `json:"shape,omitempty" example:"[1,3]"`
	// Row-major values. Integer precisions round toward zero and saturate.
	// example: [1,2,3]
	Data []float64 `json:"data" example:"[1,2,3]"`
}

// PreprocessSpec requests resize and/or color conversion of a U8 image input.
type PreprocessSpec struct {
	// Resize algorithm: none, bilinear or nearest.
	// example: bilinear
	Resize string `json:"resize,omitempty" example:"bilinear"`
	// Channel order of the supplied image: raw, bgr or rgb.
	// example: rgb
	Color string `json:"color,omitempty" example:"rgb"`
}

// InferRequest represents an inference request payload.
type InferRequest struct {
	// Optional network name. If empty, the server default is used.
	// example: add_relu
	Network string `json:"network,omitempty" example:"add_relu"`
	// Input tensors by parameter name. Every network input must be present.
	Inputs map[string]TensorData `json:"inputs"`
	// Optional subset of outputs to return; all outputs when empty.
	// example: ["out"]
	Outputs []string `json:"outputs,omitempty" example:"[\"out\"]"`
	// Optional batch size for networks loaded with dynamic batch.
	// example: 2
	Batch int `json:"batch,omitempty" example:"2"`
	// Optional per-input image preprocessing.
	Preprocess map[string]PreprocessSpec `json:"preprocess,omitempty"`
}

// PerfEntry is one pipeline stage duration of the last inference.
type PerfEntry struct {
	// Stage name.
	// example: 3. execution time
	Stage string `json:"stage" example:"3. execution time"`
	// Duration in microseconds.
	// example: 120
	Micros int64 `json:"us" example:"120"`
}

// InferResponse is returned by POST /infer and embedded in finished async operations.
type InferResponse struct {
	// Network that served the request.
	// example: add_relu
	Network string `json:"network" example:"add_relu"`
	// Name of the inference request that ran it.
	// example: add_relu_Req1
	Request string `json:"request" example:"add_relu_Req1"`
	// Output tensors by result name.
	Outputs map[string]TensorData `json:"outputs"`
	// Per-stage durations in pipeline order.
	Perf []PerfEntry `json:"perf"`
}

// StartAsyncResponse is returned by POST /infer/async.
type StartAsyncResponse struct {
	// Operation identifier to poll.
	// example: 0b7c4f5e-8f7a-4f55-9f77-3c2b6a1d9e10
	ID string `json:"id" example:"0b7c4f5e-8f7a-4f55-9f77-3c2b6a1d9e10"`
}

// AsyncStatus describes an async inference operation.
type AsyncStatus struct {
	// Operation identifier.
	ID string `json:"id"`
	// Network the operation targets.
	// example: add_relu
	Network string `json:"network" example:"add_relu"`
	// One of queued, running, ok, cancelled, failed.
	// example: running
	Status string `json:"status" example:"running"`
	// Error message for failed operations.
	Error string `json:"error,omitempty"`
	// Result of a successful operation.
	Result *InferResponse `json:"result,omitempty"`
	// Creation time (unix seconds).
	CreatedUnix int64 `json:"created_unix"`
}

// NetworksResponse wraps the list of networks returned by GET /networks.
type NetworksResponse struct {
	// Networks found in the graphs directory.
	Networks []NetworkInfo `json:"networks"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// InstanceStatus summarizes a loaded network for /status.
type InstanceStatus struct {
	// Network name.
	// example: add_relu
	Network string `json:"network" example:"add_relu"`
	// Device the network is compiled for.
	// example: REFERENCE
	Device string `json:"device,omitempty" example:"REFERENCE"`
	// Current lifecycle state (loading, ready, draining, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last time this network served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Requests waiting for admission.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Requests currently executing.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Parallel inference slots.
	// example: 4
	Streams int `json:"streams" example:"4"`
	// Inference requests alive on the network, pooled or in use.
	// example: 2
	ActiveRequests int64 `json:"active_requests" example:"2"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded networks, least recently used first.
	Instances []InstanceStatus `json:"instances"`
	// Overall manager state (e.g., loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last error observed by the manager (if any).
	Error string `json:"error,omitempty"`
	// Maximum number of loaded networks.
	// example: 4
	CacheSize int `json:"cache_size" example:"4"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of networks evicted from the cache.
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Total number of network loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Number of networks currently loading.
	// example: 1
	WarmupsInProgress int `json:"warmups_in_progress" example:"1"`
	// Number of networks currently draining (unload in progress).
	// example: 1
	DrainingCount int `json:"draining_count" example:"1"`
	// Async operations not yet finished.
	// example: 3
	PendingOps int `json:"pending_ops" example:"3"`
}
