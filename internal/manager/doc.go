// Package manager loads networks on demand and coordinates inference over
// them. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, Ready, ListNetworks, Close.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: Instance and Snapshot.
//   - errors.go: error types and helpers (IsTooBusy, IsNetworkNotFound, IsOpNotFound).
//   - helpers.go: name resolution and per-network runtime config.
//   - ensure.go: EnsureNetwork, single-flight loading into the LRU cache.
//   - admission.go: per-instance queueing and stream admission.
//   - evict.go: LRU eviction callback and the drain/close sequence.
//   - unload.go: explicit Unload.
//   - infer.go: synchronous Infer over pooled inference requests.
//   - ops.go: async operations (StartAsync, Poll, CancelOp).
//   - status_report.go: Status/Snapshot reporting.
//   - sanity.go: startup checks.
//
// A loaded network serves at most Streams inferences at once; further callers
// queue up to MaxQueueDepth deep and wait at most MaxWait before being turned
// away with a too-busy error.
package manager
