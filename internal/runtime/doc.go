// Package runtime is the inference request core: executable networks,
// per-request binding tables and the request state machine.
//
// A Network is compiled once and shared. Each Request owns its bindings and
// runs a strictly sequential pipeline per episode:
//
//	Preprocess -> DeviceTransferIn -> Execute -> DeviceTransferOut -> Postprocess
//
// Episodes run synchronously with Infer or on the network's executor with
// StartAsync. Cancellation is cooperative: the request checks its context
// between stages and hands it to the backend, which may or may not poll it.
//
// States:
//
//	Idle --Infer/StartAsync--> Running --ok--> Completed
//	                           Running --error--> Failed
//	                           Running --Cancel--> CancelRequested --checkpoint--> Cancelled
//
// Any mutating call on a Completed, Failed or Cancelled request first returns
// it to Idle.
package runtime
