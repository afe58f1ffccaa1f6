// Package backend hands pending jobs to execution agents ("workers") that
// drive specific target devices. It guarantees that a job is never claimed
// by two agents at once and that a claimed job can actually run on the
// claiming device.
//
// The root package holds the shared entity timestamps, sentinel errors,
// configuration and the [Dispatcher], which carries the store and logger.
// The claim protocol itself lives in the engine package:
//
//	d, err := backend.New(
//	    backend.WithStore(memory.New()),
//	    backend.WithMaxClaimAttempts(64),
//	)
//	eng, err := engine.Build(d)
//	claim, err := eng.ClaimJob(ctx, workerID, "00008030-001A2B3C")
//
// # Architecture
//
// Each entity (job, worker, device, account) defines its own store
// interface. The composite store.Store composes them all and every backend
// (memory, mongo, postgres, bun, redis, natskv) implements it. The only
// serialization primitive the protocol relies on is the backend's atomic
// conditional claim.
//
// Job and worker identities use TypeID: type-prefixed, K-sortable,
// UUIDv7-based identifiers. Devices are keyed by udid and accounts by their
// unique identifier.
package backend
