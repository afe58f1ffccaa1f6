// Package job defines the job entity, its closed type and state
// enumerations, and the store interface the claim protocol runs on.
//
// # Lifecycle
//
//	pending ─claim─▶ pending (assigned) ─agent─▶ running ─agent─▶ finished | failed
//	                 pending (assigned) ─rollback─▶ pending
//
// Assignment (WorkerID, DeviceUDID) and State are independent fields. A
// claim writes only the assignment; the executing agent reports state
// changes through Store.UpdateJobState. Terminal states (finished, failed)
// are never claimed again.
//
// # Encoding
//
// Type and State have exactly one text encoding ("run_app", "pending", …).
// Decoding any other value fails with ErrUnknownType or ErrUnknownState.
package job
