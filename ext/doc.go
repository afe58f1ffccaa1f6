// Package ext defines the extension system of the claim backend.
//
// Extensions are notified of claim lifecycle events and can react to them,
// for example by recording metrics or writing audit logs. Each lifecycle
// hook is a separate interface so extensions opt in only to the events they
// care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobClaimed(ctx context.Context, j *job.Job, attempts int) error {
//	    log.Printf("job %s claimed after %d attempts", j.ID, attempts)
//	    return nil
//	}
//
// # Job Hooks
//
//   - [JobCreated]: a job was persisted
//   - [JobStateChanged]: an agent reported a new lifecycle state
//
// # Claim Hooks
//
//   - [JobResumed]: a worker re-polled and got back its in-flight job
//   - [JobClaimed]: a job was atomically claimed and passed validation
//   - [ClaimRejected]: a claimed job was incompatible and rolled back
//   - [NoJobAvailable]: the candidate set was empty
//   - [ClaimExhausted]: the rollback loop hit the attempt cap
//
// # Other Hooks
//
//   - [Shutdown]: the server is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
