// Package api exposes the engine over HTTP using chi.
//
// The claim route keeps the path agents already poll:
//
//	GET /jobs/getandsetworker/{workerId}/device/{udid}
//
// It answers 200 with the job, 204 when no job is available, 404 when the
// worker or device is unknown and 400 for a malformed worker ID. The
// remaining routes register and inspect workers, devices, accounts and
// jobs. Errors are JSON objects of the form {"message": "..."}.
package api
