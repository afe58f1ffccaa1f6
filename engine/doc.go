// Package engine wires the claim backend together and provides the
// application-level API: the claim protocol plus the job, worker, device
// and account registration used by the HTTP layer.
//
// The package exists to break an import cycle: the root backend package
// defines Entity (imported by job, worker, device and account) and so
// cannot import those packages back. Engine sits above all entity packages
// and below the application layer.
//
// # Building an Engine
//
//	d, err := backend.New(
//	    backend.WithStore(pgStore),
//	    backend.WithMaxClaimAttempts(64),
//	)
//
//	eng, err := engine.Build(d,
//	    engine.WithExtension(observability.NewLoggingExtension(logger)),
//	    engine.WithMeterProvider(mp),
//	)
//
// # Claiming
//
//	claim, err := eng.ClaimJob(ctx, workerID, udid)
//	switch {
//	case errors.Is(err, backend.ErrNotFound):
//	    // unknown worker or device
//	case err != nil:
//	    // store failure
//	case claim.Outcome == engine.OutcomeNoJobAvailable:
//	    // poll again later
//	default:
//	    // claim.Job is assigned to (workerID, udid)
//	}
//
// A claim first looks for a job this pair already owns. Otherwise it
// repeatedly claims the newest candidate atomically, checks it with
// compat.IsCompatible and rolls incompatible jobs back, excluding them from
// the next attempt. The loop stops at Config.MaxClaimAttempts rejections.
//
// # Options
//
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware around each claim
//   - [WithTracerProvider]: set the OpenTelemetry tracer provider
//   - [WithMeterProvider]: set the OpenTelemetry meter provider
package engine
