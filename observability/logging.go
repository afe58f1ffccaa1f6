package observability

import (
	"context"
	"log/slog"

	"github.com/DiOS-Analysis/Backend/ext"
	"github.com/DiOS-Analysis/Backend/id"
	"github.com/DiOS-Analysis/Backend/job"
)

var (
	_ ext.JobCreated      = (*LoggingExtension)(nil)
	_ ext.JobStateChanged = (*LoggingExtension)(nil)
	_ ext.ClaimRejected   = (*LoggingExtension)(nil)
	_ ext.ClaimExhausted  = (*LoggingExtension)(nil)
	_ ext.Shutdown        = (*LoggingExtension)(nil)
)

// LoggingExtension writes job and claim lifecycle events to a slog logger.
// Per-call claim results are logged by middleware.Logging.
type LoggingExtension struct {
	logger *slog.Logger
}

// NewLoggingExtension returns a LoggingExtension writing to logger, or to
// slog.Default when logger is nil.
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingExtension{logger: logger}
}

// Name implements ext.Extension.
func (l *LoggingExtension) Name() string { return "observability-logging" }

// OnJobCreated implements ext.JobCreated.
func (l *LoggingExtension) OnJobCreated(ctx context.Context, j *job.Job) error {
	l.logger.InfoContext(ctx, "job created",
		slog.String("job_id", j.ID.String()),
		slog.String("type", j.Type.String()),
	)
	return nil
}

// OnJobStateChanged implements ext.JobStateChanged.
func (l *LoggingExtension) OnJobStateChanged(ctx context.Context, jobID id.JobID, state job.State) error {
	l.logger.InfoContext(ctx, "job state changed",
		slog.String("job_id", jobID.String()),
		slog.String("state", state.String()),
	)
	return nil
}

// OnClaimRejected implements ext.ClaimRejected.
func (l *LoggingExtension) OnClaimRejected(ctx context.Context, j *job.Job, udid string) error {
	l.logger.DebugContext(ctx, "incompatible claim rolled back",
		slog.String("job_id", j.ID.String()),
		slog.String("device_udid", udid),
	)
	return nil
}

// OnClaimExhausted implements ext.ClaimExhausted.
func (l *LoggingExtension) OnClaimExhausted(ctx context.Context, workerID id.WorkerID, udid string, attempts int) error {
	l.logger.WarnContext(ctx, "claim attempt cap reached",
		slog.String("worker_id", workerID.String()),
		slog.String("device_udid", udid),
		slog.Int("attempts", attempts),
	)
	return nil
}

// OnShutdown implements ext.Shutdown.
func (l *LoggingExtension) OnShutdown(ctx context.Context) error {
	l.logger.InfoContext(ctx, "claim backend shutting down")
	return nil
}
