package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs each claim and its outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		logger.Debug("claim started",
			slog.String("worker_id", c.WorkerID.String()),
			slog.String("device_udid", c.DeviceUDID),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("claim failed",
				slog.String("worker_id", c.WorkerID.String()),
				slog.String("device_udid", c.DeviceUDID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
			return err
		}

		attrs := []any{
			slog.String("worker_id", c.WorkerID.String()),
			slog.String("device_udid", c.DeviceUDID),
			slog.String("outcome", c.Outcome),
			slog.Int("attempts", c.Attempts),
			slog.Duration("elapsed", elapsed),
		}
		if !c.JobID.IsNil() {
			attrs = append(attrs, slog.String("job_id", c.JobID.String()))
		}
		logger.Info("claim completed", attrs...)
		return nil
	}
}
