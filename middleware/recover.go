package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *Call, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("claim handler panicked",
					slog.String("worker_id", c.WorkerID.String()),
					slog.String("device_udid", c.DeviceUDID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in claim for device %s: %v", c.DeviceUDID, r)
			}
		}()
		return next(ctx)
	}
}
