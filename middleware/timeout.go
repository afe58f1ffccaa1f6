package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Timeout returns middleware that bounds each claim by d. A zero d makes it
// a pass-through. When the deadline passes between attempts the claim
// returns context.DeadlineExceeded.
func Timeout(logger *slog.Logger, d time.Duration) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		logger.Debug("claim timeout set",
			slog.String("device_udid", c.DeviceUDID),
			slog.Duration("timeout", d),
		)
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
