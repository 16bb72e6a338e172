package commandbus

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware emits a structured log line around every dispatch:
// command type, outcome, and duration. Grounded on the core's requirement
// that "the logger middleware emits structured events for observability".
func LoggingMiddleware(next Handler) Handler {
	return func(ctx context.Context, cmd any) error {
		start := time.Now()
		err := next(ctx, cmd)
		elapsed := time.Since(start)

		if err != nil {
			slog.Error("command dispatch failed",
				"command", commandName(cmd),
				"elapsed", elapsed,
				"error", err,
			)
			return err
		}

		slog.Debug("command dispatched",
			"command", commandName(cmd),
			"elapsed", elapsed,
		)
		return nil
	}
}

func commandName(cmd any) string {
	type named interface{ CommandName() string }
	if n, ok := cmd.(named); ok {
		return n.CommandName()
	}
	return "unknown"
}
