package config

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// ProvideLogger builds the root slog.Logger: plain JSON under
// LOG_FORMAT=json for shipped production logs, otherwise colorized console
// output via lmittmann/tint (whether or not stdout is a terminal). The fx
// graph hands this logger to constructors that take one; the registry and
// the command bus logging middleware log through slog's package-level
// default instead.
func ProvideLogger() *slog.Logger {
	if os.Getenv("LOG_FORMAT") == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
}
