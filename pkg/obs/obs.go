// Package obs sets up process-wide structured logging. Every log line
// carries the service name and a boot id so restarts are distinguishable
// when tailing aggregated output.
package obs

import (
	"log/slog"
	"os"
	"time"
)

// Init installs the default slog logger. format is "json" or "text".
func Init(service, level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	switch format {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	bootID := service + "#" + time.Now().Format("20060102_150405.000000")
	slog.SetDefault(slog.New(h).With(
		slog.String("service", service),
		slog.String("boot_id", bootID),
		slog.Int("pid", os.Getpid()),
	))
}

// Logger returns the default logger tagged with a component attr.
func Logger(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unknown values.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
