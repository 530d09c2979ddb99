package internal

import (
	"io"
	"log/slog"
)

// NewLogger builds the service-wide slog logger. Development gets readable
// text output; every other environment emits JSON for log ingestion. The
// batch orchestrator and oracle providers all log through this one logger,
// so verification runs stay traceable by batch_id and sample_id attributes.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// parseLevel maps the LOG_LEVEL config value; unknown values get info.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
