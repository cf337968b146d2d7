package logging

import (
	"io"
	"log/slog"
	"os"
)

// ParseLevel maps LOG_LEVEL values to a slog level. Unknown values
// fall back to def.
func ParseLevel(l string, def slog.Level) slog.Level {
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return def
}

// Init installs a text logger on stderr as the process default.
func Init(level slog.Level) *slog.Logger {
	return InitWriter(os.Stderr, level)
}

func InitWriter(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
	return logger
}
