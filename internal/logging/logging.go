package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// New returns a slog.Logger with the provided level string (info,
// debug, warn, error). format may be "json" or "text".
func New(level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogJobStart logs the beginning of a solve job.
func LogJobStart(logger *slog.Logger, objectKey string) {
	logger.Info("job started", "object_key", objectKey)
}

// LogJobDone logs the terminal status of a solve job.
func LogJobDone(logger *slog.Logger, objectKey, status string, duration time.Duration, sources int) {
	logger.Info("job finished",
		"object_key", objectKey,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"sources", sources,
	)
}

// LogJobError logs a job that collapsed to the error status.
func LogJobError(logger *slog.Logger, objectKey string, duration time.Duration, err error) {
	logger.Error("job failed",
		"object_key", objectKey,
		"duration_ms", duration.Milliseconds(),
		"error", err.Error(),
	)
}

// LogToolStatus logs external tool detection.
func LogToolStatus(logger *slog.Logger, tool string, available bool, version, path string, err error) {
	if available {
		logger.Debug("tool detected", "tool", tool, "version", version, "path", path)
	} else {
		logger.Debug("tool not available", "tool", tool, "error", err)
	}
}
