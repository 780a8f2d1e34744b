package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/teleforge/smppgw/internal/config"
)

// Setup builds the process logger from the logging config and installs it
// as the slog default. Output is JSON, rotated by lumberjack when a file
// path is configured, optionally teed to stdout.
func Setup(cfg config.Logging) *slog.Logger {
	var sinks []io.Writer
	if cfg.FilePath != "" {
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB(),
			MaxBackups: cfg.MaxFiles,
		})
	}
	if cfg.ConsoleEnabled || len(sinks) == 0 {
		sinks = append(sinks, os.Stdout)
	}

	level := ParseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}
	base := slog.NewJSONHandler(io.MultiWriter(sinks...), opts)
	logger := slog.New(NewContextHandler(base))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config log_level string onto a slog level,
// defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
