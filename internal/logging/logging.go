package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup installs the default slog logger: JSON lines to stdout, plus a
// rotating file under dir when dir is non-empty. The file sink keeps
// request logs around across restarts the way the rest of the service
// expects; rotation bounds disk usage.
func Setup(level, dir, filename string) {
	var sinks []io.Writer
	sinks = append(sinks, os.Stdout)

	if dir != "" {
		_ = os.MkdirAll(dir, 0755)
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   filepath.Join(dir, filename),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}

	handler := slog.NewJSONHandler(io.MultiWriter(sinks...), &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps the configured level name to a slog level,
// defaulting to info on unknown values.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
