package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
	Level:      slog.LevelInfo,
	TimeFormat: time.RFC3339,
}))

// Setup configures the global logger. format is "text" (colored, via tint) or "json".
func Setup(level, format string) {
	SetupWithWriter(os.Stderr, level, format)
}

// SetupWithWriter configures the global logger to write to w
func SetupWithWriter(w io.Writer, level, format string) {
	lvl := ParseLevel(level)

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
			NoColor:    w != os.Stderr && w != os.Stdout,
		})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Logger returns the configured logger
func Logger() *slog.Logger {
	return logger
}

func Debug(msg string, args ...any) { logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { logger.Warn(msg, args...) }
func Error(msg string, args ...any) { logger.Error(msg, args...) }

func DebugWithComponent(component, msg string, args ...any) {
	logger.With("component", component).Debug(msg, args...)
}

func InfoWithComponent(component, msg string, args ...any) {
	logger.With("component", component).Info(msg, args...)
}

func WarnWithComponent(component, msg string, args ...any) {
	logger.With("component", component).Warn(msg, args...)
}

func ErrorWithComponent(component, msg string, args ...any) {
	logger.With("component", component).Error(msg, args...)
}

// Logf logs a formatted message at info level
func Logf(format string, v ...interface{}) {
	logger.Info(fmt.Sprintf(format, v...))
}
