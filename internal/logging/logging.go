// Package logging builds the two loggers the service runs with: the console
// logger installed as the slog default, and the operator logger that
// receives attempt histories and alerts.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nikhilbhutani/factrouter/internal/config"
)

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewHandler returns a tint handler for "text" and a JSON handler otherwise.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	if format == "text" {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// Setup installs the console logger as the slog default and returns it.
func Setup(cfg config.LogConfig) *slog.Logger {
	level, err := ParseLevel(cfg.Level)
	logger := slog.New(NewHandler(os.Stdout, cfg.Format, level))
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("falling back to info level", "error", err)
	}
	return logger
}

// Operator returns the operator-only logger. It always writes JSON; with a
// path it goes to a rotating file, otherwise to stderr. The returned closer
// flushes and closes the file.
func Operator(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	if cfg.OperatorPath == "" {
		return newOperatorLogger(os.Stderr), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.OperatorPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create operator log dir: %w", err)
	}
	w := &lumberjack.Logger{
		Filename:   cfg.OperatorPath,
		MaxSize:    cfg.OperatorMaxSizeMB,
		MaxBackups: cfg.OperatorMaxBackups,
		Compress:   true,
	}
	return newOperatorLogger(w), w, nil
}

func newOperatorLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("channel", "operator")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
