// Package logging builds the structured loggers used across extbridge.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/odvcencio/extbridge/pkg/config"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the log
type Category string

const (
	CategoryRelay   Category = "relay"
	CategoryCloud   Category = "cloud"
	CategoryStorage Category = "storage"
	CategoryIPC     Category = "ipc"
	CategoryTabs    Category = "tabs"
	CategoryMenus   Category = "menus"
	CategoryConfig  Category = "config"
)

// ParseLevel maps a configured level onto zerolog's levels. Unknown values
// fall back to info.
func ParseLevel(level Level) zerolog.Level {
	switch Level(strings.ToLower(strings.TrimSpace(string(level)))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates the root logger writing to w.
func New(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		Level(ParseLevel(Level(cfg.Level))).
		With().
		Timestamp().
		Logger()
}

// NewWithErrorLog is New plus a copy of every error-level event appended to
// dir/errors.jsonl. The returned closer releases the file.
func NewWithErrorLog(cfg config.LoggingConfig, w io.Writer, dir string) (zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	errorFile, err := os.OpenFile(
		filepath.Join(dir, "errors.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0o644,
	)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open error log: %w", err)
	}

	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	multi := zerolog.MultiLevelWriter(w, &errorLevelWriter{w: errorFile})
	logger := zerolog.New(multi).
		Level(ParseLevel(Level(cfg.Level))).
		With().
		Timestamp().
		Logger()
	return logger, errorFile, nil
}

// For returns a child logger tagged with category.
func For(l zerolog.Logger, cat Category) zerolog.Logger {
	return l.With().Str("category", string(cat)).Logger()
}

// errorLevelWriter forwards only error-and-above events.
type errorLevelWriter struct {
	w io.Writer
}

func (e *errorLevelWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (e *errorLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.ErrorLevel {
		return len(p), nil
	}
	return e.w.Write(p)
}
