// Package logging builds the structured loggers shared by reeldeck components.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/liamwears/reeldeck/internal/config"
)

// Logger writes to a file or stream and owns the handle it opened
type Logger struct {
	*log.Logger
	file *os.File
}

// NewFile creates a logger writing to the configured log file.
// The terminal UI owns stdout, so interactive runs log here.
func NewFile(cfg *config.Config) (*Logger, error) {
	path := cfg.LogPath(time.Now())
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{Logger: New(f, cfg.Log.Level), file: f}, nil
}

// NewStderr creates a logger for one-shot CLI commands
func NewStderr(cfg *config.Config) *Logger {
	return &Logger{Logger: New(os.Stderr, cfg.Log.Level)}
}

// New creates a logger on w at the named level; unknown levels fall back to info
func New(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
		Prefix:          "reeldeck",
	})
}

// Discard returns a logger that drops everything, for tests
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
