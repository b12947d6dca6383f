// Package logging provides the process-wide diagnostic logger.
//
// Diagnostics always go to stderr (and optionally a log file), never to
// stdout, which is reserved for the result envelope.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Options configures InitLogger.
type Options struct {
	Verbose bool      // Debug level instead of Warn
	File    string    // Optional log file mirrored alongside stderr
	Writer  io.Writer // Destination, defaults to os.Stderr
}

var (
	mu     sync.RWMutex
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	prefix string
	file   *os.File
)

// InitLogger configures the global logger and returns it
func InitLogger(opts Options) (*slog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		if file != nil {
			_ = file.Close()
		}
		file = f
		w = io.MultiWriter(w, f)
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}

// Logger returns the current global logger
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetPrefix sets a prefix attached to every record (e.g. "PID:1234")
func SetPrefix(p string) {
	mu.Lock()
	defer mu.Unlock()
	prefix = p
}

// Close releases the log file if one is open
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// Debug logs a formatted debug message
func Debug(format string, args ...any) {
	log(slog.LevelDebug, format, args...)
}

// Info logs a formatted info message
func Info(format string, args ...any) {
	log(slog.LevelInfo, format, args...)
}

// Warn logs a formatted warning
func Warn(format string, args ...any) {
	log(slog.LevelWarn, format, args...)
}

// Error logs a formatted error
func Error(format string, args ...any) {
	log(slog.LevelError, format, args...)
}

func log(level slog.Level, format string, args ...any) {
	mu.RLock()
	l, p := logger, prefix
	mu.RUnlock()

	msg := fmt.Sprintf(format, args...)
	if p != "" {
		l.Log(context.Background(), level, msg, "prefix", p)
		return
	}
	l.Log(context.Background(), level, msg)
}
