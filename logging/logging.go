// Package logging builds the process logger: human-readable text on stderr,
// plus rotated JSON lines in a file when one is configured.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level      string // debug, info, warn, error (default info)
	File       string // optional JSON log file, rotated by size
	MaxSizeMB  int    // rotate after this many megabytes (default 20)
	MaxBackups int    // rotated files to keep (default 5)
	Stderr     io.Writer
}

// Logger is a slog.Logger bundled with the file it may write to.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New returns a logger for opts. Close releases the log file, if any.
func New(opts Options) *Logger {
	level, ok := ParseLevel(opts.Level)
	if !ok {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	text := slog.NewTextHandler(stderr, handlerOpts)
	if opts.File == "" {
		return &Logger{Logger: slog.New(text)}
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 20
	}
	backups := opts.MaxBackups
	if backups <= 0 {
		backups = 5
	}
	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: backups,
		Compress:   true,
	}
	handler := slogmulti.Fanout(text, slog.NewJSONHandler(file, handlerOpts))
	return &Logger{Logger: slog.New(handler), closer: file}
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
