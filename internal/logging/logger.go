// Package logging is the structured logger diaglog installs behind mlog.
//
// It wraps log/slog. The default "text" format writes one line per record
// in the layout Serilog's file sink uses, which keeps uploaded logs readable
// by existing tooling:
//
//	2026-10-19 14:03:07.412 +02:00 [INF] [ME3TWEAKSCORE] Result from server for log upload: https://...
//
// The "json" format uses slog's JSON handler instead.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tinytelemetry/diaglog/internal/mlog"
)

// Log levels accepted by ParseLevel.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config selects where and how records are written.
type Config struct {
	// Path is the log file. Empty disables file output.
	Path string
	// Level is the minimum level name; unknown values mean INFO.
	Level string
	// Format is FormatText or FormatJSON.
	Format string
	// Console also writes records to stderr.
	Console bool
}

// Logger is a slog-backed logger with an optional log file.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	mu     sync.Mutex
	file   *os.File
}

// New builds a Logger from cfg. With neither a path nor console output it
// writes to stderr.
func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	var file *os.File

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if cfg.Console || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var w io.Writer = writers[0]
	if len(writers) > 1 {
		w = io.MultiWriter(writers...)
	}

	return &Logger{
		logger: slog.New(newHandler(w, cfg.Format, ParseLevel(cfg.Level))),
		file:   file,
	}, nil
}

// NewWithWriter builds a Logger writing to w. Close does not close w.
func NewWithWriter(w io.Writer, format, level string) *Logger {
	return &Logger{logger: slog.New(newHandler(w, format, ParseLevel(level)))}
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	if strings.EqualFold(format, FormatJSON) {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceLevelName,
		})
	}
	return newLineHandler(w, level)
}

// Log implements mlog.Logger.
func (l *Logger) Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	l.logger.Log(ctx, level, msg, args...)
}

// Sync flushes the log file to stable storage.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	return nil
}

// Close flushes and closes the log file. Later records written to the file
// are lost; records to stderr still appear.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync log file: %w", err)
		}
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		l.file = nil
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level. FATAL maps to
// mlog.LevelFatal. Unknown names mean INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn, "WARNING":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelFatal:
		return mlog.LevelFatal
	default:
		return slog.LevelInfo
	}
}

// ValidLevels returns the accepted level names.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal}
}

// ShortLevel returns the three-letter code Serilog prints for level.
func ShortLevel(level slog.Level) string {
	switch {
	case level >= mlog.LevelFatal:
		return "FTL"
	case level >= slog.LevelError:
		return "ERR"
	case level >= slog.LevelWarn:
		return "WRN"
	case level >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

func replaceLevelName(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= mlog.LevelFatal {
			return slog.String(slog.LevelKey, LevelFatal)
		}
	}
	return a
}
