package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"github.com/xerrors/Yuxi-Know/pkg/config"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger wraps a slog.Logger together with the file it owns
type Logger struct {
	level LogLevel
	slog  *slog.Logger
	file  *os.File
}

var defaultLogger atomic.Pointer[Logger]

// Init initializes the default logger from the global config
func Init() error {
	if defaultLogger.Load() != nil {
		return nil
	}

	settings := config.Get().Logging
	l, err := New(ParseLevel(settings.Level), config.ResolvePath(settings.LogFile), settings.Preserve, settings.Console)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defaultLogger.Store(l)
	return nil
}

// New creates a Logger. An empty logFile disables file output; console adds a
// coloured stderr handler.
func New(level LogLevel, logFile string, preserve bool, console bool) (*Logger, error) {
	var handlers []slog.Handler
	var file *os.File

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if preserve {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}

		f, err := os.OpenFile(logFile, flags, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level.slogLevel()}))
	}

	if console {
		handlers = append(handlers, tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level.slogLevel(),
			TimeFormat: time.Kitchen,
		}))
	}

	return &Logger{level: level, slog: slog.New(fanout(handlers)), file: file}, nil
}

// NewWithWriter creates a Logger writing plain text to w
func NewWithWriter(level LogLevel, w io.Writer) *Logger {
	return &Logger{
		level: level,
		slog:  slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})),
	}
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ParseLevel converts a string level to LogLevel. Unknown values map to info.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(format string, args ...any) {
	l.slog.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.slog.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.slog.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.slog.Error(fmt.Sprintf(format, args...))
}

// Package-level convenience functions using the default logger

// Debug logs a debug message using the default logger
func Debug(format string, args ...any) {
	if l := defaultLogger.Load(); l != nil {
		l.Debug(format, args...)
	}
}

// Info logs an info message using the default logger
func Info(format string, args ...any) {
	if l := defaultLogger.Load(); l != nil {
		l.Info(format, args...)
	}
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...any) {
	if l := defaultLogger.Load(); l != nil {
		l.Warn(format, args...)
	}
}

// Error logs an error message using the default logger
func Error(format string, args ...any) {
	if l := defaultLogger.Load(); l != nil {
		l.Error(format, args...)
	}
}

// WithComponent returns a structured logger tagged with the component name.
// Before Init it discards everything.
func WithComponent(name string) *slog.Logger {
	l := defaultLogger.Load()
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.slog.With("component", name)
}

// SetOutput points the default logger at w (useful for testing)
func SetOutput(w io.Writer) {
	SetDefault(NewWithWriter(LevelDebug, w))
}

// SetDefault replaces the default logger, closing nothing
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// Close closes and clears the default logger
func Close() error {
	l := defaultLogger.Swap(nil)
	if l != nil {
		return l.Close()
	}
	return nil
}
