package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Add trace and fatal level names.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// Config controls where and how verbosely logs are written.
type Config struct {
	Level      slog.Level
	FilePath   string // optional JSON log file, rotated by size
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu                  sync.RWMutex
	structuredLogger    *slog.Logger
	humanReadableLogger *slog.Logger
	fileWriter          *lumberjack.Logger
	level               = new(slog.LevelVar)
)

func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		lvl, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		label, exists := levelNames[lvl]
		if !exists {
			label = lvl.String()
		}
		a.Value = slog.StringValue(label)
	}
	return a
}

func handlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevelName}
}

// Init initializes the logging system with structured and human-readable loggers.
// Structured logs go to stdout as JSON, or to cfg.FilePath when set.
// Human-readable text logs always go to stderr.
func Init(cfg Config) error {
	level.Set(cfg.Level)

	var structuredOut io.Writer = os.Stdout
	var writer *lumberjack.Logger
	if cfg.FilePath != "" {
		if dir := filepath.Dir(cfg.FilePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		writer = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		}
		structuredOut = writer
	}

	SetOutput(structuredOut, os.Stderr)

	mu.Lock()
	if fileWriter != nil {
		_ = fileWriter.Close()
	}
	fileWriter = writer
	mu.Unlock()
	return nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// SetLevel sets the minimum logging level for both loggers.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// SetOutput redirects both loggers, keeping the current level.
func SetOutput(structuredOutput, humanReadableOutput io.Writer) {
	mu.Lock()
	structuredLogger = slog.New(slog.NewJSONHandler(structuredOutput, handlerOptions()))
	humanReadableLogger = slog.New(slog.NewTextHandler(humanReadableOutput, handlerOptions()))
	mu.Unlock()

	slog.SetDefault(structuredLogger)
}

// Close flushes and closes the log file, if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

// Structured returns the globally configured structured (JSON) logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return structuredLogger
}

// HumanReadable returns the globally configured human-readable (Text) logger.
// Returns nil if Init() has not been called.
func HumanReadable() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return humanReadableLogger
}

// ForService creates a new logger instance with the 'service' attribute added.
// Returns nil if Init() has not been called.
func ForService(serviceName string) *slog.Logger {
	l := Structured()
	if l == nil {
		return nil
	}
	return l.With("service", serviceName)
}

// Fatal logs a fatal message using the custom Fatal level and then exits.
func Fatal(msg string, args ...any) {
	slog.Log(context.TODO(), LevelFatal, msg, args...)
	os.Exit(1)
}

// Trace logs a trace message using the custom Trace level.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

// ParseLevel converts a config level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "trace":
		return LevelTrace
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

// KnownLevel reports whether name is accepted by ParseLevel without falling back.
func KnownLevel(name string) bool {
	switch name {
	case "trace", "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}
