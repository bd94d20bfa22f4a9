// Package logger provides structured logging for ObjectStore
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with ObjectStore-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "objectstore").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// SchemaLogger returns a logger for schema operations
func (l *Logger) SchemaLogger(operation string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "schema").
			Str("operation", operation).
			Logger(),
	}
}

// StoreLogger returns a logger for backing store operations
func (l *Logger) StoreLogger(operation string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "store").
			Str("operation", operation).
			Logger(),
	}
}

// ObserveLogger returns a logger for change observation
func (l *Logger) ObserveLogger(subject string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "observe").
			Str("subject", subject).
			Logger(),
	}
}

// LogSchemaResolved logs the outcome of schema version resolution
func (l *Logger) LogSchemaResolved(version string, recorded bool, entityCount int) {
	l.zlog.Info().
		Str("component", "schema").
		Str("version", version).
		Bool("store_recorded", recorded).
		Int("entities", entityCount).
		Msg("Schema version resolved")
}

// LogLockMismatch logs a version lock mismatch for an entity
func (l *Logger) LogLockMismatch(entity string) {
	l.zlog.Error().
		Str("component", "schema").
		Str("entity", entity).
		Msg("Version lock mismatch, manual migration required")
}

// LogDiff logs a computed edit script with structured fields
func (l *Logger) LogDiff(subject string, duration time.Duration, deletes, moves, inserts, updates int) {
	l.zlog.Debug().
		Str("component", "observe").
		Str("subject", subject).
		Dur("duration_ms", duration).
		Int("deletes", deletes).
		Int("moves", moves).
		Int("inserts", inserts).
		Int("updates", updates).
		Msg("Edit script computed")
}

// LogStoreOpen logs a backing store open
func (l *Logger) LogStoreOpen(kind string, path string) {
	l.zlog.Info().
		Str("event", "store_open").
		Str("kind", kind).
		Str("path", path).
		Msg("Backing store opened")
}

// LogStoreClose logs a backing store close
func (l *Logger) LogStoreClose(kind string) {
	l.zlog.Info().
		Str("event", "store_close").
		Str("kind", kind).
		Msg("Backing store closed")
}

// Global logger instance, guarded by globalMu: lazy initialization happens
// at most once, and replacement never interleaves with a read
var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	l := NewLogger(cfg)
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
	log.Logger = *l.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		// Initialize with defaults if not set
		globalLogger = NewLogger(Config{
			Level: "info",
		})
		log.Logger = *globalLogger.GetZerolog()
	}
	return globalLogger
}
