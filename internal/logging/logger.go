// Package logging wraps zap the way the pack's structured-logging repos
// build it: a named type embedding a SugaredLogger, constructed from a
// level string and reused everywhere instead of the stdlib log package.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper so call sites depend on this package, not zap
// directly, and so field helpers can be added without touching callers.
type Logger struct {
	*zap.SugaredLogger
}

// New builds a Logger at the given level ("debug", "info", "warn",
// "error"). An unrecognized level falls back to info.
func New(level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: base.Sugar()}, nil
}

// Named returns a child logger tagged with component, mirroring the way
// each package in the engine gets its own named sub-logger.
func (l *Logger) Named(component string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(component)}
}

// With returns a child logger carrying the given structured key/value
// pairs on every subsequent entry. Shadows the embedded SugaredLogger's
// With so call sites keep working with *Logger instead of *zap.SugaredLogger.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

// Sync flushes buffered log entries; call on shutdown.
func (l *Logger) Sync() { _ = l.SugaredLogger.Sync() }
