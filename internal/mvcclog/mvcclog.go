// Package mvcclog is a thin structured-logging façade over zap. The engine
// calls it for diagnostics only; nothing in mvcc depends on what, if
// anything, this package writes.
package mvcclog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.SugaredLogger scoped with a connection or database
// correlation id.
type Logger struct {
	l *zap.SugaredLogger
}

// New builds a Logger at the given level. An empty or unrecognized level
// string defaults to zapcore.InfoLevel.
func New(level string) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "" // deterministic output for demo/test runs
	base, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op core rather than fail engine construction
		// over a logging misconfiguration.
		base = zap.NewNop()
	}
	return &Logger{l: base.Sugar()}
}

// Noop returns a Logger that discards everything, for tests that don't
// want log noise.
func Noop() *Logger {
	return &Logger{l: zap.NewNop().Sugar()}
}

func parseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// With returns a child Logger tagged with the given key/value pairs.
func (lg *Logger) With(kv ...any) *Logger {
	return &Logger{l: lg.l.With(kv...)}
}

func (lg *Logger) Debug(msg string, kv ...any) { lg.l.Debugw(msg, kv...) }
func (lg *Logger) Info(msg string, kv ...any)  { lg.l.Infow(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...any)  { lg.l.Warnw(msg, kv...) }
