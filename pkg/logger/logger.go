// Package logger provides structured logging utilities.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// New returns a JSON logger on stdout at the given level. Unknown levels
// mean info.
func New(level string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: l}, nil
}

// NewDevelopment returns a colored console logger at debug level.
func NewDevelopment() (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: l}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// ForThread scopes a logger to one tenant's thread.
func (l *Logger) ForThread(tenantID, threadID string) *Logger {
	return l.With(zap.String("tenant_id", tenantID), zap.String("thread_id", threadID))
}

// WithContext is ForThread plus the request's correlation id.
func (l *Logger) WithContext(correlationID, tenantID, threadID string) *Logger {
	return l.ForThread(tenantID, threadID).With(zap.String("correlation_id", correlationID))
}

// Sync flushes buffered entries, ignoring the error stdout returns on some platforms.
func (l *Logger) Sync() {
	_ = l.Logger.Sync()
}

func parseLevel(level string) zapcore.Level {
	level = strings.ToLower(level)
	if level == "warning" {
		return zapcore.WarnLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

var global = Nop()

// Global returns the process-wide logger.
func Global() *Logger {
	return global
}

// SetGlobal sets the process-wide logger and routes zap.L() to it, so
// libraries logging through zap's globals share its level and encoding.
func SetGlobal(l *Logger) {
	global = l
	zap.ReplaceGlobals(l.Logger)
}
