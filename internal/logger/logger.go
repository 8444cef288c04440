// Package logger provides structured, level-gated logging for the toolkit.
//
// It keeps a module/action call shape throughout the codebase and delegates
// formatting, level gating, and output to a zap console core:
//
//	2006-01-02 15:04:05.000	INFO	ENGINE	regex matched 3 spans	{"action": "span_resolve"}
//
// Levels (lowest to highest): debug, info, warn, error.
// Entries below the configured minimum level are silently dropped.
//
// Usage:
//
//	log := logger.New("ENGINE", cfg.LogLevel)
//	log.Info("run_start", "anonymizing json document")
//	log.Errorf("model_detect", "post %s: %v", url, err)
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes structured log lines for a single module.
type Logger struct {
	module string
	level  zap.AtomicLevel
	zl     *zap.Logger
}

// New creates a Logger for the given module, gated at the given level string.
// Unrecognized level strings default to "info".
func New(module, levelStr string) *Logger {
	module = strings.ToUpper(module)
	level := zap.NewAtomicLevelAt(parseLevel(levelStr))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		level,
	)

	return &Logger{
		module: module,
		level:  level,
		zl:     zap.New(core).Named(module),
	}
}

// SetLevel changes the minimum log level at runtime.
func (l *Logger) SetLevel(levelStr string) {
	l.level.SetLevel(parseLevel(levelStr))
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(action, msg string) { l.zl.Debug(msg, zap.String("action", action)) }

// Info logs at INFO level.
func (l *Logger) Info(action, msg string) { l.zl.Info(msg, zap.String("action", action)) }

// Warn logs at WARN level.
func (l *Logger) Warn(action, msg string) { l.zl.Warn(msg, zap.String("action", action)) }

// Error logs at ERROR level.
func (l *Logger) Error(action, msg string) { l.zl.Error(msg, zap.String("action", action)) }

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(action, format string, args ...any) {
	l.Debug(action, fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(action, format string, args ...any) {
	l.Info(action, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(action, format string, args ...any) {
	l.Warn(action, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(action, format string, args ...any) {
	l.Error(action, fmt.Sprintf(format, args...))
}

// Fatal logs at FATAL level and then calls os.Exit(1).
func (l *Logger) Fatal(action, msg string) {
	l.zl.Fatal(msg, zap.String("action", action))
}

// Fatalf logs a formatted message at FATAL level and then calls os.Exit(1).
func (l *Logger) Fatalf(action, format string, args ...any) {
	l.Fatal(action, fmt.Sprintf(format, args...))
}

// Enabled reports whether a message at the given level string would be emitted.
func (l *Logger) Enabled(levelStr string) bool {
	return l.level.Enabled(parseLevel(levelStr))
}

// parseLevel converts a string to a zapcore.Level, defaulting to info.
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
