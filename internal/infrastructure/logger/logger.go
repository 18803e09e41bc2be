package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions attaches one structured field to a log entry.
type LoggerOptions struct {
	Key  string
	Data interface{}
}

var (
	mu          sync.RWMutex
	base        = zap.NewNop()
	diagnostics = zap.NewNop()
)

// Init builds the process loggers. env "development" selects a console encoder.
// diagnosticsPath, when set, adds a file sink for OCR and face diagnostics.
func Init(env, level, diagnosticsPath string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if env == "development" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	dcfg := cfg
	dcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	if diagnosticsPath != "" {
		dcfg.OutputPaths = append([]string{diagnosticsPath}, cfg.OutputPaths...)
	}
	d, err := dcfg.Build()
	if err != nil {
		return fmt.Errorf("build diagnostics logger: %w", err)
	}

	mu.Lock()
	base = l
	diagnostics = d.Named("diagnostics")
	mu.Unlock()
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
	_ = diagnostics.Sync()
}

func fields(payload []LoggerOptions) []zapcore.Field {
	zapFields := make([]zapcore.Field, 0, len(payload))
	for _, data := range payload {
		zapFields = append(zapFields, zap.Any(data.Key, data.Data))
	}
	return zapFields
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debug logs debug level messages.
func Debug(msg string, payload ...LoggerOptions) {
	current().Debug(msg, fields(payload)...)
}

// Info logs info level messages.
func Info(msg string, payload ...LoggerOptions) {
	current().Info(msg, fields(payload)...)
}

// Warning logs warning messages.
func Warning(msg string, payload ...LoggerOptions) {
	current().Warn(msg, fields(payload)...)
}

// Error logs error messages.
// describe the incident in msg and pass the error through logger options
// with key error
func Error(msg string, payload ...LoggerOptions) {
	current().Error(msg, fields(payload)...)
}

// Diagnostic writes an investigation record that must never reach a client.
func Diagnostic(msg string, payload ...LoggerOptions) {
	mu.RLock()
	d := diagnostics
	mu.RUnlock()
	d.Debug(msg, fields(payload)...)
}

// Replace swaps the loggers, returning a func that restores the previous ones. Used by tests.
func Replace(l, diag *zap.Logger) func() {
	mu.Lock()
	prevBase, prevDiag := base, diagnostics
	base, diagnostics = l, diag
	mu.Unlock()
	return func() {
		mu.Lock()
		base, diagnostics = prevBase, prevDiag
		mu.Unlock()
	}
}
