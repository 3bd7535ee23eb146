package uplink

import (
	"log/slog"

	"go.uber.org/zap"
)

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, keysAndValues ...any) {
	s.Logger.Debug(msg, keysAndValues...)
}

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, keysAndValues ...any) {
	s.Logger.Info(msg, keysAndValues...)
}

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, keysAndValues ...any) {
	s.Logger.Warn(msg, keysAndValues...)
}

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, keysAndValues ...any) {
	s.Logger.Error(msg, keysAndValues...)
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// ZapAdapter wraps a zap logger to implement Logger.
type ZapAdapter struct {
	sugar *zap.SugaredLogger
}

// NewZapAdapter creates a Logger from *zap.Logger.
func NewZapAdapter(logger *zap.Logger) Logger {
	return &ZapAdapter{sugar: logger.Sugar()}
}

// Debug logs a debug message.
func (z *ZapAdapter) Debug(msg string, keysAndValues ...any) {
	z.sugar.Debugw(msg, keysAndValues...)
}

// Info logs an informational message.
func (z *ZapAdapter) Info(msg string, keysAndValues ...any) {
	z.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message.
func (z *ZapAdapter) Warn(msg string, keysAndValues ...any) {
	z.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message.
func (z *ZapAdapter) Error(msg string, keysAndValues ...any) {
	z.sugar.Errorw(msg, keysAndValues...)
}
