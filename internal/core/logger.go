package core

import "go.uber.org/zap"

// Logger is the minimal structured logging surface used by the engine and the
// persistence drivers. Key-value pairs follow the sugared zap convention.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to the engine's Logger interface.
// A nil logger yields the no-op implementation.
func NewZapLogger(logger *zap.Logger) Logger {
	if logger == nil {
		return NopLogger()
	}
	return zapLogger{sugar: logger.Sugar()}
}

// NewProductionLogger builds a production zap logger wrapped in the engine's
// Logger interface.
func NewProductionLogger() (Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(logger), nil
}

func (l zapLogger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l zapLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l zapLogger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l zapLogger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

type nopLogger struct{}

// NopLogger returns a logger that discards everything. It is the default for
// services constructed without an explicit logger.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
