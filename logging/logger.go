package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// With creates a child logger with additional fields.
	With(fields ...zap.Field) Logger
	// Named creates a child logger with the given name.
	Named(name string) Logger

	// Zap returns the underlying *zap.Logger.
	Zap() *zap.Logger
	// Sync flushes any buffered log entries.
	Sync() error
	// Close flushes and releases log files. Only the root logger returned by
	// NewLogger owns files; Close on a child is the same as Close on its
	// root.
	Close() error
}

// zapLogger wraps *zap.Logger to implement the Logger interface.
type zapLogger struct {
	zl    *zap.Logger
	sl    *zap.SugaredLogger
	files *sinks
}

// NewLogger creates a Logger from config. Levels below config.Level are
// discarded; every other level goes to its own file when Directory is set.
func NewLogger(config Config) (Logger, error) {
	config.applyDefaults()

	min, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	cores, files, err := buildCores(config, min)
	if err != nil {
		return nil, err
	}

	zl := zap.New(zapcore.NewTee(cores...))
	if config.ShowLineNumber {
		zl = zl.WithOptions(zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &zapLogger{zl: zl, sl: zl.Sugar(), files: files}, nil
}

// MustNewLogger is NewLogger that panics on error.
func MustNewLogger(config Config) Logger {
	l, err := NewLogger(config)
	if err != nil {
		panic(err)
	}
	return l
}

// FromZap wraps an existing *zap.Logger as a Logger.
func FromZap(zl *zap.Logger) Logger {
	return &zapLogger{zl: zl, sl: zl.Sugar(), files: &sinks{}}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return FromZap(zap.NewNop())
}

func (l *zapLogger) Debug(msg string, fields ...zap.Field) {
	l.zl.Debug(msg, fields...)
}

func (l *zapLogger) Info(msg string, fields ...zap.Field) {
	l.zl.Info(msg, fields...)
}

func (l *zapLogger) Warn(msg string, fields ...zap.Field) {
	l.zl.Warn(msg, fields...)
}

func (l *zapLogger) Error(msg string, fields ...zap.Field) {
	l.zl.Error(msg, fields...)
}

func (l *zapLogger) Debugf(format string, args ...any) {
	l.sl.Debugf(format, args...)
}

func (l *zapLogger) Infof(format string, args ...any) {
	l.sl.Infof(format, args...)
}

func (l *zapLogger) Warnf(format string, args ...any) {
	l.sl.Warnf(format, args...)
}

func (l *zapLogger) Errorf(format string, args ...any) {
	l.sl.Errorf(format, args...)
}

func (l *zapLogger) With(fields ...zap.Field) Logger {
	zl := l.zl.With(fields...)
	return &zapLogger{zl: zl, sl: zl.Sugar(), files: l.files}
}

func (l *zapLogger) Named(name string) Logger {
	zl := l.zl.Named(name)
	return &zapLogger{zl: zl, sl: zl.Sugar(), files: l.files}
}

func (l *zapLogger) Zap() *zap.Logger {
	return l.zl
}

func (l *zapLogger) Sync() error {
	return l.zl.Sync()
}

func (l *zapLogger) Close() error {
	// stderr cannot be synced on some platforms; that is not worth failing
	// shutdown over.
	_ = l.zl.Sync()
	return l.files.Close()
}

// Ensure zapLogger implements Logger.
var _ Logger = (*zapLogger)(nil)
