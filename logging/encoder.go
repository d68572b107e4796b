package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

// newEncoder returns a JSON encoder unless format is "console".
func newEncoder(format string) zapcore.Encoder {
	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig())
	}
	return zapcore.NewJSONEncoder(encoderConfig())
}

// buildCores creates one core per level at or above min, each writing only
// its own level so files can be split by severity.
func buildCores(config Config, min zapcore.Level) ([]zapcore.Core, *sinks, error) {
	s := &sinks{}
	enc := newEncoder(config.Format)

	var cores []zapcore.Core
	for level := min; level <= zapcore.FatalLevel; level++ {
		ws, err := s.writeSyncer(config, level)
		if err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		only := level
		cores = append(cores, zapcore.NewCore(enc.Clone(), ws, zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l == only
		})))
	}
	return cores, s, nil
}
