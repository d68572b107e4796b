package logging

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var stderr = zapcore.Lock(os.Stderr)

// levelFile returns the rotating file for one level, e.g. logs/warn.log.
func levelFile(config Config, level zapcore.Level) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(config.Directory, level.String()+".log"),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
		LocalTime:  true,
	}
}

// sinks collects the files opened by one logger so Close can release them.
type sinks struct {
	files []io.Closer
}

// writeSyncer builds the destination for entries of exactly level.
func (s *sinks) writeSyncer(config Config, level zapcore.Level) (zapcore.WriteSyncer, error) {
	var targets []zapcore.WriteSyncer
	if config.Directory != "" {
		if err := os.MkdirAll(config.Directory, 0o755); err != nil {
			return nil, err
		}
		file := levelFile(config, level)
		s.files = append(s.files, file)
		targets = append(targets, zapcore.AddSync(file))
	}
	if config.LogInTerminal {
		targets = append(targets, stderr)
	}
	if len(targets) == 0 {
		return zapcore.AddSync(io.Discard), nil
	}
	return zapcore.NewMultiWriteSyncer(targets...), nil
}

func (s *sinks) Close() error {
	var lastErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	s.files = nil
	return lastErr
}
