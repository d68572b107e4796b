package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum level written (debug, info, warn, error).
	Level string `mapstructure:"level" json:"level" yaml:"level" default:"info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`

	// Format is json or console.
	Format string `mapstructure:"format" json:"format" yaml:"format" default:"json" validate:"oneof=json console"`

	// Directory receives one rotating file per level. Empty disables files.
	Directory string `mapstructure:"directory" json:"directory" yaml:"directory"`

	// LogInTerminal also writes every entry to stderr.
	LogInTerminal bool `mapstructure:"log-in-terminal" json:"logInTerminal" yaml:"log-in-terminal" default:"true"`

	// MaxSize is the size in megabytes at which a file is rotated.
	MaxSize int `mapstructure:"max-size" json:"maxSize" yaml:"max-size" default:"100" validate:"gte=1"`

	// MaxAge is the number of days rotated files are kept.
	MaxAge int `mapstructure:"max-age" json:"maxAge" yaml:"max-age" default:"7" validate:"gte=0"`

	// MaxBackups is the number of rotated files kept per level.
	MaxBackups int `mapstructure:"max-backups" json:"maxBackups" yaml:"max-backups" default:"10" validate:"gte=0"`

	// Compress gzips rotated files.
	Compress bool `mapstructure:"compress" json:"compress" yaml:"compress" default:"true"`

	// ShowLineNumber adds the caller to each entry.
	ShowLineNumber bool `mapstructure:"show-line-number" json:"showLineNumber" yaml:"show-line-number"`
}

// DefaultConfig logs info and above as JSON to the terminal only.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		Format:        "json",
		LogInTerminal: true,
		MaxSize:       100,
		MaxAge:        7,
		MaxBackups:    10,
		Compress:      true,
	}
}

// ParseLevel converts a level name to zapcore.Level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// applyDefaults fills zero rotation limits.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Format == "" {
		c.Format = defaults.Format
	}
	if c.MaxSize == 0 {
		c.MaxSize = defaults.MaxSize
	}
	if c.MaxAge == 0 {
		c.MaxAge = defaults.MaxAge
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = defaults.MaxBackups
	}
}
