package config

import (
	"os"
	"strings"
)

// EnvModeKey selects which environment-specific config files are loaded.
const EnvModeKey = "PNGPRESS_ENV"

// Mode is the deployment environment.
type Mode string

const (
	DevMode  Mode = "development"
	ProMode  Mode = "production"
	TestMode Mode = "test"
)

// ParseMode accepts the usual short spellings. Unknown or empty values are
// development.
func ParseMode(env string) Mode {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "pro":
		return ProMode
	case "test", "testing":
		return TestMode
	default:
		return DevMode
	}
}

// CurrentMode reads EnvModeKey from the environment.
func CurrentMode() Mode {
	return ParseMode(os.Getenv(EnvModeKey))
}

// aliases lists the file name suffixes that select m.
func (m Mode) aliases() []string {
	switch m {
	case ProMode:
		return []string{"production", "prod", "pro"}
	case TestMode:
		return []string{"test"}
	default:
		return []string{"development", "dev"}
	}
}
