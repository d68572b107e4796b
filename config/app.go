package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/leeforge/pngpress/logging"
)

// App is the complete pngpress configuration.
type App struct {
	Server   Server         `mapstructure:"server" yaml:"server"`
	Pool     Pool           `mapstructure:"pool" yaml:"pool"`
	Compress Compress       `mapstructure:"compress" yaml:"compress"`
	Cache    Cache          `mapstructure:"cache" yaml:"cache"`
	Redis    Redis          `mapstructure:"redis" yaml:"redis"`
	Limit    RateLimit      `mapstructure:"rate-limit" yaml:"rate-limit"`
	Storage  Storage        `mapstructure:"storage" yaml:"storage"`
	Log      logging.Config `mapstructure:"log" yaml:"log"`
}

type Server struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" default:":8080" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read-timeout" yaml:"read-timeout" default:"30s"`
	WriteTimeout    time.Duration `mapstructure:"write-timeout" yaml:"write-timeout" default:"2m"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" yaml:"shutdown-timeout" default:"30s"`
	// MaxBodyBytes caps uploaded images; larger bodies get 413.
	MaxBodyBytes int64 `mapstructure:"max-body-bytes" yaml:"max-body-bytes" default:"33554432" validate:"gte=1"`
	CORS         CORS  `mapstructure:"cors" yaml:"cors"`
}

// CORS is disabled while AllowedOrigins is empty.
type CORS struct {
	AllowedOrigins []string      `mapstructure:"allowed-origins" yaml:"allowed-origins"`
	MaxAge         time.Duration `mapstructure:"max-age" yaml:"max-age" default:"10m"`
}

// Pool sizes the shared compression worker pool.
type Pool struct {
	// Workers <= 0 means one per CPU.
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue-size" yaml:"queue-size" default:"64" validate:"gte=1"`
	// RejectWhenBusy answers 503 when the queue is full instead of waiting.
	RejectWhenBusy bool `mapstructure:"reject-when-busy" yaml:"reject-when-busy"`
}

type Compress struct {
	Resampler string `mapstructure:"resampler" yaml:"resampler" default:"nfnt" validate:"oneof=nfnt imaging"`
	// MaxPixels bounds images the optimizer decodes to rewrite.
	MaxPixels int64 `mapstructure:"max-pixels" yaml:"max-pixels" default:"67108864" validate:"gte=1"`
}

type Cache struct {
	Driver     string        `mapstructure:"driver" yaml:"driver" default:"none" validate:"oneof=none memory redis"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl" default:"1h"`
	MaxEntries int           `mapstructure:"max-entries" yaml:"max-entries" default:"256" validate:"gte=1"`
}

// RateLimit bounds compress requests per client. Requests 0 disables it.
type RateLimit struct {
	Requests int           `mapstructure:"requests" yaml:"requests" validate:"gte=0"`
	Window   time.Duration `mapstructure:"window" yaml:"window" default:"1m"`
	Driver   string        `mapstructure:"driver" yaml:"driver" default:"memory" validate:"oneof=memory redis"`
}

type Redis struct {
	Addr      string `mapstructure:"addr" yaml:"addr" default:"127.0.0.1:6379"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key-prefix" yaml:"key-prefix" default:"pngpress:"`
}

type Storage struct {
	Driver string `mapstructure:"driver" yaml:"driver" default:"local" validate:"oneof=local oss"`
	Local  Local  `mapstructure:"local" yaml:"local"`
	OSS    OSS    `mapstructure:"oss" yaml:"oss"`
}

type Local struct {
	Dir string `mapstructure:"dir" yaml:"dir" default:"out"`
}

type OSS struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access-key-id" yaml:"access-key-id"`
	AccessKeySecret string `mapstructure:"access-key-secret" yaml:"access-key-secret"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Domain          string `mapstructure:"domain" yaml:"domain"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
}

var validate = validator.New()

// Validate checks field rules and the cross-field requirements of the
// selected drivers.
func (a *App) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if a.Cache.Driver == "redis" && a.Redis.Addr == "" {
		return fmt.Errorf("invalid config: redis.addr is required when cache.driver is redis")
	}
	if a.Limit.Requests > 0 && a.Limit.Driver == "redis" && a.Redis.Addr == "" {
		return fmt.Errorf("invalid config: redis.addr is required when rate-limit.driver is redis")
	}
	if a.Storage.Driver == "oss" {
		var missing []string
		for name, v := range map[string]string{
			"endpoint":          a.Storage.OSS.Endpoint,
			"access-key-id":     a.Storage.OSS.AccessKeyID,
			"access-key-secret": a.Storage.OSS.AccessKeySecret,
			"bucket":            a.Storage.OSS.Bucket,
		} {
			if v == "" {
				missing = append(missing, "storage.oss."+name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("invalid config: %s required when storage.driver is oss", strings.Join(missing, ", "))
		}
	}
	return nil
}

// Load reads and validates an App with opts.
func Load(opts Options) (*App, *Loader, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, nil, err
	}
	app := &App{}
	if err := loader.Bind(app); err != nil {
		return nil, nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, nil, err
	}
	return app, loader, nil
}
