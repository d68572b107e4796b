package service

import (
	"context"
	"fmt"
	"time"

	"github.com/leeforge/pngpress/cache"
	"github.com/leeforge/pngpress/codec"
	"github.com/leeforge/pngpress/compress"
	"github.com/leeforge/pngpress/config"
	"github.com/leeforge/pngpress/logging"
	"github.com/leeforge/pngpress/metrics"
	"github.com/leeforge/pngpress/optimizer"
	"github.com/leeforge/pngpress/storage"
)

// FromConfig builds the Compressor, cache and metrics described by app.
func FromConfig(ctx context.Context, app *config.App, logger logging.Logger) (*Service, error) {
	resampler, err := codec.NewResampler(codec.ResamplerKind(app.Compress.Resampler))
	if err != nil {
		return nil, err
	}

	c, err := NewCache(ctx, app, logger)
	if err != nil {
		return nil, err
	}

	opts := []compress.CompressorOption{
		compress.WithResampler(resampler),
		compress.WithOptimizer(optimizer.New(optimizer.WithMaxPixels(app.Compress.MaxPixels))),
		compress.WithMaxPixels(app.Compress.MaxPixels),
		compress.WithWorkers(app.Pool.Workers),
		compress.WithQueueSize(app.Pool.QueueSize),
		compress.WithLogger(logger),
	}
	if app.Pool.RejectWhenBusy {
		opts = append(opts, compress.WithRejectWhenBusy())
	}
	compressor := compress.NewCompressor(opts...)

	return New(compressor,
		WithCache(c, app.Cache.TTL),
		WithMetrics(metrics.NewCollector()),
		WithLogger(logger),
	), nil
}

// NewCache returns the cache selected by cache.driver.
func NewCache(ctx context.Context, app *config.App, logger logging.Logger) (cache.Cache, error) {
	switch app.Cache.Driver {
	case "", "none":
		return cache.Nop{}, nil
	case "memory":
		return cache.NewMemoryCache(app.Cache.MaxEntries, cleanupInterval(app)), nil
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:      app.Redis.Addr,
			Password:  app.Redis.Password,
			DB:        app.Redis.DB,
			KeyPrefix: app.Redis.KeyPrefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", app.Cache.Driver)
	}
}

// cleanupInterval is a minute, or the TTL when shorter.
func cleanupInterval(app *config.App) time.Duration {
	if app.Cache.TTL <= 0 {
		return 0
	}
	if app.Cache.TTL < time.Minute {
		return app.Cache.TTL
	}
	return time.Minute
}

// NewStorage returns the provider selected by storage.driver. dir
// overrides storage.local.dir when set.
func NewStorage(app *config.App, dir string) (storage.Provider, error) {
	switch app.Storage.Driver {
	case "", "local":
		if dir == "" {
			dir = app.Storage.Local.Dir
		}
		return storage.NewLocalProvider(dir, "")
	case "oss":
		oss := app.Storage.OSS
		return storage.NewOSSProvider(storage.OSSConfig{
			Endpoint:        oss.Endpoint,
			AccessKeyID:     oss.AccessKeyID,
			AccessKeySecret: oss.AccessKeySecret,
			Bucket:          oss.Bucket,
			Domain:          oss.Domain,
			Prefix:          oss.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", app.Storage.Driver)
	}
}
