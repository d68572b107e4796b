package main

import (
	"context"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/leeforge/pngpress/config"
	"github.com/leeforge/pngpress/http/handler"
	"github.com/leeforge/pngpress/http/middleware"
	"github.com/leeforge/pngpress/service"
)

func serve(ctx context.Context, args []string, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("serve", stderr, &common)
	fs.String("addr", ":8080", "listen address")
	fs.String("cache", "none", "result cache: none, memory or redis")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return usageError{fmt.Errorf("serve takes no arguments, got %q", fs.Args())}
	}

	app, logger, err := load(fs, &common, map[string]string{
		"server.addr":  "addr",
		"cache.driver": "cache",
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	svc, err := service.FromConfig(ctx, app, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), app.Server.ShutdownTimeout)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			logger.Warn("service.close_failed", zap.Error(err))
		}
	}()

	limiter, closeLimiter := rateLimiter(app)
	defer closeLimiter()

	h := handler.New(svc, logger, app.Server.MaxBodyBytes).
		WithRateLimiter(limiter).
		WithCORS(app.Server.CORS.AllowedOrigins, app.Server.CORS.MaxAge)
	srv := handler.NewServer(handler.ServerConfig{
		Addr:         app.Server.Addr,
		ReadTimeout:  app.Server.ReadTimeout,
		WriteTimeout: app.Server.WriteTimeout,
	}, h)
	return srv.ListenAndServe(ctx, app.Server.ShutdownTimeout)
}

// rateLimiter returns nil when rate-limit.requests is 0.
func rateLimiter(app *config.App) (*middleware.RateLimiter, func()) {
	if app.Limit.Requests <= 0 {
		return nil, func() {}
	}
	cnf := middleware.RateLimitConfig{Requests: app.Limit.Requests, Window: app.Limit.Window}
	if app.Limit.Driver != "redis" {
		return middleware.NewRateLimiter(middleware.NewMemoryBackend(), cnf), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     app.Redis.Addr,
		Password: app.Redis.Password,
		DB:       app.Redis.DB,
	})
	backend := middleware.NewRedisBackend(client, app.Redis.KeyPrefix)
	return middleware.NewRateLimiter(backend, cnf), func() { _ = client.Close() }
}
