package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/leeforge/pngpress/logging"
)

// APIKeyHeader identifies a client for rate limiting. Requests without it
// are limited by remote address.
const APIKeyHeader = "X-API-Key"

// RateLimitBackend 限流后端
type RateLimitBackend interface {
	// Hit counts one request against key's current window and returns the
	// count so far and the time until the window resets.
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// Requests allowed per Window; <= 0 disables limiting.
	Requests int
	Window   time.Duration
	// KeyFunc picks the client key; nil uses ClientKey.
	KeyFunc func(r *http.Request) string
}

// RateLimiter 限流器
type RateLimiter struct {
	backend RateLimitBackend
	config  RateLimitConfig
}

// NewRateLimiter 创建限流器
func NewRateLimiter(backend RateLimitBackend, config RateLimitConfig) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.KeyFunc == nil {
		config.KeyFunc = ClientKey
	}
	return &RateLimiter{backend: backend, config: config}
}

// Middleware passes requests within the limit to next and the rest to
// deny. A failing backend lets the request through.
func (rl *RateLimiter) Middleware(deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil || rl.config.Requests <= 0 {
			return next
		}
		limit := int64(rl.config.Requests)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "rate:" + rl.config.KeyFunc(r)
			count, reset, err := rl.backend.Hit(r.Context(), key, rl.config.Window)
			if err != nil {
				logging.FromContext(r.Context()).Warn("ratelimit.backend_failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			remaining := limit - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter(reset)))
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey returns the API key header, or the remote host.
func ClientKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func retryAfter(reset time.Duration) int {
	secs := int((reset + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// MemoryBackend counts fixed windows in process.
type MemoryBackend struct {
	mu        sync.Mutex
	windows   map[string]*counter
	now       func() time.Time
	nextSweep time.Time
}

type counter struct {
	count int64
	reset time.Time
}

// NewMemoryBackend 创建内存后端
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{windows: make(map[string]*counter), now: time.Now}
}

// Hit implements RateLimitBackend.
func (b *MemoryBackend) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !now.Before(b.nextSweep) {
		for k, c := range b.windows {
			if !now.Before(c.reset) {
				delete(b.windows, k)
			}
		}
		b.nextSweep = now.Add(window)
	}

	c, ok := b.windows[key]
	if !ok || !now.Before(c.reset) {
		c = &counter{reset: now.Add(window)}
		b.windows[key] = c
	}
	c.count++
	return c.count, c.reset.Sub(now), nil
}

// RedisBackend shares windows between instances with INCR and PEXPIRE.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend 创建 Redis 后端
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

// Hit implements RateLimitBackend.
func (b *RedisBackend) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	key = b.prefix + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	reset := ttl.Val()
	// 新窗口或丢失过期时间的键
	if incr.Val() == 1 || reset < 0 {
		if err := b.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		reset = window
	}
	return incr.Val(), reset, nil
}
