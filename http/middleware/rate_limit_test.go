package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	deny := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}
	return rl.Middleware(deny)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func hit(h http.Handler, remoteAddr, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/compress", nil)
	req.RemoteAddr = remoteAddr
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_LimitsPerClient(t *testing.T) {
	h := limitedHandler(NewRateLimiter(NewMemoryBackend(), RateLimitConfig{Requests: 2, Window: time.Minute}))

	rec := hit(h, "10.0.0.1:1234", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.1:5678", "").Code)

	rec = hit(h, "10.0.0.1:1234", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// 其他客户端不受影响
	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.2:1234", "").Code)
	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.1:1234", "abc").Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	var nilLimiter *RateLimiter
	h := limitedHandler(nilLimiter)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.1:1", "").Code)
	}

	h = limitedHandler(NewRateLimiter(NewMemoryBackend(), RateLimitConfig{}))
	rec := hit(h, "10.0.0.1:1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

type failingBackend struct{}

func (failingBackend) Hit(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("backend down")
}

func TestRateLimiter_BackendFailureAllows(t *testing.T) {
	h := limitedHandler(NewRateLimiter(failingBackend{}, RateLimitConfig{Requests: 1}))
	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.1:1", "").Code)
	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.1:1", "").Code)
}

func TestMemoryBackend_WindowResets(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewMemoryBackend()
	b.now = func() time.Time { return now }

	count, reset, err := b.Hit(context.Background(), "k", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 10*time.Second, reset)

	now = now.Add(4 * time.Second)
	count, reset, _ = b.Hit(context.Background(), "k", 10*time.Second)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 6*time.Second, reset)

	now = now.Add(6 * time.Second)
	count, _, _ = b.Hit(context.Background(), "k", 10*time.Second)
	assert.Equal(t, int64(1), count)
}

func TestMemoryBackend_SweepsExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewMemoryBackend()
	b.now = func() time.Time { return now }

	_, _, _ = b.Hit(context.Background(), "a", time.Second)
	_, _, _ = b.Hit(context.Background(), "b", time.Second)
	now = now.Add(2 * time.Second)
	_, _, _ = b.Hit(context.Background(), "c", time.Second)

	assert.Len(t, b.windows, 1)
	assert.Contains(t, b.windows, "c")
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	assert.Equal(t, "addr:192.0.2.1", ClientKey(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "addr:pipe", ClientKey(req))

	req.Header.Set(APIKeyHeader, "token")
	assert.Equal(t, "key:token", ClientKey(req))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 1, retryAfter(0))
	assert.Equal(t, 1, retryAfter(300*time.Millisecond))
	assert.Equal(t, 2, retryAfter(1500*time.Millisecond))
}

func TestRedisBackend_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("dial refused")
		},
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	_, _, err := NewRedisBackend(client, "test:").Hit(context.Background(), "k", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial refused")
}
