// Package cache stores compressed outputs keyed by input digest and
// request options.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by Get on a miss or an expired entry.
var ErrNotFound = errors.New("cache not found")

// Cache is a byte cache with per-entry TTL. A zero TTL never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key 生成缓存键: sha256(input) 加上规范化后的参数
func Key(input []byte, parts ...string) string {
	sum := sha256.Sum256(input)
	key := hex.EncodeToString(sum[:])
	if len(parts) == 0 {
		return key
	}
	return key + ":" + strings.Join(parts, ":")
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Nop) Delete(context.Context, string) error { return nil }

func (Nop) Close() error { return nil }
