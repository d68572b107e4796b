// Package service puts the result cache and metrics in front of a
// compress.Compressor. The HTTP handler and the CLI both go through it.
package service

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/leeforge/pngpress/cache"
	"github.com/leeforge/pngpress/compress"
	"github.com/leeforge/pngpress/logging"
	"github.com/leeforge/pngpress/metrics"
)

// Output is a finished compression.
type Output struct {
	Data      []byte
	InputSize int
	Cached    bool
	Took      time.Duration
}

// Service 压缩服务
type Service struct {
	compressor *compress.Compressor
	cache      cache.Cache
	ttl        time.Duration
	metrics    *metrics.Collector
	logger     logging.Logger
}

type Option func(*Service)

// WithCache stores successful outputs for ttl. Zero ttl never expires.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New wraps compressor. Without options there is no cache and metrics go
// to a private collector.
func New(compressor *compress.Compressor, opts ...Option) *Service {
	s := &Service{compressor: compressor}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCollector()
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.logger = s.logger.Named("service")
	return s
}

// Metrics returns the collector the service records into.
func (s *Service) Metrics() *metrics.Collector {
	return s.metrics
}

// Workers is the number of compressions the service runs at once.
func (s *Service) Workers() int {
	return s.compressor.Workers()
}

// Compress validates opts, answers from the cache when it can, and
// otherwise waits for the Compressor. Invalid options are rejected before
// the cache is consulted. When ctx ends first the compression keeps
// running and its result is dropped.
func (s *Service) Compress(ctx context.Context, data []byte, opts *compress.Options) (*Output, error) {
	return s.compress(ctx, data, opts, true)
}

// CompressFresh skips the cache lookup but still stores the result.
func (s *Service) CompressFresh(ctx context.Context, data []byte, opts *compress.Options) (*Output, error) {
	return s.compress(ctx, data, opts, false)
}

func (s *Service) compress(ctx context.Context, data []byte, opts *compress.Options, readCache bool) (*Output, error) {
	start := time.Now()
	inputSize := len(data)

	req, err := compress.Validate(compress.NewBuffer(data), opts)
	if err != nil {
		s.metrics.RecordCompress(inputSize, 0, time.Since(start), err)
		return nil, err
	}
	key := cacheKey(data, req)

	if readCache {
		if out, ok := s.lookup(ctx, key, inputSize, start); ok {
			return out, nil
		}
	}

	future, err := s.compressor.Compress(data, opts)
	if err != nil {
		s.metrics.RecordCompress(inputSize, 0, time.Since(start), err)
		return nil, err
	}
	out, err := future.Await(ctx)
	took := time.Since(start)
	if err != nil {
		s.metrics.RecordCompress(inputSize, 0, took, err)
		return nil, err
	}
	s.metrics.RecordCompress(inputSize, len(out), took, nil)

	if err := s.cache.Set(ctx, key, out, s.ttl); err != nil {
		s.logger.Warn("cache.set_failed", zap.Error(err))
	}
	return &Output{Data: out, InputSize: inputSize, Took: took}, nil
}

func (s *Service) lookup(ctx context.Context, key string, inputSize int, start time.Time) (*Output, bool) {
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		if !stderrors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("cache.get_failed", zap.Error(err))
		}
		s.metrics.RecordCacheHit(false)
		return nil, false
	}
	s.metrics.RecordCacheHit(true)
	took := time.Since(start)
	s.metrics.RecordCompress(inputSize, len(cached), took, nil)
	return &Output{Data: cached, InputSize: inputSize, Cached: true, Took: took}, true
}

// cacheKey folds equivalent requests together: an omitted level and
// level 2 share a key, as do "SAFE" and "safe".
func cacheKey(data []byte, req *compress.Request) string {
	width := "orig"
	if w, ok := req.Width(); ok {
		width = strconv.FormatUint(uint64(w), 10)
	}
	return cache.Key(data, "w="+width, req.OptimizerOptions().String())
}

// Close stops the Compressor and the cache.
func (s *Service) Close(ctx context.Context) error {
	err := s.compressor.Close(ctx)
	if cerr := s.cache.Close(); err == nil {
		err = cerr
	}
	return err
}
