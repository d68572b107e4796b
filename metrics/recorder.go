package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/leeforge/pngpress/errors"
	"github.com/leeforge/pngpress/json"
)

// Metric names.
const (
	CompressRequestsTotal   = "compress_requests_total"
	CompressBytesIn         = "compress_bytes_in"
	CompressBytesOut        = "compress_bytes_out"
	CompressDurationSeconds = "compress_duration_seconds"
	CacheHitsTotal          = "cache_hits_total"
	CacheMissesTotal        = "cache_misses_total"
	HTTPRequestsTotal       = "http_requests_total"
	HTTPDurationSeconds     = "http_request_duration_seconds"
)

// OutcomeSuccess labels a compression that produced output; failures are
// labelled with their error kind.
const OutcomeSuccess = "success"

// RecordCompress 记录一次压缩结果
func (c *Collector) RecordCompress(inputSize, outputSize int, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(errors.Kind(err))
	}
	c.IncCounter(CompressRequestsTotal, map[string]string{"outcome": outcome})
	c.ObserveHistogram(CompressDurationSeconds, duration.Seconds(), nil)
	c.AddCounter(CompressBytesIn, float64(inputSize), nil)
	if err == nil {
		c.AddCounter(CompressBytesOut, float64(outputSize), nil)
	}
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(hit bool) {
	if hit {
		c.IncCounter(CacheHitsTotal, nil)
	} else {
		c.IncCounter(CacheMissesTotal, nil)
	}
}

// RecordRequest 记录 HTTP 请求
func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	labels := map[string]string{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	c.IncCounter(HTTPRequestsTotal, labels)
	c.ObserveHistogram(HTTPDurationSeconds, duration.Seconds(), map[string]string{"route": route})
}

// Middleware records every request under route, a fixed label that keeps
// raw paths out of the series keys.
func (c *Collector) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)
			c.RecordRequest(r.Method, route, ww.statusCode, time.Since(start))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Handler serves the snapshot as JSON, or Prometheus text with
// ?format=prometheus.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "prometheus" {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
			_, _ = w.Write([]byte(c.PrometheusFormat()))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		snapshot := c.TakeSnapshot()
		_ = json.NewEncoder(w).Encode(&snapshot)
	})
}
