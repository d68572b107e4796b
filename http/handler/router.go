// Package handler exposes the compression service over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leeforge/pngpress/http/middleware"
	"github.com/leeforge/pngpress/http/responder"
	"github.com/leeforge/pngpress/logging"
	"github.com/leeforge/pngpress/service"
)

// Handler 路由处理器
type Handler struct {
	service      *service.Service
	logger       logging.Logger
	maxBodyBytes int64
	limiter      *middleware.RateLimiter
	cors         middleware.CORSConfig
}

// New builds a Handler. maxBodyBytes <= 0 leaves bodies unbounded.
func New(svc *service.Service, logger logging.Logger, maxBodyBytes int64) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{service: svc, logger: logger.Named("http"), maxBodyBytes: maxBodyBytes}
}

// WithRateLimiter limits POST /v1/compress per client.
func (h *Handler) WithRateLimiter(rl *middleware.RateLimiter) *Handler {
	h.limiter = rl
	return h
}

// WithCORS lets browsers on origins call the API and read the size headers.
func (h *Handler) WithCORS(origins []string, maxAge time.Duration) *Handler {
	h.cors = middleware.CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", middleware.APIKeyHeader, middleware.TraceIDHeader},
		ExposedHeaders: []string{HeaderOriginalSize, HeaderCompressedSize, HeaderCache, middleware.TraceIDHeader},
		MaxAge:         maxAge,
	}
	return h
}

// Router wires the routes. Trace IDs are assigned first so every log line
// and error envelope carries one.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.TraceIDMiddleware(),
		middleware.TimingMiddleware(),
		logging.HTTPMiddleware(h.logger),
		logging.RecoveryMiddleware(),
		middleware.SecurityHeaders(),
		middleware.CORS(h.cors),
	)
	r.NotFound(responder.NotFound)
	r.MethodNotAllowed(responder.MethodNotAllowed)

	metrics := h.service.Metrics()
	r.With(metrics.Middleware("/healthz")).Get("/healthz", h.Health)
	r.With(metrics.Middleware("/metrics")).Get("/metrics", metrics.Handler().ServeHTTP)
	r.Route("/v1", func(r chi.Router) {
		r.With(
			metrics.Middleware("/v1/compress"),
			h.limiter.Middleware(responder.TooManyRequests),
			middleware.BodyLimit(h.maxBodyBytes),
		).Post("/compress", h.Compress)
	})
	return r
}
