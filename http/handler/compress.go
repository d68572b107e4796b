package handler

import (
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/leeforge/pngpress/compress"
	"github.com/leeforge/pngpress/http/binding"
	"github.com/leeforge/pngpress/http/responder"
	"github.com/leeforge/pngpress/storage"
)

// Response headers of POST /v1/compress.
const (
	HeaderOriginalSize   = "X-Original-Size"
	HeaderCompressedSize = "X-Compressed-Size"
	HeaderCache          = "X-Cache"
)

// compressQuery 压缩参数. Range checks are left to compress.Validate so
// HTTP and library callers see the same messages.
type compressQuery struct {
	Width *uint32 `query:"width"`
	Level *uint64 `query:"level"`
	Strip *string `query:"strip"`
	Cache string  `query:"cache" default:"use" validate:"oneof=use bypass"`
}

func (q *compressQuery) options() *compress.Options {
	opts := &compress.Options{Width: q.Width, Strip: q.Strip}
	if q.Level != nil {
		// Out-of-range levels still fail validation with the level message.
		level := uint8(math.MaxUint8)
		if *q.Level <= math.MaxUint8 {
			level = uint8(*q.Level)
		}
		opts.Level = &level
	}
	return opts
}

// Compress handles POST /v1/compress with the raw PNG as the body.
func (h *Handler) Compress(w http.ResponseWriter, r *http.Request) {
	var query compressQuery
	if err := binding.Query(r, &query); err != nil {
		responder.FromError(w, r, err)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		responder.FromError(w, r, err)
		return
	}
	if len(data) > 0 {
		if detected := storage.DetectContentType(data); detected != "image/png" {
			responder.UnsupportedMediaType(w, r, detected)
			return
		}
	}

	run := h.service.Compress
	cacheState := "MISS"
	if query.Cache == "bypass" {
		run = h.service.CompressFresh
		cacheState = "BYPASS"
	}

	out, err := run(r.Context(), data, query.options())
	if err != nil {
		responder.FromError(w, r, err)
		return
	}
	if out.Cached {
		cacheState = "HIT"
	}

	header := w.Header()
	header.Set("Content-Type", "image/png")
	header.Set("Content-Length", strconv.Itoa(len(out.Data)))
	header.Set(HeaderOriginalSize, strconv.Itoa(out.InputSize))
	header.Set(HeaderCompressedSize, strconv.Itoa(len(out.Data)))
	header.Set(HeaderCache, cacheState)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	responder.OK(w, r, map[string]string{"status": "ok"})
}
