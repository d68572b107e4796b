// Package optimizer losslessly shrinks PNG files. It strips metadata,
// reduces the pixel encoding where no value changes, and searches filter and
// deflate settings for the smallest stream. The result always decodes to the
// same pixels as the input and is never larger than the stripped input.
package optimizer

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"math"
)

// DefaultMaxPixels bounds the images the rewrite path will decode.
const DefaultMaxPixels = 1 << 26

// maxRawBytesPerPixel is the largest inflated size of one pixel: 16-bit
// RGBA plus the filter byte of a one pixel wide row.
const maxRawBytesPerPixel = 9

// ErrTooLarge is returned for images whose declared scanlines exceed the
// Optimizer's limit.
var ErrTooLarge = errors.New("image too large")

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithMaxPixels limits width*height of images that are decoded for
// rewriting. Larger images are only recompressed, and only while their
// inflated scanlines fit in what an image of n pixels could need.
func WithMaxPixels(n int64) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.maxPixels = n
		}
	}
}

// Optimizer is stateless apart from its limits and safe for concurrent use.
// Trials for one call run sequentially on the calling goroutine.
type Optimizer struct {
	maxPixels int64
}

// New 创建优化器
func New(opts ...Option) *Optimizer {
	o := &Optimizer{maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var defaultOptimizer = New()

// Optimize runs the default Optimizer.
func Optimize(data []byte, opts Options) ([]byte, error) {
	return defaultOptimizer.Optimize(data, opts)
}

// Optimize returns the smallest of the rewritten image, the original
// scanlines recompressed, and the input with only stripping applied. Ties
// keep the earlier candidate, so output is deterministic for a given input
// and Options.
func (o *Optimizer) Optimize(data []byte, opts Options) ([]byte, error) {
	if len(opts.Deflaters) == 0 {
		return nil, fmt.Errorf("at least one deflater is required")
	}

	chunks, err := parseChunks(data)
	if err != nil {
		return nil, err
	}
	hdr, err := parseHeader(chunks[0])
	if err != nil {
		return nil, err
	}
	if err := checkStructure(hdr, chunks); err != nil {
		return nil, err
	}

	rawSize := hdr.rawSize()
	if limit := o.maxRawSize(); rawSize > limit {
		return nil, fmt.Errorf("%w: %dx%d needs %d bytes of scanlines, limit is %d",
			ErrTooLarge, hdr.Width, hdr.Height, rawSize, limit)
	}

	stripped := stripChunks(chunks, opts.Strip)
	idat := concatIDAT(stripped)

	var candidates [][]byte

	if !layoutPinned(stripped) && len(opts.Filters) > 0 &&
		int64(hdr.Width)*int64(hdr.Height) <= o.maxPixels {
		rewritten, err := o.rewrite(data, hdr, stripped, opts)
		if err != nil {
			return nil, err
		}
		if rewritten != nil {
			candidates = append(candidates, rewritten)
		}
	}

	raw, err := inflate(idat, rawSize)
	if err != nil {
		return nil, err
	}
	deflated, err := smallestDeflate(raw, opts.Deflaters)
	if err != nil {
		return nil, err
	}
	candidates = append(candidates, encodeChunks(replaceIDAT(stripped, deflated)))
	candidates = append(candidates, encodeChunks(stripped))

	best := candidates[0]
	for _, c := range candidates[1:] {
		if len(c) < len(best) {
			best = c
		}
	}
	return best, nil
}

func (o *Optimizer) maxRawSize() int64 {
	if o.maxPixels > math.MaxInt64/maxRawBytesPerPixel {
		return math.MaxInt64
	}
	return o.maxPixels * maxRawBytesPerPixel
}

func checkStructure(hdr header, chunks []chunk) error {
	var sawIDAT, sawPLTE bool
	for _, c := range chunks[1:] {
		switch c.Type {
		case "IHDR":
			return fmt.Errorf("duplicate IHDR chunk")
		case "IDAT":
			sawIDAT = true
		case "PLTE":
			if sawIDAT {
				return fmt.Errorf("PLTE after IDAT")
			}
			if len(c.Data) == 0 || len(c.Data)%3 != 0 || len(c.Data)/3 > 256 {
				return fmt.Errorf("invalid PLTE length %d", len(c.Data))
			}
			sawPLTE = true
		default:
			if c.critical() && !knownChunks[c.Type] {
				return fmt.Errorf("unknown critical chunk %s", c.Type)
			}
		}
	}
	if !sawIDAT {
		return fmt.Errorf("missing IDAT chunk")
	}
	if hdr.ColorType == colorPalette && !sawPLTE {
		return fmt.Errorf("missing PLTE chunk for palette image")
	}
	return nil
}

func concatIDAT(chunks []chunk) []byte {
	var n int
	for _, c := range chunks {
		if c.Type == "IDAT" {
			n += len(c.Data)
		}
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		if c.Type == "IDAT" {
			out = append(out, c.Data...)
		}
	}
	return out
}

// replaceIDAT swaps the IDAT run for a single chunk holding idat.
func replaceIDAT(chunks []chunk, idat []byte) []chunk {
	out := make([]chunk, 0, len(chunks))
	placed := false
	for _, c := range chunks {
		if c.Type != "IDAT" {
			out = append(out, c)
			continue
		}
		if !placed {
			out = append(out, chunk{Type: "IDAT", Data: idat})
			placed = true
		}
	}
	return out
}

// rewrite re-encodes the pixels in every candidate layout with every filter
// and deflater, returning the smallest stream or nil when no layout fits.
func (o *Optimizer) rewrite(data []byte, src header, stripped []chunk, opts Options) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode pixels: %w", err)
	}
	px := extractPixels(img)
	layouts := candidateLayouts(src, img, analyze(px), opts.Reductions)

	var (
		best       []byte
		bestLayout layout
	)
	for _, l := range layouts {
		raw, err := l.pack(px)
		if err != nil {
			return nil, err
		}
		hdr := l.header(px.w, px.h)
		rowBytes, bpp := hdr.rowBytes(hdr.Width), bytesPerPixel(hdr)

		for _, f := range opts.Filters {
			filtered, err := filterImage(raw, rowBytes, bpp, f)
			if err != nil {
				return nil, err
			}
			deflated, err := smallestDeflate(filtered, opts.Deflaters)
			if err != nil {
				return nil, err
			}
			// Layouts differ in PLTE/tRNS overhead, so compare whole
			// auxiliary payload sizes rather than IDAT alone.
			if best == nil || len(deflated)+l.overhead() < len(best)+bestLayout.overhead() {
				best, bestLayout = deflated, l
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	return encodeChunks(assemble(bestLayout, px.w, px.h, stripped, best)), nil
}

// overhead is the size of the PLTE and tRNS chunks l adds.
func (l layout) overhead() int {
	n := 0
	if p := l.plte(); p != nil {
		n += 12 + len(p)
	}
	if t := l.trns(); t != nil {
		n += 12 + len(t)
	}
	return n
}

// assemble orders the rewritten stream: IHDR, ancillary chunks that preceded
// the image data, PLTE, tRNS, IDAT, the remaining ancillary chunks, IEND.
func assemble(l layout, w, h int, stripped []chunk, idat []byte) []chunk {
	var before, after []chunk
	sawIDAT := false
	for _, c := range stripped {
		switch c.Type {
		case "IDAT":
			sawIDAT = true
		case "IHDR", "PLTE", "tRNS", "IEND":
		default:
			if sawIDAT {
				after = append(after, c)
			} else {
				before = append(before, c)
			}
		}
	}

	out := make([]chunk, 0, len(before)+len(after)+5)
	out = append(out, chunk{Type: "IHDR", Data: l.header(w, h).encode()})
	out = append(out, before...)
	if p := l.plte(); p != nil {
		out = append(out, chunk{Type: "PLTE", Data: p})
	}
	if t := l.trns(); t != nil {
		out = append(out, chunk{Type: "tRNS", Data: t})
	}
	out = append(out, chunk{Type: "IDAT", Data: idat})
	out = append(out, after...)
	out = append(out, chunk{Type: "IEND"})
	return out
}
