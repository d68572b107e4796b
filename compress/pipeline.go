package compress

import (
	"fmt"
	"math"

	"github.com/leeforge/pngpress/codec"
	"github.com/leeforge/pngpress/errors"
	"github.com/leeforge/pngpress/optimizer"
)

// Optimizer losslessly re-encodes PNG bytes.
type Optimizer interface {
	Optimize(data []byte, opts optimizer.Options) ([]byte, error)
}

// pipeline runs the stages of one request in order on the calling
// goroutine: optional decode, resize and encode, then optimize.
type pipeline struct {
	decoder   codec.Decoder
	encoder   codec.Encoder
	resampler codec.Resampler
	optimizer Optimizer
	// maxPixels bounds width*height of images decoded for resizing.
	maxPixels int64
}

// stats describes what a run did, for logging.
type stats struct {
	inputSize int
	resized   bool
	width     int
	height    int
}

func (p *pipeline) run(req *Request) ([]byte, stats, error) {
	var st stats

	data, err := req.buf.Take()
	if err != nil {
		return nil, st, errors.NewInvalidArgument(msgBuffer).WithInnerError(err)
	}
	st.inputSize = len(data)

	if width, ok := req.Width(); ok {
		data, st, err = p.resize(data, width, st)
		if err != nil {
			return nil, st, err
		}
	}

	out, err := p.optimizer.Optimize(data, req.OptimizerOptions())
	if err != nil {
		return nil, st, errors.NewOptimization(err)
	}
	return out, st, nil
}

// resize downscales data to width, keeping the aspect ratio. Widths at or
// above the original leave data untouched.
func (p *pipeline) resize(data []byte, width uint32, st stats) ([]byte, stats, error) {
	// The decoder allocates the whole pixel grid from the header, so the
	// declared size is checked before any pixels are read.
	declaredW, declaredH, err := codec.Dimensions(data)
	if err != nil {
		return nil, st, errors.NewDecode(err)
	}
	if p.maxPixels > 0 && int64(declaredW)*int64(declaredH) > p.maxPixels {
		return nil, st, errors.NewDecode(fmt.Errorf("image %dx%d exceeds %d pixels", declaredW, declaredH, p.maxPixels)).
			WithDetail("width", declaredW).
			WithDetail("height", declaredH).
			WithDetail("maxPixels", p.maxPixels)
	}

	img, err := p.decoder.Decode(data)
	if err != nil {
		return nil, st, errors.NewDecode(err)
	}

	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	st.width, st.height = origW, origH
	if int64(width) >= int64(origW) {
		return data, st, nil
	}

	height := targetHeight(origW, origH, width)
	resized := p.resampler.Resize(img, width, height)

	encoded, err := p.encoder.Encode(resized)
	if err != nil {
		return nil, st, errors.NewEncode(err)
	}
	st.resized = true
	st.width, st.height = int(width), int(height)
	return encoded, st, nil
}

// targetHeight scales origH by width/origW, rounding half away from zero.
// A result of 0 becomes 1; width itself is never adjusted.
func targetHeight(origW, origH int, width uint32) uint32 {
	ratio := float64(width) / float64(origW)
	h := math.Round(float64(origH) * ratio)
	if h < 1 {
		return 1
	}
	return uint32(h)
}
