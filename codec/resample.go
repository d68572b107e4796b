package codec

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// Resampler scales a pixel grid to exact dimensions.
type Resampler interface {
	Resize(img image.Image, width, height uint32) image.Image
}

// ResamplerKind names a Resampler implementation.
type ResamplerKind string

const (
	// ResamplerNfnt uses github.com/nfnt/resize with the Lanczos3 kernel.
	ResamplerNfnt ResamplerKind = "nfnt"
	// ResamplerImaging uses github.com/disintegration/imaging with its
	// 3-lobe Lanczos filter.
	ResamplerImaging ResamplerKind = "imaging"
)

// NewResampler returns the named Lanczos-3 resampler. An empty kind selects
// ResamplerNfnt.
func NewResampler(kind ResamplerKind) (Resampler, error) {
	switch ResamplerKind(strings.ToLower(string(kind))) {
	case "", ResamplerNfnt:
		return NfntResampler{}, nil
	case ResamplerImaging:
		return ImagingResampler{}, nil
	default:
		return nil, fmt.Errorf("unknown resampler %q", kind)
	}
}

// NfntResampler implements Resampler using pure Go nfnt/resize.
type NfntResampler struct{}

func (NfntResampler) Resize(img image.Image, width, height uint32) image.Image {
	// Both dimensions are given, so nfnt does not preserve aspect ratio on
	// its own; the caller has already computed the target height.
	return resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
}

// ImagingResampler implements Resampler using disintegration/imaging.
type ImagingResampler struct{}

func (ImagingResampler) Resize(img image.Image, width, height uint32) image.Image {
	return imaging.Resize(img, int(width), int(height), imaging.Lanczos)
}
