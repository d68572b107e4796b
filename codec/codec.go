// Package codec provides the PNG decode/encode and resampling collaborators
// used by the compression pipeline. Everything here is stateless and safe for
// concurrent use.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Decoder turns compressed bytes into a pixel grid.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// Encoder turns a pixel grid back into compressed bytes of the same format.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
}

// Codec is a Decoder and Encoder for one raster format.
type Codec interface {
	Decoder
	Encoder
}

// PNGCodec implements Codec with the standard library PNG coder.
type PNGCodec struct {
	// CompressionLevel is passed to png.Encoder. The zero value is the
	// encoder's default, which is what the pipeline expects from a plain
	// re-encode; the optimizer does the heavy lifting afterwards.
	CompressionLevel png.CompressionLevel
}

// PNG is the default codec.
var PNG Codec = PNGCodec{}

// Decode only accepts PNG input.
func (c PNGCodec) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty buffer")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (c PNGCodec) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", b.Dx(), b.Dy())
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: c.CompressionLevel}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Dimensions reads the width and height from the PNG header without decoding
// the pixel data.
func Dimensions(data []byte) (int, int, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
