// Package testutil builds PNG fixtures in memory for tests across the module.
package testutil

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// OnePixelPNG is a 1x1 RGBA PNG as produced by common encoders.
const OnePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAAC0lEQVR4nGNgAAIAAAUAAXpeqz8AAAAASUVORK5CYII="

// OnePixel returns the decoded OnePixelPNG bytes.
func OnePixel(tb testing.TB) []byte {
	tb.Helper()
	data, err := base64.StdEncoding.DecodeString(OnePixelPNG)
	if err != nil {
		tb.Fatalf("decode fixture: %v", err)
	}
	return data
}

// Gradient returns an opaque RGB gradient.
func Gradient(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 255) / max(width-1, 1)),
				G: uint8((y * 255) / max(height-1, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// TranslucentGradient is Gradient with a horizontal alpha ramp.
func TranslucentGradient(width, height int) *image.NRGBA {
	img := Gradient(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i+3] = uint8(64 + (x*191)/max(width-1, 1))
		}
	}
	return img
}

// Stripes returns an opaque image using only the given colours, cycling per
// column. Useful for palette reductions.
func Stripes(width, height int, colors []color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, colors[x%len(colors)])
		}
	}
	return img
}

// Noise fills an opaque image with colors picked pseudo-randomly from
// colors. The sequence is fixed by seed, so fixtures are reproducible and no
// filter can predict them.
func Noise(width, height int, colors []color.NRGBA, seed uint32) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	state := seed
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			state = state*1664525 + 1013904223
			img.SetNRGBA(x, y, colors[int(state>>16)%len(colors)])
		}
	}
	return img
}

// Gradient16 is an opaque 16-bit gradient whose samples all have equal high
// and low bytes.
func Gradient16(width, height int) *image.NRGBA64 {
	src := Gradient(width, height)
	img := image.NewNRGBA64(src.Bounds())
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := src.NRGBAAt(x, y)
			img.SetNRGBA64(x, y, color.NRGBA64{
				R: uint16(c.R) * 0x101,
				G: uint16(c.G) * 0x101,
				B: uint16(c.B) * 0x101,
				A: 0xffff,
			})
		}
	}
	return img
}

// GrayRamp returns an RGBA image whose pixels all have R == G == B.
func GrayRamp(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8((x + y) % 256)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// EncodePNG encodes img with the standard library defaults.
func EncodePNG(tb testing.TB, img image.Image) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// GradientPNG is EncodePNG(Gradient(width, height)).
func GradientPNG(tb testing.TB, width, height int) []byte {
	tb.Helper()
	return EncodePNG(tb, Gradient(width, height))
}

// DecodePNG decodes data or fails the test.
func DecodePNG(tb testing.TB, data []byte) image.Image {
	tb.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		tb.Fatalf("decode output: %v", err)
	}
	return img
}

// SamePixels reports whether a and b decode to identical non-premultiplied
// 16-bit pixel values.
func SamePixels(a, b image.Image) bool {
	if a.Bounds().Size() != b.Bounds().Size() {
		return false
	}
	ab, bb := a.Bounds(), b.Bounds()
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			ca := color.NRGBA64Model.Convert(a.At(ab.Min.X+x, ab.Min.Y+y))
			cb := color.NRGBA64Model.Convert(b.At(bb.Min.X+x, bb.Min.Y+y))
			if ca != cb {
				return false
			}
		}
	}
	return true
}

// InsertChunk inserts an ancillary chunk right after IHDR.
func InsertChunk(tb testing.TB, data []byte, typ string, payload []byte) []byte {
	tb.Helper()
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	if len(data) < ihdrEnd || string(data[12:16]) != "IHDR" {
		tb.Fatalf("fixture is not a PNG with a leading IHDR")
	}

	var out bytes.Buffer
	out.Write(data[:ihdrEnd])
	out.Write(Chunk(typ, payload))
	out.Write(data[ihdrEnd:])
	return out.Bytes()
}

// AppendBeforeIEND inserts a chunk just before the trailing IEND chunk.
func AppendBeforeIEND(tb testing.TB, data []byte, typ string, payload []byte) []byte {
	tb.Helper()
	const iendLen = 12
	if len(data) < iendLen || string(data[len(data)-8:len(data)-4]) != "IEND" {
		tb.Fatalf("fixture does not end with IEND")
	}

	var out bytes.Buffer
	out.Write(data[:len(data)-iendLen])
	out.Write(Chunk(typ, payload))
	out.Write(data[len(data)-iendLen:])
	return out.Bytes()
}

// HeaderPNG is a structurally valid PNG whose IHDR declares width x height
// but whose IDAT inflates to only a few zero bytes.
func HeaderPNG(width, height uint32, depth, colorType uint8) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = depth
	ihdr[9] = colorType

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	zw.Write(make([]byte, 16))
	zw.Close()

	out := []byte("\x89PNG\r\n\x1a\n")
	out = append(out, Chunk("IHDR", ihdr)...)
	out = append(out, Chunk("IDAT", idat.Bytes())...)
	return append(out, Chunk("IEND", nil)...)
}

// TextChunk builds a tEXt payload.
func TextChunk(keyword, text string) []byte {
	return append(append([]byte(keyword), 0), text...)
}

// Chunk serializes a PNG chunk with its CRC.
func Chunk(typ string, payload []byte) []byte {
	buf := make([]byte, 8, 12+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:8], typ)
	buf = append(buf, payload...)
	crc := crc32.NewIEEE()
	crc.Write(buf[4:])
	return binary.BigEndian.AppendUint32(buf, crc.Sum32())
}

// ChunkTypes lists the chunk types of a PNG stream in order.
func ChunkTypes(tb testing.TB, data []byte) []string {
	tb.Helper()
	if len(data) < 8 {
		tb.Fatalf("short PNG")
	}
	var types []string
	for off := 8; off+12 <= len(data); {
		n := int(binary.BigEndian.Uint32(data[off:]))
		types = append(types, string(data[off+4:off+8]))
		off += 12 + n
	}
	return types
}
