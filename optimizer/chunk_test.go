package optimizer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/pngpress/testutil"
)

func TestParseChunks_RoundTrip(t *testing.T) {
	input := testutil.InsertChunk(t, testutil.GradientPNG(t, 10, 10), "tEXt", testutil.TextChunk("k", "v"))

	chunks, err := parseChunks(input)
	require.NoError(t, err)
	assert.Equal(t, "IHDR", chunks[0].Type)
	assert.Equal(t, "tEXt", chunks[1].Type)
	assert.Equal(t, "IEND", chunks[len(chunks)-1].Type)

	assert.Equal(t, input, encodeChunks(chunks))
}

func TestParseChunks_IgnoresTrailingBytes(t *testing.T) {
	input := testutil.GradientPNG(t, 4, 4)
	chunks, err := parseChunks(append(append([]byte(nil), input...), "junk"...))
	require.NoError(t, err)
	assert.Equal(t, input, encodeChunks(chunks))
}

func TestParseChunks_Errors(t *testing.T) {
	_, err := parseChunks([]byte("nope"))
	assert.ErrorIs(t, err, ErrNotPNG)

	var buf bytes.Buffer
	buf.Write(pngSignature)
	writeChunk(&buf, "IDAT", []byte{1})
	_, err = parseChunks(buf.Bytes())
	assert.ErrorContains(t, err, "want IHDR")

	buf.Reset()
	buf.Write(pngSignature)
	writeChunk(&buf, "IH1R", make([]byte, 13))
	_, err = parseChunks(buf.Bytes())
	assert.ErrorContains(t, err, "invalid chunk type")
}

func TestParseHeader(t *testing.T) {
	h := header{Width: 3, Height: 2, BitDepth: 4, ColorType: colorPalette, Interlace: 1}
	got, err := parseHeader(chunk{Type: "IHDR", Data: h.encode()})
	require.NoError(t, err)
	assert.Equal(t, h, got)

	bad := header{Width: 3, Height: 2, BitDepth: 16, ColorType: colorPalette}
	_, err = parseHeader(chunk{Type: "IHDR", Data: bad.encode()})
	assert.Error(t, err)

	_, err = parseHeader(chunk{Type: "IHDR", Data: header{Width: 0, Height: 1, BitDepth: 8}.encode()})
	assert.Error(t, err)
}

func TestHeaderRawSize(t *testing.T) {
	rgb := header{Width: 10, Height: 3, BitDepth: 8, ColorType: colorRGB}
	assert.Equal(t, int64(3*(1+30)), rgb.rawSize())

	bits := header{Width: 9, Height: 2, BitDepth: 1, ColorType: colorGray}
	assert.Equal(t, int64(2*(1+2)), bits.rawSize())

	// A 1x1 interlaced image only has pixels in the first pass.
	one := header{Width: 1, Height: 1, BitDepth: 8, ColorType: colorRGBA, Interlace: 1}
	assert.Equal(t, int64(1+4), one.rawSize())
}
