package optimizer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"math/bits"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// ErrNotPNG is returned for input without the PNG signature.
var ErrNotPNG = errors.New("not a PNG file")

// maxChunkLength is the largest length the format allows (2^31 - 1).
const maxChunkLength = 1<<31 - 1

// chunk is one parsed PNG chunk. Data aliases the input buffer and must not
// be modified.
type chunk struct {
	Type string
	Data []byte
}

func (c chunk) critical() bool {
	return c.Type[0]&0x20 == 0
}

func (c chunk) safeToCopy() bool {
	return c.Type[3]&0x20 != 0
}

// parseChunks splits data into chunks, verifying the signature, every CRC
// and the IHDR ... IEND framing. Bytes after IEND are ignored.
func parseChunks(data []byte) ([]chunk, error) {
	if len(data) < len(pngSignature) || !bytes.Equal(data[:len(pngSignature)], pngSignature) {
		return nil, ErrNotPNG
	}

	var chunks []chunk
	off := len(pngSignature)
	for {
		if len(data)-off < 12 {
			return nil, fmt.Errorf("truncated chunk at offset %d", off)
		}
		length := binary.BigEndian.Uint32(data[off:])
		if length > maxChunkLength {
			return nil, fmt.Errorf("chunk length %d out of range at offset %d", length, off)
		}
		typ := data[off+4 : off+8]
		if !validChunkType(typ) {
			return nil, fmt.Errorf("invalid chunk type %q at offset %d", typ, off)
		}
		end := off + 8 + int(length)
		if end+4 > len(data) || end < off {
			return nil, fmt.Errorf("truncated %s chunk at offset %d", typ, off)
		}

		want := binary.BigEndian.Uint32(data[end:])
		if got := crc32.ChecksumIEEE(data[off+4 : end]); got != want {
			return nil, fmt.Errorf("CRC mismatch in %s chunk: got %08x, want %08x", typ, got, want)
		}

		c := chunk{Type: string(typ), Data: data[off+8 : end]}
		if len(chunks) == 0 && c.Type != "IHDR" {
			return nil, fmt.Errorf("first chunk is %s, want IHDR", c.Type)
		}
		chunks = append(chunks, c)
		off = end + 4

		if c.Type == "IEND" {
			return chunks, nil
		}
	}
}

func validChunkType(t []byte) bool {
	for _, b := range t {
		if (b < 'A' || b > 'Z') && (b < 'a' || b > 'z') {
			return false
		}
	}
	return true
}

// writeChunk appends a serialized chunk to buf.
func writeChunk(buf *bytes.Buffer, typ string, data []byte) {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], typ)
	buf.Write(hdr[:])
	buf.Write(data)

	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	buf.Write(sum[:])
}

// encodeChunks serializes a complete PNG stream.
func encodeChunks(chunks []chunk) []byte {
	size := len(pngSignature)
	for _, c := range chunks {
		size += 12 + len(c.Data)
	}

	var buf bytes.Buffer
	buf.Grow(size)
	buf.Write(pngSignature)
	for _, c := range chunks {
		writeChunk(&buf, c.Type, c.Data)
	}
	return buf.Bytes()
}

// Color types.
const (
	colorGray      uint8 = 0
	colorRGB       uint8 = 2
	colorPalette   uint8 = 3
	colorGrayAlpha uint8 = 4
	colorRGBA      uint8 = 6
)

// header is the decoded IHDR.
type header struct {
	Width     uint32
	Height    uint32
	BitDepth  uint8
	ColorType uint8
	Interlace uint8
}

func parseHeader(c chunk) (header, error) {
	if len(c.Data) != 13 {
		return header{}, fmt.Errorf("IHDR has length %d, want 13", len(c.Data))
	}
	h := header{
		Width:     binary.BigEndian.Uint32(c.Data[0:]),
		Height:    binary.BigEndian.Uint32(c.Data[4:]),
		BitDepth:  c.Data[8],
		ColorType: c.Data[9],
		Interlace: c.Data[12],
	}
	if h.Width == 0 || h.Height == 0 || h.Width > maxChunkLength || h.Height > maxChunkLength {
		return header{}, fmt.Errorf("invalid dimensions %dx%d", h.Width, h.Height)
	}
	if c.Data[10] != 0 || c.Data[11] != 0 {
		return header{}, fmt.Errorf("unsupported compression or filter method")
	}
	if h.Interlace > 1 {
		return header{}, fmt.Errorf("unsupported interlace method %d", h.Interlace)
	}
	if !validDepth(h.ColorType, h.BitDepth) {
		return header{}, fmt.Errorf("invalid bit depth %d for color type %d", h.BitDepth, h.ColorType)
	}
	return h, nil
}

func validDepth(colorType, depth uint8) bool {
	switch colorType {
	case colorGray:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8 || depth == 16
	case colorPalette:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8
	case colorRGB, colorGrayAlpha, colorRGBA:
		return depth == 8 || depth == 16
	default:
		return false
	}
}

func (h header) encode() []byte {
	b := make([]byte, 13)
	binary.BigEndian.PutUint32(b[0:], h.Width)
	binary.BigEndian.PutUint32(b[4:], h.Height)
	b[8] = h.BitDepth
	b[9] = h.ColorType
	b[12] = h.Interlace
	return b
}

func channels(colorType uint8) int {
	switch colorType {
	case colorRGB:
		return 3
	case colorGrayAlpha:
		return 2
	case colorRGBA:
		return 4
	default:
		return 1
	}
}

func (h header) bitsPerPixel() int {
	return channels(h.ColorType) * int(h.BitDepth)
}

// rowBytes is the length of one unfiltered scanline of width pixels.
func (h header) rowBytes(width uint32) int {
	return (int(width)*h.bitsPerPixel() + 7) / 8
}

// rawSize is the length of the inflated IDAT stream, filter bytes included.
// It saturates at math.MaxInt64 for headers whose size does not fit.
func (h header) rawSize() int64 {
	if h.Interlace == 0 {
		return scanlineBytes(int64(h.Height), int64(h.Width), h.bitsPerPixel())
	}
	var size int64
	for _, p := range adam7 {
		w := (int64(h.Width) - int64(p.x) + int64(p.dx) - 1) / int64(p.dx)
		rows := (int64(h.Height) - int64(p.y) + int64(p.dy) - 1) / int64(p.dy)
		if w <= 0 || rows <= 0 {
			continue
		}
		pass := scanlineBytes(rows, w, h.bitsPerPixel())
		if pass > math.MaxInt64-size {
			return math.MaxInt64
		}
		size += pass
	}
	return size
}

// scanlineBytes is rows * (1 + ceil(width*bpp/8)), saturating on overflow.
func scanlineBytes(rows, width int64, bpp int) int64 {
	row := 1 + (width*int64(bpp)+7)/8
	hi, lo := bits.Mul64(uint64(rows), uint64(row))
	if hi != 0 || lo > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(lo)
}

var adam7 = [7]struct{ x, y, dx, dy int }{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}
