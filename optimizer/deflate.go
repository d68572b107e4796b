package optimizer

import (
	"bytes"
	stdzlib "compress/zlib"
	"fmt"
	"io"

	kpzlib "github.com/klauspost/compress/zlib"
)

// Backend identifies a zlib implementation.
type Backend uint8

const (
	// BackendZlib is the standard library compress/zlib.
	BackendZlib Backend = iota
	// BackendKlauspost is github.com/klauspost/compress/zlib.
	BackendKlauspost
)

// Deflater compresses IDAT payloads into a zlib stream.
type Deflater struct {
	Backend Backend
	Level   int
}

// Zlib returns a standard library deflater at level.
func Zlib(level int) Deflater {
	return Deflater{Backend: BackendZlib, Level: level}
}

// Klauspost returns a klauspost/compress deflater at level.
func Klauspost(level int) Deflater {
	return Deflater{Backend: BackendKlauspost, Level: level}
}

func (d Deflater) String() string {
	switch d.Backend {
	case BackendZlib:
		return fmt.Sprintf("zlib-%d", d.Level)
	case BackendKlauspost:
		return fmt.Sprintf("klauspost-%d", d.Level)
	default:
		return fmt.Sprintf("backend%d-%d", d.Backend, d.Level)
	}
}

// Deflate compresses data into a complete zlib stream.
func (d Deflater) Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)

	var (
		w   io.WriteCloser
		err error
	)
	switch d.Backend {
	case BackendZlib:
		w, err = stdzlib.NewWriterLevel(&buf, d.Level)
	case BackendKlauspost:
		w, err = kpzlib.NewWriterLevel(&buf, d.Level)
	default:
		err = fmt.Errorf("unknown deflate backend %d", d.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d, err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("%s: %w", d, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", d, err)
	}
	return buf.Bytes(), nil
}

// inflate decompresses exactly size bytes of a zlib stream. Trailing data
// beyond size is ignored, the same way decoders ignore it. The buffer grows
// with the data actually inflated, so a header that overstates the size
// fails on a short stream without reserving the claimed amount.
func inflate(data []byte, size int64) ([]byte, error) {
	r, err := kpzlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("inflate IDAT: %w", err)
	}
	defer r.Close()

	var out bytes.Buffer
	n, err := io.CopyN(&out, r, size)
	if err != nil {
		return nil, fmt.Errorf("inflate IDAT: expected %d bytes, got %d: %w", size, n, err)
	}
	return out.Bytes(), nil
}

// smallestDeflate runs every deflater over data and returns the shortest
// stream. Ties keep the earlier deflater.
func smallestDeflate(data []byte, deflaters []Deflater) ([]byte, error) {
	var best []byte
	for _, d := range deflaters {
		out, err := d.Deflate(data)
		if err != nil {
			return nil, err
		}
		if best == nil || len(out) < len(best) {
			best = out
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no deflaters configured")
	}
	return best, nil
}
