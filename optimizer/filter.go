package optimizer

import (
	"bytes"
	"fmt"
	"math"

	"github.com/klauspost/compress/flate"
)

// filterRow writes row filtered with type ft into out. prev is the previous
// unfiltered row, all zeros for the first one.
func filterRow(ft FilterStrategy, row, prev, out []byte, bpp int) {
	switch ft {
	case FilterNone:
		copy(out, row)
	case FilterSub:
		for i := range row {
			var left byte
			if i >= bpp {
				left = row[i-bpp]
			}
			out[i] = row[i] - left
		}
	case FilterUp:
		for i := range row {
			out[i] = row[i] - prev[i]
		}
	case FilterAverage:
		for i := range row {
			var left int
			if i >= bpp {
				left = int(row[i-bpp])
			}
			out[i] = row[i] - byte((left+int(prev[i]))/2)
		}
	case FilterPaeth:
		for i := range row {
			var left, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			out[i] = row[i] - paeth(left, prev[i], upLeft)
		}
	}
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

var basicFilters = [...]FilterStrategy{FilterNone, FilterSub, FilterUp, FilterAverage, FilterPaeth}

// filterImage filters raw scanlines with strategy, returning the IDAT
// payload before compression: one filter byte followed by the row, per row.
func filterImage(raw []byte, rowBytes, bpp int, strategy FilterStrategy) ([]byte, error) {
	if rowBytes == 0 || len(raw)%rowBytes != 0 {
		return nil, fmt.Errorf("raw data of %d bytes is not a whole number of %d byte rows", len(raw), rowBytes)
	}
	rows := len(raw) / rowBytes
	out := make([]byte, rows*(rowBytes+1))
	prev := make([]byte, rowBytes)

	var (
		scratch [len(basicFilters)][]byte
		brute   *bruteSelector
	)
	if strategy > FilterPaeth {
		for i := range scratch {
			scratch[i] = make([]byte, rowBytes)
		}
	}
	if strategy == FilterBrute {
		brute = newBruteSelector(rowBytes)
	}

	for y := 0; y < rows; y++ {
		row := raw[y*rowBytes : (y+1)*rowBytes]
		dst := out[y*(rowBytes+1) : (y+1)*(rowBytes+1)]

		switch strategy {
		case FilterNone, FilterSub, FilterUp, FilterAverage, FilterPaeth:
			dst[0] = byte(strategy)
			filterRow(strategy, row, prev, dst[1:], bpp)
		case FilterMinSum, FilterEntropy, FilterBrute:
			for i, ft := range basicFilters {
				filterRow(ft, row, prev, scratch[i], bpp)
			}
			var best int
			switch strategy {
			case FilterMinSum:
				best = pickMin(scratch[:], sumAbs)
			case FilterEntropy:
				best = pickMinFloat(scratch[:], entropy)
			default:
				best = brute.pick(scratch[:])
			}
			dst[0] = byte(basicFilters[best])
			copy(dst[1:], scratch[best])
			if brute != nil {
				brute.commit(dst)
			}
		default:
			return nil, fmt.Errorf("unknown filter strategy %d", strategy)
		}
		prev = row
	}
	return out, nil
}

func pickMin(candidates [][]byte, score func([]byte) int) int {
	best, bestScore := 0, math.MaxInt
	for i, c := range candidates {
		if s := score(c); s < bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func pickMinFloat(candidates [][]byte, score func([]byte) float64) int {
	best, bestScore := 0, math.Inf(1)
	for i, c := range candidates {
		if s := score(c); s < bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// sumAbs treats residuals as signed bytes.
func sumAbs(b []byte) int {
	sum := 0
	for _, v := range b {
		sum += abs(int(int8(v)))
	}
	return sum
}

func entropy(b []byte) float64 {
	var hist [256]int
	for _, v := range b {
		hist[v]++
	}
	n := float64(len(b))
	e := 0.0
	for _, c := range hist {
		if c > 0 {
			p := float64(c) / n
			e -= p * math.Log2(p)
		}
	}
	return e
}

// bruteSelector scores each candidate row by how small it deflates right
// after the previously chosen row.
type bruteSelector struct {
	prev []byte
	buf  bytes.Buffer
	w    *flate.Writer
}

func newBruteSelector(rowBytes int) *bruteSelector {
	s := &bruteSelector{prev: make([]byte, 0, rowBytes+1)}
	// Level 1 never fails to construct.
	s.w, _ = flate.NewWriter(&s.buf, flate.BestSpeed)
	return s
}

func (s *bruteSelector) pick(candidates [][]byte) int {
	best, bestSize := 0, math.MaxInt
	for i, c := range candidates {
		s.buf.Reset()
		s.w.Reset(&s.buf)
		_, _ = s.w.Write(s.prev)
		_, _ = s.w.Write([]byte{byte(basicFilters[i])})
		_, _ = s.w.Write(c)
		_ = s.w.Close()
		if s.buf.Len() < bestSize {
			best, bestSize = i, s.buf.Len()
		}
	}
	return best
}

func (s *bruteSelector) commit(row []byte) {
	s.prev = append(s.prev[:0], row...)
}

// bytesPerPixel is the filter unit for h: at least one byte.
func bytesPerPixel(h header) int {
	bpp := h.bitsPerPixel() / 8
	if bpp < 1 {
		return 1
	}
	return bpp
}
