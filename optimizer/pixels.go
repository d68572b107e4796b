package optimizer

import (
	"image"
	"image/color"
)

// pixels holds an image as non-premultiplied 16-bit RGBA samples, four per
// pixel, row-major. Every PNG color type maps onto it without loss.
type pixels struct {
	w, h int
	pix  []uint16
}

func (p *pixels) at(i int) (r, g, b, a uint16) {
	s := p.pix[i*4 : i*4+4 : i*4+4]
	return s[0], s[1], s[2], s[3]
}

// extractPixels converts img to canonical samples. The type switch covers
// everything image/png returns; the generic path handles the rest.
func extractPixels(img image.Image) *pixels {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	p := &pixels{w: w, h: h, pix: make([]uint16, w*h*4)}

	i := 0
	put := func(c color.NRGBA64) {
		p.pix[i], p.pix[i+1], p.pix[i+2], p.pix[i+3] = c.R, c.G, c.B, c.A
		i += 4
	}

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w*4]
			for x := 0; x < w*4; x++ {
				p.pix[i+x] = uint16(row[x]) * 0x101
			}
			i += w * 4
		}
	case *image.NRGBA64:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w*8]
			for x := 0; x < w*4; x++ {
				p.pix[i+x] = uint16(row[2*x])<<8 | uint16(row[2*x+1])
			}
			i += w * 4
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			for _, v := range src.Pix[y*src.Stride : y*src.Stride+w] {
				g := uint16(v) * 0x101
				put(color.NRGBA64{g, g, g, 0xffff})
			}
		}
	case *image.Gray16:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w*2]
			for x := 0; x < w; x++ {
				g := uint16(row[2*x])<<8 | uint16(row[2*x+1])
				put(color.NRGBA64{g, g, g, 0xffff})
			}
		}
	case *image.Paletted:
		palette := make([]color.NRGBA64, len(src.Palette))
		for j, c := range src.Palette {
			palette[j] = toNRGBA64(c)
		}
		for y := 0; y < h; y++ {
			for _, idx := range src.Pix[y*src.Stride : y*src.Stride+w] {
				put(palette[idx])
			}
		}
	default:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				put(toNRGBA64(img.At(x, y)))
			}
		}
	}
	return p
}

// toNRGBA64 avoids the premultiply round trip of color.NRGBA64Model for the
// non-premultiplied types, which would lose precision on translucent values.
func toNRGBA64(c color.Color) color.NRGBA64 {
	switch v := c.(type) {
	case color.NRGBA:
		return color.NRGBA64{uint16(v.R) * 0x101, uint16(v.G) * 0x101, uint16(v.B) * 0x101, uint16(v.A) * 0x101}
	case color.NRGBA64:
		return v
	case color.RGBA:
		if v.A == 0xff {
			return color.NRGBA64{uint16(v.R) * 0x101, uint16(v.G) * 0x101, uint16(v.B) * 0x101, 0xffff}
		}
	case color.RGBA64:
		if v.A == 0xffff {
			return color.NRGBA64(v)
		}
	case color.Gray:
		g := uint16(v.Y) * 0x101
		return color.NRGBA64{g, g, g, 0xffff}
	case color.Gray16:
		return color.NRGBA64{v.Y, v.Y, v.Y, 0xffff}
	}
	return color.NRGBA64Model.Convert(c).(color.NRGBA64)
}

// analysis summarizes which lossless reductions an image admits.
type analysis struct {
	need16 bool
	opaque bool
	gray   bool
	// grayDepth is the smallest gray bit depth holding every value; only
	// meaningful when gray && !need16.
	grayDepth uint8
	// keyable means transparency is a single fully transparent color that no
	// opaque pixel shares, so a tRNS color key can replace an alpha channel.
	keyable bool
	key     [3]uint16
	// colors lists the distinct 8-bit colors in first-seen order, or nil when
	// there are more than 256 or the image needs 16 bits.
	colors []color.NRGBA
}

func analyze(p *pixels) analysis {
	a := analysis{opaque: true, gray: true, keyable: true}
	ok1, ok2, ok4 := true, true, true

	seen := make(map[color.NRGBA]struct{}, 257)
	countColors := true
	haveKey := false

	n := p.w * p.h
	for i := 0; i < n; i++ {
		r, g, b, al := p.at(i)

		if !a.need16 && (r>>8 != r&0xff || g>>8 != g&0xff || b>>8 != b&0xff || al>>8 != al&0xff) {
			a.need16 = true
			countColors = false
			a.colors = nil
		}
		if al != 0xffff {
			a.opaque = false
			switch {
			case al != 0:
				a.keyable = false
			case !haveKey:
				a.key = [3]uint16{r, g, b}
				haveKey = true
			case a.key != [3]uint16{r, g, b}:
				a.keyable = false
			}
		}
		if r != g || g != b {
			a.gray = false
		} else {
			v := r >> 8
			ok1 = ok1 && v%255 == 0
			ok2 = ok2 && v%85 == 0
			ok4 = ok4 && v%17 == 0
		}

		if countColors {
			c := color.NRGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(al >> 8)}
			if _, ok := seen[c]; !ok {
				if len(seen) == 256 {
					countColors = false
					a.colors = nil
				} else {
					seen[c] = struct{}{}
					a.colors = append(a.colors, c)
				}
			}
		}
	}

	switch {
	case ok1:
		a.grayDepth = 1
	case ok2:
		a.grayDepth = 2
	case ok4:
		a.grayDepth = 4
	default:
		a.grayDepth = 8
	}

	if a.opaque {
		a.keyable = false
	} else if a.keyable {
		for i := 0; i < n; i++ {
			r, g, b, al := p.at(i)
			if al == 0xffff && [3]uint16{r, g, b} == a.key {
				a.keyable = false
				break
			}
		}
	}
	return a
}
