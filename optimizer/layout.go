package optimizer

import (
	"fmt"
	"image"
	"image/color"
)

// layout is a concrete pixel encoding: IHDR color type and depth plus the
// PLTE and tRNS payloads it implies.
type layout struct {
	colorType uint8
	bitDepth  uint8
	palette   []color.NRGBA
	key       *[3]uint16
}

func (l layout) String() string {
	return fmt.Sprintf("type%d/%dbit", l.colorType, l.bitDepth)
}

func (l layout) header(w, h int) header {
	return header{Width: uint32(w), Height: uint32(h), BitDepth: l.bitDepth, ColorType: l.colorType}
}

// candidateLayouts lists the layouts worth trying for p, smallest first by
// expectation. Without reductions only the source layout is offered, and
// only when it can represent the pixels.
func candidateLayouts(src header, img image.Image, a analysis, reductions bool) []layout {
	if !reductions {
		if l, ok := sourceLayout(src, img, a); ok {
			return []layout{l}
		}
		return nil
	}

	var out []layout
	depth := uint8(8)
	if a.need16 {
		depth = 16
	}

	switch {
	case a.gray && (a.opaque || a.keyable):
		l := layout{colorType: colorGray, bitDepth: depth}
		if !a.need16 {
			l.bitDepth = a.grayDepth
		}
		if a.keyable {
			key := a.key
			l.key = &key
		}
		out = append(out, l)
	case a.gray:
		out = append(out, layout{colorType: colorGrayAlpha, bitDepth: depth})
	case a.opaque || a.keyable:
		l := layout{colorType: colorRGB, bitDepth: depth}
		if a.keyable {
			key := a.key
			l.key = &key
		}
		out = append(out, l)
	default:
		out = append(out, layout{colorType: colorRGBA, bitDepth: depth})
	}

	if a.colors != nil {
		out = append(out, paletteLayout(a.colors))
	}
	return out
}

// paletteLayout orders translucent entries first so tRNS can stop at the
// last of them.
func paletteLayout(colors []color.NRGBA) layout {
	palette := make([]color.NRGBA, 0, len(colors))
	for _, c := range colors {
		if c.A != 0xff {
			palette = append(palette, c)
		}
	}
	for _, c := range colors {
		if c.A == 0xff {
			palette = append(palette, c)
		}
	}
	return layout{colorType: colorPalette, bitDepth: paletteDepth(len(palette)), palette: palette}
}

func paletteDepth(n int) uint8 {
	switch {
	case n <= 2:
		return 1
	case n <= 4:
		return 2
	case n <= 16:
		return 4
	default:
		return 8
	}
}

func sourceLayout(src header, img image.Image, a analysis) (layout, bool) {
	l := layout{colorType: src.ColorType, bitDepth: src.BitDepth}
	switch src.ColorType {
	case colorPalette:
		p, ok := img.(*image.Paletted)
		if !ok || len(p.Palette) > 1<<src.BitDepth {
			return layout{}, false
		}
		l.palette = make([]color.NRGBA, len(p.Palette))
		for i, c := range p.Palette {
			v := toNRGBA64(c)
			l.palette[i] = color.NRGBA{uint8(v.R >> 8), uint8(v.G >> 8), uint8(v.B >> 8), uint8(v.A >> 8)}
		}
	case colorGray, colorRGB:
		if src.ColorType == colorGray && !a.gray {
			return layout{}, false
		}
		if !a.opaque {
			if !a.keyable {
				return layout{}, false
			}
			key := a.key
			l.key = &key
		}
	}
	if src.BitDepth < 16 && a.need16 {
		return layout{}, false
	}
	return l, true
}

// scale converts a 16-bit sample to depth bits. Callers guarantee the value
// is exactly representable.
func scale(v uint16, depth uint8) uint16 {
	switch depth {
	case 16:
		return v
	case 8:
		return v >> 8
	default:
		return (v >> 8) / (255 / (1<<depth - 1))
	}
}

// pack serializes p into unfiltered scanlines for l, one row of rowBytes
// after another.
func (l layout) pack(p *pixels) ([]byte, error) {
	hdr := l.header(p.w, p.h)
	rowBytes := hdr.rowBytes(uint32(p.w))
	out := make([]byte, rowBytes*p.h)

	var index map[color.NRGBA]uint8
	if l.colorType == colorPalette {
		index = make(map[color.NRGBA]uint8, len(l.palette))
		for i := len(l.palette) - 1; i >= 0; i-- {
			index[l.palette[i]] = uint8(i)
		}
	}

	for y := 0; y < p.h; y++ {
		row := out[y*rowBytes : (y+1)*rowBytes]
		bit := 0
		for x := 0; x < p.w; x++ {
			r, g, b, a := p.at(y*p.w + x)
			switch l.colorType {
			case colorPalette:
				c := color.NRGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
				idx, ok := index[c]
				if !ok {
					return nil, fmt.Errorf("color %v missing from palette", c)
				}
				putBits(row, &bit, uint16(idx), l.bitDepth)
			case colorGray:
				putBits(row, &bit, scale(r, l.bitDepth), l.bitDepth)
			case colorGrayAlpha:
				putBits(row, &bit, scale(r, l.bitDepth), l.bitDepth)
				putBits(row, &bit, scale(a, l.bitDepth), l.bitDepth)
			case colorRGB:
				putBits(row, &bit, scale(r, l.bitDepth), l.bitDepth)
				putBits(row, &bit, scale(g, l.bitDepth), l.bitDepth)
				putBits(row, &bit, scale(b, l.bitDepth), l.bitDepth)
			case colorRGBA:
				putBits(row, &bit, scale(r, l.bitDepth), l.bitDepth)
				putBits(row, &bit, scale(g, l.bitDepth), l.bitDepth)
				putBits(row, &bit, scale(b, l.bitDepth), l.bitDepth)
				putBits(row, &bit, scale(a, l.bitDepth), l.bitDepth)
			}
		}
	}
	return out, nil
}

// putBits writes v with depth bits at bit offset *bit, MSB first.
func putBits(row []byte, bit *int, v uint16, depth uint8) {
	switch depth {
	case 16:
		row[*bit/8] = byte(v >> 8)
		row[*bit/8+1] = byte(v)
	case 8:
		row[*bit/8] = byte(v)
	default:
		shift := 8 - int(depth) - *bit%8
		row[*bit/8] |= byte(v) << shift
	}
	*bit += int(depth)
}

// plte and trns return the PLTE and tRNS payloads for l; nil means the
// chunk is omitted.
func (l layout) plte() []byte {
	if l.colorType != colorPalette {
		return nil
	}
	b := make([]byte, 0, 3*len(l.palette))
	for _, c := range l.palette {
		b = append(b, c.R, c.G, c.B)
	}
	return b
}

func (l layout) trns() []byte {
	switch {
	case l.colorType == colorPalette:
		last := -1
		for i, c := range l.palette {
			if c.A != 0xff {
				last = i
			}
		}
		if last < 0 {
			return nil
		}
		b := make([]byte, last+1)
		for i := range b {
			b[i] = l.palette[i].A
		}
		return b
	case l.key == nil:
		return nil
	case l.colorType == colorGray:
		v := scale(l.key[0], l.bitDepth)
		return []byte{byte(v >> 8), byte(v)}
	default:
		b := make([]byte, 0, 6)
		for _, s := range l.key {
			v := scale(s, l.bitDepth)
			b = append(b, byte(v>>8), byte(v))
		}
		return b
	}
}
