package optimizer

import (
	"fmt"
	"strings"
)

// StripChunks selects which ancillary chunks survive optimization.
type StripChunks uint8

const (
	// StripNone keeps every chunk.
	StripNone StripChunks = iota
	// StripSafe removes chunks that cannot affect how the image renders.
	StripSafe
	// StripAll keeps only the chunks needed to decode the pixels.
	StripAll
)

func (s StripChunks) String() string {
	switch s {
	case StripNone:
		return "none"
	case StripSafe:
		return "safe"
	case StripAll:
		return "all"
	default:
		return fmt.Sprintf("StripChunks(%d)", uint8(s))
	}
}

// FilterStrategy picks the PNG filter type for each scanline.
type FilterStrategy uint8

const (
	FilterNone FilterStrategy = iota
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth
	// FilterMinSum picks, per row, the filter with the smallest sum of
	// absolute signed residuals.
	FilterMinSum
	// FilterEntropy picks, per row, the filter with the lowest Shannon
	// entropy.
	FilterEntropy
	// FilterBrute picks, per row, the filter that deflates smallest together
	// with the previous row.
	FilterBrute
)

var filterNames = [...]string{"none", "sub", "up", "average", "paeth", "minsum", "entropy", "brute"}

func (f FilterStrategy) String() string {
	if int(f) < len(filterNames) {
		return filterNames[f]
	}
	return fmt.Sprintf("FilterStrategy(%d)", uint8(f))
}

// Options configures a single Optimize call. Trials are the cartesian
// product of Filters and Deflaters for every candidate pixel layout.
type Options struct {
	Filters    []FilterStrategy
	Deflaters  []Deflater
	Strip      StripChunks
	Reductions bool
}

// Default returns preset 2 with StripNone.
func Default() Options {
	return FromPreset(2)
}

// MaxPreset is the highest preset level.
const MaxPreset = 6

// FromPreset returns the options for level 0 (fastest) through 6 (smallest).
// Levels above MaxPreset are treated as MaxPreset.
func FromPreset(level uint8) Options {
	fixed := []FilterStrategy{FilterNone, FilterSub, FilterUp, FilterAverage, FilterPaeth}

	switch {
	case level == 0:
		return Options{
			Filters:   []FilterStrategy{FilterNone},
			Deflaters: []Deflater{Zlib(6)},
		}
	case level == 1:
		return Options{
			Filters:    []FilterStrategy{FilterMinSum},
			Deflaters:  []Deflater{Zlib(9)},
			Reductions: true,
		}
	case level == 2:
		return Options{
			Filters:    []FilterStrategy{FilterNone, FilterMinSum, FilterEntropy},
			Deflaters:  []Deflater{Zlib(9)},
			Reductions: true,
		}
	case level == 3:
		return Options{
			Filters:    []FilterStrategy{FilterNone, FilterMinSum, FilterEntropy, FilterPaeth},
			Deflaters:  []Deflater{Zlib(9), Klauspost(9)},
			Reductions: true,
		}
	case level == 4:
		return Options{
			Filters:    append(fixed, FilterMinSum, FilterEntropy),
			Deflaters:  []Deflater{Zlib(9), Klauspost(9)},
			Reductions: true,
		}
	case level == 5:
		return Options{
			Filters:    append(fixed, FilterMinSum, FilterEntropy),
			Deflaters:  []Deflater{Zlib(9), Klauspost(7), Klauspost(8), Klauspost(9)},
			Reductions: true,
		}
	default:
		opts := FromPreset(5)
		opts.Filters = append(opts.Filters, FilterBrute)
		return opts
	}
}

// WithStrip returns a copy of o using strip.
func (o Options) WithStrip(strip StripChunks) Options {
	o.Strip = strip
	return o
}

func (o Options) String() string {
	filters := make([]string, len(o.Filters))
	for i, f := range o.Filters {
		filters[i] = f.String()
	}
	deflaters := make([]string, len(o.Deflaters))
	for i, d := range o.Deflaters {
		deflaters[i] = d.String()
	}
	return fmt.Sprintf("filters=%s deflaters=%s strip=%s reductions=%t",
		strings.Join(filters, ","), strings.Join(deflaters, ","), o.Strip, o.Reductions)
}
