package optimizer

// 渲染相关的辅助块, kept by StripSafe.
var renderingChunks = map[string]bool{
	"cICP": true,
	"iCCP": true,
	"sRGB": true,
	"gAMA": true,
	"cHRM": true,
	"sBIT": true,
	"pHYs": true,
	"mDCV": true,
	"cLLI": true,
}

// Animation chunks survive every policy; dropping them would turn an APNG
// into a still image.
var animationChunks = map[string]bool{
	"acTL": true,
	"fcTL": true,
	"fdAT": true,
}

// knownChunks are the chunk types this package understands. Anything else
// is treated according to its safe-to-copy bit.
var knownChunks = map[string]bool{
	"IHDR": true, "PLTE": true, "IDAT": true, "IEND": true,
	"tRNS": true, "cHRM": true, "gAMA": true, "iCCP": true,
	"sBIT": true, "sRGB": true, "cICP": true, "mDCV": true,
	"cLLI": true, "tEXt": true, "zTXt": true, "iTXt": true,
	"bKGD": true, "hIST": true, "pHYs": true, "sPLT": true,
	"eXIf": true, "tIME": true, "acTL": true, "fcTL": true,
	"fdAT": true,
}

// keep reports whether a chunk of type typ survives s. tRNS is pixel data
// and is never stripped.
func (s StripChunks) keep(typ string) bool {
	if typ == "tRNS" || animationChunks[typ] {
		return true
	}
	if typ[0]&0x20 == 0 {
		return true
	}
	switch s {
	case StripNone:
		return true
	case StripSafe:
		return renderingChunks[typ]
	default:
		return false
	}
}

func stripChunks(chunks []chunk, s StripChunks) []chunk {
	kept := make([]chunk, 0, len(chunks))
	for _, c := range chunks {
		if s.keep(c.Type) {
			kept = append(kept, c)
		}
	}
	return kept
}

// layoutPinned reports whether chunks constrain the pixel encoding, so that
// the filtered scanlines may only be recompressed, never rewritten.
func layoutPinned(chunks []chunk) bool {
	for _, c := range chunks {
		switch {
		case c.Type == "acTL":
			return true
		case c.Type == "bKGD", c.Type == "hIST", c.Type == "sBIT":
			return true
		case !knownChunks[c.Type] && !c.safeToCopy():
			return true
		}
	}
	return false
}
