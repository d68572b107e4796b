package compress

import (
	"github.com/leeforge/pngpress/errors"
	"github.com/leeforge/pngpress/optimizer"
)

// Options are the caller-facing settings of one compression. Every field is
// optional; nil means "not set".
type Options struct {
	// Width is the target width of a downscale-only resize.
	Width *uint32 `json:"width,omitempty"`
	// Level selects optimizer preset 0 (fastest) to 6 (smallest).
	Level *uint8 `json:"level,omitempty"`
	// Strip is one of "none", "safe", "all" in any ASCII casing.
	Strip *string `json:"strip,omitempty"`
}

// Ptr returns a pointer to v, for filling Options inline.
func Ptr[T any](v T) *T {
	return &v
}

// 校验错误信息
const (
	msgWidth  = "width must be greater than 0"
	msgLevel  = "level must be between 0 and 6"
	msgStrip  = "strip must be one of: 'none', 'safe', 'all'"
	msgBuffer = "image buffer is nil or already consumed"
)

// ParseStrip resolves a strip token. Only ASCII letters fold, so look-alike
// Unicode spellings are rejected.
func ParseStrip(s string) (optimizer.StripChunks, error) {
	switch asciiLower(s) {
	case "none":
		return optimizer.StripNone, nil
	case "safe":
		return optimizer.StripSafe, nil
	case "all":
		return optimizer.StripAll, nil
	default:
		return 0, errors.NewInvalidArgument(msgStrip)
	}
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Request is a validated compression request. It can only be built by
// Validate and owns its input buffer.
type Request struct {
	buf   *Buffer
	width *uint32
	level *uint8
	strip *optimizer.StripChunks
}

// Validate checks opts and binds them to buf. It is pure and cheap, and is
// always called on the caller's goroutine before anything is scheduled.
// A nil opts means no options.
func Validate(buf *Buffer, opts *Options) (*Request, error) {
	if opts == nil {
		opts = &Options{}
	}

	req := &Request{buf: buf}
	if opts.Width != nil {
		if *opts.Width == 0 {
			return nil, errors.NewInvalidArgument(msgWidth)
		}
		w := *opts.Width
		req.width = &w
	}
	if opts.Level != nil {
		if *opts.Level > optimizer.MaxPreset {
			return nil, errors.NewInvalidArgument(msgLevel)
		}
		l := *opts.Level
		req.level = &l
	}
	if opts.Strip != nil {
		s, err := ParseStrip(*opts.Strip)
		if err != nil {
			return nil, err
		}
		req.strip = &s
	}

	if buf == nil || buf.Consumed() {
		return nil, errors.NewInvalidArgument(msgBuffer)
	}
	return req, nil
}

// Width returns the requested resize width.
func (r *Request) Width() (uint32, bool) {
	if r.width == nil {
		return 0, false
	}
	return *r.width, true
}

// Level returns the requested preset level.
func (r *Request) Level() (uint8, bool) {
	if r.level == nil {
		return 0, false
	}
	return *r.level, true
}

// Strip returns the requested strip policy.
func (r *Request) Strip() (optimizer.StripChunks, bool) {
	if r.strip == nil {
		return 0, false
	}
	return *r.strip, true
}

// OptimizerOptions builds the optimizer configuration: the requested preset
// or the optimizer default, with the strip policy overridden only when one
// was requested.
func (r *Request) OptimizerOptions() optimizer.Options {
	opts := optimizer.Default()
	if r.level != nil {
		opts = optimizer.FromPreset(*r.level)
	}
	if r.strip != nil {
		opts.Strip = *r.strip
	}
	return opts
}
