package patches

import (
	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/errors"
)

// ChannelMap is a duplex patch that converts an interleaved input block to
// the output channel count and applies a gain. Mono input is copied to every
// output channel, and any other mismatch maps channel i to i mod inChannels
// or averages down to mono.
type ChannelMap struct {
	in, out int
	gain    *Gain
	block   []float32
}

var _ audiocore.DuplexPatch = (*ChannelMap)(nil)

// NewChannelMap builds the patch for chunk frames per period. gain may be nil.
func NewChannelMap(chunk, inChannels, outChannels int, gain *Gain) (*ChannelMap, error) {
	if chunk <= 0 || inChannels <= 0 || outChannels <= 0 {
		return nil, errors.Newf("invalid channel map %d -> %d for chunk %d", inChannels, outChannels, chunk).
			Component(componentPatches).
			Category(errors.CategoryValidation).
			Build()
	}
	return &ChannelMap{
		in:    inChannels,
		out:   outChannels,
		gain:  gain,
		block: make([]float32, chunk*outChannels),
	}, nil
}

// Process returns the converted block. The returned slice is reused by the
// next call.
func (c *ChannelMap) Process(in []float32) []float32 {
	frames := len(c.block) / c.out
	for f := range frames {
		src := in[min(f*c.in, len(in)):min((f+1)*c.in, len(in))]
		dst := c.block[f*c.out : (f+1)*c.out]
		mapFrame(dst, src)
	}
	if c.gain != nil {
		c.gain.Process(c.block)
	}
	return c.block
}

func mapFrame(dst, src []float32) {
	switch {
	case len(src) == 0:
		clear(dst)
	case len(dst) == 1 && len(src) > 1:
		var sum float32
		for _, s := range src {
			sum += s
		}
		dst[0] = sum / float32(len(src))
	default:
		for i := range dst {
			dst[i] = src[i%len(src)]
		}
	}
}
