package patches

import (
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/errors"
)

// EnvelopeShape selects the per-frame envelope.
type EnvelopeShape string

const (
	// EnvelopeHann shapes every frame with a Hann window.
	EnvelopeHann EnvelopeShape = "hann"
	// EnvelopeRamp fades every frame in linearly.
	EnvelopeRamp EnvelopeShape = "ramp"
)

// Envelope is a frame transform that multiplies each frame by a fixed
// envelope spanning the frame's chunk. It is stateless and safe to call from
// several goroutines.
type Envelope struct {
	coeffs []float64
}

var _ audiocore.FrameTransform = (*Envelope)(nil)

// NewEnvelope precomputes the envelope for frames of chunk samples per channel.
func NewEnvelope(shape EnvelopeShape, chunk, channels int) (*Envelope, error) {
	if chunk <= 0 || channels <= 0 {
		return nil, errors.Newf("envelope needs a positive chunk and channel count").
			Component(componentPatches).
			Category(errors.CategoryValidation).
			Context("chunk", chunk).
			Context("channels", channels).
			Build()
	}

	coeffs := make([]float64, chunk*channels)
	for f := range chunk {
		var v float64
		switch shape {
		case EnvelopeHann:
			if chunk > 1 {
				v = 0.5 - 0.5*math.Cos(2*math.Pi*float64(f)/float64(chunk-1))
			} else {
				v = 1
			}
		case EnvelopeRamp:
			v = float64(f+1) / float64(chunk)
		default:
			return nil, errors.Newf("unknown envelope shape %q", shape).
				Component(componentPatches).
				Category(errors.CategoryValidation).
				Build()
		}
		for c := range channels {
			coeffs[f*channels+c] = v
		}
	}
	return &Envelope{coeffs: coeffs}, nil
}

// Transform returns a new frame scaled by the envelope. Frames of another
// length pass through unchanged.
func (e *Envelope) Transform(frame audiocore.Frame) audiocore.Frame {
	if len(frame) != len(e.coeffs) {
		return frame
	}
	buf := make([]float64, len(frame))
	for i, s := range frame {
		buf[i] = float64(s)
	}
	vecmath.MulBlockInPlace(buf, e.coeffs)

	out := make(audiocore.Frame, len(frame))
	for i, v := range buf {
		out[i] = float32(v)
	}
	return out
}
