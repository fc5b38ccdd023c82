package patches

import (
	"math"
	"time"

	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/errors"
)

// Sine generates a fixed-length interleaved sine tone. The same sample is
// written to every channel.
type Sine struct {
	Frequency  float64
	Amplitude  float64
	SampleRate int
	Channels   int
	Duration   time.Duration
}

var _ audiocore.BlockGenerator = Sine{}

// Validate checks that the tone can be generated.
func (s Sine) Validate() error {
	switch {
	case s.SampleRate <= 0 || s.Channels <= 0:
		return errors.Newf("sine needs a positive sample rate and channel count").
			Component(componentPatches).
			Category(errors.CategoryValidation).
			Context("sample_rate", s.SampleRate).
			Context("channels", s.Channels).
			Build()
	case s.Frequency <= 0 || s.Frequency >= float64(s.SampleRate)/2:
		return errors.Newf("sine frequency must be between 0 and the Nyquist frequency").
			Component(componentPatches).
			Category(errors.CategoryValidation).
			Context("frequency", s.Frequency).
			Build()
	case s.Amplitude < 0 || s.Amplitude > 1:
		return errors.Newf("sine amplitude must be within [0, 1]").
			Component(componentPatches).
			Category(errors.CategoryValidation).
			Context("amplitude", s.Amplitude).
			Build()
	}
	return nil
}

// Generate returns Duration worth of samples.
func (s Sine) Generate() []float32 {
	frames := int(s.Duration.Seconds() * float64(s.SampleRate))
	out := make([]float32, frames*s.Channels)
	step := 2 * math.Pi * s.Frequency / float64(s.SampleRate)
	for f := range frames {
		v := float32(s.Amplitude * math.Sin(step*float64(f)))
		for c := range s.Channels {
			out[f*s.Channels+c] = v
		}
	}
	return out
}
