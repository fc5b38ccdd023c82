package audiocore

import (
	"time"

	"github.com/tphakala/lanemix/internal/errors"
)

// StreamParameters describes one output or duplex stream. A nil device index
// selects the platform default device.
type StreamParameters struct {
	Chunk       int  `json:"chunk"`
	SampleRate  int  `json:"sample_rate"`
	OutChannels int  `json:"out_channels"`
	InChannels  int  `json:"in_channels"`
	OutDevice   *int `json:"out_device,omitempty"`
	InDevice    *int `json:"in_device,omitempty"`
}

// DefaultStreamParameters returns 1024-frame mono streams at 44.1 kHz on default devices.
func DefaultStreamParameters() StreamParameters {
	return StreamParameters{
		Chunk:       DefaultChunk,
		SampleRate:  DefaultSampleRate,
		OutChannels: DefaultOutChannels,
		InChannels:  DefaultInChannels,
	}
}

// FrameLen is the number of interleaved output samples in one frame.
func (p StreamParameters) FrameLen() int {
	return p.Chunk * p.OutChannels
}

// InputLen is the number of interleaved input samples in one duplex period.
func (p StreamParameters) InputLen() int {
	return p.Chunk * p.InChannels
}

// Period is the real-time duration of one chunk, or zero when the sample
// rate is not set.
func (p StreamParameters) Period() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Chunk) * time.Second / time.Duration(p.SampleRate)
}

// Validate checks the parameters used by every stream kind. Duplex streams
// additionally require ValidateDuplex.
func (p StreamParameters) Validate() error {
	switch {
	case p.Chunk <= 0:
		return invalidParam("chunk", p.Chunk)
	case p.SampleRate <= 0:
		return invalidParam("sample_rate", p.SampleRate)
	case p.OutChannels <= 0:
		return invalidParam("out_channels", p.OutChannels)
	case p.OutDevice != nil && *p.OutDevice < 0:
		return invalidParam("out_device", *p.OutDevice)
	}
	return nil
}

// ValidateDuplex checks the parameters of a duplex stream.
func (p StreamParameters) ValidateDuplex() error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.InChannels <= 0 {
		return invalidParam("in_channels", p.InChannels)
	}
	if p.InDevice != nil && *p.InDevice < 0 {
		return invalidParam("in_device", *p.InDevice)
	}
	return nil
}

func invalidParam(field string, value int) error {
	return errors.New(ErrInvalidParameters).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}
