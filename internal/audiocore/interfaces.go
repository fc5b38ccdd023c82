package audiocore

import "time"

// Frame is one period of channel-interleaved samples. Its length is
// chunk * output channels and it is never mutated once enqueued.
type Frame []float32

// BlockPatch post-processes a mixed output block in place.
type BlockPatch interface {
	Process(block []float32)
}

// BlockPatchFunc adapts a function to BlockPatch.
type BlockPatchFunc func(block []float32)

// Process calls f(block).
func (f BlockPatchFunc) Process(block []float32) { f(block) }

// BlockGenerator produces a complete sample sequence for one worker batch.
type BlockGenerator interface {
	Generate() []float32
}

// BlockGeneratorFunc adapts a function to BlockGenerator.
type BlockGeneratorFunc func() []float32

// Generate calls f().
func (f BlockGeneratorFunc) Generate() []float32 { return f() }

// FrameTransform maps one frame to a new frame of the same length. The
// transform may modify the frame in place and return it. A returned buffer
// that is not the input frame is copied out before the next call, so it may
// be reused.
type FrameTransform interface {
	Transform(frame Frame) Frame
}

// FrameTransformFunc adapts a function to FrameTransform.
type FrameTransformFunc func(frame Frame) Frame

// Transform calls f(frame).
func (f FrameTransformFunc) Transform(frame Frame) Frame { return f(frame) }

// DuplexPatch turns one input block into one output block. The returned
// slice must hold exactly chunk * output channels samples.
type DuplexPatch interface {
	Process(in []float32) []float32
}

// DuplexPatchFunc adapts a function to DuplexPatch.
type DuplexPatchFunc func(in []float32) []float32

// Process calls f(in).
func (f DuplexPatchFunc) Process(in []float32) []float32 { return f(in) }

// OutputCallback fills out with exactly chunk * output channels samples.
// It runs on the platform audio thread and must not block.
type OutputCallback func(out []float32)

// DuplexCallback receives one input period and fills one output period.
type DuplexCallback func(in, out []float32)

// StreamLatency is the device latency reported by the platform layer.
type StreamLatency struct {
	Input  time.Duration
	Output time.Duration
}

// Stream is an opened platform stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	Latency() StreamLatency
}

// DeviceInfo describes one platform audio device.
type DeviceInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"is_default"`
	Playback  bool   `json:"playback"`
	Capture   bool   `json:"capture"`
}

// Backend is the platform audio layer.
type Backend interface {
	OpenOutput(params StreamParameters, render OutputCallback) (Stream, error)
	OpenDuplex(params StreamParameters, process DuplexCallback) (Stream, error)
	Devices() ([]DeviceInfo, error)
}
