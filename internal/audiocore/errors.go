package audiocore

import (
	"github.com/tphakala/lanemix/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

var (
	// ErrInvalidParameters is returned when stream parameters fail validation
	ErrInvalidParameters = errors.New(errors.NewStd("invalid stream parameters")).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("resource", "stream_parameters").
		Build()

	// ErrOutputNotFound is returned when a worker names an unknown master output
	ErrOutputNotFound = errors.New(errors.NewStd("master output not found")).
		Component(ComponentAudioCore).
		Category(errors.CategoryNotFound).
		Context("resource", "master_output").
		Build()

	// ErrOutputExists is returned when a master output name is already taken
	ErrOutputExists = errors.New(errors.NewStd("master output already exists")).
		Component(ComponentAudioCore).
		Category(errors.CategoryConflict).
		Context("resource", "master_output").
		Build()

	// ErrStreamStarted is returned when Start is called on a stream that left the idle state
	ErrStreamStarted = errors.New(errors.NewStd("stream already started")).
		Component(ComponentAudioCore).
		Category(errors.CategoryState).
		Context("resource", "stream").
		Build()

	// ErrEngineClosed is returned when work is scheduled after shutdown began
	ErrEngineClosed = errors.New(errors.NewStd("engine is shutting down")).
		Component(ComponentAudioCore).
		Category(errors.CategoryState).
		Context("resource", "engine").
		Build()

	// ErrDeviceUnavailable wraps device-class failures reported by the backend
	ErrDeviceUnavailable = errors.New(errors.NewStd("audio device unavailable")).
		Component(ComponentAudioCore).
		Category(errors.CategoryAudioDevice).
		Context("resource", "device").
		Build()

	// ErrWorkerFailed marks a worker batch whose generator or transform failed
	ErrWorkerFailed = errors.New(errors.NewStd("worker batch failed")).
		Component(ComponentAudioCore).
		Category(errors.CategoryWorker).
		Context("resource", "worker").
		Build()

	// ErrFrameLength is the assertion raised when a frame has the wrong number of samples
	ErrFrameLength = errors.New(errors.NewStd("frame length mismatch")).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("resource", "frame").
		Build()

	// ErrLaneOutOfRange is the assertion raised for an invalid lane index
	ErrLaneOutOfRange = errors.New(errors.NewStd("lane index out of range")).
		Component(ComponentAudioCore).
		Category(errors.CategoryBuffer).
		Context("resource", "lane").
		Build()

	// ErrLaneEmpty is the assertion raised when popping from an empty lane
	ErrLaneEmpty = errors.New(errors.NewStd("pop from empty lane")).
		Component(ComponentAudioCore).
		Category(errors.CategoryBuffer).
		Context("resource", "lane").
		Build()

	// ErrDuplexChannelMismatch is the assertion raised when a duplex patch returns
	// a block whose size does not match the output frame
	ErrDuplexChannelMismatch = errors.New(errors.NewStd(
		"frame returned by the closure must have the same number of channels as the out frame")).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("resource", "duplex_block").
		Build()
)

// assertion builds the panic value used for programming-error violations.
func assertion(sentinel error, kv ...any) *errors.EnhancedError {
	b := errors.New(sentinel).Component(ComponentAudioCore).Category(errors.CategoryValidation).Priority(errors.PriorityCritical)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			b = b.Context(key, kv[i+1])
		}
	}
	return b.Build()
}
