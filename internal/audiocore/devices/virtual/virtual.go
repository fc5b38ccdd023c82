// Package virtual provides an in-process audiocore backend. Streams are
// clocked either manually with Tick or by a real-time ticker, and their
// output can be captured by a sink.
package virtual

import (
	"sync"
	"time"

	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/errors"
)

const componentName = "audiocore.virtual"

// Sink receives every rendered output period. The slice is only valid
// during the call.
type Sink func(out []float32)

// InputSource fills one duplex input period.
type InputSource func(in []float32)

// Option configures a Backend.
type Option func(*Backend)

// WithClock makes started streams tick on their own at the real-time
// period length chunk / sample rate.
func WithClock() Option {
	return func(b *Backend) { b.clocked = true }
}

// WithSink routes rendered output to sink.
func WithSink(sink Sink) Option {
	return func(b *Backend) { b.sink = sink }
}

// WithInput supplies duplex input. Without it duplex input is silence.
func WithInput(src InputSource) Option {
	return func(b *Backend) { b.input = src }
}

// WithDevices sets the devices reported by Devices.
func WithDevices(devices []audiocore.DeviceInfo) Option {
	return func(b *Backend) { b.devices = devices }
}

// WithLatency sets the latency reported by every stream.
func WithLatency(l audiocore.StreamLatency) Option {
	return func(b *Backend) { b.latency = l }
}

// Backend is an audiocore.Backend without hardware.
type Backend struct {
	clocked bool
	sink    Sink
	input   InputSource
	latency audiocore.StreamLatency

	mu       sync.Mutex
	devices  []audiocore.DeviceInfo
	streams  []*Stream
	failOpen error
}

// New creates a virtual backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		devices: []audiocore.DeviceInfo{
			{Index: 0, Name: "Virtual Output", ID: "virtual-out", IsDefault: true, Playback: true},
			{Index: 0, Name: "Virtual Input", ID: "virtual-in", IsDefault: true, Capture: true},
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FailNextOpen makes the next OpenOutput or OpenDuplex return err.
func (b *Backend) FailNextOpen(err error) {
	b.mu.Lock()
	b.failOpen = err
	b.mu.Unlock()
}

// Streams returns every stream opened so far, in order.
func (b *Backend) Streams() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Stream(nil), b.streams...)
}

// Devices returns the configured device list.
func (b *Backend) Devices() ([]audiocore.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]audiocore.DeviceInfo(nil), b.devices...), nil
}

func (b *Backend) open(s *Stream) (*Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failOpen; err != nil {
		b.failOpen = nil
		return nil, err
	}
	if idx := s.params.OutDevice; idx != nil && *idx >= b.countDevices(true) {
		return nil, errors.Newf("output device index %d out of range", *idx).
			Component(componentName).
			Category(errors.CategoryAudioDevice).
			Build()
	}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *Backend) countDevices(playback bool) int {
	n := 0
	for _, d := range b.devices {
		if (playback && d.Playback) || (!playback && d.Capture) {
			n++
		}
	}
	return n
}

// OpenOutput opens a virtual playback stream.
func (b *Backend) OpenOutput(params audiocore.StreamParameters, render audiocore.OutputCallback) (audiocore.Stream, error) {
	s := b.newStream(params)
	s.render = render
	return b.open(s)
}

// OpenDuplex opens a virtual duplex stream.
func (b *Backend) OpenDuplex(params audiocore.StreamParameters, process audiocore.DuplexCallback) (audiocore.Stream, error) {
	s := b.newStream(params)
	s.process = process
	s.in = make([]float32, params.InputLen())
	return b.open(s)
}

func (b *Backend) newStream(params audiocore.StreamParameters) *Stream {
	return &Stream{
		params:  params,
		out:     make([]float32, params.FrameLen()),
		clocked: b.clocked,
		sink:    b.sink,
		input:   b.input,
		latency: b.latency,
	}
}

// Stream is one virtual stream.
type Stream struct {
	params  audiocore.StreamParameters
	render  audiocore.OutputCallback
	process audiocore.DuplexCallback
	sink    Sink
	input   InputSource
	latency audiocore.StreamLatency
	clocked bool

	mu      sync.Mutex
	in      []float32
	out     []float32
	running bool
	closed  bool
	ticks   uint64
	stop    chan struct{}
	stopped chan struct{}
}

// Params returns the parameters the stream was opened with.
func (s *Stream) Params() audiocore.StreamParameters { return s.params }

// Start starts the stream, and its clock when the backend is clocked.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Newf("stream closed").
			Component(componentName).
			Category(errors.CategoryState).
			Build()
	}
	if s.running {
		return nil
	}
	s.running = true
	if s.clocked {
		s.stop = make(chan struct{})
		s.stopped = make(chan struct{})
		go s.clock(s.stop, s.stopped)
	}
	return nil
}

// Period returns the real-time duration of one period.
func (s *Stream) Period() time.Duration {
	return s.params.Period()
}

func (s *Stream) clock(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.Period())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Stop stops the stream and waits for its clock to exit.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-stopped
	}
	return nil
}

// Close stops and closes the stream.
func (s *Stream) Close() error {
	_ = s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Latency returns the configured latency.
func (s *Stream) Latency() audiocore.StreamLatency { return s.latency }

// Running reports whether the stream is started.
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Ticks returns the number of periods delivered.
func (s *Stream) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Tick runs one period and returns a copy of the output, or nil when the
// stream is not running. Ticks are serialized like a device callback thread.
func (s *Stream) Tick() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	clear(s.out)
	switch {
	case s.process != nil:
		clear(s.in)
		if s.input != nil {
			s.input(s.in)
		}
		s.process(s.in, s.out)
	case s.render != nil:
		s.render(s.out)
	}
	s.ticks++

	if s.sink != nil {
		s.sink(s.out)
	}
	return append([]float32(nil), s.out...)
}

// TickInput runs one duplex period with explicit input.
func (s *Stream) TickInput(in []float32) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.process == nil {
		return nil
	}
	clear(s.out)
	s.process(in, s.out)
	s.ticks++
	if s.sink != nil {
		s.sink(s.out)
	}
	return append([]float32(nil), s.out...)
}
