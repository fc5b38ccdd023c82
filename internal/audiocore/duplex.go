package audiocore

import (
	"time"

	"github.com/tphakala/lanemix/internal/errors"
)

// DuplexStream bridges one input and one output device. Each period the
// input block goes through an optional patch whose result is written to the
// output. Without a patch the input is passed through.
type DuplexStream struct {
	streamControl
	params StreamParameters
	patch  DuplexPatch
	in     []float32
}

func newDuplexStream(params StreamParameters, e *Engine) *DuplexStream {
	d := &DuplexStream{
		params: params,
		in:     make([]float32, params.InputLen()),
	}
	d.streamControl = streamControl{
		name:     ProcessNameDuplex,
		latency:  &LatencyAccumulator{},
		monitor:  e.monitor,
		shutdown: e.shutdown,
		metrics:  e.metrics,
		logger:   e.componentLogger("duplex_stream"),
		verbose:  e.verbose,
	}
	return d
}

// Params returns the stream parameters.
func (d *DuplexStream) Params() StreamParameters { return d.params }

// Latency returns the accumulated callback durations.
func (d *DuplexStream) Latency() *LatencyAccumulator { return d.latency }

// Start begins streaming. A nil patch passes input straight through, which
// requires matching input and output channel counts.
func (d *DuplexStream) Start(patch DuplexPatch) (*ProcessHandle, error) {
	if patch == nil && d.params.InChannels != d.params.OutChannels {
		return nil, errors.New(ErrInvalidParameters).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("operation", "duplex_passthrough").
			Context("in_channels", d.params.InChannels).
			Context("out_channels", d.params.OutChannels).
			Build()
	}
	return d.begin(ProcessNameDuplex, func() { d.patch = patch }, d.report)
}

// process is the platform callback. A patch result whose length differs
// from the output period is a programming error and panics.
func (d *DuplexStream) process(in, out []float32) {
	if !d.streaming() {
		clear(out)
		return
	}

	start := time.Now()
	n := copy(d.in, in)
	clear(d.in[n:])

	result := d.in
	if d.patch != nil {
		result = d.patch.Process(d.in)
	}
	if len(result) != len(out) {
		panic(assertion(ErrDuplexChannelMismatch, "expected", len(out), "got", len(result)))
	}
	copy(out, result)

	elapsed := time.Since(start)
	d.latency.Record(elapsed)
	d.metrics.RecordCallback(d.name, elapsed, 1)

	if d.verbose {
		d.logger.Debug("duplex callback", "latency", elapsed)
	}
}

func (d *DuplexStream) report() {
	lat := d.stream.Latency()
	total, iterations := d.latency.Snapshot()
	d.logger.Info("duplex stream stopped",
		"input_latency", lat.Input,
		"output_latency", lat.Output,
		"iterations", iterations,
		"latency_total", total,
		"latency_average", d.latency.Average())
}
