package audiocore

import (
	"time"
)

// MasterOutput is a named realtime output stream that owns a frame queue.
// Every period it drains one frame from each non-empty lane, sums them,
// applies an optional patch and hands the block to the device.
type MasterOutput struct {
	streamControl
	params StreamParameters
	queue  *FrameQueue
	patch  BlockPatch
	block  []float32
}

func newMasterOutput(name string, params StreamParameters, e *Engine) *MasterOutput {
	m := &MasterOutput{
		params: params,
		queue:  NewFrameQueue(params.FrameLen()),
		block:  make([]float32, params.FrameLen()),
	}
	m.streamControl = streamControl{
		name:     name,
		latency:  &LatencyAccumulator{},
		monitor:  e.monitor,
		shutdown: e.shutdown,
		metrics:  e.metrics,
		logger:   e.componentLogger("master_output").With("stream", name),
		verbose:  e.verbose,
	}
	return m
}

// Name returns the output name workers refer to.
func (m *MasterOutput) Name() string { return m.name }

// Params returns the stream parameters.
func (m *MasterOutput) Params() StreamParameters { return m.params }

// Queue returns the frame queue fed by workers.
func (m *MasterOutput) Queue() *FrameQueue { return m.queue }

// Latency returns the accumulated render callback durations.
func (m *MasterOutput) Latency() *LatencyAccumulator { return m.latency }

// Start begins streaming with an optional post-mix patch. It may only be
// called once; a rejected call leaves the running patch in place.
func (m *MasterOutput) Start(patch BlockPatch) (*ProcessHandle, error) {
	return m.begin(m.name, func() { m.patch = patch }, m.report)
}

// render is the platform callback. It never blocks on anything other than
// the frame queue mutex.
func (m *MasterOutput) render(out []float32) {
	if !m.streaming() {
		clear(out)
		return
	}
	if len(out) != len(m.block) {
		panic(assertion(ErrFrameLength, "stream", m.name, "expected", len(m.block), "got", len(out)))
	}

	start := time.Now()
	clear(m.block)
	mixed := m.queue.MixInto(m.block)
	if m.patch != nil {
		m.patch.Process(m.block)
	}
	copy(out, m.block)

	elapsed := time.Since(start)
	m.latency.Record(elapsed)
	m.metrics.RecordCallback(m.name, elapsed, mixed)

	if m.verbose {
		m.logger.Debug("render callback", "lanes_mixed", mixed, "latency", elapsed)
	}
}

func (m *MasterOutput) report() {
	total, iterations := m.latency.Snapshot()
	m.logger.Info("master output stopped",
		"output_latency", m.stream.Latency().Output,
		"iterations", iterations,
		"latency_total", total,
		"latency_average", m.latency.Average())
}
