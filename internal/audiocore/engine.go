package audiocore

import (
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"

	"github.com/tphakala/lanemix/internal/errors"
	"github.com/tphakala/lanemix/internal/logging"
)

// Engine is the facade that creates streams and workers, runs the process
// monitor and carries out the shutdown protocol.
type Engine struct {
	backend       Backend
	shutdown      *ShutdownFlag
	monitor       *ProcessMonitor
	metrics       *MetricsCollector
	logger        *slog.Logger
	workerLatency *LatencyAccumulator

	verbose      bool
	closeDelay   time.Duration
	gracePeriod  time.Duration
	reapInterval time.Duration
	poolSize     int

	mu          sync.Mutex
	outputs     map[string]*MasterOutput
	outputOrder []string
	duplexes    []*DuplexStream
	monitorProc *ProcessHandle

	closeOnce sync.Once
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithVerbose enables lifecycle and per-callback debug logging.
func WithVerbose(verbose bool) EngineOption {
	return func(e *Engine) { e.verbose = verbose }
}

// WithLogger replaces the base logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(mc *MetricsCollector) EngineOption {
	return func(e *Engine) { e.metrics = mc }
}

// WithCloseDelay sets the pause between raising the shutdown flag and joining.
func WithCloseDelay(d time.Duration) EngineOption {
	return func(e *Engine) { e.closeDelay = d }
}

// WithGracePeriod sets the pause after all processes have been joined.
func WithGracePeriod(d time.Duration) EngineOption {
	return func(e *Engine) { e.gracePeriod = d }
}

// WithReapInterval sets the monitor's periodic reap interval.
func WithReapInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.reapInterval = d }
}

// WithPoolSize bounds the goroutines used by parallel hybrid transforms.
func WithPoolSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.poolSize = n
		}
	}
}

// DefaultPoolSize returns the number of physical cores, or logical CPUs when
// the core count cannot be detected.
func DefaultPoolSize() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// NewEngine creates an engine on top of a platform audio backend.
func NewEngine(backend Backend, opts ...EngineOption) *Engine {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		backend:       backend,
		shutdown:      NewShutdownFlag(),
		logger:        logger,
		workerLatency: &LatencyAccumulator{},
		closeDelay:    DefaultCloseDelay,
		gracePeriod:   DefaultGracePeriod,
		reapInterval:  DefaultReapInterval,
		poolSize:      DefaultPoolSize(),
		outputs:       make(map[string]*MasterOutput),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.monitor = NewProcessMonitor(e.metrics, e.verbose)
	e.monitor.logger = e.componentLogger("process_monitor")
	return e
}

func (e *Engine) componentLogger(component string) *slog.Logger {
	return e.logger.With("component", component)
}

// IsRunning reports whether Close has not been called.
func (e *Engine) IsRunning() bool { return e.shutdown.IsRunning() }

// Monitor returns the process registry.
func (e *Engine) Monitor() *ProcessMonitor { return e.monitor }

// Processes returns a snapshot of every registered process.
func (e *Engine) Processes() []ProcessInfo { return e.monitor.Snapshot() }

// WorkerLatency returns the accumulator shared by every worker batch.
func (e *Engine) WorkerLatency() *LatencyAccumulator { return e.workerLatency }

// Devices lists the devices reported by the backend.
func (e *Engine) Devices() ([]DeviceInfo, error) {
	devices, err := e.backend.Devices()
	if err != nil {
		return nil, errors.New(errors.Join(ErrDeviceUnavailable, err)).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("operation", "list_devices").
			Build()
	}
	return devices, nil
}

// CreateMasterStreamout opens a named output stream in the idle state.
// Device failures are returned here, before any goroutine is started.
func (e *Engine) CreateMasterStreamout(name string, params StreamParameters) (*MasterOutput, error) {
	if name == "" {
		return nil, errors.Newf("master output name must not be empty").
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !e.shutdown.IsRunning() {
		return nil, ErrEngineClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.outputs[name]; exists {
		return nil, errors.New(ErrOutputExists).
			Component(ComponentAudioCore).
			Category(errors.CategoryConflict).
			Context("output", name).
			Build()
	}

	m := newMasterOutput(name, params, e)
	stream, err := e.backend.OpenOutput(params, m.render)
	if err != nil {
		return nil, errors.New(errors.Join(ErrDeviceUnavailable, err)).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("output", name).
			Context("operation", "open_output").
			Build()
	}
	m.stream = stream

	e.outputs[name] = m
	e.outputOrder = append(e.outputOrder, name)

	if e.verbose {
		e.logger.Debug("master output created",
			"output", name,
			"chunk", params.Chunk,
			"sample_rate", params.SampleRate,
			"channels", params.OutChannels)
	}
	return m, nil
}

// CreateDuplexStream opens a duplex stream in the idle state.
func (e *Engine) CreateDuplexStream(params StreamParameters) (*DuplexStream, error) {
	if err := params.ValidateDuplex(); err != nil {
		return nil, err
	}
	if !e.shutdown.IsRunning() {
		return nil, ErrEngineClosed
	}

	d := newDuplexStream(params, e)
	stream, err := e.backend.OpenDuplex(params, d.process)
	if err != nil {
		return nil, errors.New(errors.Join(ErrDeviceUnavailable, err)).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("operation", "open_duplex").
			Build()
	}
	d.stream = stream

	e.mu.Lock()
	e.duplexes = append(e.duplexes, d)
	e.mu.Unlock()
	return d, nil
}

// CreateWorkerProcess returns a worker bound to the named master output.
func (e *Engine) CreateWorkerProcess(outputName string, parallel bool) (*WorkerProcess, error) {
	out, ok := e.Output(outputName)
	if !ok {
		return nil, errors.New(ErrOutputNotFound).
			Component(ComponentAudioCore).
			Category(errors.CategoryNotFound).
			Context("output", outputName).
			Build()
	}
	return newWorkerProcess(out, e, parallel), nil
}

// Output looks up a master output by name.
func (e *Engine) Output(name string) (*MasterOutput, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.outputs[name]
	return m, ok
}

// Outputs returns master outputs in creation order.
func (e *Engine) Outputs() []*MasterOutput {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*MasterOutput, 0, len(e.outputOrder))
	for _, name := range e.outputOrder {
		out = append(out, e.outputs[name])
	}
	return out
}

// StartMonitoring launches the monitor loop. Later calls return the same handle.
func (e *Engine) StartMonitoring() *ProcessHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.monitorProc == nil {
		e.monitorProc = e.monitor.Go(ProcessNameMonitor, func() error {
			return e.monitor.Run(e.shutdown, e.reapInterval)
		})
	}
	return e.monitorProc
}

// Close raises the shutdown flag, waits for the close delay, reports
// aggregate worker latency and joins every registered process. It returns
// once all stream control goroutines, the monitor and in-flight workers have
// finished. Calling Close again is a no-op.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.shutdown.Stop()
		time.Sleep(e.closeDelay)

		total, started := e.workerLatency.Snapshot()
		e.logger.Info("worker report",
			"process_name", ProcessNameWorker,
			"started_processes", started,
			"latency_total", total,
			"latency_average", e.workerLatency.Average())

		e.mu.Lock()
		outputs := make([]*MasterOutput, 0, len(e.outputOrder))
		for _, name := range e.outputOrder {
			outputs = append(outputs, e.outputs[name])
		}
		duplexes := append([]*DuplexStream(nil), e.duplexes...)
		e.mu.Unlock()

		for _, m := range outputs {
			m.release()
		}
		for _, d := range duplexes {
			d.release()
		}

		e.monitor.JoinAndRemoveAll()
		time.Sleep(e.gracePeriod)
		e.logger.Info("engine closed")
	})
}

// OutputStatus summarizes one master output.
type OutputStatus struct {
	Name           string        `json:"name"`
	State          string        `json:"state"`
	Lanes          int           `json:"lanes"`
	PendingFrames  int           `json:"pending_frames"`
	Iterations     uint64        `json:"iterations"`
	LatencyAverage time.Duration `json:"latency_average_ns"`
}

// Status is a point-in-time summary of the engine.
type Status struct {
	Running              bool           `json:"running"`
	Outputs              []OutputStatus `json:"outputs"`
	Processes            int            `json:"processes"`
	WorkerBatches        uint64         `json:"worker_batches"`
	WorkerLatencyAverage time.Duration  `json:"worker_latency_average_ns"`
}

// Status returns a summary of outputs, processes and worker latency.
func (e *Engine) Status() Status {
	s := Status{
		Running:              e.IsRunning(),
		Processes:            e.monitor.Len(),
		WorkerBatches:        e.workerLatency.Iterations(),
		WorkerLatencyAverage: e.workerLatency.Average(),
	}
	for _, m := range e.Outputs() {
		s.Outputs = append(s.Outputs, OutputStatus{
			Name:           m.Name(),
			State:          m.State().String(),
			Lanes:          m.queue.LaneCount(),
			PendingFrames:  m.queue.Pending(),
			Iterations:     m.latency.Iterations(),
			LatencyAverage: m.latency.Average(),
		})
	}
	return s
}
