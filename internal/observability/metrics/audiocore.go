// Package metrics provides Prometheus collectors for the lanemix engine
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AudioCoreMetrics contains Prometheus metrics for audiocore operations
type AudioCoreMetrics struct {
	registry *prometheus.Registry

	// Stream callback metrics
	callbackDuration *prometheus.HistogramVec
	callbackTotal    *prometheus.CounterVec
	silentCallbacks  *prometheus.CounterVec

	// Frame queue metrics
	laneCount      *prometheus.GaugeVec
	pendingFrames  *prometheus.GaugeVec
	framesEnqueued *prometheus.CounterVec

	// Worker metrics
	workerBatches  *prometheus.CounterVec
	workerDuration prometheus.Histogram

	// Process monitor metrics
	processes       prometheus.Gauge
	processesReaped prometheus.Counter
	processFailures *prometheus.CounterVec

	// Error reporting
	errorsTotal *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewAudioCoreMetrics creates and registers new audiocore metrics
func NewAudioCoreMetrics(registry *prometheus.Registry) (*AudioCoreMetrics, error) {
	m := &AudioCoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AudioCoreMetrics) initMetrics() {
	m.callbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lanemix_callback_duration_seconds",
			Help:    "Time spent inside the realtime stream callback",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~80ms
		},
		[]string{"stream"},
	)

	m.callbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanemix_callbacks_total",
			Help: "Total number of realtime stream callbacks",
		},
		[]string{"stream"},
	)

	m.silentCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanemix_silent_callbacks_total",
			Help: "Callbacks where no lane contributed a frame",
		},
		[]string{"stream"},
	)

	m.laneCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lanemix_queue_lanes",
			Help: "Number of lanes in the output frame queue",
		},
		[]string{"output"},
	)

	m.pendingFrames = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lanemix_queue_pending_frames",
			Help: "Frames waiting in the output frame queue",
		},
		[]string{"output"},
	)

	m.framesEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanemix_frames_enqueued_total",
			Help: "Total number of frames published by workers",
		},
		[]string{"output"},
	)

	m.workerBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanemix_worker_batches_total",
			Help: "Worker batches by completion status",
		},
		[]string{"status"},
	)

	m.workerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lanemix_worker_duration_seconds",
			Help:    "Time from worker start until its batch was published",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100us to ~3s
		},
	)

	m.processes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanemix_registered_processes",
			Help: "Processes currently registered with the monitor",
		},
	)

	m.processesReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lanemix_processes_reaped_total",
			Help: "Processes joined and removed by the monitor",
		},
	)

	m.processFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanemix_process_failures_total",
			Help: "Processes that finished with an error or panic",
		},
		[]string{"name"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanemix_errors_total",
			Help: "Errors built through the errors package",
		},
		[]string{"component", "category"},
	)

	m.collectors = []prometheus.Collector{
		m.callbackDuration,
		m.callbackTotal,
		m.silentCallbacks,
		m.laneCount,
		m.pendingFrames,
		m.framesEnqueued,
		m.workerBatches,
		m.workerDuration,
		m.processes,
		m.processesReaped,
		m.processFailures,
		m.errorsTotal,
	}
}

// Describe implements the Collector interface
func (m *AudioCoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *AudioCoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordCallback records one realtime callback. silent is true when no lane
// had a frame to contribute.
func (m *AudioCoreMetrics) RecordCallback(stream string, d time.Duration, silent bool) {
	m.callbackDuration.WithLabelValues(stream).Observe(d.Seconds())
	m.callbackTotal.WithLabelValues(stream).Inc()
	if silent {
		m.silentCallbacks.WithLabelValues(stream).Inc()
	}
}

// UpdateQueueDepth updates lane and pending frame gauges for an output
func (m *AudioCoreMetrics) UpdateQueueDepth(output string, lanes, pending int) {
	m.laneCount.WithLabelValues(output).Set(float64(lanes))
	m.pendingFrames.WithLabelValues(output).Set(float64(pending))
}

// RecordFramesEnqueued adds published frames for an output
func (m *AudioCoreMetrics) RecordFramesEnqueued(output string, n int) {
	m.framesEnqueued.WithLabelValues(output).Add(float64(n))
}

// RecordWorkerBatch records a finished worker batch
func (m *AudioCoreMetrics) RecordWorkerBatch(status string, d time.Duration) {
	m.workerBatches.WithLabelValues(status).Inc()
	m.workerDuration.Observe(d.Seconds())
}

// UpdateProcesses sets the number of registered processes
func (m *AudioCoreMetrics) UpdateProcesses(n int) {
	m.processes.Set(float64(n))
}

// RecordReaped adds joined and removed processes
func (m *AudioCoreMetrics) RecordReaped(n int) {
	m.processesReaped.Add(float64(n))
}

// RecordProcessFailure counts a failed process by name
func (m *AudioCoreMetrics) RecordProcessFailure(name string) {
	m.processFailures.WithLabelValues(name).Inc()
}

// RecordError counts an error by component and category
func (m *AudioCoreMetrics) RecordError(component, category string) {
	m.errorsTotal.WithLabelValues(component, category).Inc()
}
