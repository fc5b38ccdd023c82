package audiocore

import (
	"time"

	"github.com/tphakala/lanemix/internal/observability/metrics"
)

// MetricsCollector provides nil-safe metrics recording for audiocore components.
// A nil *MetricsCollector or one built from nil metrics records nothing.
type MetricsCollector struct {
	metrics *metrics.AudioCoreMetrics
}

// NewMetricsCollector wraps registered audiocore metrics.
func NewMetricsCollector(m *metrics.AudioCoreMetrics) *MetricsCollector {
	return &MetricsCollector{metrics: m}
}

func (mc *MetricsCollector) enabled() bool {
	return mc != nil && mc.metrics != nil
}

// RecordCallback records one realtime stream callback.
func (mc *MetricsCollector) RecordCallback(stream string, d time.Duration, mixedLanes int) {
	if !mc.enabled() {
		return
	}
	mc.metrics.RecordCallback(stream, d, mixedLanes == 0)
}

// RecordQueue samples queue depth for an output.
func (mc *MetricsCollector) RecordQueue(output string, q *FrameQueue) {
	if !mc.enabled() {
		return
	}
	mc.metrics.UpdateQueueDepth(output, q.LaneCount(), q.Pending())
}

// RecordBatch records a published or failed worker batch.
func (mc *MetricsCollector) RecordBatch(output string, frames int, d time.Duration, err error) {
	if !mc.enabled() {
		return
	}
	if err != nil {
		mc.metrics.RecordWorkerBatch(metrics.StatusFailed, d)
		return
	}
	mc.metrics.RecordWorkerBatch(metrics.StatusOK, d)
	mc.metrics.RecordFramesEnqueued(output, frames)
}

// RecordProcesses updates the registry size and reaped count.
func (mc *MetricsCollector) RecordProcesses(registered, reaped int) {
	if !mc.enabled() {
		return
	}
	mc.metrics.UpdateProcesses(registered)
	if reaped > 0 {
		mc.metrics.RecordReaped(reaped)
	}
}

// RecordProcessFailure counts a process that ended with an error.
func (mc *MetricsCollector) RecordProcessFailure(name string) {
	if !mc.enabled() {
		return
	}
	mc.metrics.RecordProcessFailure(name)
}
