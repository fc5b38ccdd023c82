package audiocore

import (
	"sync"
	"time"
)

// LatencyAccumulator is a running total of durations with an iteration count.
// It is shared by pointer between a component and whoever reports on it.
type LatencyAccumulator struct {
	mu         sync.Mutex
	total      time.Duration
	iterations uint64
}

// Record adds one measured duration.
func (l *LatencyAccumulator) Record(d time.Duration) {
	l.mu.Lock()
	l.total += d
	l.iterations++
	l.mu.Unlock()
}

// Snapshot returns the accumulated total and iteration count.
func (l *LatencyAccumulator) Snapshot() (total time.Duration, iterations uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total, l.iterations
}

// Iterations returns how many durations were recorded.
func (l *LatencyAccumulator) Iterations() uint64 {
	_, n := l.Snapshot()
	return n
}

// Average returns total / max(iterations, 1).
func (l *LatencyAccumulator) Average() time.Duration {
	total, n := l.Snapshot()
	if n == 0 {
		n = 1
	}
	return total / time.Duration(n)
}
