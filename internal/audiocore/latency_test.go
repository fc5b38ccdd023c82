package audiocore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyAverageGuardsZeroIterations(t *testing.T) {
	t.Parallel()

	var l LatencyAccumulator
	assert.Zero(t, l.Average())
	assert.Zero(t, l.Iterations())
}

func TestLatencyAccumulatorConcurrentRecord(t *testing.T) {
	t.Parallel()

	var l LatencyAccumulator
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				l.Record(2 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	total, n := l.Snapshot()
	assert.Equal(t, uint64(800), n)
	assert.Equal(t, 1600*time.Millisecond, total)
	assert.Equal(t, 2*time.Millisecond, l.Average())
}
