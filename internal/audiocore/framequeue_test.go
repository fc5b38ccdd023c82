package audiocore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lanemix/internal/errors"
)

func TestFrameQueueStartsWithOneEmptyLane(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(4)
	assert.Equal(t, 1, q.LaneCount())
	assert.Equal(t, 4, q.FrameLen())
	assert.True(t, q.IsEmptyAt(0))
	assert.True(t, q.IsAllEmpty())
	assert.Zero(t, q.Pending())
}

func TestFrameQueueFIFOPerLane(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(2)
	lane := q.AddLane()
	require.Equal(t, 1, lane)

	q.PutFrame(lane, Frame{1, 1})
	q.PutFrame(lane, Frame{2, 2})
	q.PutFrame(0, Frame{9, 9})
	q.PutFrame(lane, Frame{3, 3})

	assert.Equal(t, Frame{1, 1}, q.PopFrame(lane))
	assert.Equal(t, Frame{2, 2}, q.PopFrame(lane))
	assert.Equal(t, Frame{3, 3}, q.PopFrame(lane))
	assert.True(t, q.IsEmptyAt(lane))
	assert.False(t, q.IsAllEmpty())
	assert.Equal(t, Frame{9, 9}, q.PopFrame(0))
	assert.True(t, q.IsAllEmpty())
}

func TestFrameQueueAssertions(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(3)

	t.Run("wrong frame length", func(t *testing.T) {
		t.Parallel()
		assertPanicsWith(t, ErrFrameLength, func() { q.PutFrame(0, Frame{1, 2}) })
	})

	t.Run("lane out of range", func(t *testing.T) {
		t.Parallel()
		assertPanicsWith(t, ErrLaneOutOfRange, func() { q.PutFrame(5, Frame{1, 2, 3}) })
		assertPanicsWith(t, ErrLaneOutOfRange, func() { q.IsEmptyAt(-1) })
	})

	t.Run("pop empty lane", func(t *testing.T) {
		t.Parallel()
		empty := NewFrameQueue(3)
		assertPanicsWith(t, ErrLaneEmpty, func() { empty.PopFrame(0) })
	})

	t.Run("non positive frame length", func(t *testing.T) {
		t.Parallel()
		assertPanicsWith(t, ErrFrameLength, func() { NewFrameQueue(0) })
	})
}

func TestClaimEmptyLaneReusesFreeLaneBeforeGrowing(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(1)

	first := q.ClaimEmptyLane()
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, q.LaneCount())

	// Lane 0 is reserved, so the next claim must grow the queue.
	second := q.ClaimEmptyLane()
	assert.Equal(t, 1, second)
	assert.Equal(t, 2, q.LaneCount())

	q.PutFrame(first, Frame{1})
	q.ReleaseLane(first)
	q.ReleaseLane(second)

	// Lane 1 is empty and free, lane 0 still holds a frame.
	third := q.ClaimEmptyLane()
	assert.Equal(t, 1, third)
	assert.Equal(t, 2, q.LaneCount())
	q.ReleaseLane(third)

	// Once lane 0 drains it becomes claimable again without growth.
	q.PopFrame(0)
	a := q.ClaimEmptyLane()
	b := q.ClaimEmptyLane()
	assert.ElementsMatch(t, []int{0, 1}, []int{a, b})
	assert.Equal(t, 2, q.LaneCount())
}

func TestClaimEmptyLaneNeverReturnsNonEmptyLane(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(2)
	for range 3 {
		idx := q.ClaimEmptyLane()
		require.True(t, q.IsEmptyAt(idx))
		q.PutFrames(idx, []Frame{{1, 1}, {2, 2}})
		q.ReleaseLane(idx)
	}
	assert.Equal(t, 3, q.LaneCount())
	assert.Equal(t, 6, q.Pending())
}

func TestConcurrentClaimsGetDistinctLanes(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(1)
	const producers = 16

	var wg sync.WaitGroup
	lanes := make([]int, producers)
	for i := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lanes[i] = q.ClaimEmptyLane()
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, l := range lanes {
		assert.False(t, seen[l], "lane %d claimed twice", l)
		seen[l] = true
	}
	assert.Equal(t, producers, q.LaneCount())
}

func TestMixIntoPopsOneFramePerLane(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(2)
	q.AddLane()
	q.AddLane()
	q.PutFrames(0, []Frame{{1, 2}, {10, 20}})
	q.PutFrame(2, Frame{0.5, -0.5})

	acc := make([]float32, 2)
	mixed := q.MixInto(acc)
	assert.Equal(t, 2, mixed)
	assert.Equal(t, []float32{1.5, 1.5}, acc)

	clear(acc)
	assert.Equal(t, 1, q.MixInto(acc))
	assert.Equal(t, []float32{10, 20}, acc)

	clear(acc)
	assert.Zero(t, q.MixInto(acc))
	assert.Equal(t, []float32{0, 0}, acc)
}

func TestMixIntoIsOrderIndependent(t *testing.T) {
	t.Parallel()

	frames := []Frame{{0.25, -1}, {0.5, 0.5}, {-0.125, 2}}

	forward := NewFrameQueue(2)
	reverse := NewFrameQueue(2)
	for range len(frames) - 1 {
		forward.AddLane()
		reverse.AddLane()
	}
	for i, f := range frames {
		forward.PutFrame(i, f)
		reverse.PutFrame(len(frames)-1-i, f)
	}

	a := make([]float32, 2)
	b := make([]float32, 2)
	forward.MixInto(a)
	reverse.MixInto(b)
	assert.Equal(t, a, b)
}

func assertPanicsWith(t *testing.T, sentinel error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %T is not an error", r)
		assert.True(t, errors.Is(err, sentinel), "panic %v does not wrap %v", err, sentinel)
	}()
	fn()
}
