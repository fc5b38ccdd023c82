package audiocore

import (
	"sync"
)

// lane is one unbounded FIFO of frames. A reserved lane belongs to a producer
// that claimed it and has not released it yet.
type lane struct {
	frames   []Frame
	reserved bool
}

func (l *lane) push(f Frame) {
	l.frames = append(l.frames, f)
}

func (l *lane) pop() Frame {
	f := l.frames[0]
	l.frames[0] = nil
	l.frames = l.frames[1:]
	if len(l.frames) == 0 {
		l.frames = nil
	}
	return f
}

// FrameQueue is a growable set of independent frame FIFOs ("lanes") shared by
// many producers and one realtime consumer. Each producer batch owns its own
// lane so that its frames play back in order and concurrent batches are
// summed rather than serialized.
//
// A single mutex guards the lanes and the claim cursor. No method calls user
// code while holding it.
type FrameQueue struct {
	mu       sync.Mutex
	lanes    []*lane
	cursor   int
	frameLen int
}

// NewFrameQueue creates a queue with one empty lane. frameLen must be positive.
func NewFrameQueue(frameLen int) *FrameQueue {
	if frameLen <= 0 {
		panic(assertion(ErrFrameLength, "frame_len", frameLen))
	}
	return &FrameQueue{
		lanes:    []*lane{{}},
		frameLen: frameLen,
	}
}

// FrameLen returns the fixed number of samples per frame.
func (q *FrameQueue) FrameLen() int {
	return q.frameLen
}

// LaneCount returns the number of lanes. Lanes are never removed.
func (q *FrameQueue) LaneCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// AddLane appends one empty lane and returns its index.
func (q *FrameQueue) AddLane() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.addLaneLocked()
}

func (q *FrameQueue) addLaneLocked() int {
	q.lanes = append(q.lanes, &lane{})
	return len(q.lanes) - 1
}

func (q *FrameQueue) laneLocked(idx int) *lane {
	if idx < 0 || idx >= len(q.lanes) {
		panic(assertion(ErrLaneOutOfRange, "lane", idx, "lanes", len(q.lanes)))
	}
	return q.lanes[idx]
}

func (q *FrameQueue) checkFrame(f Frame) {
	if len(f) != q.frameLen {
		panic(assertion(ErrFrameLength, "expected", q.frameLen, "got", len(f)))
	}
}

// PutFrame appends frame to the tail of a lane. An invalid lane index or a
// frame of the wrong length panics.
func (q *FrameQueue) PutFrame(idx int, frame Frame) {
	q.checkFrame(frame)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.laneLocked(idx).push(frame)
}

// PutFrames appends a whole batch to a lane in one critical section so the
// consumer never observes a partially published batch.
func (q *FrameQueue) PutFrames(idx int, frames []Frame) {
	for _, f := range frames {
		q.checkFrame(f)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	l := q.laneLocked(idx)
	for _, f := range frames {
		l.push(f)
	}
}

// PopFrame removes and returns the head of a lane. Popping an empty or
// invalid lane panics.
func (q *FrameQueue) PopFrame(idx int) Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	l := q.laneLocked(idx)
	if len(l.frames) == 0 {
		panic(assertion(ErrLaneEmpty, "lane", idx))
	}
	return l.pop()
}

// IsEmptyAt reports whether a lane holds no frames.
func (q *FrameQueue) IsEmptyAt(idx int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.laneLocked(idx).frames) == 0
}

// IsAllEmpty reports whether every lane is empty.
func (q *FrameQueue) IsAllEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, l := range q.lanes {
		if len(l.frames) > 0 {
			return false
		}
	}
	return true
}

// Pending returns the total number of queued frames across all lanes.
func (q *FrameQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, l := range q.lanes {
		n += len(l.frames)
	}
	return n
}

// ClaimEmptyLane returns a lane that is empty at the instant of return and
// reserves it for the caller until ReleaseLane. The scan starts at the cursor
// and wraps; a new lane is appended only when no free lane exists.
func (q *FrameQueue) ClaimEmptyLane() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.lanes)
	for i := range n {
		idx := (q.cursor + i) % n
		l := q.lanes[idx]
		if !l.reserved && len(l.frames) == 0 {
			l.reserved = true
			q.cursor = idx
			return idx
		}
	}

	idx := q.addLaneLocked()
	q.lanes[idx].reserved = true
	q.cursor = idx
	return idx
}

// ReleaseLane drops the reservation taken by ClaimEmptyLane.
func (q *FrameQueue) ReleaseLane(idx int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.laneLocked(idx).reserved = false
}

// MixInto pops exactly one frame from every non-empty lane and adds it into
// acc sample by sample. It returns the number of lanes that contributed.
// len(acc) must equal FrameLen.
func (q *FrameQueue) MixInto(acc []float32) int {
	if len(acc) != q.frameLen {
		panic(assertion(ErrFrameLength, "expected", q.frameLen, "got", len(acc)))
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	mixed := 0
	for _, l := range q.lanes {
		if len(l.frames) == 0 {
			continue
		}
		f := l.pop()
		for i, s := range f {
			acc[i] += s
		}
		mixed++
	}
	return mixed
}
