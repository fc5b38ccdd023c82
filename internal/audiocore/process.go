package audiocore

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/lanemix/internal/errors"
)

// ProcessState is the lifecycle state of a registered process. Reaped
// processes are removed from the monitor and have no state of their own.
type ProcessState int32

const (
	StateRunning ProcessState = iota
	StateFinished
)

func (s ProcessState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("ProcessState(%d)", int32(s))
	}
}

// ProcessHandle tracks one goroutine: its identity, name, state and the
// error it finished with.
type ProcessHandle struct {
	id      string
	name    string
	started time.Time

	state atomic.Int32
	done  chan struct{}
	once  sync.Once
	err   error
	ended time.Time
}

// NewProcessHandle returns a handle in the running state.
func NewProcessHandle(name string) *ProcessHandle {
	return &ProcessHandle{
		id:      uuid.NewString(),
		name:    name,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// ID returns the unique identity of the process.
func (h *ProcessHandle) ID() string { return h.id }

// Name returns the human-readable process name.
func (h *ProcessHandle) Name() string { return h.name }

// State returns the current state.
func (h *ProcessHandle) State() ProcessState {
	return ProcessState(h.state.Load())
}

// Done is closed when the process has finished.
func (h *ProcessHandle) Done() <-chan struct{} { return h.done }

// Finish marks the process finished with err. Only the first call has effect.
func (h *ProcessHandle) Finish(err error) {
	h.once.Do(func() {
		h.err = err
		h.ended = time.Now()
		h.state.Store(int32(StateFinished))
		close(h.done)
	})
}

// Join blocks until the process has finished and returns its failure, if any.
func (h *ProcessHandle) Join() error {
	<-h.done
	return h.err
}

// Runtime returns how long the process ran, or has been running so far.
func (h *ProcessHandle) Runtime() time.Duration {
	select {
	case <-h.done:
		return h.ended.Sub(h.started)
	default:
		return time.Since(h.started)
	}
}

// ProcessInfo is a point-in-time view of a registered process.
type ProcessInfo struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	State     string        `json:"state"`
	StartedAt time.Time     `json:"started_at"`
	Runtime   time.Duration `json:"runtime_ns"`
}

func (h *ProcessHandle) info() ProcessInfo {
	return ProcessInfo{
		ID:        h.id,
		Name:      h.name,
		State:     h.State().String(),
		StartedAt: h.started,
		Runtime:   h.Runtime(),
	}
}

// panicError converts a recovered panic value into a worker failure.
func panicError(name string, r any) error {
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("%v", r)
	}
	return errors.New(errors.Join(ErrWorkerFailed, fmt.Errorf("process %q panicked: %w", name, cause))).
		Component(ComponentAudioCore).
		Category(errors.CategoryWorker).
		Context("process", name).
		Context("panic", fmt.Sprintf("%v", r)).
		Build()
}
