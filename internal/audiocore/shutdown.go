package audiocore

import (
	"sync"
	"sync/atomic"
)

// ShutdownFlag is the engine-wide "running" flag shared by every stream
// control goroutine, the monitor loop and the engine itself.
type ShutdownFlag struct {
	running atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// NewShutdownFlag returns a flag in the running state.
func NewShutdownFlag() *ShutdownFlag {
	f := &ShutdownFlag{done: make(chan struct{})}
	f.running.Store(true)
	return f
}

// IsRunning reports whether shutdown has not been requested yet.
func (f *ShutdownFlag) IsRunning() bool {
	return f.running.Load()
}

// Stop flips the flag to false. Safe to call more than once.
func (f *ShutdownFlag) Stop() {
	f.once.Do(func() {
		f.running.Store(false)
		close(f.done)
	})
}

// Done is closed when Stop is first called.
func (f *ShutdownFlag) Done() <-chan struct{} {
	return f.done
}
