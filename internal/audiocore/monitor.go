package audiocore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/lanemix/internal/logging"
)

// ProcessMonitor is the registry of every goroutine the engine starts. It
// reaps finished workers in the background and joins everything on shutdown.
type ProcessMonitor struct {
	mu      sync.Mutex
	procs   []*ProcessHandle
	notify  chan struct{}
	logger  *slog.Logger
	metrics *MetricsCollector
	verbose bool
	closed  bool
}

// NewProcessMonitor creates an empty monitor. metrics may be nil.
func NewProcessMonitor(metrics *MetricsCollector, verbose bool) *ProcessMonitor {
	logger := logging.ForService("audiocore")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "process_monitor")

	return &ProcessMonitor{
		notify:  make(chan struct{}, 1),
		logger:  logger,
		metrics: metrics,
		verbose: verbose,
	}
}

// Register inserts a handle. The handle stays registered until a reap or
// JoinAndRemoveAll joins it. Once JoinAndRemoveAll has drained the registry
// Register fails with ErrEngineClosed.
func (m *ProcessMonitor) Register(h *ProcessHandle) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrEngineClosed
	}
	m.procs = append(m.procs, h)
	n := len(m.procs)
	m.mu.Unlock()

	m.metrics.RecordProcesses(n, 0)
	if m.verbose {
		m.logger.Debug("process registered", "name", h.Name(), "id", h.ID())
	}
	return nil
}

// Go registers a new process and runs fn on its own goroutine. A panic in fn
// is recovered and becomes the process failure. On a closed monitor fn never
// runs and the returned handle is already finished with ErrEngineClosed.
func (m *ProcessMonitor) Go(name string, fn func() error) *ProcessHandle {
	h, _ := m.spawn(name, fn)
	return h
}

func (m *ProcessMonitor) spawn(name string, fn func() error) (*ProcessHandle, error) {
	h := NewProcessHandle(name)
	if err := m.Register(h); err != nil {
		h.Finish(err)
		return h, err
	}

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = panicError(name, r)
			}
			h.Finish(err)
			m.wake()
		}()
		err = fn()
	}()

	return h, nil
}

func (m *ProcessMonitor) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of registered processes.
func (m *ProcessMonitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.procs)
}

// Snapshot returns registered processes in registration order.
func (m *ProcessMonitor) Snapshot() []ProcessInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProcessInfo, 0, len(m.procs))
	for _, h := range m.procs {
		out = append(out, h.info())
	}
	return out
}

// ReapFinished joins and removes every finished process and returns how
// many were removed. Running processes are left untouched.
func (m *ProcessMonitor) ReapFinished() int {
	m.mu.Lock()
	var finished []*ProcessHandle
	kept := m.procs[:0]
	for _, h := range m.procs {
		if h.State() == StateFinished {
			finished = append(finished, h)
			continue
		}
		kept = append(kept, h)
	}
	for i := len(kept); i < len(m.procs); i++ {
		m.procs[i] = nil
	}
	m.procs = kept
	remaining := len(m.procs)
	m.mu.Unlock()

	for _, h := range finished {
		m.join(h)
	}
	if len(finished) > 0 {
		m.metrics.RecordProcesses(remaining, len(finished))
	}
	return len(finished)
}

// JoinAndRemoveAll joins every registered process regardless of state,
// blocking on those still running, until the registry is empty. Processes
// registered while it runs are joined too. The monitor is closed when it
// returns.
func (m *ProcessMonitor) JoinAndRemoveAll() {
	for {
		m.mu.Lock()
		batch := m.procs
		m.procs = nil
		if len(batch) == 0 {
			m.closed = true
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		for _, h := range batch {
			m.join(h)
		}
		m.metrics.RecordProcesses(m.Len(), len(batch))
	}
}

func (m *ProcessMonitor) join(h *ProcessHandle) {
	if err := h.Join(); err != nil {
		m.logger.Error("process finished with error",
			"name", h.Name(),
			"id", h.ID(),
			"runtime", h.Runtime(),
			"error", err)
		m.metrics.RecordProcessFailure(h.Name())
		return
	}
	if m.verbose {
		m.logger.Debug("process reaped", "name", h.Name(), "id", h.ID(), "runtime", h.Runtime())
	}
}

// Run is the monitor loop. It reaps whenever a process finishes, and at
// least once per interval, until shutdown is requested. It does not join
// processes that are still running when shutdown arrives.
func (m *ProcessMonitor) Run(shutdown *ShutdownFlag, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown.Done():
			m.ReapFinished()
			return nil
		case <-m.notify:
			m.ReapFinished()
		case <-ticker.C:
			m.ReapFinished()
		}
	}
}
