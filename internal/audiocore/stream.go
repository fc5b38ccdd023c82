package audiocore

import (
	"log/slog"
	"sync/atomic"

	"github.com/tphakala/lanemix/internal/errors"
)

// StreamState is the lifecycle of a master output or duplex stream.
type StreamState int32

const (
	StreamIdle StreamState = iota
	StreamStreaming
	StreamStopped
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamStreaming:
		return "streaming"
	case StreamStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// streamControl holds the state machine and shutdown handling shared by
// master outputs and duplex streams.
type streamControl struct {
	name     string
	stream   Stream
	state    atomic.Int32
	latency  *LatencyAccumulator
	monitor  *ProcessMonitor
	shutdown *ShutdownFlag
	metrics  *MetricsCollector
	logger   *slog.Logger
	verbose  bool
}

func (c *streamControl) State() StreamState {
	return StreamState(c.state.Load())
}

func (c *streamControl) streaming() bool {
	return c.State() == StreamStreaming
}

// begin moves Idle to Streaming, runs install, starts the platform stream
// and spawns the control goroutine registered under processName. install
// only runs when the transition succeeds, before the device starts calling
// back.
func (c *streamControl) begin(processName string, install, report func()) (*ProcessHandle, error) {
	if !c.shutdown.IsRunning() {
		return nil, ErrEngineClosed
	}
	if !c.state.CompareAndSwap(int32(StreamIdle), int32(StreamStreaming)) {
		return nil, errors.New(ErrStreamStarted).
			Component(ComponentAudioCore).
			Category(errors.CategoryState).
			Context("stream", c.name).
			Context("state", c.State().String()).
			Build()
	}
	install()

	if err := c.stream.Start(); err != nil {
		c.state.Store(int32(StreamStopped))
		_ = c.stream.Close()
		return nil, errors.New(errors.Join(ErrDeviceUnavailable, err)).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("stream", c.name).
			Context("operation", "start_stream").
			Build()
	}

	if c.verbose {
		c.logger.Debug("stream started", "stream", c.name)
	}

	h, err := c.monitor.spawn(processName, func() error {
		<-c.shutdown.Done()
		err := c.halt()
		report()
		return err
	})
	if err != nil {
		_ = c.halt()
		return nil, err
	}
	return h, nil
}

// halt stops and closes the platform stream.
func (c *streamControl) halt() error {
	stopErr := c.stream.Stop()
	closeErr := c.stream.Close()
	c.state.Store(int32(StreamStopped))
	if err := errors.Join(stopErr, closeErr); err != nil {
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioDevice).
			Context("stream", c.name).
			Context("operation", "stop_stream").
			Build()
	}
	return nil
}

// release closes a stream that was opened but never started.
func (c *streamControl) release() {
	if c.state.CompareAndSwap(int32(StreamIdle), int32(StreamStopped)) {
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("failed to close unstarted stream", "stream", c.name, "error", err)
		}
	}
}
