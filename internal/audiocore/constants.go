package audiocore

import "time"

// Stream defaults
const (
	DefaultChunk       = 1024
	DefaultSampleRate  = 44100
	DefaultOutChannels = 1
	DefaultInChannels  = 1
)

// Engine timing defaults
const (
	// DefaultCloseDelay lets in-flight callbacks observe the shutdown flag before joining
	DefaultCloseDelay = time.Second

	// DefaultGracePeriod is waited after every process has been joined
	DefaultGracePeriod = 500 * time.Millisecond

	// DefaultReapInterval bounds how long a finished worker can stay registered
	DefaultReapInterval = 250 * time.Millisecond
)

// Registered process names
const (
	ProcessNameWorker  = "dsp"
	ProcessNameDuplex  = "duplex stream"
	ProcessNameMonitor = "monitor active processes"
)
