// Package audiocore is the lanemix session engine: a realtime mixer fed by
// many concurrently running sample producers.
//
// # Architecture Overview
//
//   - FrameQueue: a growable set of frame FIFOs ("lanes"). Each producer
//     batch claims its own empty lane, so batches play back in order and
//     overlapping batches are summed.
//   - MasterOutput: a named output stream owning a FrameQueue. Its device
//     callback pops one frame per non-empty lane, sums them, applies an
//     optional BlockPatch and writes the result.
//   - WorkerProcess: computes a batch of samples off the audio thread
//     (Source, PatchSpace or Hybrid input), chunks it into frames and
//     publishes the batch into a freshly claimed lane.
//   - DuplexStream: passes each captured input block through a DuplexPatch
//     to the output device.
//   - ProcessMonitor: registry of every goroutine the engine starts. It
//     reaps finished workers and joins everything on shutdown.
//   - Engine: the facade tying the above to one ShutdownFlag.
//
// # Concurrency
//
// Device callbacks, stream control goroutines, worker goroutines and the
// monitor loop run concurrently. The FrameQueue mutex, the monitor mutex
// and each LatencyAccumulator mutex are never held at the same time, and
// no lock is held while user code runs except inside the device callback
// itself.
//
// Shutdown is cooperative: Engine.Close flips the ShutdownFlag, every stream
// control goroutine stops and closes its device, and the monitor joins all
// processes, including workers still computing, before Close returns.
//
// # Errors
//
// Device failures are returned from the Create and Start methods. Worker
// failures, including panics in generators and transforms, fail only that
// batch and are reported by ProcessHandle.Join. Programming errors such as
// a frame of the wrong length or a duplex patch returning the wrong number
// of samples panic with an *errors.EnhancedError.
package audiocore
