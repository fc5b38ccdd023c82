package audiocore

import (
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/lanemix/internal/errors"
)

// InputKind selects how a worker obtains its samples.
type InputKind int

const (
	// InputSource uses a precomputed sample sequence verbatim.
	InputSource InputKind = iota
	// InputPatchSpace calls a generator once to produce the samples.
	InputPatchSpace
	// InputHybrid chunks a sample sequence and transforms every frame.
	InputHybrid
)

func (k InputKind) String() string {
	switch k {
	case InputSource:
		return "source"
	case InputPatchSpace:
		return "patch_space"
	case InputHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// WorkerInput is the tagged input of one worker batch.
type WorkerInput struct {
	kind      InputKind
	samples   []float32
	generator BlockGenerator
	transform FrameTransform
}

// Source schedules precomputed samples.
func Source(samples []float32) WorkerInput {
	return WorkerInput{kind: InputSource, samples: samples}
}

// PatchSpace schedules the output of a generator invoked once on the worker goroutine.
func PatchSpace(gen BlockGenerator) WorkerInput {
	return WorkerInput{kind: InputPatchSpace, generator: gen}
}

// Hybrid schedules samples that are chunked and then transformed frame by frame.
func Hybrid(samples []float32, transform FrameTransform) WorkerInput {
	return WorkerInput{kind: InputHybrid, samples: samples, transform: transform}
}

// Kind returns the input variant.
func (in WorkerInput) Kind() InputKind { return in.kind }

func (in WorkerInput) validate() error {
	switch {
	case in.kind == InputPatchSpace && in.generator == nil:
		return errors.Newf("patch space input requires a generator").
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	case in.kind == InputHybrid && in.transform == nil:
		return errors.Newf("hybrid input requires a frame transform").
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Chunk splits samples into ceil(len/frameLen) frames of exactly frameLen
// samples. The last frame is zero padded. Empty input yields no frames.
func Chunk(samples []float32, frameLen int) []Frame {
	if frameLen <= 0 {
		panic(assertion(ErrFrameLength, "frame_len", frameLen))
	}
	n := (len(samples) + frameLen - 1) / frameLen
	frames := make([]Frame, n)
	for i := range n {
		f := make(Frame, frameLen)
		copy(f, samples[i*frameLen:])
		frames[i] = f
	}
	return frames
}

// WorkerProcess computes sample batches off the audio thread and publishes
// each batch into its own lane of a master output's frame queue.
type WorkerProcess struct {
	output   string
	queue    *FrameQueue
	monitor  *ProcessMonitor
	shutdown *ShutdownFlag
	latency  *LatencyAccumulator
	metrics  *MetricsCollector
	logger   *slog.Logger
	parallel bool
	poolSize int
	verbose  bool
}

func newWorkerProcess(out *MasterOutput, e *Engine, parallel bool) *WorkerProcess {
	return &WorkerProcess{
		output:   out.Name(),
		queue:    out.Queue(),
		monitor:  e.monitor,
		shutdown: e.shutdown,
		latency:  e.workerLatency,
		metrics:  e.metrics,
		logger:   e.componentLogger("worker").With("output", out.Name()),
		parallel: parallel,
		poolSize: e.poolSize,
		verbose:  e.verbose,
	}
}

// Output returns the name of the master output this worker feeds.
func (w *WorkerProcess) Output() string { return w.output }

// Parallel reports whether hybrid transforms run on a bounded pool.
func (w *WorkerProcess) Parallel() bool { return w.parallel }

// Start runs one batch on a new monitored goroutine and returns its handle.
// A worker may be started any number of times; every batch gets its own lane.
func (w *WorkerProcess) Start(input WorkerInput) (*ProcessHandle, error) {
	if !w.shutdown.IsRunning() {
		return nil, ErrEngineClosed
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	h, err := w.monitor.spawn(ProcessNameWorker, func() error {
		return w.run(input)
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (w *WorkerProcess) run(input WorkerInput) error {
	start := time.Now()

	frames, err := w.produce(input)
	if err == nil {
		err = w.checkFrames(frames)
	}
	if err != nil {
		w.metrics.RecordBatch(w.output, 0, time.Since(start), err)
		return err
	}

	if len(frames) > 0 {
		idx := w.queue.ClaimEmptyLane()
		w.queue.PutFrames(idx, frames)
		w.queue.ReleaseLane(idx)
	}

	elapsed := time.Since(start)
	w.latency.Record(elapsed)
	w.metrics.RecordBatch(w.output, len(frames), elapsed, nil)
	w.metrics.RecordQueue(w.output, w.queue)

	if w.verbose {
		w.logger.Debug("batch published",
			"input", input.kind.String(),
			"frames", len(frames),
			"latency", elapsed)
	}
	return nil
}

// produce runs user code. Panics become errors so a failed batch never
// reaches the queue.
func (w *WorkerProcess) produce(input WorkerInput) (frames []Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			frames = nil
			err = panicError(ProcessNameWorker, r)
		}
	}()

	frameLen := w.queue.FrameLen()
	switch input.kind {
	case InputSource:
		return Chunk(input.samples, frameLen), nil
	case InputPatchSpace:
		return Chunk(input.generator.Generate(), frameLen), nil
	case InputHybrid:
		return w.transformFrames(Chunk(input.samples, frameLen), input.transform)
	default:
		return nil, errors.Newf("unknown worker input kind %d", input.kind).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
}

// transformFrames applies t to every frame, preserving order.
func (w *WorkerProcess) transformFrames(frames []Frame, t FrameTransform) ([]Frame, error) {
	out := make([]Frame, len(frames))
	if !w.parallel || len(frames) < 2 {
		for i, f := range frames {
			out[i] = adopt(f, t.Transform(f))
		}
		return out, nil
	}

	var g errgroup.Group
	g.SetLimit(max(w.poolSize, 1))
	for i, f := range frames {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = panicError(ProcessNameWorker, r)
				}
			}()
			out[i] = adopt(f, t.Transform(f))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// adopt copies a transform result into the frame it was computed from, so a
// transform that reuses its output buffer cannot change frames already
// produced. Results of the wrong length are returned as is for checkFrames.
func adopt(f, res Frame) Frame {
	if len(res) != len(f) || len(res) == 0 || &res[0] == &f[0] {
		return res
	}
	copy(f, res)
	return f
}

func (w *WorkerProcess) checkFrames(frames []Frame) error {
	want := w.queue.FrameLen()
	for i, f := range frames {
		if len(f) != want {
			return errors.New(errors.Join(ErrWorkerFailed, ErrFrameLength)).
				Component(ComponentAudioCore).
				Category(errors.CategoryWorker).
				Context("frame", i).
				Context("expected", want).
				Context("got", len(f)).
				Build()
		}
	}
	return nil
}
