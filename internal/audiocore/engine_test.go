package audiocore_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/audiocore/devices/virtual"
	"github.com/tphakala/lanemix/internal/errors"
	"github.com/tphakala/lanemix/internal/observability/metrics"
)

func newTestEngine(t *testing.T, backend *virtual.Backend, opts ...audiocore.EngineOption) *audiocore.Engine {
	t.Helper()
	opts = append([]audiocore.EngineOption{
		audiocore.WithCloseDelay(0),
		audiocore.WithGracePeriod(0),
		audiocore.WithReapInterval(10 * time.Millisecond),
	}, opts...)
	e := audiocore.NewEngine(backend, opts...)
	t.Cleanup(e.Close)
	return e
}

func monoParams(chunk int) audiocore.StreamParameters {
	p := audiocore.DefaultStreamParameters()
	p.Chunk = chunk
	return p
}

func TestWorkerChunksSourceIntoOneLane(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New())
	out, err := e.CreateMasterStreamout("main", monoParams(4))
	require.NoError(t, err)

	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)
	h, err := w.Start(audiocore.Source([]float32{1, 2, 3, 4, 5}))
	require.NoError(t, err)
	require.NoError(t, h.Join())

	q := out.Queue()
	assert.Equal(t, 1, q.LaneCount())
	assert.Equal(t, audiocore.Frame{1, 2, 3, 4}, q.PopFrame(0))
	assert.Equal(t, audiocore.Frame{5, 0, 0, 0}, q.PopFrame(0))
	assert.True(t, q.IsAllEmpty())
}

func TestOverlappingBatchesUseSeparateLanes(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New())
	out, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)

	first, err := w.Start(audiocore.Source([]float32{1, 1, 1, 1}))
	require.NoError(t, err)
	require.NoError(t, first.Join())
	second, err := w.Start(audiocore.Source([]float32{2, 2}))
	require.NoError(t, err)
	require.NoError(t, second.Join())

	q := out.Queue()
	require.Equal(t, 2, q.LaneCount())
	assert.Equal(t, 3, q.Pending())
}

func TestMasterOutputMixesLanesAndAppliesPatch(t *testing.T) {
	t.Parallel()

	backend := virtual.New()
	e := newTestEngine(t, backend)
	out, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)

	for _, batch := range [][]float32{{0.1, 0.2}, {0.05, -0.1}} {
		h, err := w.Start(audiocore.Source(batch))
		require.NoError(t, err)
		require.NoError(t, h.Join())
	}

	half := audiocore.BlockPatchFunc(func(block []float32) {
		for i := range block {
			block[i] *= 0.5
		}
	})
	_, err = out.Start(half)
	require.NoError(t, err)
	assert.Equal(t, audiocore.StreamStreaming, out.State())

	stream := backend.Streams()[0]
	block := stream.Tick()
	require.Len(t, block, 2)
	assert.InDelta(t, 0.075, block[0], 1e-6)
	assert.InDelta(t, 0.05, block[1], 1e-6)
	assert.True(t, out.Queue().IsAllEmpty())

	// Nothing left to mix: the patch runs on silence.
	assert.Equal(t, []float32{0, 0}, stream.Tick())
	assert.Equal(t, uint64(2), out.Latency().Iterations())
}

func TestMasterOutputPlaysBatchesInOrder(t *testing.T) {
	t.Parallel()

	backend := virtual.New()
	e := newTestEngine(t, backend)
	out, err := e.CreateMasterStreamout("main", monoParams(1))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)

	h, err := w.Start(audiocore.Source([]float32{1, 2, 3}))
	require.NoError(t, err)
	require.NoError(t, h.Join())
	_, err = out.Start(nil)
	require.NoError(t, err)

	stream := backend.Streams()[0]
	for _, want := range []float32{1, 2, 3, 0} {
		assert.Equal(t, []float32{want}, stream.Tick())
	}
}

func TestMasterOutputStartTwice(t *testing.T) {
	t.Parallel()

	backend := virtual.New()
	e := newTestEngine(t, backend)
	out, err := e.CreateMasterStreamout("main", monoParams(1))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)
	h, err := w.Start(audiocore.Source([]float32{1, 1}))
	require.NoError(t, err)
	require.NoError(t, h.Join())

	_, err = out.Start(nil)
	require.NoError(t, err)
	stream := backend.Streams()[0]
	assert.Equal(t, []float32{1}, stream.Tick())

	_, err = out.Start(audiocore.BlockPatchFunc(func(block []float32) {
		block[0] = 42
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, audiocore.ErrStreamStarted))

	// The rejected call must not replace the running patch.
	assert.Equal(t, []float32{1}, stream.Tick())
}

func TestDuplexStartTwiceKeepsPatch(t *testing.T) {
	t.Parallel()

	backend := virtual.New(virtual.WithInput(func(in []float32) {
		for i := range in {
			in[i] = 0.5
		}
	}))
	e := newTestEngine(t, backend)
	d, err := e.CreateDuplexStream(monoParams(2))
	require.NoError(t, err)
	_, err = d.Start(nil)
	require.NoError(t, err)

	stream := backend.Streams()[0]
	assert.Equal(t, []float32{0.5, 0.5}, stream.Tick())

	_, err = d.Start(audiocore.DuplexPatchFunc(func(in []float32) []float32 {
		return []float32{9, 9}
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, audiocore.ErrStreamStarted))
	assert.Equal(t, []float32{0.5, 0.5}, stream.Tick())
}

func TestDuplexPassThrough(t *testing.T) {
	t.Parallel()

	backend := virtual.New(virtual.WithInput(func(in []float32) {
		for i := range in {
			in[i] = float32(i) / 10
		}
	}))
	e := newTestEngine(t, backend)
	d, err := e.CreateDuplexStream(monoParams(3))
	require.NoError(t, err)
	_, err = d.Start(nil)
	require.NoError(t, err)

	got := backend.Streams()[0].Tick()
	assert.InDeltaSlice(t, []float32{0, 0.1, 0.2}, got, 1e-6)
}

func TestDuplexPatchMapsMonoToStereo(t *testing.T) {
	t.Parallel()

	backend := virtual.New()
	e := newTestEngine(t, backend)
	params := monoParams(2)
	params.OutChannels = 2
	d, err := e.CreateDuplexStream(params)
	require.NoError(t, err)

	_, err = d.Start(audiocore.DuplexPatchFunc(func(in []float32) []float32 {
		out := make([]float32, 0, 2*len(in))
		for _, s := range in {
			out = append(out, s, -s)
		}
		return out
	}))
	require.NoError(t, err)

	got := backend.Streams()[0].TickInput([]float32{0.5, 0.25})
	assert.Equal(t, []float32{0.5, -0.5, 0.25, -0.25}, got)
}

func TestDuplexPatchWrongLengthPanics(t *testing.T) {
	t.Parallel()

	backend := virtual.New()
	e := newTestEngine(t, backend)
	params := monoParams(2)
	params.OutChannels = 2
	d, err := e.CreateDuplexStream(params)
	require.NoError(t, err)

	// Mono in, stereo out, but the patch returns the mono block untouched.
	_, err = d.Start(audiocore.DuplexPatchFunc(func(in []float32) []float32 { return in }))
	require.NoError(t, err)

	stream := backend.Streams()[0]
	defer func() {
		r := recover()
		require.NotNil(t, r)
		perr, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(perr, audiocore.ErrDuplexChannelMismatch))
		assert.Contains(t, perr.Error(), "same number of channels")
	}()
	stream.Tick()
}

func TestDuplexNilPatchRequiresMatchingChannels(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New())
	params := monoParams(2)
	params.OutChannels = 2
	d, err := e.CreateDuplexStream(params)
	require.NoError(t, err)

	_, err = d.Start(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, audiocore.ErrInvalidParameters))
	assert.Equal(t, audiocore.StreamIdle, d.State())
}

func TestWorkerPanicFailsOnlyThatBatch(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New())
	out, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", true)
	require.NoError(t, err)

	bad, err := w.Start(audiocore.PatchSpace(audiocore.BlockGeneratorFunc(func() []float32 {
		panic("generator exploded")
	})))
	require.NoError(t, err)
	err = bad.Join()
	require.Error(t, err)
	assert.True(t, errors.Is(err, audiocore.ErrWorkerFailed))
	assert.True(t, out.Queue().IsAllEmpty())

	good, err := w.Start(audiocore.PatchSpace(audiocore.BlockGeneratorFunc(func() []float32 {
		return []float32{1, 2}
	})))
	require.NoError(t, err)
	require.NoError(t, good.Join())
	assert.Equal(t, 1, out.Queue().Pending())
}

func TestParallelHybridPanicInOneFrame(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New(), audiocore.WithPoolSize(2))
	out, err := e.CreateMasterStreamout("main", monoParams(1))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", true)
	require.NoError(t, err)

	h, err := w.Start(audiocore.Hybrid([]float32{1, 2, 3, 4}, audiocore.FrameTransformFunc(func(f audiocore.Frame) audiocore.Frame {
		if f[0] == 3 {
			panic("bad frame")
		}
		return f
	})))
	require.NoError(t, err)
	require.Error(t, h.Join())
	assert.True(t, out.Queue().IsAllEmpty())
}

func TestParallelHybridPreservesFrameOrder(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New(), audiocore.WithPoolSize(4))
	out, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", true)
	require.NoError(t, err)
	assert.True(t, w.Parallel())

	samples := make([]float32, 64)
	for i := range samples {
		samples[i] = float32(i)
	}
	double := audiocore.FrameTransformFunc(func(f audiocore.Frame) audiocore.Frame {
		g := make(audiocore.Frame, len(f))
		for i, s := range f {
			g[i] = 2 * s
		}
		return g
	})

	h, err := w.Start(audiocore.Hybrid(samples, double))
	require.NoError(t, err)
	require.NoError(t, h.Join())

	q := out.Queue()
	require.Equal(t, 32, q.Pending())
	for i := range 32 {
		assert.Equal(t, audiocore.Frame{float32(4 * i), float32(4*i + 2)}, q.PopFrame(0))
	}
}

func TestHybridTransformMayReuseOutputBuffer(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New())
	out, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)

	buf := make(audiocore.Frame, 2)
	negate := audiocore.FrameTransformFunc(func(f audiocore.Frame) audiocore.Frame {
		for i, s := range f {
			buf[i] = -s
		}
		return buf
	})
	h, err := w.Start(audiocore.Hybrid([]float32{1, 2, 3, 4, 5, 6}, negate))
	require.NoError(t, err)
	require.NoError(t, h.Join())

	buf[0], buf[1] = 99, 99
	q := out.Queue()
	assert.Equal(t, audiocore.Frame{-1, -2}, q.PopFrame(0))
	assert.Equal(t, audiocore.Frame{-3, -4}, q.PopFrame(0))
	assert.Equal(t, audiocore.Frame{-5, -6}, q.PopFrame(0))
}

func TestHybridTransformWrongLengthIsRejected(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New())
	out, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)

	h, err := w.Start(audiocore.Hybrid([]float32{1, 2}, audiocore.FrameTransformFunc(func(f audiocore.Frame) audiocore.Frame {
		return f[:1]
	})))
	require.NoError(t, err)
	err = h.Join()
	require.Error(t, err)
	assert.True(t, errors.Is(err, audiocore.ErrFrameLength))
	assert.True(t, out.Queue().IsAllEmpty())
}

func TestWorkerInputValidation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New())
	_, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)

	_, err = w.Start(audiocore.PatchSpace(nil))
	require.Error(t, err)
	_, err = w.Start(audiocore.Hybrid([]float32{1}, nil))
	require.Error(t, err)
	assert.Zero(t, e.Monitor().Len())
}

func TestCreateMasterStreamoutErrors(t *testing.T) {
	t.Parallel()

	backend := virtual.New()
	e := newTestEngine(t, backend)

	_, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)

	t.Run("duplicate name", func(t *testing.T) {
		_, err := e.CreateMasterStreamout("main", monoParams(2))
		assert.True(t, errors.Is(err, audiocore.ErrOutputExists))
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := e.CreateMasterStreamout("", monoParams(2))
		assert.Error(t, err)
	})

	t.Run("invalid parameters", func(t *testing.T) {
		_, err := e.CreateMasterStreamout("bad", monoParams(0))
		assert.True(t, errors.Is(err, audiocore.ErrInvalidParameters))
	})

	t.Run("device failure", func(t *testing.T) {
		backend.FailNextOpen(errors.NewStd("no such device"))
		_, err := e.CreateMasterStreamout("aux", monoParams(2))
		require.Error(t, err)
		assert.True(t, errors.Is(err, audiocore.ErrDeviceUnavailable))
		assert.Contains(t, err.Error(), "no such device")
		_, ok := e.Output("aux")
		assert.False(t, ok)
	})

	t.Run("device index out of range", func(t *testing.T) {
		idx := 7
		p := monoParams(2)
		p.OutDevice = &idx
		_, err := e.CreateMasterStreamout("far", p)
		assert.True(t, errors.Is(err, audiocore.ErrDeviceUnavailable))
	})

	t.Run("unknown output", func(t *testing.T) {
		_, err := e.CreateWorkerProcess("missing", false)
		assert.True(t, errors.Is(err, audiocore.ErrOutputNotFound))
	})
}

func TestOutputsInCreationOrder(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New())
	for _, name := range []string{"b", "a", "c"} {
		_, err := e.CreateMasterStreamout(name, monoParams(2))
		require.NoError(t, err)
	}

	var names []string
	for _, m := range e.Outputs() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
}

func TestCloseJoinsEverything(t *testing.T) {
	t.Parallel()

	backend := virtual.New(virtual.WithClock())
	e := audiocore.NewEngine(backend, audiocore.WithCloseDelay(0), audiocore.WithGracePeriod(0))

	out, err := e.CreateMasterStreamout("main", monoParams(64))
	require.NoError(t, err)
	_, err = e.CreateMasterStreamout("idle", monoParams(64))
	require.NoError(t, err)
	d, err := e.CreateDuplexStream(monoParams(64))
	require.NoError(t, err)

	e.StartMonitoring()
	_, err = out.Start(nil)
	require.NoError(t, err)
	_, err = d.Start(nil)
	require.NoError(t, err)

	var finished atomic.Bool
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)
	_, err = w.Start(audiocore.PatchSpace(audiocore.BlockGeneratorFunc(func() []float32 {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return []float32{1}
	})))
	require.NoError(t, err)

	e.Close()

	assert.False(t, e.IsRunning())
	assert.True(t, finished.Load(), "in-flight worker was not joined")
	assert.Zero(t, e.Monitor().Len())
	assert.Equal(t, audiocore.StreamStopped, out.State())
	assert.Equal(t, audiocore.StreamStopped, d.State())
	for _, s := range backend.Streams() {
		assert.True(t, s.Closed())
		assert.False(t, s.Running())
	}

	// Idempotent.
	e.Close()
}

func TestClosedEngineRejectsWork(t *testing.T) {
	t.Parallel()

	e := audiocore.NewEngine(virtual.New(), audiocore.WithCloseDelay(0), audiocore.WithGracePeriod(0))
	out, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)

	e.Close()

	_, err = e.CreateMasterStreamout("late", monoParams(2))
	assert.True(t, errors.Is(err, audiocore.ErrEngineClosed))
	_, err = e.CreateDuplexStream(monoParams(2))
	assert.True(t, errors.Is(err, audiocore.ErrEngineClosed))
	_, err = w.Start(audiocore.Source([]float32{1}))
	assert.True(t, errors.Is(err, audiocore.ErrEngineClosed))
	_, err = out.Start(nil)
	assert.Error(t, err)
}

func TestWorkerStartRacingClose(t *testing.T) {
	t.Parallel()

	e := audiocore.NewEngine(virtual.New(), audiocore.WithCloseDelay(0), audiocore.WithGracePeriod(0))
	_, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		handles []*audiocore.ProcessHandle
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h, err := w.Start(audiocore.Source([]float32{1, 2}))
				if err != nil {
					assert.ErrorIs(t, err, audiocore.ErrEngineClosed)
					return
				}
				mu.Lock()
				handles = append(handles, h)
				mu.Unlock()
			}
		}()
	}
	e.Close()
	wg.Wait()

	// Close has returned, every accepted batch must already be joined.
	for _, h := range handles {
		assert.Equal(t, audiocore.StateFinished, h.State())
	}
	assert.Zero(t, e.Monitor().Len())
}

func TestStatusAndMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewAudioCoreMetrics(reg)
	require.NoError(t, err)

	backend := virtual.New()
	e := newTestEngine(t, backend, audiocore.WithMetrics(audiocore.NewMetricsCollector(m)))
	out, err := e.CreateMasterStreamout("main", monoParams(2))
	require.NoError(t, err)
	w, err := e.CreateWorkerProcess("main", false)
	require.NoError(t, err)

	h, err := w.Start(audiocore.Source([]float32{1, 2, 3, 4}))
	require.NoError(t, err)
	require.NoError(t, h.Join())
	_, err = out.Start(nil)
	require.NoError(t, err)
	backend.Streams()[0].Tick()

	status := e.Status()
	assert.True(t, status.Running)
	assert.Equal(t, uint64(1), status.WorkerBatches)
	require.Len(t, status.Outputs, 1)
	assert.Equal(t, "main", status.Outputs[0].Name)
	assert.Equal(t, "streaming", status.Outputs[0].State)
	assert.Equal(t, 1, status.Outputs[0].PendingFrames)
	assert.Equal(t, uint64(1), status.Outputs[0].Iterations)

	assert.Positive(t, testutil.CollectAndCount(m, "lanemix_callbacks_total"))
	assert.Positive(t, testutil.CollectAndCount(m, "lanemix_frames_enqueued_total"))
	assert.Positive(t, testutil.CollectAndCount(m, "lanemix_worker_batches_total"))
}

func TestDevicesListsBackendDevices(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, virtual.New())
	devices, err := e.Devices()
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}
