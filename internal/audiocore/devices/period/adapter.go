package period

import (
	"sync/atomic"

	"github.com/smallnest/ringbuffer"
)

// Renderer fills one fixed-size block of interleaved samples.
type Renderer func(out []float32)

// Processor turns one fixed-size input block into one output block.
type Processor func(in, out []float32)

// OutputAdapter serves device requests of any size from whole rendered
// blocks. Leftover bytes of a block are kept for the next request.
type OutputAdapter struct {
	render  Renderer
	block   []float32
	bytes   []byte
	pending *ringbuffer.RingBuffer
}

// NewOutputAdapter renders blocks of blockLen samples.
func NewOutputAdapter(blockLen int, render Renderer) *OutputAdapter {
	return &OutputAdapter{
		render:  render,
		block:   make([]float32, blockLen),
		bytes:   make([]byte, blockLen*BytesPerSample),
		pending: ringbuffer.New(2 * blockLen * BytesPerSample),
	}
}

// Fill writes exactly len(dst) bytes, rendering as many blocks as needed.
func (a *OutputAdapter) Fill(dst []byte) {
	for len(dst) > 0 {
		if a.pending.Length() == 0 {
			clear(a.block)
			a.render(a.block)
			_, _ = a.pending.Write(a.bytes[:Encode(a.bytes, a.block)])
		}
		n, _ := a.pending.Read(dst)
		dst = dst[n:]
	}
}

// DuplexAdapter collects captured bytes until a whole input block is
// available, processes it, and queues the resulting output block. Output
// requests that arrive before enough input are padded with silence.
type DuplexAdapter struct {
	process  Processor
	inBlock  []float32
	outBlock []float32
	inBytes  []byte
	outBytes []byte
	input    *ringbuffer.RingBuffer
	output   *ringbuffer.RingBuffer

	underruns atomic.Uint64
	overruns  atomic.Uint64
}

// NewDuplexAdapter processes inLen-sample input blocks into outLen-sample
// output blocks.
func NewDuplexAdapter(inLen, outLen int, process Processor) *DuplexAdapter {
	const depth = 8
	return &DuplexAdapter{
		process:  process,
		inBlock:  make([]float32, inLen),
		outBlock: make([]float32, outLen),
		inBytes:  make([]byte, inLen*BytesPerSample),
		outBytes: make([]byte, outLen*BytesPerSample),
		input:    ringbuffer.New(depth * inLen * BytesPerSample),
		output:   ringbuffer.New(depth * outLen * BytesPerSample),
	}
}

// Transfer accepts one device callback worth of input and fills dst.
// It reports whether dst had to be padded with silence.
func (a *DuplexAdapter) Transfer(dst, src []byte) (underrun bool) {
	if len(src) > 0 {
		if n, _ := a.input.Write(src); n < len(src) {
			a.overruns.Add(1)
		}
	}

	for a.input.Length() >= len(a.inBytes) && a.output.Free() >= len(a.outBytes) {
		_, _ = a.input.Read(a.inBytes)
		Decode(a.inBlock, a.inBytes)
		clear(a.outBlock)
		a.process(a.inBlock, a.outBlock)
		_, _ = a.output.Write(a.outBytes[:Encode(a.outBytes, a.outBlock)])
	}

	n := 0
	if a.output.Length() > 0 {
		n, _ = a.output.Read(dst)
	}
	if n < len(dst) {
		clear(dst[n:])
		a.underruns.Add(1)
		return true
	}
	return false
}

// Underruns counts output requests padded with silence.
func (a *DuplexAdapter) Underruns() uint64 { return a.underruns.Load() }

// Overruns counts input callbacks that did not fit into the input buffer.
func (a *DuplexAdapter) Overruns() uint64 { return a.overruns.Load() }
