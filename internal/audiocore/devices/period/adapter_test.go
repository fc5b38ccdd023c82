package period

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUsesLittleEndianF32(t *testing.T) {
	t.Parallel()

	samples := []float32{0, 1, -1, 0.5, float32(math.Pi)}
	buf := make([]byte, len(samples)*BytesPerSample)
	require.Equal(t, len(buf), Encode(buf, samples))

	// 1.0 is 0x3f800000
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, buf[4:8])

	out := make([]float32, len(samples))
	require.Equal(t, len(samples), Decode(out, buf))
	assert.Equal(t, samples, out)
}

func TestDecodeIgnoresPartialSample(t *testing.T) {
	t.Parallel()

	out := make([]float32, 4)
	n := Decode(out, []byte{0x00, 0x00, 0x80, 0x3f, 0x01, 0x02})
	assert.Equal(t, 1, n)
	assert.InDelta(t, 1.0, out[0], 1e-9)
}

func TestOutputAdapterServesArbitraryRequestSizes(t *testing.T) {
	t.Parallel()

	next := float32(0)
	calls := 0
	a := NewOutputAdapter(4, func(out []float32) {
		calls++
		for i := range out {
			out[i] = next
			next++
		}
	})

	// 6 samples, then 2, then 5: blocks are consumed contiguously.
	got := make([]float32, 0, 13)
	for _, n := range []int{6, 2, 5} {
		dst := make([]byte, n*BytesPerSample)
		a.Fill(dst)
		block := make([]float32, n)
		Decode(block, dst)
		got = append(got, block...)
	}

	for i, v := range got {
		assert.Equal(t, float32(i), v, "sample %d", i)
	}
	assert.Equal(t, 4, calls)
}

func TestDuplexAdapterProcessesWholeBlocks(t *testing.T) {
	t.Parallel()

	var blocks int
	a := NewDuplexAdapter(2, 4, func(in, out []float32) {
		blocks++
		for i, s := range in {
			out[2*i] = s
			out[2*i+1] = -s
		}
	})

	in := make([]byte, 2*BytesPerSample)
	Encode(in, []float32{1, 2})
	out := make([]byte, 4*BytesPerSample)

	underrun := a.Transfer(out, in)
	assert.False(t, underrun)
	assert.Equal(t, 1, blocks)

	decoded := make([]float32, 4)
	Decode(decoded, out)
	assert.Equal(t, []float32{1, -1, 2, -2}, decoded)
}

func TestDuplexAdapterPadsWhenInputIsShort(t *testing.T) {
	t.Parallel()

	a := NewDuplexAdapter(4, 4, func(in, out []float32) { copy(out, in) })

	in := make([]byte, 2*BytesPerSample)
	Encode(in, []float32{1, 1})
	out := make([]byte, 4*BytesPerSample)
	for i := range out {
		out[i] = 0xff
	}

	assert.True(t, a.Transfer(out, in))
	assert.Equal(t, make([]byte, len(out)), out)
	assert.Equal(t, uint64(1), a.Underruns())

	// The second half completes the block.
	assert.False(t, a.Transfer(out, in))
	decoded := make([]float32, 4)
	Decode(decoded, out)
	assert.Equal(t, []float32{1, 1, 1, 1}, decoded)
}
