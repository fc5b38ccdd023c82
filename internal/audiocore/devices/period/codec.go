// Package period adapts variable-sized device callbacks to the fixed
// chunk-sized blocks the engine renders, and converts between interleaved
// float32 samples and little-endian F32 device bytes.
package period

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the size of one F32 sample.
const BytesPerSample = 4

// Encode writes samples as little-endian IEEE-754 float32 into dst and
// returns the number of bytes written. dst must hold len(samples)*4 bytes.
func Encode(dst []byte, samples []float32) int {
	n := min(len(samples), len(dst)/BytesPerSample)
	for i := range n {
		binary.LittleEndian.PutUint32(dst[i*BytesPerSample:], math.Float32bits(samples[i]))
	}
	return n * BytesPerSample
}

// Decode reads little-endian float32 samples from src into dst and returns
// the number of samples decoded. A trailing partial sample is ignored.
func Decode(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/BytesPerSample)
	for i := range n {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*BytesPerSample:]))
	}
	return n
}
