// Package patches provides the block patches, generators and frame
// transforms used by the lanemix commands.
package patches

import (
	"math"
	"sync/atomic"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/errors"
)

const (
	componentPatches = "patches"

	MinGain = 0.0
	MaxGain = 10.0
)

// Gain scales a mixed block and clips it to [-1, 1]. The factor can be
// changed while the stream runs.
type Gain struct {
	bits    atomic.Uint64
	scratch []float64
	coeffs  []float64
}

var _ audiocore.BlockPatch = (*Gain)(nil)

// NewGain returns a gain patch. Gains outside [MinGain, MaxGain] are rejected.
func NewGain(gain float64) (*Gain, error) {
	g := &Gain{}
	if err := g.SetGain(gain); err != nil {
		return nil, err
	}
	return g, nil
}

// SetGain updates the factor.
func (g *Gain) SetGain(gain float64) error {
	if math.IsNaN(gain) || gain < MinGain || gain > MaxGain {
		return errors.Newf("gain must be between %.1f and %.1f", MinGain, MaxGain).
			Component(componentPatches).
			Category(errors.CategoryValidation).
			Context("gain", gain).
			Build()
	}
	g.bits.Store(math.Float64bits(gain))
	return nil
}

// Gain returns the current factor.
func (g *Gain) Gain() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Process applies the gain in place. It is called from a single callback
// goroutine, so the scratch buffers are not locked.
func (g *Gain) Process(block []float32) {
	gain := g.Gain()
	if gain == 1 {
		for i, s := range block {
			block[i] = clip(float64(s))
		}
		return
	}
	if cap(g.scratch) < len(block) {
		g.scratch = make([]float64, len(block))
		g.coeffs = make([]float64, len(block))
	}
	scratch, coeffs := g.scratch[:len(block)], g.coeffs[:len(block)]
	for i, s := range block {
		scratch[i] = float64(s)
		coeffs[i] = gain
	}
	vecmath.MulBlockInPlace(scratch, coeffs)
	for i, v := range scratch {
		block[i] = clip(v)
	}
}

func clip(v float64) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return float32(v)
	}
}
