// Package filter implements the per-voice biquad lowpass, driven by a
// cutoff expressed in absolute cents and a fixed resonance, per spec.md
// 4.I. Coefficients are recomputed only when the integer-truncated cutoff
// actually changes, following the teacher engine's discipline of
// recomputing its one-pole alpha only on a cutoff change rather than every
// frame.
package filter

import (
	"math"

	"github.com/msveshnikov/sfsynth/internal/units"
)

// Biquad is a direct-form-I RBJ lowpass with persistent delay-line state.
type Biquad struct {
	a0, a1, a2, b1, b2 float64
	x1, x2, y1, y2     float64

	lastCutoffCents int
	lastCutoffHz    float64
}

// Reset zeros the delay line. Called at voice birth per spec.md's Voice
// field description ("filter state... persists across blocks and is
// zeroed at voice birth").
func (f *Biquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// SetAllPass installs a unity-gain, zero-phase-shift initial state so a
// freshly built voice is transparent to the filter until its first
// recompute, per spec.md 4.E step 10.
func (f *Biquad) SetAllPass() {
	f.a0, f.a1, f.a2, f.b1, f.b2 = 1, 0, 0, 0, 0
	f.Reset()
	f.lastCutoffCents = 0
	f.lastCutoffHz = 0
}

// Recompute updates the biquad coefficients if the integer-truncated
// cutoffCents differs from the last computed value. outputRate is the
// host sample rate; qCentibels is the generator initialFilterQ value
// (centibels of resonance gain at the cutoff).
func (f *Biquad) Recompute(cutoffCents float64, qCentibels float64, outputRate float64) {
	truncated := int(cutoffCents)
	if truncated == f.lastCutoffCents && f.lastCutoffHz != 0 {
		return
	}
	f.lastCutoffCents = truncated

	maxHz := outputRate/2 - 100
	if maxHz < 1 {
		maxHz = 1
	}
	hz := units.AbsCentsToHz(cutoffCents)
	if hz < 1 {
		hz = 1
	}
	if hz > maxHz {
		hz = maxHz
	}
	f.lastCutoffHz = hz

	const butterworthQ = 0.7071067811865476
	q := butterworthQ * units.CentibelsToGain(-qCentibels)
	if q <= 0 {
		q = butterworthQ
	}

	omega := 2 * math.Pi * hz / outputRate
	sinw := math.Sin(omega)
	cosw := math.Cos(omega)
	alpha := sinw / (2 * q)

	b0 := (1 - cosw) / 2
	b1 := 1 - cosw
	b2 := (1 - cosw) / 2
	a0 := 1 + alpha
	a1 := -2 * cosw
	a2 := 1 - alpha

	f.a0 = b0 / a0
	f.a1 = b1 / a0
	f.a2 = b2 / a0
	f.b1 = a1 / a0
	f.b2 = a2 / a0
}

// CutoffHz returns the last-computed cutoff frequency in Hz.
func (f *Biquad) CutoffHz() float64 { return f.lastCutoffHz }

// Process filters buf in place, one sample at a time, using the direct
// form I difference equation.
func (f *Biquad) Process(buf []float32) {
	for i, in := range buf {
		x0 := float64(in)
		y0 := f.a0*x0 + f.a1*f.x1 + f.a2*f.x2 - f.b1*f.y1 - f.b2*f.y2
		f.x2 = f.x1
		f.x1 = x0
		f.y2 = f.y1
		f.y1 = y0
		buf[i] = float32(y0)
	}
}
