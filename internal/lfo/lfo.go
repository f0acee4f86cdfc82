// Package lfo implements the triangle low-frequency oscillator shared by
// the vibrato and modulation LFO sources (spec.md 4.H). Unlike a
// phase-accumulator LFO, Value is a pure function of absolute time: it
// takes the audio clock directly, so it needs no per-block state and stays
// exactly in sync no matter how many blocks are skipped or re-rendered.
package lfo

// Value returns a triangle wave in [-1, 1] with phase zero at startSec and
// period 1/freqHz, sampled at time now. Returns 0 if now is before
// startSec or freqHz is non-positive, matching spec.md's delay semantics.
func Value(startSec, freqHz, now float64) float64 {
	if now < startSec || freqHz <= 0 {
		return 0
	}
	t := now - startSec
	phase := t * freqHz
	phase -= floor(phase)
	if phase < 0.5 {
		return 4.0*phase - 1.0
	}
	return 3.0 - 4.0*phase
}

// Config bundles a single LFO's delay, rate and depth, as used by a
// channel's NRPN-driven vibrato. A voice's own vibrato and modulation LFOs
// call Value directly.
type Config struct {
	DelaySec float64
	FreqHz   float64
	Depth    float64
}

// Sample returns this LFO's contribution (already scaled by Depth) at time
// now, given the voice/channel start time the delay is measured from.
func (c Config) Sample(startSec, now float64) float64 {
	if c.Depth == 0 {
		return 0
	}
	return Value(startSec+c.DelaySec, c.FreqHz, now) * c.Depth
}

func floor(x float64) float64 {
	i := int64(x)
	if x < 0 && float64(i) != x {
		i--
	}
	return float64(i)
}
