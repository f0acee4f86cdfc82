// Package mod implements the SoundFont modulator model: evaluating a
// routable controller -> generator-offset mapping against a controller
// snapshot, per spec.md 4.C.
package mod

import (
	"math"

	"github.com/msveshnikov/sfsynth/internal/gen"
)

// SourceKind identifies the category of a modulator source or amount-source.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceCC
	SourceNoteOnVelocity
	SourceNoteOnKey
	SourceChannelPressure
	SourcePolyPressure
	SourcePitchWheel
	SourcePitchWheelRange
)

// Source identifies a single modulator source: a SourceKind, with a MIDI CC
// number when Kind is SourceCC.
type Source struct {
	Kind SourceKind
	CC   int
}

// ControllerSource exposes the per-channel controller state a modulator
// needs to evaluate its CC and pitch-wheel sources. Channel's controller
// table satisfies this interface structurally; mod never imports channel.
type ControllerSource interface {
	// CC returns the current 14-bit value of MIDI controller number cc.
	CC(cc int) int
	PitchWheel() int
	PitchWheelRange() int
	ChannelPressure() int
}

// VoiceContext exposes the per-voice scalar values (note-on velocity/key,
// polyphonic aftertouch) a modulator may source from.
type VoiceContext interface {
	Velocity() int
	Key() int
	PolyPressure() int
}

// Transform maps a normalized [0,1] source value to a shaped [0,1] value
// before it is scaled by Amount. Linear is the SoundFont default.
type Transform func(x float64) float64

// Linear is the identity transform.
func Linear(x float64) float64 { return x }

// Concave approximates the SoundFont "concave" controller transform,
// commonly used for velocity-to-attenuation routings: an audio-taper curve
// that rises slowly near 0 and steeply near 1.
func Concave(x float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return 1
	default:
		return (math.Pow(10, x) - 1) / 9
	}
}

// Modulator is one SoundFont modulator block: it adds an additive
// centibel/cent offset into its destination generator slot.
type Modulator struct {
	Source       Source
	AmountSource Source
	Destination  gen.ID
	Amount       int16
	Transform    Transform
}

// sourceValue returns the normalized [0,1] (or [-1,1] for bipolar sources
// such as pitch wheel) value of a Source given the current contexts; the
// pitch-wheel-range source is the exception and yields the range in
// semitones. Unknown/unsupported sources yield 0, per spec.md 4.C.
func sourceValue(s Source, controllers ControllerSource, vc VoiceContext) float64 {
	switch s.Kind {
	case SourceCC:
		if controllers == nil {
			return 0
		}
		return float64(controllers.CC(s.CC)) / 16383.0
	case SourceNoteOnVelocity:
		if vc == nil {
			return 0
		}
		return float64(vc.Velocity()) / 127.0
	case SourceNoteOnKey:
		if vc == nil {
			return 0
		}
		return float64(vc.Key()) / 127.0
	case SourceChannelPressure:
		if controllers == nil {
			return 0
		}
		return float64(controllers.ChannelPressure()) / 16383.0
	case SourcePolyPressure:
		if vc == nil {
			return 0
		}
		return float64(vc.PolyPressure()) / 127.0
	case SourcePitchWheel:
		if controllers == nil {
			return 0
		}
		// Pitch wheel is bipolar around the 14-bit center (8192).
		return (float64(controllers.PitchWheel()) - 8192.0) / 8192.0
	case SourcePitchWheelRange:
		if controllers == nil {
			return 0
		}
		return float64(controllers.PitchWheelRange())
	default:
		return 0
	}
}

// Evaluate computes this modulator's additive offset into its destination
// generator slot: transform(source) * amountSource * amount, per spec.md
// 4.C. amountSource defaults to 1 (full scale) when unset.
func (m Modulator) Evaluate(controllers ControllerSource, vc VoiceContext) float64 {
	transform := m.Transform
	if transform == nil {
		transform = Linear
	}
	src := transform(sourceValue(m.Source, controllers, vc))
	amt := 1.0
	if m.AmountSource.Kind != SourceNone {
		amt = sourceValue(m.AmountSource, controllers, vc)
	}
	return src * amt * float64(m.Amount)
}

// Compute rebuilds the modulated generator vector: starts from the raw
// generators and, for each modulator, adds its evaluated offset into the
// destination slot, per spec.md 4.C. Must be called on voice birth,
// controller change, exclusive-class forced release, and wherever else
// spec.md names it.
func Compute(generators gen.Vector, modulators []Modulator, controllers ControllerSource, vc VoiceContext) gen.Vector {
	out := generators
	for _, m := range modulators {
		offset := m.Evaluate(controllers, vc)
		out[m.Destination] = addOffset(out[m.Destination], offset)
	}
	return out
}

func addOffset(base int16, offset float64) int16 {
	v := int32(base) + int32(offset)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
