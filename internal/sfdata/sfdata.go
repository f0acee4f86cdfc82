// Package sfdata declares the collaborator contracts this core consumes:
// the records supplied by an external SoundFont2/3 parser. Parsing itself
// (chunk decoding, Vorbis decompression) is out of scope per spec.md 1;
// only the shapes are declared here.
package sfdata

import (
	"github.com/msveshnikov/sfsynth/internal/gen"
	"github.com/msveshnikov/sfsynth/internal/mod"
)

// Sample is an immutable record describing one SoundFont sample. It carries
// no decode handle of its own: it has no future-style or synchronous
// audio-data accessor, and decoded frames reach the core only through the
// sample store (a sampleDump event).
type Sample struct {
	SampleID             int
	SampleRate           int
	RootPitch            int
	PitchCorrectionCents int
	LoopStartFrames      int
	LoopEndFrames        int
	IsCompressed         bool

	// Data holds already-decoded mono PCM normalized to [-1,1]. Nil if
	// the sample has not been dumped yet.
	Data []float32
}

// Zone is one (sample, preset-generators, instrument-generators,
// modulators) tuple yielded by a preset lookup, per spec.md 6.
type Zone struct {
	SampleID            int
	Sample              *Sample
	PresetGenerators    gen.Vector
	InstrumentGenerators gen.Vector
	Modulators          []mod.Modulator
}

// Preset is the external collaborator contract for a resolved SoundFont
// preset: given a note and velocity, it yields every zone that should
// sound.
type Preset interface {
	GetSamplesAndGenerators(note, velocity int) ([]Zone, error)
}
