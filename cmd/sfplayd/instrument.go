package main

import (
	"github.com/msveshnikov/sfsynth/internal/gen"
	"github.com/msveshnikov/sfsynth/internal/mod"
	"github.com/msveshnikov/sfsynth/internal/sfdata"
)

// demoPreset stands in for a parsed SoundFont preset: spec.md 1 places
// chunk decoding and Vorbis decompression out of scope, so this harness
// resolves every note against one bright sawtooth sample instead of a
// real bank. It still exercises the full zone/generator/modulator shape
// a real preset lookup would hand the core.
type demoPreset struct {
	sampleID   int
	rootKey    int
	sampleRate int
}

func newDemoPreset(sampleID, rootKey, sampleRate int) *demoPreset {
	return &demoPreset{sampleID: sampleID, rootKey: rootKey, sampleRate: sampleRate}
}

func (p *demoPreset) GetSamplesAndGenerators(note, velocity int) ([]sfdata.Zone, error) {
	instrument := gen.Default()
	instrument[gen.SampleID] = int16(p.sampleID)
	instrument[gen.SustainVolEnv] = 200
	instrument[gen.ReleaseVolEnv] = -2400
	instrument[gen.AttackVolEnv] = -7000
	instrument[gen.HoldVolEnv] = -1000
	instrument[gen.DecayVolEnv] = -2000
	instrument[gen.InitialFilterFc] = 13500
	instrument[gen.InitialFilterQ] = 20

	preset := gen.Default()

	return []sfdata.Zone{{
		SampleID: p.sampleID,
		Sample: &sfdata.Sample{
			SampleID:   p.sampleID,
			SampleRate: p.sampleRate,
			RootPitch:  p.rootKey,
		},
		PresetGenerators:     preset,
		InstrumentGenerators: instrument,
		Modulators:           defaultModulators(),
	}}, nil
}

// defaultModulators mirrors the default SoundFont modulator set named in
// spec.md 4.C: note-on velocity to initial attenuation, and the
// modulation wheel to vibrato LFO depth.
func defaultModulators() []mod.Modulator {
	return []mod.Modulator{
		{
			Source:      mod.Source{Kind: mod.SourceNoteOnVelocity},
			Destination: gen.InitialAttenuation,
			Amount:      960,
			Transform:   mod.Concave,
		},
		{
			Source:      mod.Source{Kind: mod.SourceCC, CC: 1},
			Destination: gen.VibLfoToPitch,
			Amount:      50,
			Transform:   mod.Linear,
		},
	}
}

// renderSawtoothCycle synthesizes one band-limited-ish sawtooth period at
// rootFreqHz sampled at sampleRate, the "decoded audio" this harness hands
// to the sample store via a sampleDump event.
func renderSawtoothCycle(sampleRate int, rootFreqHz float64) []float32 {
	cycleFrames := int(float64(sampleRate) / rootFreqHz)
	if cycleFrames < 2 {
		cycleFrames = 2
	}
	out := make([]float32, cycleFrames)
	for i := range out {
		phase := float64(i) / float64(cycleFrames)
		out[i] = float32(2*phase - 1)
	}
	return out
}
