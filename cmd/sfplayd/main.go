package main

import (
	"flag"
	"log"
	"math"
	"time"

	intaudio "github.com/msveshnikov/sfsynth/internal/audio"
	"github.com/msveshnikov/sfsynth/internal/events"
	"github.com/msveshnikov/sfsynth/synth"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		voiceCap   = flag.Int("voice-cap", 64, "global polyphony cap")
		notesArg   = flag.String("notes", "60,64,67,72", "MIDI notes to arpeggiate, separated by commas or spaces")
		tempo      = flag.Float64("tempo", 4.0, "notes per second")
		seconds    = flag.Float64("duration", 6.0, "seconds to play before exiting")
		reverbWet  = flag.Float64("reverb-wet", 0.25, "reverb send mix-back level 0..1")
		chorusWet  = flag.Float64("chorus-wet", 0.2, "chorus send mix-back level 0..1")
		gain       = flag.Float64("gain", 0.8, "master output gain 0..1")
	)
	flag.Parse()

	notes := parseNotes(*notesArg)
	if len(notes) == 0 {
		log.Fatal("no notes parsed from -notes")
	}

	proc := synth.New(
		synth.WithOutputRate(float64(*sampleRate)),
		synth.WithVoiceCap(*voiceCap),
		synth.WithChannelCount(1),
	)

	preset := newDemoPreset(1, 60, *sampleRate)
	proc.SetPreset(0, preset)
	cycle := renderSawtoothCycle(*sampleRate, rootFreqHz(preset.rootKey))
	proc.Inbound.Enqueue(events.Event{Kind: events.KindSampleDump, SampleID: preset.sampleID, Frames: cycle})

	src := &engineSource{
		proc:       proc,
		sampleRate: *sampleRate,
		step:       1.0 / *tempo,
		notes:      notes,
		reverbWet:  float32(*reverbWet),
		chorusWet:  float32(*chorusWet),
	}

	voiceOut, err := intaudio.NewOutputVoice(*sampleRate, src)
	if err != nil {
		log.Fatal(err)
	}
	voiceOut.SetGain(float32(*gain))
	voiceOut.Play()

	deadline := time.Now().Add(time.Duration(*seconds * float64(time.Second)))
	for time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	voiceOut.Stop()
}

func rootFreqHz(rootKey int) float64 {
	return 440.0 * math.Pow(2, float64(rootKey-69)/12.0)
}

func parseNotes(s string) []int {
	var notes []int
	cur := 0
	has := false
	for _, r := range s + "," {
		switch {
		case r >= '0' && r <= '9':
			cur = cur*10 + int(r-'0')
			has = true
		default:
			if has {
				notes = append(notes, cur)
			}
			cur = 0
			has = false
		}
	}
	return notes
}

// engineSource adapts a synth.Processor into intaudio.Renderer: interleaved
// stereo float32 frames, with the processor's reverb/chorus sends mixed
// straight back into the main output at a fixed wet level, since spec.md 1
// keeps tail generation itself out of the synthesis core — this harness
// only needs to prove the sends carry signal, not color them.
type engineSource struct {
	proc       *synth.Processor
	sampleRate int
	now        float64

	step      float64
	nextEvent float64
	noteIdx   int
	notes     []int

	reverbWet float32
	chorusWet float32

	planes synth.Planes
}

func (s *engineSource) Render(dst []float32) {
	frames := len(dst) / 2
	s.ensureCapacity(frames)
	s.zeroPlanes(frames)

	blockStart := s.now
	blockEnd := blockStart + float64(frames)/float64(s.sampleRate)
	for s.nextEvent < blockEnd {
		s.fireNextNote()
		s.nextEvent += s.step
	}

	s.proc.Process(frames, &s.planes, blockStart)

	for i := 0; i < frames; i++ {
		l := s.planes.MainL[i] + s.planes.ReverbL[i]*s.reverbWet + s.planes.ChorusL[i]*s.chorusWet
		r := s.planes.MainR[i] + s.planes.ReverbR[i]*s.reverbWet + s.planes.ChorusR[i]*s.chorusWet
		dst[i*2] = l
		dst[i*2+1] = r
	}

	s.now = blockEnd
}

func (s *engineSource) fireNextNote() {
	note := s.notes[s.noteIdx%len(s.notes)]
	s.noteIdx++
	s.proc.Inbound.Enqueue(events.Event{Kind: events.KindNoteOn, ChannelIndex: 0, Note: note, Velocity: 100})
}

func (s *engineSource) ensureCapacity(frames int) {
	if cap(s.planes.MainL) >= frames {
		return
	}
	s.planes = synth.Planes{
		MainL:   make([]float32, frames),
		MainR:   make([]float32, frames),
		ReverbL: make([]float32, frames),
		ReverbR: make([]float32, frames),
		ChorusL: make([]float32, frames),
		ChorusR: make([]float32, frames),
	}
}

func (s *engineSource) zeroPlanes(frames int) {
	s.planes.MainL = s.planes.MainL[:frames]
	s.planes.MainR = s.planes.MainR[:frames]
	s.planes.ReverbL = s.planes.ReverbL[:frames]
	s.planes.ReverbR = s.planes.ReverbR[:frames]
	s.planes.ChorusL = s.planes.ChorusL[:frames]
	s.planes.ChorusR = s.planes.ChorusR[:frames]
	for i := 0; i < frames; i++ {
		s.planes.MainL[i] = 0
		s.planes.MainR[i] = 0
		s.planes.ReverbL[i] = 0
		s.planes.ReverbR[i] = 0
		s.planes.ChorusL[i] = 0
		s.planes.ChorusR[i] = 0
	}
}
