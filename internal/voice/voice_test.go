package voice

import (
	"math"
	"testing"

	"github.com/msveshnikov/sfsynth/internal/gen"
	"github.com/msveshnikov/sfsynth/internal/lfo"
	"github.com/msveshnikov/sfsynth/internal/sampledump"
	"github.com/msveshnikov/sfsynth/internal/sfdata"
)

type fakeControllers struct{}

func (fakeControllers) CC(int) int           { return 0 }
func (fakeControllers) PitchWheel() int      { return 8192 }
func (fakeControllers) PitchWheelRange() int { return 2 }
func (fakeControllers) ChannelPressure() int { return 0 }

func flatZone(sampleID int) sfdata.Zone {
	preset := gen.Default()
	instrument := gen.Default()
	instrument[gen.SampleID] = int16(sampleID)
	return sfdata.Zone{
		SampleID: sampleID,
		Sample: &sfdata.Sample{
			SampleID:        sampleID,
			SampleRate:      44100,
			RootPitch:       60,
			LoopStartFrames: 100,
			LoopEndFrames:   900,
		},
		PresetGenerators:     preset,
		InstrumentGenerators: instrument,
	}
}

func renderCtx(frames int, sampleData []float32, now float64) RenderContext {
	return RenderContext{
		OutputRate: 44100,
		Now:        now,
		FrameCount: frames,
		SampleData: sampleData,
		Scratch:    make([]float32, frames),
	}
}

// scenario 1: a single middle-C note should sound immediately (no filter
// or envelope ramp-up delays blocking output entirely) and advance its
// cursor each block.
func TestRenderSingleMiddleCNote(t *testing.T) {
	store := sampledump.NewStore(4)
	data := make([]float32, 2000)
	for i := range data {
		data[i] = 1.0
	}
	store.Put(1, data)

	res := Build(BuildInput{
		ChannelIndex: 0,
		MidiNote:     60,
		Velocity:     100,
		Now:          0,
		OutputRate:   44100,
		Zone:         flatZone(1),
		Controllers:  fakeControllers{},
	}, store)

	if !res.Cacheable {
		t.Fatalf("expected cacheable voice once sample resolved")
	}
	v := res.Voice
	startCursor := v.Cursor

	mainL := make([]float32, 64)
	mainR := make([]float32, 64)
	revL := make([]float32, 64)
	revR := make([]float32, 64)
	chL := make([]float32, 64)
	chR := make([]float32, 64)

	ctx := renderCtx(64, data, 0.0005)
	finished := v.Render(ctx, mainL, mainR, revL, revR, chL, chR)
	if finished {
		t.Fatalf("voice should not finish one block in")
	}
	if v.Cursor <= startCursor {
		t.Fatalf("expected cursor to advance, stayed at %v", v.Cursor)
	}

	silentBlock := true
	for _, s := range mainL {
		if s != 0 {
			silentBlock = false
			break
		}
	}
	if silentBlock {
		t.Fatalf("expected some audible output in the first block")
	}
}

// scenario 5: a voice built before its sample has been dumped stays silent
// and un-advanced, then rehomes correctly once the dump arrives.
func TestVoiceSilentUntilDumpThenRehomes(t *testing.T) {
	store := sampledump.NewStore(4)

	res := Build(BuildInput{
		ChannelIndex: 0,
		MidiNote:     60,
		Velocity:     100,
		Now:          0,
		OutputRate:   44100,
		Zone:         flatZone(7),
		Controllers:  fakeControllers{},
	}, store)
	if res.Cacheable {
		t.Fatalf("expected not cacheable before dump arrives")
	}
	if !res.NeedsDump {
		t.Fatalf("expected a dump request to have been enqueued")
	}
	v := res.Voice

	mainL := make([]float32, 32)
	mainR := make([]float32, 32)
	revL := make([]float32, 32)
	revR := make([]float32, 32)
	chL := make([]float32, 32)
	chR := make([]float32, 32)
	ctx := renderCtx(32, nil, 0.1)
	v.Render(ctx, mainL, mainR, revL, revR, chL, chR)
	for _, s := range mainL {
		if s != 0 {
			t.Fatalf("expected silence before sample data arrives")
		}
	}

	data := make([]float32, 2000)
	for i := range data {
		data[i] = 0.5
	}
	store.Put(7, data)
	v.Rehome(0.1, 44100, len(data))
	if v.Cursor < 0 || v.Cursor > v.End {
		t.Fatalf("expected cursor rehomed within bounds, got %v (end=%v)", v.Cursor, v.End)
	}
}

// scenario 6: a degenerate loop (loopEnd<=loopStart) forces loop mode NONE
// at build time, so the voice plays through to its natural end instead of
// looping forever.
func TestDegenerateLoopForcesNoLoop(t *testing.T) {
	store := sampledump.NewStore(4)
	data := make([]float32, 50)
	for i := range data {
		data[i] = 1
	}
	store.Put(3, data)

	zone := flatZone(3)
	zone.Sample.LoopStartFrames = 10
	zone.Sample.LoopEndFrames = 10 // degenerate: zero-length loop

	res := Build(BuildInput{
		ChannelIndex: 0,
		MidiNote:     60,
		Velocity:     100,
		Now:          0,
		OutputRate:   44100,
		Zone:         zone,
		Controllers:  fakeControllers{},
	}, store)
	v := res.Voice
	if v.LoopingMode != LoopNone {
		t.Fatalf("expected degenerate loop to force LoopNone, got %v", v.LoopingMode)
	}

	mainL := make([]float32, 64)
	mainR := make([]float32, 64)
	revL := make([]float32, 64)
	revR := make([]float32, 64)
	chL := make([]float32, 64)
	chR := make([]float32, 64)

	finished := false
	for block := 0; block < 20 && !finished; block++ {
		now := float64(block) * float64(len(mainL)) / 44100.0
		ctx := renderCtx(len(mainL), data, now)
		finished = v.Render(ctx, mainL, mainR, revL, revR, chL, chR)
	}
	if !finished {
		t.Fatalf("expected voice to finish after playing through a short non-looping sample")
	}
}

func TestForceImmediateReleaseMovesReleaseStartTimeBackward(t *testing.T) {
	store := sampledump.NewStore(0)
	data := make([]float32, 1000)
	store.Put(1, data)
	res := Build(BuildInput{Now: 0, OutputRate: 44100, Zone: flatZone(1), Controllers: fakeControllers{}}, store)
	v := res.Voice
	v.ReleaseStartTime = 5
	v.ForceImmediateRelease(1, -12000)
	if v.ReleaseStartTime != 1 {
		t.Fatalf("expected forced release to move release start earlier, got %v", v.ReleaseStartTime)
	}
}

func TestReleaseTwiceIsIdempotent(t *testing.T) {
	store := sampledump.NewStore(0)
	data := make([]float32, 1000)
	store.Put(1, data)
	res := Build(BuildInput{Now: 0, OutputRate: 44100, Zone: flatZone(1), Controllers: fakeControllers{}}, store)
	v := res.Voice
	v.Release(1, 0)
	first := v.ReleaseStartTime
	v.Release(0.5, 0)
	if v.ReleaseStartTime != first {
		t.Fatalf("expected second earlier release call not to move release start backward, got %v want %v", v.ReleaseStartTime, first)
	}
}

func TestOverAttenuatedVoiceProducesNoOutput(t *testing.T) {
	store := sampledump.NewStore(0)
	data := make([]float32, 1000)
	for i := range data {
		data[i] = 1
	}
	store.Put(1, data)

	zone := flatZone(1)
	zone.InstrumentGenerators[gen.InitialAttenuation] = 1440 // max, then EMU-scaled

	res := Build(BuildInput{Now: 0, OutputRate: 44100, Zone: zone, Controllers: fakeControllers{}}, store)
	v := res.Voice
	// A generator-only attenuation tops out at 1440cB, 576cB (57.6dB) after
	// the EMU scale; push it over the 100dB ceiling the way an uncapped
	// modulator offset could.
	v.ModulatedGenerators[gen.InitialAttenuation] = 3000

	mainL := make([]float32, 16)
	mainR := make([]float32, 16)
	revL := make([]float32, 16)
	revR := make([]float32, 16)
	chL := make([]float32, 16)
	chR := make([]float32, 16)
	ctx := renderCtx(16, data, 0.001)
	v.Render(ctx, mainL, mainR, revL, revR, chL, chR)
	for _, s := range mainL {
		if s != 0 {
			t.Fatalf("expected over-attenuated voice to produce no output")
		}
	}
}

func TestTuningCentsRecomputeOnlyOnIntegerChange(t *testing.T) {
	store := sampledump.NewStore(0)
	data := make([]float32, 2000)
	for i := range data {
		data[i] = 1
	}
	store.Put(1, data)
	res := Build(BuildInput{Now: 0, OutputRate: 44100, Zone: flatZone(1), Controllers: fakeControllers{}}, store)
	v := res.Voice

	mainL := make([]float32, 16)
	mainR := make([]float32, 16)
	revL := make([]float32, 16)
	revR := make([]float32, 16)
	chL := make([]float32, 16)
	chR := make([]float32, 16)
	ctx := renderCtx(16, data, 0.01)
	v.Render(ctx, mainL, mainR, revL, revR, chL, chR)
	if v.CurrentTuningCalculated != 1.0 {
		t.Fatalf("expected unity tuning with no pitch modulators, got %v", v.CurrentTuningCalculated)
	}

	// 0.5 cents truncates to the same integer: no recompute.
	ctx = renderCtx(16, data, 0.011)
	ctx.PitchWheelCents = 0.5
	v.Render(ctx, mainL, mainR, revL, revR, chL, chR)
	if v.CurrentTuningCalculated != 1.0 {
		t.Fatalf("expected tuning kept while integer cents are unchanged, got %v", v.CurrentTuningCalculated)
	}

	// 1.5 cents truncates to 1: recompute from the full value.
	ctx = renderCtx(16, data, 0.012)
	ctx.PitchWheelCents = 1.5
	v.Render(ctx, mainL, mainR, revL, revR, chL, chR)
	if want := math.Pow(2, 1.5/1200.0); v.CurrentTuningCalculated != want {
		t.Fatalf("expected tuning recomputed on integer change, got %v want %v", v.CurrentTuningCalculated, want)
	}
}

func TestLFOValueMatchesStandaloneHelper(t *testing.T) {
	got := lfo.Value(0, 2, 0.125)
	want := 0.0 // midpoint of the rising half of a 2Hz triangle from phase 0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("sanity check on lfo.Value failed: got %v want %v", got, want)
	}
}
