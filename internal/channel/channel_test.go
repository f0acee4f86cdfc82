package channel

import (
	"testing"

	"github.com/msveshnikov/sfsynth/internal/gen"
	"github.com/msveshnikov/sfsynth/internal/sampledump"
	"github.com/msveshnikov/sfsynth/internal/sfdata"
)

type fakePreset struct {
	exclusiveClass int16
}

func (p fakePreset) GetSamplesAndGenerators(note, velocity int) ([]sfdata.Zone, error) {
	instrument := gen.Default()
	instrument[gen.SampleID] = 1
	instrument[gen.ExclusiveClass] = p.exclusiveClass
	return []sfdata.Zone{{
		SampleID: 1,
		Sample: &sfdata.Sample{
			SampleID:        1,
			SampleRate:      44100,
			RootPitch:       60,
			LoopStartFrames: 100,
			LoopEndFrames:   900,
		},
		PresetGenerators:     gen.Default(),
		InstrumentGenerators: instrument,
	}}, nil
}

func resolvedStore() *sampledump.Store {
	s := sampledump.NewStore(0)
	data := make([]float32, 2000)
	for i := range data {
		data[i] = 1
	}
	s.Put(1, data)
	return s
}

func TestNoteOnThenNoteOffReleasesVoice(t *testing.T) {
	ch := New(0)
	store := resolvedStore()
	voices, _, err := ch.NoteOn(fakePreset{}, 60, 100, 0, 44100, store)
	if err != nil || len(voices) != 1 {
		t.Fatalf("expected one voice, got %v err=%v", voices, err)
	}
	ch.NoteOff(60, 1)
	if !ch.Voices[0].IsInRelease {
		t.Fatalf("expected voice to be releasing after note-off")
	}
}

// scenario 2: hold pedal sustains a note past note-off until pedal-up.
func TestHoldPedalSustainsPastNoteOff(t *testing.T) {
	ch := New(0)
	store := resolvedStore()
	ch.NoteOn(fakePreset{}, 60, 100, 0, 44100, store)

	ch.CCChange(CCSustainPedal, 127, 0.1)
	if !ch.HoldPedal {
		t.Fatalf("expected hold pedal engaged")
	}

	ch.NoteOff(60, 0.2)
	if len(ch.Voices) != 0 || len(ch.SustainedVoices) != 1 {
		t.Fatalf("expected voice moved to sustained list, voices=%d sustained=%d", len(ch.Voices), len(ch.SustainedVoices))
	}
	if ch.SustainedVoices[0].IsInRelease {
		t.Fatalf("sustained voice should not yet be releasing")
	}

	ch.CCChange(CCSustainPedal, 0, 0.3)
	if ch.HoldPedal {
		t.Fatalf("expected hold pedal released")
	}
	if len(ch.SustainedVoices) != 0 || len(ch.Voices) != 1 {
		t.Fatalf("expected sustained voice moved back to live list on pedal release")
	}
	if !ch.Voices[0].IsInRelease {
		t.Fatalf("expected voice releasing after pedal-up")
	}
	if ch.Voices[0].ReleaseStartTime != 0.3 {
		t.Fatalf("expected releaseStartTime=0.3, got %v", ch.Voices[0].ReleaseStartTime)
	}
}

// scenario 3: exclusive class cutoff.
func TestExclusiveClassCutsOffPriorVoice(t *testing.T) {
	ch := New(0)
	store := resolvedStore()
	preset := fakePreset{exclusiveClass: 1}

	v1s, _, _ := ch.NoteOn(preset, 60, 100, 0, 44100, store)
	v1 := v1s[0]
	if v1.IsInRelease {
		t.Fatalf("v1 should not start in release")
	}

	ch.NoteOn(preset, 64, 100, 0.01, 44100, store)
	if !v1.IsInRelease {
		t.Fatalf("expected v1 forced into release by exclusive-class cutoff")
	}
	if ch.Voices[0].ModulatedGenerators[gen.ReleaseVolEnv] != -7200 {
		t.Fatalf("expected cutoff voice's releaseVolEnv forced to -7200")
	}
	if len(ch.Voices) != 2 {
		t.Fatalf("expected both voices to momentarily coexist, got %d", len(ch.Voices))
	}
}

// scenario 4: voice cap stealing removes the lowest-velocity voices.
func TestStealVoicesRemovesLowestVelocity(t *testing.T) {
	ch := New(0)
	store := resolvedStore()
	for vel := 127; vel >= 100; vel-- {
		ch.NoteOn(fakePreset{}, 60, vel, 0, 44100, store)
	}
	total := len(ch.Voices)
	removed := StealVoices([]*Channel{ch}, 3, 1)
	if removed != 3 {
		t.Fatalf("expected 3 stolen, got %d", removed)
	}

	releasing := 0
	lowestSurvivingVelocity := 1000
	for _, v := range ch.Voices {
		if v.IsInRelease {
			releasing++
		} else if v.Velocity < lowestSurvivingVelocity {
			lowestSurvivingVelocity = v.Velocity
		}
	}
	if releasing != 3 {
		t.Fatalf("expected exactly 3 voices forced into release, got %d (of %d total)", releasing, total)
	}
	if lowestSurvivingVelocity != 103 {
		t.Fatalf("expected velocities 100-102 stolen and 103 the lowest survivor, got %d", lowestSurvivingVelocity)
	}
}

func TestCCResetIsIdempotentWithSameExclusions(t *testing.T) {
	ch := New(0)
	ch.CCChange(CCMainVolume, 50, 0)
	ch.CCReset([]int{CCMainVolume})
	firstVolume := ch.Controllers.CC(CCMainVolume)
	ch.CCReset([]int{CCMainVolume})
	if ch.Controllers.CC(CCMainVolume) != firstVolume {
		t.Fatalf("expected ccReset with same excluded set to be idempotent")
	}
}

func TestCCChangeReachesNonCCTail(t *testing.T) {
	ch := New(0)
	ch.CCChange(IdxPitchWheel, 2000, 0)
	if got := ch.Controllers.PitchWheel(); got != 2000 {
		t.Fatalf("expected pitchWheel slot updated to 2000, got %d", got)
	}
	ch.CCChange(IdxChannelPressure, 8000, 0)
	if got := ch.Controllers.ChannelPressure(); got != 8000 {
		t.Fatalf("expected channelPressure slot updated to 8000, got %d", got)
	}
	ch.CCChange(IdxChannelTuning, 50, 0)
	if got := ch.Controllers.ChannelTuningCents(); got != 50 {
		t.Fatalf("expected channelTuning slot updated to 50 cents, got %v", got)
	}
}

func TestNoteOnCachesBuiltVoiceTemplate(t *testing.T) {
	ch := New(0)
	store := resolvedStore()
	ch.NoteOn(fakePreset{}, 60, 100, 0, 44100, store)
	if _, ok := ch.cache[cacheKey{60, 100}]; !ok {
		t.Fatalf("expected a cached template after a fully-resolved note-on")
	}

	voices, _, err := ch.NoteOn(fakePreset{}, 60, 100, 5, 44100, store)
	if err != nil || len(voices) != 1 {
		t.Fatalf("expected cache hit to still produce one voice, got %v err=%v", voices, err)
	}
	if voices[0].StartTime != 5 {
		t.Fatalf("expected cache-hit voice to carry the new startTime, got %v", voices[0].StartTime)
	}
}

func TestStopAllMode1DropsVoicesImmediately(t *testing.T) {
	ch := New(0)
	store := resolvedStore()
	ch.NoteOn(fakePreset{}, 60, 100, 0, 44100, store)
	ch.StopAll(1, 1)
	if len(ch.Voices) != 0 {
		t.Fatalf("expected all voices dropped")
	}
}

func TestMuteChannelSkipsRenderButKeepsVoicesAlive(t *testing.T) {
	ch := New(0)
	store := resolvedStore()
	ch.NoteOn(fakePreset{}, 60, 100, 0, 44100, store)
	ch.MuteChannel(true)

	scratch := make([]float32, 32)
	mainL := make([]float32, 32)
	mainR := make([]float32, 32)
	revL := make([]float32, 32)
	revR := make([]float32, 32)
	chL := make([]float32, 32)
	chR := make([]float32, 32)
	ch.RenderBlock(BlockContext{Now: 0.001, OutputRate: 44100, FrameCount: 32, Scratch: scratch, Store: store}, mainL, mainR, revL, revR, chL, chR)

	for _, s := range mainL {
		if s != 0 {
			t.Fatalf("expected muted channel to produce no output")
		}
	}
	if len(ch.Voices) != 1 {
		t.Fatalf("expected muted channel's voice to remain alive, not rendered")
	}
}
