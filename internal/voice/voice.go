// Package voice implements the per-voice synthesis pipeline: the voice
// builder (spec.md 4.E), the wavetable oscillator (4.F), envelope driving
// (4.G/4.H), filter application (4.I) and panning + effect sends (4.J).
// The oscillator loop-wrap logic is grounded on the teacher engine's
// wavetable.Engine.RenderFrame; the equal-power pan law is lifted directly
// from the same source.
package voice

import (
	"math"

	"github.com/msveshnikov/sfsynth/internal/envelope"
	"github.com/msveshnikov/sfsynth/internal/filter"
	"github.com/msveshnikov/sfsynth/internal/gen"
	"github.com/msveshnikov/sfsynth/internal/lfo"
	"github.com/msveshnikov/sfsynth/internal/mod"
	"github.com/msveshnikov/sfsynth/internal/sampledump"
	"github.com/msveshnikov/sfsynth/internal/sfdata"
	"github.com/msveshnikov/sfsynth/internal/units"
)

// LoopMode re-exports sampledump's loop mode enum so callers never need to
// import sampledump just to name NONE/CONTINUOUS/UNTIL_RELEASE.
type LoopMode = sampledump.LoopMode

const (
	LoopNone         = sampledump.LoopNone
	LoopContinuous   = sampledump.LoopContinuous
	LoopUntilRelease = sampledump.LoopUntilRelease
)

// overAttenuatedDb is the initial-attenuation ceiling past which a voice
// is treated as inaudible and skipped (or finished, if already
// releasing), per spec.md 4.G.
const overAttenuatedDb = 100.0

// Voice is the central mutable synthesis entity: one sounding note.
type Voice struct {
	// Identification.
	ChannelIndex int
	MidiNote     int
	Velocity     int
	TargetKey    int
	StartTime    float64
	PolyAfter    int

	// Sample slice.
	SampleID     int
	Cursor       float64
	PlaybackStep float64
	RootKey      int
	LoopStart    float64
	LoopEnd      float64
	End          float64
	LoopingMode  LoopMode

	EndAddrOffset        int
	EndAddrsCoarseOffset int

	// Generators.
	Generators           gen.Vector
	ModulatedGenerators  gen.Vector
	Modulators           []mod.Modulator

	// Envelope state.
	VolEnv envelope.Volume
	ModEnv envelope.Mod

	// Tuning cache.
	CurrentTuningCents      int
	CurrentTuningCalculated float64

	// Filter state.
	Filter filter.Biquad

	// Flags.
	IsInRelease      bool
	Finished         bool
	ReleaseStartTime float64
	ExclusiveClass   int
}

// velocityVal/keyVal/polyPressureVal back voiceContext's implementation of
// mod.VoiceContext.
func (v *Voice) velocityVal() int     { return v.Velocity }
func (v *Voice) keyVal() int          { return v.TargetKey }
func (v *Voice) polyPressureVal() int { return v.PolyAfter }

// voiceContext adapts a *Voice to mod.VoiceContext without exporting the
// three accessor names as part of Voice's own method set collision risk.
type voiceContext struct{ v *Voice }

func (c voiceContext) Velocity() int     { return c.v.velocityVal() }
func (c voiceContext) Key() int          { return c.v.keyVal() }
func (c voiceContext) PolyPressure() int { return c.v.polyPressureVal() }

// Recompute rebuilds ModulatedGenerators from the raw generators and the
// current controller snapshot, per spec.md 4.C. Must be invoked by the
// channel manager on voice birth, controller change, and exclusive-class
// forced release — never automatically per block.
func (v *Voice) Recompute(controllers mod.ControllerSource) {
	v.ModulatedGenerators = mod.Compute(v.Generators, v.Modulators, controllers, voiceContext{v})
}

// BuildInput is everything the voice builder needs beyond the zone data
// itself, per spec.md 4.E.
type BuildInput struct {
	ChannelIndex int
	MidiNote     int
	Velocity     int
	Now          float64
	OutputRate   float64
	Zone         sfdata.Zone
	Controllers  mod.ControllerSource
}

// BuildResult is one built voice plus whether it is safe to enter the
// per-(note,velocity) voice cache: caching is forbidden while any sample in
// the group is still unresolved, since `end` would be wrong once it
// arrives, per spec.md 4.E and design notes.
type BuildResult struct {
	Voice     *Voice
	Cacheable bool
	NeedsDump bool
}

// Build constructs one Voice from a zone, following spec.md 4.E step by
// step.
func Build(in BuildInput, store *sampledump.Store) BuildResult {
	z := in.Zone

	generators := gen.Combine(z.PresetGenerators, z.InstrumentGenerators)
	gen.ApplyEMUAttenuationScale(&generators)

	rootKey := in.MidiNote
	if z.Sample != nil {
		rootKey = z.Sample.RootPitch
	}
	if v := generators[gen.OverridingRootKey]; v >= 0 {
		rootKey = int(v)
	}

	targetKey := in.MidiNote
	if v := generators[gen.KeyNumOverride]; v >= 0 {
		targetKey = int(v)
	}

	velocity := in.Velocity
	if v := generators[gen.VelocityOverride]; v >= 0 {
		velocity = int(v)
	}

	var sampleRate, pitchCorrection, loopStartFrames, loopEndFrames int
	if z.Sample != nil {
		sampleRate = z.Sample.SampleRate
		pitchCorrection = z.Sample.PitchCorrectionCents
		loopStartFrames = z.Sample.LoopStartFrames
		loopEndFrames = z.Sample.LoopEndFrames
	}
	if sampleRate == 0 {
		sampleRate = int(in.OutputRate)
	}

	loopStart := float64(loopStartFrames) + float64(generators[gen.StartloopAddrsOffset]) + 32768*float64(generators[gen.StartloopAddrsCoarseOffset])
	loopEnd := float64(loopEndFrames) + float64(generators[gen.EndloopAddrsOffset]) + 32768*float64(generators[gen.EndloopAddrsCoarseOffset])

	loopingMode := LoopMode(generators[gen.SampleModes] & 3)
	if loopEnd-loopStart < 1 {
		loopingMode = LoopNone
	}

	playbackStep := float64(sampleRate) / in.OutputRate * math.Pow(2, float64(pitchCorrection)/1200.0)
	cursor := float64(generators[gen.StartAddrsOffset]) + 32768*float64(generators[gen.StartAddrsCoarseOffset])

	var dataLen int
	cacheable := true
	var needsDump bool
	if z.Sample != nil {
		if frames, ok := store.Get(z.Sample.SampleID); ok {
			dataLen = len(frames)
		} else {
			cacheable = false
			needsDump = store.RequestDump(z.Sample.SampleID)
		}
	}
	end := float64(dataLen-1) + float64(generators[gen.EndAddrsOffset]) + 32768*float64(generators[gen.EndAddrsCoarseOffset])

	vc := &Voice{
		ChannelIndex: in.ChannelIndex,
		MidiNote:     in.MidiNote,
		Velocity:     velocity,
		TargetKey:    targetKey,
		StartTime:    in.Now,

		SampleID:     z.SampleID,
		Cursor:       cursor,
		PlaybackStep: playbackStep,
		RootKey:      rootKey,
		LoopStart:    loopStart,
		LoopEnd:      loopEnd,
		End:          end,
		LoopingMode:  loopingMode,

		EndAddrOffset:        int(generators[gen.EndAddrsOffset]),
		EndAddrsCoarseOffset: int(generators[gen.EndAddrsCoarseOffset]),

		Generators:     generators,
		Modulators:     z.Modulators,
		VolEnv:         envelope.NewVolume(),
		ModEnv:         envelope.NewMod(),
		ExclusiveClass: int(generators[gen.ExclusiveClass]),

		ReleaseStartTime: math.Inf(1),
		CurrentTuningCalculated: 1.0,
	}
	vc.Filter.SetAllPass()
	vc.Recompute(in.Controllers)

	return BuildResult{Voice: vc, Cacheable: cacheable, NeedsDump: needsDump}
}

// CloneForRetrigger instantiates a fresh live voice from a cached template
// (a snapshot of a previously Build-produced Voice), resetting every
// time-dependent field to its birth state while reusing the template's
// generator/modulator/loop data, per spec.md 4.E's "cache hit only updates
// startTime" rule. now becomes the clone's StartTime; controllers feeds
// the initial Recompute.
func CloneForRetrigger(template *Voice, now float64, controllers mod.ControllerSource) *Voice {
	nv := &Voice{
		ChannelIndex: template.ChannelIndex,
		MidiNote:     template.MidiNote,
		Velocity:     template.Velocity,
		TargetKey:    template.TargetKey,
		StartTime:    now,

		SampleID:     template.SampleID,
		Cursor:       template.Cursor,
		PlaybackStep: template.PlaybackStep,
		RootKey:      template.RootKey,
		LoopStart:    template.LoopStart,
		LoopEnd:      template.LoopEnd,
		End:          template.End,
		LoopingMode:  template.LoopingMode,

		EndAddrOffset:        template.EndAddrOffset,
		EndAddrsCoarseOffset: template.EndAddrsCoarseOffset,

		Generators:     template.Generators,
		Modulators:     template.Modulators,
		VolEnv:         envelope.NewVolume(),
		ModEnv:         envelope.NewMod(),
		ExclusiveClass: template.ExclusiveClass,

		ReleaseStartTime:        math.Inf(1),
		CurrentTuningCalculated: 1.0,
	}
	nv.Filter.SetAllPass()
	nv.Recompute(controllers)
	return nv
}

// Rehome reacts to a sample dump that just arrived for this voice's sample,
// per spec.md 4.D.
func (v *Voice) Rehome(now float64, outputRate float64, frameCount int) {
	res := sampledump.Rehome(sampledump.RehomeInput{
		StartTime:            v.StartTime,
		Now:                  now,
		PlaybackStep:         v.PlaybackStep,
		OutputRate:           outputRate,
		LoopStart:            v.LoopStart,
		LoopEnd:              v.LoopEnd,
		LoopingMode:          v.LoopingMode,
		FrameCount:           frameCount,
		EndAddrOffset:        v.EndAddrOffset,
		EndAddrsCoarseOffset: v.EndAddrsCoarseOffset,
	})
	v.Cursor = res.Cursor
	v.End = res.End
	if res.Finished {
		v.Finished = true
	}
}

// Release starts this voice's release stage, per spec.md 4.K: releasing a
// voice twice has the same effect as once, since releaseStartTime may only
// move forward from +Inf.
func (v *Voice) Release(now float64, minNoteLength float64) {
	if math.IsInf(v.ReleaseStartTime, 1) {
		v.ReleaseStartTime = math.Max(now, v.StartTime+minNoteLength)
	}
	v.IsInRelease = true
}

// ForceImmediateRelease is used by exclusive-class cutoff (spec.md 4.K)
// and killNote: it overrides releaseVolEnv to a near-instant value and
// releases now.
func (v *Voice) ForceImmediateRelease(now float64, releaseVolEnvTimecents int16) {
	v.Generators[gen.ReleaseVolEnv] = releaseVolEnvTimecents
	v.ModulatedGenerators[gen.ReleaseVolEnv] = releaseVolEnvTimecents
	v.IsInRelease = true
	v.ReleaseStartTime = now
}

func (v *Voice) volumeParams() envelope.VolumeParams {
	g := v.ModulatedGenerators
	return envelope.VolumeParams{
		DelayTC:         float64(g[gen.DelayVolEnv]),
		AttackTC:        float64(g[gen.AttackVolEnv]),
		HoldTC:          float64(g[gen.HoldVolEnv]),
		DecayTC:         float64(g[gen.DecayVolEnv]),
		SustainCB:       float64(g[gen.SustainVolEnv]),
		ReleaseTC:       float64(g[gen.ReleaseVolEnv]),
		KeyNumToHoldTC:  float64(g[gen.KeyNumToVolEnvHold]),
		KeyNumToDecayTC: float64(g[gen.KeyNumToVolEnvDecay]),
		Key:             v.TargetKey,
	}
}

func (v *Voice) modParams() envelope.ModParams {
	g := v.ModulatedGenerators
	return envelope.ModParams{
		DelayTC:         float64(g[gen.DelayModEnv]),
		AttackTC:        float64(g[gen.AttackModEnv]),
		HoldTC:          float64(g[gen.HoldModEnv]),
		DecayTC:         float64(g[gen.DecayModEnv]),
		SustainLevel:    float64(g[gen.SustainModEnv]) / 1000.0,
		ReleaseTC:       float64(g[gen.ReleaseModEnv]),
		KeyNumToHoldTC:  float64(g[gen.KeyNumToModEnvHold]),
		KeyNumToDecayTC: float64(g[gen.KeyNumToModEnvDecay]),
		Key:             v.TargetKey,
	}
}

// RenderContext carries the per-block, per-channel context a voice needs
// to render: output routing timing, the resolved sample data (nil if not
// yet dumped), a reusable scratch buffer, and the channel-level pitch
// contributions (pitch wheel, channel tuning, channel vibrato) that the
// channel manager computes once per block.
type RenderContext struct {
	OutputRate         float64
	Now                float64
	FrameCount         int
	SampleData         []float32
	Scratch            []float32
	PitchWheelCents    float64
	ChannelTuningCents float64
	ChannelVibrato     lfo.Config
}

// Render advances this voice by one block: recomputes envelope/LFO state,
// fills the scratch oscillator buffer, filters and scales it, and mixes
// the result into the main/reverb/chorus stereo planes. Returns true once
// the voice has fully finished and should be dropped.
func (v *Voice) Render(ctx RenderContext, mainL, mainR, reverbL, reverbR, chorusL, chorusR []float32) bool {
	if v.Finished {
		return true
	}

	elapsed := ctx.Now - v.StartTime
	var elapsedRelease float64
	if v.IsInRelease {
		elapsedRelease = ctx.Now - v.ReleaseStartTime
		if elapsedRelease < 0 {
			elapsedRelease = 0
		}
	}

	g := v.ModulatedGenerators
	if float64(g[gen.InitialAttenuation])/10.0 > overAttenuatedDb {
		if v.IsInRelease {
			v.Finished = true
		}
		return v.Finished
	}

	volFinished := v.VolEnv.Advance(elapsed, v.IsInRelease, elapsedRelease, v.volumeParams())
	v.ModEnv.Advance(elapsed, v.IsInRelease, elapsedRelease, v.modParams())
	if volFinished {
		v.Finished = true
		return true
	}

	modLFODelay := units.TimecentsToSeconds(float64(g[gen.DelayModLFO]))
	vibLFODelay := units.TimecentsToSeconds(float64(g[gen.DelayVibLFO]))
	modLFOVal := lfo.Value(v.StartTime+modLFODelay, timecentsToHz(g[gen.FreqModLFO]), ctx.Now)
	vibLFOVal := lfo.Value(v.StartTime+vibLFODelay, timecentsToHz(g[gen.FreqVibLFO]), ctx.Now)
	channelVibVal := ctx.ChannelVibrato.Sample(v.StartTime, ctx.Now)

	modEnvPitchCents := v.ModEnv.Value * float64(g[gen.ModEnvToPitch])
	modLFOPitchCents := modLFOVal * float64(g[gen.ModLfoToPitch])
	vibLFOPitchCents := vibLFOVal * float64(g[gen.VibLfoToPitch])

	coarseTune := float64(g[gen.CoarseTune]) * 100
	fineTune := float64(g[gen.FineTune])
	totalCents := coarseTune + fineTune + ctx.ChannelTuningCents + ctx.PitchWheelCents +
		modEnvPitchCents + modLFOPitchCents + vibLFOPitchCents + channelVibVal

	truncated := int(totalCents)
	if truncated != v.CurrentTuningCents || v.CurrentTuningCalculated == 0 {
		v.CurrentTuningCents = truncated
		v.CurrentTuningCalculated = math.Pow(2, totalCents/1200.0)
	}

	cutoffCents := float64(g[gen.InitialFilterFc]) + v.ModEnv.Value*float64(g[gen.ModEnvToFilterFc]) + modLFOVal*float64(g[gen.ModLfoToFilterFc])
	v.Filter.Recompute(cutoffCents, float64(g[gen.InitialFilterQ]), ctx.OutputRate)

	scratch := ctx.Scratch[:ctx.FrameCount]
	for i := range scratch {
		scratch[i] = 0
	}
	v.fillOscillator(ctx.SampleData, scratch, ctx.OutputRate)
	v.Filter.Process(scratch)

	modLFOCentibels := modLFOVal * float64(g[gen.ModLfoToVolume])
	gain := units.CentibelsToGain(v.VolEnv.AttenuationDb*10 + modLFOCentibels)

	pan := clampF(float64(g[gen.Pan]), -500, 500)
	panUnit := (pan + 500) / 1000.0
	angle := panUnit * math.Pi / 2
	gl := math.Cos(angle)
	gr := math.Sin(angle)
	reverbGain := units.CentibelsToGain(float64(g[gen.ReverbEffectsSend]))
	chorusGain := units.CentibelsToGain(float64(g[gen.ChorusEffectsSend]))

	for i, s := range scratch {
		sample := float64(s) * gain
		mainL[i] += float32(sample * gl)
		mainR[i] += float32(sample * gr)
		reverbL[i] += float32(sample * gl * reverbGain)
		reverbR[i] += float32(sample * gr * reverbGain)
		chorusL[i] += float32(sample * gl * chorusGain)
		chorusR[i] += float32(sample * gr * chorusGain)
	}

	return v.Finished
}

// fillOscillator writes ctx.FrameCount output frames via linear
// interpolation over sampleData and advances Cursor, applying the loop
// policy in spec.md 4.F. A nil sampleData leaves buf silent and the
// voice un-advanced, since it has not been dumped yet.
func (v *Voice) fillOscillator(sampleData []float32, buf []float32, outputRate float64) {
	if len(sampleData) == 0 {
		return
	}
	step := v.PlaybackStep * v.CurrentTuningCalculated
	for i := range buf {
		pos := v.Cursor
		idx := math.Floor(pos)
		frac := pos - idx
		i0 := int(idx)
		if i0 < 0 || i0 >= len(sampleData) {
			break
		}
		i1 := i0 + 1
		var s1 float32
		if i1 < len(sampleData) {
			s1 = sampleData[i1]
		} else {
			s1 = sampleData[i0]
		}
		buf[i] = float32((1-frac)*float64(sampleData[i0]) + frac*float64(s1))

		v.Cursor += step

		switch v.LoopingMode {
		case LoopNone:
			if v.Cursor >= v.End {
				v.Cursor = v.End
				v.Finished = true
			}
		case LoopContinuous:
			for v.Cursor >= v.LoopEnd {
				v.Cursor -= v.LoopEnd - v.LoopStart
			}
		case LoopUntilRelease:
			if v.IsInRelease {
				if v.Cursor >= v.End {
					v.Cursor = v.End
					v.Finished = true
				}
			} else {
				for v.Cursor >= v.LoopEnd {
					v.Cursor -= v.LoopEnd - v.LoopStart
				}
			}
		}
		if v.Finished {
			break
		}
	}
}

func timecentsToHz(freqTC int16) float64 {
	return math.Pow(2, float64(freqTC)/1200.0) * 8.176
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
