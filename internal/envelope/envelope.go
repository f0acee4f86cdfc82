// Package envelope implements the six-stage DAHDSR volume envelope and the
// five-stage modulation envelope described in spec.md 4.G, as an explicit
// discriminated enum with a transition table rather than virtual dispatch,
// per spec.md's design notes. The state machine shape is grounded on the
// teacher engine's envState/advanceEnv pair in internal/wavetable, split
// here into a richer six-stage shape and a second modulation-envelope
// variant.
package envelope

import "github.com/msveshnikov/sfsynth/internal/units"

// Stage is one state of the DAHDSR/mod-envelope shape.
type Stage int

const (
	StageDelay Stage = iota
	StageAttack
	StageHold
	StageDecay
	StageSustain
	StageRelease
	StageFinished
)

// VolumeParams holds the volume envelope's generator-sourced timing, in
// timecents (except SustainCB, in centibels of attenuation), plus the
// key-tracking coefficients for hold and decay per spec.md's DAHDSR table.
type VolumeParams struct {
	DelayTC         float64
	AttackTC        float64
	HoldTC          float64
	DecayTC         float64
	SustainCB       float64 // 0 = full volume, 1440 = silence
	ReleaseTC       float64
	KeyNumToHoldTC  float64
	KeyNumToDecayTC float64
	Key             int
}

func (p VolumeParams) durations() (delay, attack, hold, decay, release float64) {
	delay = units.TimecentsToSeconds(p.DelayTC)
	attack = units.TimecentsToSeconds(p.AttackTC)
	hold = units.TimecentsToSeconds(p.HoldTC + p.KeyNumToHoldTC*float64(60-p.Key))
	decay = units.TimecentsToSeconds(p.DecayTC + p.KeyNumToDecayTC*float64(60-p.Key))
	release = units.TimecentsToSeconds(p.ReleaseTC)
	return
}

// silentDb is the baseline attenuation (100dB) spec.md defines as silence.
const silentDb = 100.0

// Volume is the persistent state of one voice's volume envelope.
type Volume struct {
	Stage                   Stage
	AttenuationDb           float64 // currentAttenuationDb, initialized to silentDb
	releaseStartAttenuation float64
	releaseStartTime        float64
}

// NewVolume returns a freshly initialized volume envelope: silent, in the
// delay stage, per spec.md 4.E step 10.
func NewVolume() Volume {
	return Volume{Stage: StageDelay, AttenuationDb: silentDb}
}

// Advance recomputes stage and attenuation from elapsed time. elapsed is
// now-startTime; isInRelease and elapsedRelease (now-releaseStartTime) are
// supplied by the voice once releaseStartTime has been set. Returns true
// once the envelope has fully completed its release tail (voice finished);
// once finished, later calls leave the state unchanged and return true.
func (v *Volume) Advance(elapsed float64, isInRelease bool, elapsedRelease float64, p VolumeParams) bool {
	if v.Stage == StageFinished {
		return true
	}
	if isInRelease {
		if v.Stage != StageRelease {
			v.releaseStartAttenuation = v.AttenuationDb
			v.Stage = StageRelease
		}
		_, _, _, _, release := p.durations()
		if release <= 0 {
			v.AttenuationDb = silentDb
			v.Stage = StageFinished
			return true
		}
		frac := elapsedRelease / release
		if frac >= 1 {
			v.AttenuationDb = silentDb
			v.Stage = StageFinished
			return true
		}
		v.AttenuationDb = v.releaseStartAttenuation + (silentDb-v.releaseStartAttenuation)*frac
		return false
	}

	delay, attack, hold, decay, _ := p.durations()
	t := elapsed

	switch {
	case t < delay:
		v.Stage = StageDelay
		v.AttenuationDb = silentDb
	case t < delay+attack:
		v.Stage = StageAttack
		frac := 0.0
		if attack > 0 {
			frac = (t - delay) / attack
		} else {
			frac = 1
		}
		v.AttenuationDb = silentDb * (1 - frac)
	case t < delay+attack+hold:
		v.Stage = StageHold
		v.AttenuationDb = 0
	case t < delay+attack+hold+decay:
		v.Stage = StageDecay
		frac := 0.0
		if decay > 0 {
			frac = (t - delay - attack - hold) / decay
		} else {
			frac = 1
		}
		v.AttenuationDb = p.SustainCB / 10.0 * frac
	default:
		v.Stage = StageSustain
		v.AttenuationDb = p.SustainCB / 10.0
	}
	return false
}

// ModParams holds the modulation envelope's generator-sourced timing.
type ModParams struct {
	DelayTC         float64
	AttackTC        float64
	HoldTC          float64
	DecayTC         float64
	SustainLevel    float64 // 0..1, unit-ranged per spec.md 4.G
	ReleaseTC       float64
	KeyNumToHoldTC  float64
	KeyNumToDecayTC float64
	Key             int
}

func (p ModParams) durations() (delay, attack, hold, decay, release float64) {
	delay = units.TimecentsToSeconds(p.DelayTC)
	attack = units.TimecentsToSeconds(p.AttackTC)
	hold = units.TimecentsToSeconds(p.HoldTC + p.KeyNumToHoldTC*float64(60-p.Key))
	decay = units.TimecentsToSeconds(p.DecayTC + p.KeyNumToDecayTC*float64(60-p.Key))
	release = units.TimecentsToSeconds(p.ReleaseTC)
	return
}

// Mod is the persistent state of one voice's modulation envelope,
// producing a unit-ranged [0,1] value consumed by modEnvToPitch and
// modEnvToFilterFc.
type Mod struct {
	Stage              Stage
	Value              float64 // currentModEnvValue
	releaseStartValue  float64
}

// NewMod returns a freshly initialized modulation envelope.
func NewMod() Mod {
	return Mod{Stage: StageDelay, Value: 0}
}

// ReleaseStartValue returns the value captured at release onset
// (releaseStartModEnv per spec.md's Voice field list).
func (m Mod) ReleaseStartValue() float64 { return m.releaseStartValue }

// Advance mirrors Volume.Advance but for the unit-ranged modulation
// envelope: linear attack, exponential-shaped decay (approximated here as
// linear-in-value, matching the teacher's own "sample-accurate linear
// works" volume-envelope comment applied to the mod envelope as well).
func (m *Mod) Advance(elapsed float64, isInRelease bool, elapsedRelease float64, p ModParams) bool {
	if isInRelease {
		if m.Stage != StageRelease {
			m.releaseStartValue = m.Value
			m.Stage = StageRelease
		}
		_, _, _, _, release := p.durations()
		if release <= 0 {
			m.Value = 0
			m.Stage = StageFinished
			return true
		}
		frac := elapsedRelease / release
		if frac >= 1 {
			m.Value = 0
			m.Stage = StageFinished
			return true
		}
		m.Value = m.releaseStartValue * (1 - frac)
		return false
	}

	delay, attack, hold, decay, _ := p.durations()
	t := elapsed

	switch {
	case t < delay:
		m.Stage = StageDelay
		m.Value = 0
	case t < delay+attack:
		m.Stage = StageAttack
		frac := 0.0
		if attack > 0 {
			frac = (t - delay) / attack
		} else {
			frac = 1
		}
		m.Value = frac
	case t < delay+attack+hold:
		m.Stage = StageHold
		m.Value = 1
	case t < delay+attack+hold+decay:
		m.Stage = StageDecay
		frac := 0.0
		if decay > 0 {
			frac = (t - delay - attack - hold) / decay
		} else {
			frac = 1
		}
		m.Value = 1 - (1-p.SustainLevel)*frac
	default:
		m.Stage = StageSustain
		m.Value = p.SustainLevel
	}
	return false
}
