package channel

import (
	"sort"

	"github.com/msveshnikov/sfsynth/internal/lfo"
	"github.com/msveshnikov/sfsynth/internal/sampledump"
	"github.com/msveshnikov/sfsynth/internal/sfdata"
	"github.com/msveshnikov/sfsynth/internal/voice"
)

// MinNoteLength is MIN_NOTE_LENGTH from spec.md 6: a voice released before
// this many seconds after its birth still waits this long before its
// release actually begins.
const MinNoteLength = 0.07

// DefaultVoiceCap is the global VOICE_CAP tunable from spec.md 6. Per the
// open-question resolution in spec.md 9, this is a single global cap
// enforced by whatever owns every Channel (the Processor), not a
// per-channel cap; Channel itself never refuses to append a voice.
const DefaultVoiceCap = 400

// cacheKey identifies one (midiNote, velocity) voice-build cache slot.
type cacheKey struct {
	note, velocity int
}

// Channel is one MIDI-like channel's controller state and live voice
// lists, per spec.md 3.
type Channel struct {
	Index          int
	Controllers    ControllerTable
	HoldPedal      bool
	ChannelVibrato lfo.Config
	Voices         []*voice.Voice
	SustainedVoices []*voice.Voice
	Muted          bool

	// CurrentPreset is the preset program-change selected; nil until a
	// preset has been assigned, in which case note-on is a no-op.
	CurrentPreset sfdata.Preset

	cache map[cacheKey][]voice.Voice
}

// SetPreset assigns the preset this channel's note-on events resolve
// against. Preset selection (bank/program mapping) is an external
// collaborator concern; the core only needs the resolved Preset.
func (c *Channel) SetPreset(p sfdata.Preset) { c.CurrentPreset = p }

// New returns a freshly initialized channel with default controllers, per
// spec.md 4.L.
func New(index int) *Channel {
	return &Channel{
		Index:       index,
		Controllers: DefaultControllerTable(),
		cache:       make(map[cacheKey][]voice.Voice),
	}
}

// NoteOn builds and appends the voices for one note-on, per spec.md 4.E
// and 4.K. It handles exclusive-class cutoff but not the global VOICE_CAP
// check, which spans every channel and is the caller's (Processor's)
// responsibility. The returned sample id slice names every sample a freshly
// built voice found unresolved in store and that the store accepted as an
// outstanding dump request (see sampledump.Store.RequestDump), so the caller
// can post a dump-request event an out-of-scope decoder can act on. A
// sample the store declined to track, or a cache hit, adds no id.
func (c *Channel) NoteOn(preset sfdata.Preset, midiNote, velocity int, now, outputRate float64, store *sampledump.Store) ([]*voice.Voice, []int, error) {
	key := cacheKey{midiNote, velocity}
	var newVoices []*voice.Voice
	var needsDump []int

	if templates, ok := c.cache[key]; ok {
		newVoices = make([]*voice.Voice, len(templates))
		for i := range templates {
			tmpl := templates[i]
			newVoices[i] = voice.CloneForRetrigger(&tmpl, now, &c.Controllers)
		}
	} else {
		zones, err := preset.GetSamplesAndGenerators(midiNote, velocity)
		if err != nil {
			return nil, nil, err
		}
		cacheable := true
		newVoices = make([]*voice.Voice, 0, len(zones))
		for _, z := range zones {
			res := voice.Build(voice.BuildInput{
				ChannelIndex: c.Index,
				MidiNote:     midiNote,
				Velocity:     velocity,
				Now:          now,
				OutputRate:   outputRate,
				Zone:         z,
				Controllers:  &c.Controllers,
			}, store)
			newVoices = append(newVoices, res.Voice)
			if !res.Cacheable {
				cacheable = false
			}
			if res.NeedsDump {
				needsDump = append(needsDump, z.SampleID)
			}
		}
		if cacheable && len(newVoices) > 0 {
			templates := make([]voice.Voice, len(newVoices))
			for i, v := range newVoices {
				templates[i] = *v
			}
			c.cache[key] = templates
		}
	}

	for _, nv := range newVoices {
		if nv.ExclusiveClass == 0 {
			continue
		}
		for _, existing := range c.Voices {
			if existing.ExclusiveClass == nv.ExclusiveClass {
				existing.ForceImmediateRelease(now, -7200)
				existing.Recompute(&c.Controllers)
			}
		}
	}

	c.Voices = append(c.Voices, newVoices...)
	return newVoices, needsDump, nil
}

// NoteOff releases (or, under a held sustain pedal, sustains) every live
// voice on this channel matching note, per spec.md 4.K.
func (c *Channel) NoteOff(note int, now float64) {
	kept := c.Voices[:0]
	for _, v := range c.Voices {
		if v.MidiNote == note && !v.IsInRelease {
			if c.HoldPedal {
				c.SustainedVoices = append(c.SustainedVoices, v)
				continue
			}
			v.Release(now, MinNoteLength)
		}
		kept = append(kept, v)
	}
	c.Voices = kept
}

// KillNote forces near-instant release on every live voice matching note,
// per spec.md 4.K.
func (c *Channel) KillNote(note int, now float64) {
	for _, v := range c.Voices {
		if v.MidiNote == note {
			v.ForceImmediateRelease(now, -12000)
		}
	}
}

// releaseSustained releases every sustained voice and moves it back into
// the live render list.
func (c *Channel) releaseSustained(now float64) {
	for _, v := range c.SustainedVoices {
		v.Release(now, MinNoteLength)
		c.Voices = append(c.Voices, v)
	}
	c.SustainedVoices = nil
}

// CCChange applies one controller-change event, handling the sustain
// pedal's hold/release latch and recomputing modulators on every voice,
// per spec.md 4.K.
func (c *Channel) CCChange(cc, val int, now float64) {
	if !c.Controllers.Set(cc, val) {
		return
	}
	if cc == CCSustainPedal {
		down := val >= 64
		if down && !c.HoldPedal {
			c.HoldPedal = true
		} else if !down && c.HoldPedal {
			c.HoldPedal = false
			c.releaseSustained(now)
		}
	}
	c.recomputeAll()
}

func (c *Channel) recomputeAll() {
	for _, v := range c.Voices {
		v.Recompute(&c.Controllers)
	}
	for _, v := range c.SustainedVoices {
		v.Recompute(&c.Controllers)
	}
}

// CCReset resets controller slots to defaults (preserving channelTranspose
// and excluded CCs) and resets hold pedal and channel vibrato, per
// spec.md 4.K. It does not itself release already-sustained voices: the
// spec only names the controller table, hold-pedal flag and channel
// vibrato as reset targets.
func (c *Channel) CCReset(excluded []int) {
	c.Controllers.Reset(excluded)
	c.HoldPedal = false
	c.ChannelVibrato = lfo.Config{}
}

// SetChannelVibrato replaces the channel's NRPN-driven vibrato
// configuration wholesale, per spec.md 4.K.
func (c *Channel) SetChannelVibrato(cfg lfo.Config) { c.ChannelVibrato = cfg }

// StopAll drops every voice immediately (mode=1) or releases every
// not-yet-releasing voice (mode=0), per spec.md 4.K.
func (c *Channel) StopAll(mode int, now float64) {
	if mode == 1 {
		c.Voices = nil
		c.SustainedVoices = nil
		return
	}
	for _, v := range c.Voices {
		if !v.IsInRelease {
			v.Release(now, MinNoteLength)
		}
	}
	c.releaseSustained(now)
}

// MuteChannel toggles this channel's mute flag, per spec.md 4.K. A muted
// channel's voices are skipped entirely before synthesis, per spec.md 4.J.
func (c *Channel) MuteChannel(mute bool) { c.Muted = mute }

// LiveVoices returns the number of voices currently contributing sound or
// pending release on this channel (sustained voices are silent but alive).
func (c *Channel) LiveVoices() int { return len(c.Voices) + len(c.SustainedVoices) }

// BlockContext carries the per-block timing and routing inputs a channel
// needs to render all of its voices.
type BlockContext struct {
	Now        float64
	OutputRate float64
	FrameCount int
	Scratch    []float32
	Store      *sampledump.Store
}

// RenderBlock renders every live voice on this channel into the given
// stereo planes, compacting finished voices out of the live list, per
// spec.md 4.L step 2. A muted channel is skipped entirely.
func (c *Channel) RenderBlock(ctx BlockContext, mainL, mainR, reverbL, reverbR, chorusL, chorusR []float32) {
	if c.Muted || len(c.Voices) == 0 {
		return
	}

	pitchWheelCents := c.Controllers.PitchWheelCents()
	channelTuningCents := c.Controllers.ChannelTuningCents() + c.Controllers.ChannelTransposeCents()

	kept := c.Voices[:0]
	for _, v := range c.Voices {
		sampleData, _ := ctx.Store.Get(v.SampleID)
		finished := v.Render(voice.RenderContext{
			OutputRate:         ctx.OutputRate,
			Now:                ctx.Now,
			FrameCount:         ctx.FrameCount,
			SampleData:         sampleData,
			Scratch:            ctx.Scratch,
			PitchWheelCents:    pitchWheelCents,
			ChannelTuningCents: channelTuningCents,
			ChannelVibrato:     c.ChannelVibrato,
		}, mainL, mainR, reverbL, reverbR, chorusL, chorusR)
		if !finished {
			kept = append(kept, v)
		}
	}
	c.Voices = kept
}

// DeliverDump installs a newly decoded sample into the shared store and
// rehomes every live voice across every channel referencing it, per
// spec.md 4.D: the store is shared, so a dump can affect voices on any
// channel, not only the one that happened to request it.
func DeliverDump(channels []*Channel, store *sampledump.Store, sampleID int, frames []float32, now, outputRate float64) {
	store.Put(sampleID, frames)
	for _, c := range channels {
		for _, v := range c.Voices {
			if v.SampleID == sampleID {
				v.Rehome(now, outputRate, len(frames))
			}
		}
		for _, v := range c.SustainedVoices {
			if v.SampleID == sampleID {
				v.Rehome(now, outputRate, len(frames))
			}
		}
	}
}

// TotalLiveVoices sums live voices across every channel, per spec.md 8's
// "total active voice count" invariant.
func TotalLiveVoices(channels []*Channel) int {
	total := 0
	for _, c := range channels {
		total += c.LiveVoices()
	}
	return total
}

type stealCandidate struct {
	voice *voice.Voice
}

// StealVoices implements spec.md 4.K's global voice stealing: collect the
// voices in every channel's Voices list (including ones already
// releasing), sort ascending by velocity, and force near-instant release on
// the first n (rather than deleting them outright, so they still fade
// rather than clicking). Voices in SustainedVoices are not candidates.
// Returns how many were actually stolen (min(n, candidates)).
func StealVoices(channels []*Channel, n int, now float64) int {
	if n <= 0 {
		return 0
	}
	var candidates []stealCandidate
	for _, c := range channels {
		for _, v := range c.Voices {
			candidates = append(candidates, stealCandidate{v})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].voice.Velocity < candidates[j].voice.Velocity
	})
	if n > len(candidates) {
		n = len(candidates)
	}
	for i := 0; i < n; i++ {
		candidates[i].voice.ForceImmediateRelease(now, -7200)
	}
	return n
}
