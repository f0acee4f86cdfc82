// Package synth implements the top-level block renderer described in
// spec.md 4.L: it owns every channel and the shared sample store, drains
// the inbound event queue at each block boundary, and mixes every live
// voice into the main/reverb/chorus stereo planes.
package synth

import (
	"sync"

	"github.com/msveshnikov/sfsynth/internal/channel"
	"github.com/msveshnikov/sfsynth/internal/events"
	"github.com/msveshnikov/sfsynth/internal/lfo"
	"github.com/msveshnikov/sfsynth/internal/sampledump"
	"github.com/msveshnikov/sfsynth/internal/sfdata"
)

// ProcessorOption configures a Processor at construction, following the
// teacher player's functional-option style.
type ProcessorOption func(*processorConfig)

type processorConfig struct {
	voiceCap        int
	outputRate      float64
	channels        int
	maxInFlightDump int64
}

func defaultProcessorConfig() processorConfig {
	return processorConfig{
		voiceCap:        channel.DefaultVoiceCap,
		outputRate:      44100,
		channels:        16,
		maxInFlightDump: 32,
	}
}

// WithVoiceCap overrides the global VOICE_CAP tunable.
func WithVoiceCap(n int) ProcessorOption {
	return func(cfg *processorConfig) { cfg.voiceCap = n }
}

// WithOutputRate sets the host sample rate every voice renders against.
func WithOutputRate(hz float64) ProcessorOption {
	return func(cfg *processorConfig) { cfg.outputRate = hz }
}

// WithChannelCount sets how many channels the Processor starts with.
func WithChannelCount(n int) ProcessorOption {
	return func(cfg *processorConfig) { cfg.channels = n }
}

// WithMaxInFlightDumps bounds outstanding sample-decode requests the
// sample store will track.
func WithMaxInFlightDumps(n int64) ProcessorOption {
	return func(cfg *processorConfig) { cfg.maxInFlightDump = n }
}

// Planes is one block's worth of output: three stereo buses, each frames
// long. The caller preallocates and reuses these across blocks.
type Planes struct {
	MainL, MainR     []float32
	ReverbL, ReverbR []float32
	ChorusL, ChorusR []float32
}

// Warning is a non-fatal condition surfaced from a block, per spec.md 7:
// nothing in the synthesis path is fatal, but a caller may still want to
// know an event was discarded.
type Warning struct {
	Message string
}

// Report summarizes one Process call: per-channel live voice counts, and
// whether that total changed since the last block (spec.md 4.L step 3).
type Report struct {
	VoiceCounts []int
	Changed     bool
	Warnings    []Warning
}

// Processor is the synthesis core's top-level entry point, owned by the
// realtime audio callback. Process must be called exactly once per audio
// block; everything else (note-on, controller changes, sample dumps) is
// posted through Inbound and applied at the next Process call.
type Processor struct {
	Inbound  events.Queue
	Outbound events.Queue

	voiceCap   int
	outputRate float64

	channels []*channel.Channel
	store    *sampledump.Store

	scratch      []float32
	drainBuf     []events.Event
	lastVoiceCounts []int

	presetsMu sync.Mutex
}

// New constructs a Processor with the given channel count and options.
func New(opts ...ProcessorOption) *Processor {
	cfg := defaultProcessorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &Processor{
		voiceCap:        cfg.voiceCap,
		outputRate:      cfg.outputRate,
		store:           sampledump.NewStore(cfg.maxInFlightDump),
		channels:        make([]*channel.Channel, cfg.channels),
		lastVoiceCounts: make([]int, cfg.channels),
	}
	for i := range p.channels {
		p.channels[i] = channel.New(i)
	}
	return p
}

// SetPreset assigns the preset a channel's note-on events resolve
// against. Thread-safe to call from a non-realtime control thread; it
// does not touch the inbound queue, so it must only be called when no
// concurrent Process call is in flight for that channel (typical usage:
// before playback starts, or guarded by the host's own external lock).
func (p *Processor) SetPreset(channelIndex int, preset sfdata.Preset) {
	p.presetsMu.Lock()
	defer p.presetsMu.Unlock()
	if channelIndex < 0 || channelIndex >= len(p.channels) {
		return
	}
	p.channels[channelIndex].SetPreset(preset)
}

func (p *Processor) channelAt(i int) *channel.Channel {
	if i < 0 || i >= len(p.channels) {
		return nil
	}
	return p.channels[i]
}

// Process renders one block of frames audio frames, draining every
// pending inbound event first, per spec.md 4.L and 5.
func (p *Processor) Process(frames int, planes *Planes, now float64) Report {
	if cap(p.scratch) < frames {
		p.scratch = make([]float32, frames)
	}
	scratch := p.scratch[:frames]

	var report Report
	p.drainBuf = p.Inbound.Drain(p.drainBuf[:0])
	for _, ev := range p.drainBuf {
		p.apply(ev, now, &report)
	}

	for _, c := range p.channels {
		c.RenderBlock(channel.BlockContext{
			Now:        now,
			OutputRate: p.outputRate,
			FrameCount: frames,
			Scratch:    scratch,
			Store:      p.store,
		}, planes.MainL, planes.MainR, planes.ReverbL, planes.ReverbR, planes.ChorusL, planes.ChorusR)
	}

	counts := make([]int, len(p.channels))
	for i, c := range p.channels {
		counts[i] = c.LiveVoices()
	}
	changed := sumCounts(counts) != sumCounts(p.lastVoiceCounts)
	p.lastVoiceCounts = counts
	report.VoiceCounts = counts
	report.Changed = changed

	if changed {
		p.Outbound.Enqueue(events.Event{Kind: events.KindVoiceCountChanged, Count: sumCounts(counts)})
	}

	return report
}

func sumCounts(counts []int) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

func (p *Processor) apply(ev events.Event, now float64, report *Report) {
	c := p.channelAt(ev.ChannelIndex)
	switch ev.Kind {
	case events.KindAddChannel:
		p.channels = append(p.channels, channel.New(len(p.channels)))
		p.lastVoiceCounts = append(p.lastVoiceCounts, 0)
		return
	case events.KindSampleDump:
		channel.DeliverDump(p.channels, p.store, ev.SampleID, ev.Frames, now, p.outputRate)
		return
	case events.KindClearCache:
		p.store.Clear()
		return
	case events.KindKillNotes:
		channel.StealVoices(p.channels, ev.Count, now)
		return
	}

	if c == nil {
		report.Warnings = append(report.Warnings, Warning{Message: "event for unknown channel discarded"})
		return
	}

	switch ev.Kind {
	case events.KindNoteOn:
		if c.CurrentPreset == nil {
			report.Warnings = append(report.Warnings, Warning{Message: "note-on with no preset assigned discarded"})
			return
		}
		_, needsDump, err := c.NoteOn(c.CurrentPreset, ev.Note, ev.Velocity, now, p.outputRate, p.store)
		if err != nil {
			report.Warnings = append(report.Warnings, Warning{Message: err.Error()})
			return
		}
		for _, sampleID := range needsDump {
			p.Outbound.Enqueue(events.Event{Kind: events.KindDumpRequested, SampleID: sampleID})
		}
		if total := channel.TotalLiveVoices(p.channels); total > p.voiceCap {
			channel.StealVoices(p.channels, total-p.voiceCap, now)
		}
	case events.KindNoteOff:
		c.NoteOff(ev.Note, now)
	case events.KindKillNote:
		c.KillNote(ev.Note, now)
	case events.KindCCChange:
		c.CCChange(ev.CC, ev.Value, now)
	case events.KindCCReset:
		c.CCReset(ev.Excluded)
	case events.KindSetChannelVibrato:
		c.SetChannelVibrato(lfo.Config{DelaySec: ev.Vibrato.DelaySec, FreqHz: ev.Vibrato.FreqHz, Depth: ev.Vibrato.Depth})
	case events.KindStopAll:
		c.StopAll(ev.Mode, now)
	case events.KindMuteChannel:
		c.MuteChannel(ev.Mute)
	default:
		report.Warnings = append(report.Warnings, Warning{Message: "unknown event kind discarded"})
	}
}
