// Package events implements the inbound control-event queue and the
// outbound voice-count/ack queue described in spec.md 5 and 6: a
// single-producer/single-consumer ring buffer that never blocks or
// allocates on either side, so a control thread can hand events to the
// realtime audio callback (and vice versa) without a lock. The atomic
// head/tail bookkeeping generalizes the teacher engine's single-scalar
// atomic handoff (wavetable.Engine's masterGain stored via
// atomic.StoreUint64/LoadUint64 over math.Float64bits) to a multi-slot
// ring.
package events

import "sync/atomic"

// Kind tags one inbound control event, matching spec.md 4.K's table.
type Kind int

const (
	KindNoteOn Kind = iota
	KindNoteOff
	KindKillNote
	KindCCChange
	KindCCReset
	KindSetChannelVibrato
	KindSampleDump
	KindClearCache
	KindStopAll
	KindKillNotes
	KindMuteChannel
	KindAddChannel

	// KindVoiceCountChanged is outbound-only: the processor emits it when
	// the total live voice count differs from the previous block's.
	KindVoiceCountChanged

	// KindDumpRequested is outbound-only: the processor emits it when a
	// note-on built a voice whose sample is not yet present in the sample
	// store and the store accepted it as an outstanding dump request, so
	// an out-of-scope decoder can correlate the request back to SampleID
	// and post the matching inbound sampleDump event once decoded.
	KindDumpRequested
)

// Vibrato mirrors lfo.Config's three fields without importing lfo, so this
// leaf package stays free of a dependency on the synthesis packages.
type Vibrato struct {
	DelaySec float64
	FreqHz   float64
	Depth    float64
}

// Event is a tagged union of every inbound control event. Only the fields
// relevant to Kind are meaningful; the rest are zero.
type Event struct {
	Kind         Kind
	ChannelIndex int
	Note         int
	Velocity     int
	CC           int
	Value        int
	Excluded     []int
	Vibrato      Vibrato
	SampleID     int
	Frames       []float32
	Mode         int
	Count        int
	Mute         bool
}

// ringSize must be a power of two so index wrapping is a mask, not a
// division.
const ringSize = 1024
const ringMask = ringSize - 1

// Queue is a fixed-capacity single-producer/single-consumer ring buffer of
// Event. Enqueue is called from the control thread, Drain from the audio
// thread (or vice versa for the outbound queue); never from more than one
// goroutine on each side.
type Queue struct {
	buf  [ringSize]Event
	head atomic.Uint64 // next slot to write
	tail atomic.Uint64 // next slot to read
}

// Enqueue appends ev, returning false if the queue is full (the caller
// must decide how to react; dropping the oldest inbound event is never
// correct for a control stream, so Enqueue never overwrites).
func (q *Queue) Enqueue(ev Event) bool {
	head := q.head.Load()
	tail := q.tail.Load()
	if head-tail >= ringSize {
		return false
	}
	q.buf[head&ringMask] = ev
	q.head.Store(head + 1)
	return true
}

// Drain appends every currently-available event to dst and returns it,
// advancing the read cursor. Called once per block per spec.md 5's
// "drained at block boundaries" rule.
func (q *Queue) Drain(dst []Event) []Event {
	head := q.head.Load()
	tail := q.tail.Load()
	for tail < head {
		dst = append(dst, q.buf[tail&ringMask])
		tail++
	}
	q.tail.Store(tail)
	return dst
}

// Len reports the number of events currently queued.
func (q *Queue) Len() int {
	return int(q.head.Load() - q.tail.Load())
}
