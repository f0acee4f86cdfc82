// Package sampledump implements the process-wide sample cache and the
// asynchronous dump protocol described in spec.md 4.D: a voice may be
// scheduled before its (possibly compressed) audio data has been decoded,
// and is rehomed once the matching dump arrives.
package sampledump

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// LoopMode mirrors a voice's loop policy, shared between the sample store
// (rehoming math) and the oscillator (playback wrap math) so both agree on
// its three values without an import cycle between voice and sampledump.
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopContinuous
	LoopUntilRelease
)

// Store is the single-owner, process-wide mapping from sample id to
// decoded mono PCM. It is held by the Processor and passed to voices by
// reference through the channel context, per spec.md's design notes — it
// is never a package-level global.
type Store struct {
	mu      sync.Mutex
	frames  map[int][]float32
	pending *PendingTracker
}

// NewStore creates an empty sample store. maxInFlight bounds the number of
// dump requests the store will track as outstanding at once (0 disables
// tracking).
func NewStore(maxInFlight int64) *Store {
	s := &Store{frames: make(map[int][]float32)}
	if maxInFlight > 0 {
		s.pending = NewPendingTracker(maxInFlight)
	}
	return s
}

// Get returns the decoded frames for sampleID, or (nil, false) if it has
// not been dumped yet.
func (s *Store) Get(sampleID int) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[sampleID]
	return f, ok
}

// Put stores decoded frames for sampleID. Per spec.md 4.D this only
// installs the data; rehoming live voices is the caller's (channel
// manager's) responsibility since the store itself has no visibility into
// voices.
func (s *Store) Put(sampleID int, frames []float32) {
	s.mu.Lock()
	s.frames[sampleID] = frames
	s.mu.Unlock()
	if s.pending != nil {
		s.pending.Resolve(sampleID)
	}
}

// Clear drops all entries. Per spec.md this is only permitted when no
// voices are live; calling it otherwise is not fatal — voices referencing
// now-absent entries simply fall back to the silent-skip policy until a
// fresh dump arrives.
func (s *Store) Clear() {
	s.mu.Lock()
	s.frames = make(map[int][]float32)
	s.mu.Unlock()
}

// RequestDump asks the store to track sampleID as an outstanding decode
// request. Returns false if the store has no pending-request tracking
// configured or is already at capacity, in which case the caller should
// simply not duplicate the request — the voice stays silent until some
// dump for that id arrives regardless.
func (s *Store) RequestDump(sampleID int) bool {
	if s.pending == nil {
		return false
	}
	return s.pending.Enqueue(sampleID)
}

// PendingTracker bounds the number of in-flight sample-decode requests the
// core will track at once, using a weighted semaphore so the realtime
// event-drain step never blocks waiting for a slot — it simply declines to
// track a new request past capacity.
type PendingTracker struct {
	sem *semaphore.Weighted
	mu  sync.Mutex
	// bySample avoids re-requesting a decode already outstanding for the
	// same sample id.
	bySample map[int]struct{}
}

// NewPendingTracker creates a tracker allowing at most maxInFlight
// outstanding decode requests.
func NewPendingTracker(maxInFlight int64) *PendingTracker {
	return &PendingTracker{
		sem:      semaphore.NewWeighted(maxInFlight),
		bySample: make(map[int]struct{}),
	}
}

// Enqueue registers sampleID as outstanding, or is a no-op if one is
// already outstanding for this sample id. Returns false only when a new
// slot could not be acquired (capacity reached).
func (t *PendingTracker) Enqueue(sampleID int) bool {
	t.mu.Lock()
	if _, ok := t.bySample[sampleID]; ok {
		t.mu.Unlock()
		return true
	}
	t.mu.Unlock()

	if !t.sem.TryAcquire(1) {
		return false
	}
	t.mu.Lock()
	t.bySample[sampleID] = struct{}{}
	t.mu.Unlock()
	return true
}

// Resolve releases the slot held for sampleID, if any.
func (t *PendingTracker) Resolve(sampleID int) {
	t.mu.Lock()
	_, ok := t.bySample[sampleID]
	delete(t.bySample, sampleID)
	t.mu.Unlock()
	if ok {
		t.sem.Release(1)
	}
}

// RehomeInput carries the fields Rehome needs from a voice whose sample
// just arrived.
type RehomeInput struct {
	StartTime            float64
	Now                  float64
	PlaybackStep         float64
	OutputRate           float64
	LoopStart            float64
	LoopEnd              float64
	LoopingMode          LoopMode
	FrameCount           int
	EndAddrOffset        int
	EndAddrsCoarseOffset int
}

// RehomeResult is the recomputed cursor/end/finished state for a voice
// whose sample data just became available.
type RehomeResult struct {
	Cursor   float64
	End      float64
	Finished bool
}

// Rehome recomputes a voice's cursor and end as if it had been playing
// since StartTime, per spec.md 4.D. The `cursor mod (loopEnd-loopStart) +
// loopStart - 1` formula is implemented literally as specified; the
// trailing -1 looks like an off-by-one but spec.md's design notes flag it
// as possibly intentional and instruct against silently fixing it. A
// non-looping voice whose cursor lands at or past end is clamped to end and
// marked finished.
func Rehome(in RehomeInput) RehomeResult {
	end := float64(in.FrameCount-1) + float64(in.EndAddrOffset) + 32768*float64(in.EndAddrsCoarseOffset)
	cursor := in.PlaybackStep * in.OutputRate * (in.Now - in.StartTime)

	var finished bool
	switch in.LoopingMode {
	case LoopNone:
		if cursor >= end {
			cursor = end
			finished = true
		}
	default:
		if cursor > in.LoopEnd {
			span := in.LoopEnd - in.LoopStart
			if span > 0 {
				cursor = modFloat(cursor, span) + in.LoopStart - 1
			}
		}
	}
	return RehomeResult{Cursor: cursor, End: end, Finished: finished}
}

func modFloat(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	r := a - b*float64(int64(a/b))
	if r < 0 {
		r += b
	}
	return r
}
