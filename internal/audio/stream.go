package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Renderer is anything that can fill a stereo interleaved float32 buffer on
// demand: the shape synth.Processor's demo-harness wrapper exposes.
type Renderer interface {
	Render(out []float32)
}

// FinishingRenderer is a Renderer that can additionally signal the end of
// its own playback. Once Ended reports true, the stream returns io.EOF on
// its next Read.
type FinishingRenderer interface {
	Renderer
	Ended() bool
}

// bytesPerFrame is one stereo float32 frame: 2 channels * 4 bytes.
const bytesPerFrame = 8

// BlockStream adapts a Renderer into an io.ReadCloser of interleaved
// little-endian float32 PCM, the wire format ebiten's audio context
// consumes. It also holds an atomically-stored master gain so a caller on
// another goroutine can ride the fader without touching the realtime
// Render call itself.
type BlockStream struct {
	mu       sync.Mutex
	renderer Renderer
	buf      []float32
	gainBits atomic.Uint32
}

// NewBlockStream wraps renderer, starting at unity gain.
func NewBlockStream(renderer Renderer) *BlockStream {
	s := &BlockStream{renderer: renderer}
	s.gainBits.Store(math.Float32bits(1))
	return s
}

// SetGain adjusts the master output gain applied to every sample on the
// next Read; negative values clamp to 0.
func (s *BlockStream) SetGain(g float32) {
	if g < 0 {
		g = 0
	}
	s.gainBits.Store(math.Float32bits(g))
}

func (s *BlockStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(s.buf) < need {
		s.buf = make([]float32, need)
	}
	s.buf = s.buf[:need]
	s.renderer.Render(s.buf)

	gain := math.Float32frombits(s.gainBits.Load())
	for i := 0; i < need; i++ {
		u := math.Float32bits(s.buf[i] * gain)
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	n := frames * bytesPerFrame
	if fr, ok := s.renderer.(FinishingRenderer); ok && fr.Ended() {
		return n, io.EOF
	}
	return n, nil
}

func (s *BlockStream) Close() error { return nil }

// OutputVoice drives one Renderer through ebiten's shared audio context:
// the demo harness's sole point of contact with actual sound hardware.
type OutputVoice struct {
	player *ebitaudio.Player
	stream *BlockStream
}

var (
	sharedContextOnce sync.Once
	sharedContext     *ebitaudio.Context
	sharedContextErr  error
	sharedContextRate int
)

func acquireSharedContext(sampleRate int) (*ebitaudio.Context, error) {
	sharedContextOnce.Do(func() {
		sharedContextRate = sampleRate
		sharedContext = ebitaudio.NewContext(sampleRate)
	})
	if sharedContextErr != nil {
		return nil, sharedContextErr
	}
	if sharedContextRate != sampleRate {
		return nil, fmt.Errorf("audio output already running at %d Hz (requested %d Hz)", sharedContextRate, sampleRate)
	}
	return sharedContext, nil
}

// NewOutputVoice opens a player against renderer at sampleRate. The first
// call in a process fixes the shared context's sample rate; subsequent
// calls at a different rate fail rather than silently resampling.
func NewOutputVoice(sampleRate int, renderer Renderer) (*OutputVoice, error) {
	ctx, err := acquireSharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	stream := NewBlockStream(renderer)
	pl, err := ctx.NewPlayerF32(stream)
	if err != nil {
		return nil, err
	}
	return &OutputVoice{player: pl, stream: stream}, nil
}

func (v *OutputVoice) Play()             { v.player.Play() }
func (v *OutputVoice) Pause()            { v.player.Pause() }
func (v *OutputVoice) IsPlaying() bool   { return v.player.IsPlaying() }
func (v *OutputVoice) SetGain(g float32) { v.stream.SetGain(g) }

// Position returns the current playback position (what the listener
// actually hears, accounting for internal buffering).
func (v *OutputVoice) Position() time.Duration { return v.player.Position() }

func (v *OutputVoice) Stop() error {
	v.player.Pause()
	v.player.Close()
	return v.stream.Close()
}
