// Package audiodevice bridges the audio hardware: it owns the capture-rate
// and playback-rate device contexts, acquires the microphone, and exposes
// the playback clock and buffer scheduling primitive.
package audiodevice

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/pcm"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/playback"
)

// ErrAudioInit is returned when a device context or the microphone cannot
// be created or resumed.
var ErrAudioInit = errors.New("audiodevice: audio init failed")

// ErrCaptureRunning is returned when starting capture while already capturing.
var ErrCaptureRunning = errors.New("audiodevice: capture already running")

// Level follower shape: rises instantly with the RMS of each frame, decays
// gradually between loud frames. Visualization only.
const (
	levelGain  = 5.0
	levelDecay = 0.9
)

// Config holds bridge configuration. Zero values take defaults.
type Config struct {
	CaptureRate  int // default 16000 Hz
	PlaybackRate int // default 24000 Hz
	FrameSize    int // samples per capture frame, default 4096
}

// DefaultConfig returns the rates and frame size expected by the live model.
func DefaultConfig() Config {
	return Config{
		CaptureRate:  pcm.CaptureRate,
		PlaybackRate: pcm.PlaybackRate,
		FrameSize:    4096,
	}
}

// engine is the platform-specific device implementation. The capture
// callback may deliver sample slices of any size; the bridge handles
// framing.
type engine interface {
	initialize() error
	openCapture(sampleRate int, cb func([]float32)) (io.Closer, error)
	openPlayback(sampleRate int) (line, error)
}

// line is one playback-rate output context.
type line interface {
	clock() float64
	play(buf *pcm.Buffer, when float64, done func()) (playback.Handle, error)
	resume() error
}

// Bridge owns the two device contexts for the process lifetime. Contexts
// are created lazily and never destroyed once created: destruction would
// break in-flight playback scheduling. The microphone stream, by contrast,
// is acquired per session and released on StopCapture.
type Bridge struct {
	cfg Config
	eng engine

	mu          sync.Mutex
	initialized bool
	out         line
	capture     io.Closer
	frameBuf    []float32
	onFrame     func([]float32)
	onLevel     func(float32)

	level atomic.Uint32 // float32 bits
}

// New creates a bridge backed by the default audio engine.
func New(cfg Config) *Bridge {
	return newBridge(cfg, newPortAudioEngine())
}

func newBridge(cfg Config, eng engine) *Bridge {
	if cfg.CaptureRate == 0 {
		cfg.CaptureRate = pcm.CaptureRate
	}
	if cfg.PlaybackRate == 0 {
		cfg.PlaybackRate = pcm.PlaybackRate
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = 4096
	}
	return &Bridge{cfg: cfg, eng: eng}
}

// Resume makes sure both device contexts exist and are running. Called on
// every connect: platform policy may have suspended a context since the
// last session.
func (b *Bridge) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureInitLocked(); err != nil {
		return err
	}
	if err := b.ensureOutLocked(); err != nil {
		return err
	}
	if err := b.out.resume(); err != nil {
		return fmt.Errorf("%w: resume playback: %v", ErrAudioInit, err)
	}
	return nil
}

func (b *Bridge) ensureInitLocked() error {
	if b.initialized {
		return nil
	}
	if err := b.eng.initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrAudioInit, err)
	}
	b.initialized = true
	return nil
}

func (b *Bridge) ensureOutLocked() error {
	if b.out != nil {
		return nil
	}
	out, err := b.eng.openPlayback(b.cfg.PlaybackRate)
	if err != nil {
		return fmt.Errorf("%w: open playback context: %v", ErrAudioInit, err)
	}
	b.out = out
	return nil
}

// StartCapture acquires the microphone as an exclusive stream and delivers
// fixed-size mono frames to onFrame until StopCapture. onFrame runs on the
// capture goroutine and must not block.
func (b *Bridge) StartCapture(onFrame func(frame []float32)) error {
	if onFrame == nil {
		return errors.New("audiodevice: nil frame handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capture != nil {
		return ErrCaptureRunning
	}
	if err := b.ensureInitLocked(); err != nil {
		return err
	}

	b.onFrame = onFrame
	b.frameBuf = b.frameBuf[:0]

	stream, err := b.eng.openCapture(b.cfg.CaptureRate, b.handleSamples)
	if err != nil {
		b.onFrame = nil
		return fmt.Errorf("%w: open microphone: %v", ErrAudioInit, err)
	}
	b.capture = stream
	return nil
}

// StopCapture releases the microphone. Idempotent.
func (b *Bridge) StopCapture() error {
	b.mu.Lock()
	stream := b.capture
	b.capture = nil
	b.onFrame = nil
	b.frameBuf = nil
	b.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.Close()
}

// Capturing reports whether the microphone is currently held.
func (b *Bridge) Capturing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capture != nil
}

// handleSamples accumulates raw device samples and emits full frames.
func (b *Bridge) handleSamples(samples []float32) {
	b.mu.Lock()
	onFrame := b.onFrame
	onLevel := b.onLevel
	if onFrame == nil {
		b.mu.Unlock()
		return
	}
	b.frameBuf = append(b.frameBuf, samples...)
	var frames [][]float32
	for len(b.frameBuf) >= b.cfg.FrameSize {
		frame := make([]float32, b.cfg.FrameSize)
		copy(frame, b.frameBuf[:b.cfg.FrameSize])
		b.frameBuf = b.frameBuf[:copy(b.frameBuf, b.frameBuf[b.cfg.FrameSize:])]
		frames = append(frames, frame)
	}
	b.mu.Unlock()

	for _, frame := range frames {
		level := b.updateLevel(frame)
		if onLevel != nil {
			onLevel(level)
		}
		onFrame(frame)
	}
}

// updateLevel applies the decay-weighted follower and returns the new level.
func (b *Bridge) updateLevel(frame []float32) float32 {
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	rms := float32(math.Sqrt(sum / float64(len(frame))))

	for {
		prevBits := b.level.Load()
		prev := math.Float32frombits(prevBits)
		level := rms * levelGain
		if decayed := prev * levelDecay; decayed > level {
			level = decayed
		}
		if b.level.CompareAndSwap(prevBits, math.Float32bits(level)) {
			return level
		}
	}
}

// Level returns the smoothed microphone level for visualization.
func (b *Bridge) Level() float32 {
	return math.Float32frombits(b.level.Load())
}

// OnLevel registers a callback invoked with the smoothed level after each
// captured frame. Must be set before StartCapture.
func (b *Bridge) OnLevel(cb func(level float32)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onLevel = cb
}

// Clock returns the playback device clock in seconds. Zero until the
// playback context exists.
func (b *Bridge) Clock() float64 {
	b.mu.Lock()
	out := b.out
	b.mu.Unlock()

	if out == nil {
		return 0
	}
	return out.clock()
}

// Play schedules buf on the playback context at device time `when`.
// Implements playback.Sink.
func (b *Bridge) Play(buf *pcm.Buffer, when float64, done func()) (playback.Handle, error) {
	b.mu.Lock()
	if err := b.ensureInitLocked(); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if err := b.ensureOutLocked(); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	out := b.out
	b.mu.Unlock()

	return out.play(buf, when, done)
}
