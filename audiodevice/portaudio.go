package audiodevice

import (
	"io"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/pcm"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/playback"
)

// captureReadSize is the block size pulled from the input device. The
// bridge reassembles blocks into full frames, so this only bounds latency.
const captureReadSize = 1024

// portAudioEngine implements engine on top of PortAudio.
type portAudioEngine struct{}

func newPortAudioEngine() *portAudioEngine {
	return &portAudioEngine{}
}

func (*portAudioEngine) initialize() error {
	return portaudio.Initialize()
}

func (*portAudioEngine) openCapture(sampleRate int, cb func([]float32)) (io.Closer, error) {
	buf := make([]float32, captureReadSize)
	deliver := cb

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		// Some input devices cannot open at the model's capture rate.
		// Fall back to 48 kHz and resample down.
		const fallbackRate = 48000
		stream, err = portaudio.OpenDefaultStream(1, 0, float64(fallbackRate), len(buf), buf)
		if err != nil {
			return nil, err
		}
		slog.Warn("capture rate unsupported, resampling",
			"want", sampleRate, "device", fallbackRate)
		deliver = func(samples []float32) {
			cb(pcm.Resample(samples, fallbackRate, sampleRate))
		}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}

	c := &paCapture{stream: stream, done: make(chan struct{})}
	c.wg.Add(1)
	go c.loop(buf, deliver)
	return c, nil
}

// paCapture is one exclusive microphone stream.
type paCapture struct {
	stream *portaudio.Stream
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (c *paCapture) loop(buf []float32, deliver func([]float32)) {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}
		if err := c.stream.Read(); err != nil {
			select {
			case <-c.done:
			default:
				slog.Error("microphone read failed", "error", err)
			}
			return
		}
		frame := make([]float32, len(buf))
		copy(frame, buf)
		deliver(frame)
	}
}

func (c *paCapture) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.stream.Stop()
		c.wg.Wait()
		if cerr := c.stream.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// renderBlockSize is the output callback block size: ~21 ms at 24 kHz.
const renderBlockSize = 512

func (*portAudioEngine) openPlayback(sampleRate int) (line, error) {
	l := &paLine{rate: sampleRate}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), renderBlockSize, l.render)
	if err != nil {
		return nil, err
	}
	l.stream = stream
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}
	l.started = true
	return l, nil
}

// paLine mixes scheduled buffers into the output callback and derives the
// device clock from the number of frames rendered.
type paLine struct {
	stream *portaudio.Stream
	rate   int

	mu      sync.Mutex
	started bool
	frames  int64
	entries []*paEntry
}

type paEntry struct {
	samples    []float32
	startFrame int64
	pos        int
	done       func()
	doneOnce   sync.Once
}

func (e *paEntry) finish() {
	e.doneOnce.Do(func() {
		if e.done != nil {
			go e.done()
		}
	})
}

func (l *paLine) clock() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.frames) / float64(l.rate)
}

func (l *paLine) resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if err := l.stream.Start(); err != nil {
		return err
	}
	l.started = true
	return nil
}

func (l *paLine) play(buf *pcm.Buffer, when float64, done func()) (playback.Handle, error) {
	e := &paEntry{
		samples:    monoMix(buf),
		startFrame: int64(when * float64(l.rate)),
		done:       done,
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	return &paHandle{line: l, entry: e}, nil
}

// render fills one output block from all due entries.
func (l *paLine) render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	l.mu.Lock()
	base := l.frames
	l.frames += int64(len(out))

	var finished []*paEntry
	kept := l.entries[:0]
	for _, e := range l.entries {
		from := e.startFrame + int64(e.pos) - base
		if from >= int64(len(out)) {
			kept = append(kept, e)
			continue
		}
		if from < 0 {
			// Scheduled start already passed; skip the missed part so the
			// remaining samples stay aligned with the timeline.
			e.pos += int(-from)
			from = 0
		}
		for i := int(from); i < len(out) && e.pos < len(e.samples); i++ {
			out[i] += e.samples[e.pos]
			e.pos++
		}
		if e.pos >= len(e.samples) {
			finished = append(finished, e)
		} else {
			kept = append(kept, e)
		}
	}
	l.entries = kept
	l.mu.Unlock()

	for _, e := range finished {
		e.finish()
	}
}

// paHandle allows a scheduled buffer to be cancelled.
type paHandle struct {
	line  *paLine
	entry *paEntry
}

func (h *paHandle) Stop() {
	l := h.line
	l.mu.Lock()
	for i, e := range l.entries {
		if e == h.entry {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
	h.entry.finish()
}

// monoMix flattens a decoded buffer to one channel by averaging.
func monoMix(buf *pcm.Buffer) []float32 {
	if len(buf.Channels) == 1 {
		return buf.Channels[0]
	}
	out := make([]float32, buf.Frames())
	for _, ch := range buf.Channels {
		for i, s := range ch {
			out[i] += s
		}
	}
	n := float32(len(buf.Channels))
	for i := range out {
		out[i] /= n
	}
	return out
}
