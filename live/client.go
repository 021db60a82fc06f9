// Package live drives a realtime voice conversation: it captures
// microphone frames, streams them to a conversational provider, and plays
// back the synthesized reply while accumulating a transcript.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/internal/types"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/live/gemini"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/live/openairt"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/metrics"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/pcm"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/playback"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/transcript"
)

// Supported session providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var (
	// ErrCredentialMissing is returned by Connect when no API key is set.
	ErrCredentialMissing = errors.New("live: api key is missing")
	// ErrSessionActive is returned by Connect while a session is already
	// connecting or connected.
	ErrSessionActive = errors.New("live: session already active")
)

// Re-exported so callers outside internal/ can name the session state.
const (
	StateDisconnected = types.StateDisconnected
	StateConnecting   = types.StateConnecting
	StateConnected    = types.StateConnected
	StateError        = types.StateError
)

// State is the lifecycle state of a session.
type State = types.ConnectionState

// DialerFor resolves a provider name to its dial function. An empty name
// selects Gemini.
func DialerFor(provider string) (types.Dialer, error) {
	switch provider {
	case "", ProviderGemini:
		return gemini.Dial, nil
	case ProviderOpenAI:
		return openairt.Dial, nil
	default:
		return nil, fmt.Errorf("live: unknown provider %q", provider)
	}
}

// Device is the audio hardware surface the client drives. It is satisfied
// by audiodevice.Bridge.
type Device interface {
	// Resume prepares capture and playback; it must be cheap when already
	// prepared.
	Resume() error
	StartCapture(onFrame func(frame []float32)) error
	StopCapture() error
	playback.Sink
}

// Options configures a Client.
type Options struct {
	Provider          string
	APIKey            string
	Endpoint          string
	Model             string
	Voice             string
	SystemInstruction string

	Device  Device
	Metrics *metrics.Metrics // optional
	Logger  *slog.Logger     // optional

	// Dialer overrides the provider lookup when set.
	Dialer types.Dialer
}

// Client owns one voice session at a time. It moves through
// disconnected -> connecting -> connected and back, forwards captured
// frames to the provider, schedules inbound audio for gapless playback,
// and folds transcription deltas into a turn log.
type Client struct {
	opts   Options
	dial   types.Dialer
	dev    Device
	sched  *playback.Scheduler
	script *transcript.Log
	logger *slog.Logger
	m      *metrics.Metrics

	mu     sync.Mutex
	state  types.ConnectionState
	stream types.Stream
	// gen invalidates in-flight connects and stale read loops after a
	// Disconnect.
	gen int

	turns  chan transcript.Turn
	states chan types.ConnectionState
	errs   chan error
}

// NewClient builds a client around the given device. It does not touch
// the network or the hardware until Connect.
func NewClient(opts Options) (*Client, error) {
	if opts.Device == nil {
		return nil, errors.New("live: device is required")
	}
	dial := opts.Dialer
	if dial == nil {
		var err error
		dial, err = DialerFor(opts.Provider)
		if err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:   opts,
		dial:   dial,
		dev:    opts.Device,
		sched:  playback.NewScheduler(opts.Device),
		script: transcript.NewLog(),
		logger: logger,
		m:      opts.Metrics,
		state:  types.StateDisconnected,
		turns:  make(chan transcript.Turn, 64),
		states: make(chan types.ConnectionState, 8),
		errs:   make(chan error, 8),
	}, nil
}

// Connect opens a session. The state switches to connecting before
// Connect returns; connected is reported asynchronously once the server
// acknowledges the session. A second Connect while a session is
// connecting or connected returns ErrSessionActive.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == types.StateConnecting || c.state == types.StateConnected {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.setStateLocked(types.StateConnecting)
	if c.opts.APIKey == "" {
		c.setStateLocked(types.StateError)
		c.mu.Unlock()
		return ErrCredentialMissing
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err := c.dev.Resume(); err != nil {
		c.fail(gen, fmt.Errorf("preparing audio device: %w", err))
		return err
	}

	st, err := c.dial(ctx, types.StreamConfig{
		APIKey:            c.opts.APIKey,
		Endpoint:          c.opts.Endpoint,
		Model:             c.opts.Model,
		Voice:             c.opts.Voice,
		SystemInstruction: c.opts.SystemInstruction,
	})
	if err != nil {
		err = fmt.Errorf("opening session: %w", err)
		c.fail(gen, err)
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		// Disconnected while dialing; drop the late session.
		c.mu.Unlock()
		st.Close()
		return nil
	}
	c.stream = st
	c.mu.Unlock()

	if err := c.dev.StartCapture(c.onFrame); err != nil {
		err = fmt.Errorf("starting capture: %w", err)
		st.Close()
		c.fail(gen, err)
		return err
	}

	go c.readLoop(st, gen)
	return nil
}

// Disconnect tears the session down. It is safe to call from any state,
// including while a Connect is still dialing, and safe to call twice.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	st := c.stream
	c.stream = nil
	c.setStateLocked(types.StateDisconnected)
	c.mu.Unlock()

	if err := c.dev.StopCapture(); err != nil {
		c.logger.Warn("stopping capture", "error", err)
	}
	c.sched.Interrupt()
	if st != nil {
		st.Close()
	}
}

// State returns the current session state.
func (c *Client) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a snapshot of all turns so far.
func (c *Client) Transcript() []transcript.Turn {
	return c.script.Turns()
}

// Turns yields every transcript turn as it is created or updated.
func (c *Client) Turns() <-chan transcript.Turn { return c.turns }

// States yields state transitions.
func (c *Client) States() <-chan types.ConnectionState { return c.states }

// Errors yields session failures that end or degrade a session.
func (c *Client) Errors() <-chan error { return c.errs }

// onFrame runs on the capture callback: it must never block.
func (c *Client) onFrame(frame []float32) {
	if c.m != nil {
		c.m.FramesCaptured.Inc()
	}
	c.mu.Lock()
	st := c.stream
	c.mu.Unlock()
	if st == nil {
		if c.m != nil {
			c.m.FramesDropped.Inc()
		}
		return
	}
	chunk := pcm.EncodeFrame(frame)
	if err := st.Send(context.Background(), chunk); err != nil {
		if c.m != nil {
			c.m.FramesDropped.Inc()
		}
		c.logger.Debug("dropping capture frame", "error", err)
		return
	}
	if c.m != nil {
		c.m.FramesSent.Inc()
		c.m.BytesSent.Add(float64(len(chunk.Data)))
	}
}

func (c *Client) readLoop(st types.Stream, gen int) {
	for ev := range st.Events() {
		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale {
			// Keep draining so the stream's reader never blocks; the
			// session is already torn down.
			continue
		}
		c.handleEvent(ev, gen)
	}

	err := st.Err()
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.stream = nil
	if err != nil {
		c.setStateLocked(types.StateError)
	} else {
		c.setStateLocked(types.StateDisconnected)
	}
	c.mu.Unlock()

	if stopErr := c.dev.StopCapture(); stopErr != nil {
		c.logger.Warn("stopping capture", "error", stopErr)
	}
	c.sched.Interrupt()
	if err != nil {
		c.reportError(fmt.Errorf("session ended: %w", err))
	} else {
		c.logger.Info("session closed by server")
	}
}

// handleEvent applies one inbound event. gen is re-checked under the lock
// before every state mutation: Disconnect may land between the read loop's
// staleness check and here, and a torn-down session must stay torn down.
func (c *Client) handleEvent(ev types.ServerEvent, gen int) {
	if ev.Opened {
		c.mu.Lock()
		opened := gen == c.gen
		if opened {
			c.setStateLocked(types.StateConnected)
		}
		c.mu.Unlock()
		if opened {
			if c.m != nil {
				c.m.SessionConnects.Inc()
			}
			c.logger.Info("session established")
		}
	}
	if ev.OutputTranscript != "" {
		c.appendTurn(transcript.SenderModel, ev.OutputTranscript)
	}
	if ev.InputTranscript != "" {
		c.appendTurn(transcript.SenderUser, ev.InputTranscript)
	}
	if ev.TurnComplete {
		for _, turn := range c.script.FinalizeAll() {
			c.emitTurn(turn)
		}
	}
	if len(ev.Audio) > 0 {
		c.playAudio(ev.Audio, gen)
	}
	if ev.Interrupted {
		c.sched.Interrupt()
		if turn, ok := c.script.FinalizeLast(transcript.SenderModel); ok {
			c.emitTurn(turn)
		}
		if c.m != nil {
			c.m.Interruptions.Inc()
		}
		c.logger.Debug("playback interrupted by user speech")
	}
}

func (c *Client) appendTurn(sender transcript.Sender, fragment string) {
	before := c.script.Len()
	turn := c.script.Append(sender, fragment)
	if c.m != nil && c.script.Len() > before {
		c.m.TranscriptTurns.WithLabelValues(string(sender)).Inc()
	}
	c.emitTurn(turn)
}

// emitTurn delivers a turn update to observers without blocking the
// event loop.
func (c *Client) emitTurn(turn transcript.Turn) {
	select {
	case c.turns <- turn:
	default:
	}
}

// playAudio decodes one inbound PCM payload and schedules it. A payload
// that fails to decode is skipped; the session keeps running. Scheduling
// happens under c.mu so a concurrent Disconnect either precedes it (gen
// mismatch, buffer dropped) or follows it (its Interrupt stops the buffer).
func (c *Client) playAudio(data []byte, gen int) {
	buf, err := pcm.Decode(data, pcm.PlaybackRate, 1)
	if err != nil {
		if c.m != nil {
			c.m.DecodeErrors.Inc()
		}
		c.logger.Warn("skipping malformed audio payload", "bytes", len(data), "error", err)
		return
	}
	if c.m != nil {
		c.m.ChunksDecoded.Inc()
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	err = c.sched.Schedule(buf)
	c.mu.Unlock()
	if err != nil {
		c.reportError(fmt.Errorf("scheduling playback: %w", err))
		return
	}
	if c.m != nil {
		c.m.BuffersScheduled.Inc()
	}
}

// fail records a connect-path failure for the given generation.
func (c *Client) fail(gen int, err error) {
	c.mu.Lock()
	if gen == c.gen {
		c.gen++
		c.stream = nil
		c.setStateLocked(types.StateError)
	}
	c.mu.Unlock()
	c.reportError(err)
}

func (c *Client) reportError(err error) {
	if c.m != nil {
		c.m.SessionErrors.Inc()
	}
	c.logger.Error("session error", "error", err)
	select {
	case c.errs <- err:
	default:
	}
}

// setStateLocked updates the state and notifies observers. Callers hold
// c.mu.
func (c *Client) setStateLocked(s types.ConnectionState) {
	if c.state == s {
		return
	}
	c.state = s
	if c.m != nil {
		c.m.ConnectionState.Set(float64(s))
	}
	c.logger.Debug("session state", "state", s.String())
	select {
	case c.states <- s:
	default:
	}
}
