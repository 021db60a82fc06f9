package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/internal/types"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/pcm"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/playback"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/transcript"
)

type fakeDevice struct {
	mu        sync.Mutex
	resumeErr error
	startErr  error
	resumes   int
	stops     int
	onFrame   func([]float32)
	clock     float64
	played    []*fakeHandle
}

type fakeHandle struct {
	stopped bool
}

func (h *fakeHandle) Stop() { h.stopped = true }

func (d *fakeDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resumes++
	return d.resumeErr
}

func (d *fakeDevice) StartCapture(cb func([]float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.onFrame = cb
	return nil
}

func (d *fakeDevice) StopCapture() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.onFrame = nil
	return nil
}

func (d *fakeDevice) Clock() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock
}

func (d *fakeDevice) Play(buf *pcm.Buffer, when float64, done func()) (playback.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := &fakeHandle{}
	d.played = append(d.played, h)
	return h, nil
}

func (d *fakeDevice) playCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.played)
}

func (d *fakeDevice) emit(frame []float32) bool {
	d.mu.Lock()
	cb := d.onFrame
	d.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(frame)
	return true
}

type fakeStream struct {
	mu     sync.Mutex
	events chan types.ServerEvent
	err    error
	sent   []pcm.Chunk
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan types.ServerEvent, 16)}
}

func (s *fakeStream) Send(ctx context.Context, chunk pcm.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *fakeStream) Events() <-chan types.ServerEvent { return s.events }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *fakeStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.Close()
}

func (s *fakeStream) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func newTestClient(t *testing.T, st *fakeStream) (*Client, *fakeDevice) {
	t.Helper()
	dev := &fakeDevice{}
	c, err := NewClient(Options{
		APIKey: "test-key",
		Device: dev,
		Dialer: func(ctx context.Context, cfg types.StreamConfig) (types.Stream, error) {
			return st, nil
		},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, dev
}

func waitState(t *testing.T, c *Client, want types.ConnectionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-c.States():
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v, at %v", want, c.State())
		}
	}
}

func waitTurn(t *testing.T, c *Client) transcript.Turn {
	t.Helper()
	select {
	case turn := <-c.Turns():
		return turn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a transcript turn")
		return transcript.Turn{}
	}
}

func TestConnect_StateSequence(t *testing.T) {
	st := newFakeStream()
	c, _ := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := c.State(); got != types.StateConnecting {
		t.Fatalf("state after Connect = %v, want connecting", got)
	}

	st.events <- types.ServerEvent{Opened: true}
	waitState(t, c, types.StateConnected)
	c.Disconnect()
}

func TestConnect_MissingCredential(t *testing.T) {
	dev := &fakeDevice{}
	c, err := NewClient(Options{Device: dev, Dialer: func(ctx context.Context, cfg types.StreamConfig) (types.Stream, error) {
		t.Fatal("dialer must not run without a key")
		return nil, nil
	}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.Connect(context.Background()); !errors.Is(err, ErrCredentialMissing) {
		t.Fatalf("Connect = %v, want ErrCredentialMissing", err)
	}
	if got := c.State(); got != types.StateError {
		t.Errorf("state = %v, want error", got)
	}
}

func TestConnect_WhileActive(t *testing.T) {
	st := newFakeStream()
	c, _ := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	if err := c.Connect(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Connect = %v, want ErrSessionActive", err)
	}
}

func TestConnect_DialError(t *testing.T) {
	dev := &fakeDevice{}
	dialErr := errors.New("refused")
	c, err := NewClient(Options{APIKey: "k", Device: dev, Dialer: func(ctx context.Context, cfg types.StreamConfig) (types.Stream, error) {
		return nil, dialErr
	}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.Connect(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("Connect = %v, want wrapped dial error", err)
	}
	if got := c.State(); got != types.StateError {
		t.Errorf("state = %v, want error", got)
	}
}

func TestConnect_AudioInitError(t *testing.T) {
	st := newFakeStream()
	c, dev := newTestClient(t, st)
	dev.resumeErr = errors.New("no output device")

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded with a broken device")
	}
	if got := c.State(); got != types.StateError {
		t.Errorf("state = %v, want error", got)
	}
}

func TestCaptureFramesForwarded(t *testing.T) {
	st := newFakeStream()
	c, dev := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	if !dev.emit(make([]float32, 8)) {
		t.Fatal("capture callback was not registered")
	}
	if got := st.sentCount(); got != 1 {
		t.Errorf("sent %d chunks, want 1", got)
	}
}

func TestAudioEventScheduled(t *testing.T) {
	st := newFakeStream()
	c, dev := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	// One 24 kHz mono sample.
	st.events <- types.ServerEvent{Audio: []byte{0x00, 0x40}}

	deadline := time.Now().Add(2 * time.Second)
	for dev.playCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("audio was never scheduled")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMalformedAudioSkipped(t *testing.T) {
	st := newFakeStream()
	c, dev := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	// Odd byte count cannot decode; the session must survive it.
	st.events <- types.ServerEvent{Audio: []byte{0x01}}
	st.events <- types.ServerEvent{OutputTranscript: "still here"}

	turn := waitTurn(t, c)
	if turn.Text != "still here" {
		t.Errorf("turn text = %q", turn.Text)
	}
	if dev.playCount() != 0 {
		t.Error("malformed payload was scheduled")
	}
}

func TestTranscriptAccumulation(t *testing.T) {
	st := newFakeStream()
	c, _ := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	st.events <- types.ServerEvent{OutputTranscript: "Hel"}
	st.events <- types.ServerEvent{OutputTranscript: "lo"}
	st.events <- types.ServerEvent{TurnComplete: true}

	var last transcript.Turn
	for i := 0; i < 3; i++ {
		last = waitTurn(t, c)
	}
	if last.Text != "Hello" || !last.Complete {
		t.Errorf("final turn = %+v, want complete %q", last, "Hello")
	}
	if got := len(c.Transcript()); got != 1 {
		t.Errorf("transcript has %d turns, want 1", got)
	}
}

func TestInterruptStopsPlaybackAndFinalizesTurn(t *testing.T) {
	st := newFakeStream()
	c, dev := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	st.events <- types.ServerEvent{OutputTranscript: "As I was say"}
	waitTurn(t, c)
	st.events <- types.ServerEvent{Audio: []byte{0x00, 0x40, 0x00, 0x40}}
	st.events <- types.ServerEvent{Interrupted: true}

	turn := waitTurn(t, c)
	if !turn.Complete {
		t.Errorf("interrupted model turn not finalized: %+v", turn)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		dev.mu.Lock()
		stopped := len(dev.played) == 1 && dev.played[0].stopped
		dev.mu.Unlock()
		if stopped {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduled playback was not stopped on interrupt")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStreamFailureEntersErrorState(t *testing.T) {
	st := newFakeStream()
	c, _ := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	st.fail(errors.New("connection reset"))
	waitState(t, c, types.StateError)

	select {
	case err := <-c.Errors():
		if err == nil {
			t.Error("nil error reported")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported after stream failure")
	}
}

func TestOrderlyRemoteCloseDisconnects(t *testing.T) {
	st := newFakeStream()
	c, dev := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	st.Close()
	waitState(t, c, types.StateDisconnected)

	dev.mu.Lock()
	stops := dev.stops
	dev.mu.Unlock()
	if stops == 0 {
		t.Error("capture not stopped after remote close")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	st := newFakeStream()
	c, _ := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.Disconnect()
	c.Disconnect()

	if got := c.State(); got != types.StateDisconnected {
		t.Errorf("state = %v, want disconnected", got)
	}
	if !st.closed {
		t.Error("stream left open")
	}
}

func TestLateEventsAfterDisconnectIgnored(t *testing.T) {
	st := newFakeStream()
	c, dev := newTestClient(t, st)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.Disconnect()

	// Direct replay of events captured before the teardown, with the
	// generation they were read under.
	c.handleEvent(types.ServerEvent{Opened: true}, 1)
	c.handleEvent(types.ServerEvent{Audio: []byte{0x00, 0x40}}, 1)

	if got := c.State(); got != types.StateDisconnected {
		t.Errorf("stale opened event moved state to %v", got)
	}
	if dev.playCount() != 0 {
		t.Errorf("stale audio event scheduled %d buffers", dev.playCount())
	}
}

func TestDialerFor(t *testing.T) {
	for _, name := range []string{"", ProviderGemini, ProviderOpenAI} {
		if _, err := DialerFor(name); err != nil {
			t.Errorf("DialerFor(%q): %v", name, err)
		}
	}
	if _, err := DialerFor("bogus"); err == nil {
		t.Error("DialerFor accepted an unknown provider")
	}
}
