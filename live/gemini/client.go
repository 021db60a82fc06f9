// Package gemini implements the live session boundary on the Gemini Live
// websocket API (BidiGenerateContent).
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/internal/types"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/pcm"
)

const (
	// DefaultEndpoint is the Gemini Live websocket endpoint.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	// DefaultModel is the native-audio conversational model.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
)

// ErrClosed is returned by Send after the session has ended.
var ErrClosed = errors.New("gemini: session closed")

// Dial opens a live session: it connects the websocket, sends the setup
// message and starts the read/write loops. The Opened event is emitted
// once the server acknowledges the setup.
func Dial(ctx context.Context, cfg types.StreamConfig) (types.Stream, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial live session: %w", err)
	}

	if err := conn.WriteJSON(newSetup(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	s := &stream{
		conn:   conn,
		events: make(chan types.ServerEvent, 64),
		audio:  make(chan pcm.Chunk, 32),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()

	return s, nil
}

// stream is one open websocket session.
type stream struct {
	conn *websocket.Conn

	events chan types.ServerEvent
	audio  chan pcm.Chunk
	done   chan struct{}
	// stop unblocks the read loop's event delivery when Close runs
	// before any consumer drains events.
	stop chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

// Send enqueues one encoded capture chunk. It never blocks: when the
// outbound queue is full the chunk is dropped, since stale microphone
// audio is worthless to a realtime model.
func (s *stream) Send(ctx context.Context, chunk pcm.Chunk) error {
	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return ErrClosed
	}

	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		slog.Debug("outbound audio queue full, dropping chunk")
		return nil
	}
}

func (s *stream) Events() <-chan types.ServerEvent {
	return s.events
}

func (s *stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close tears the session down. Idempotent.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.closeSendOnce.Do(func() {
			s.sendMu.Lock()
			s.sendClosed = true
			close(s.audio)
			s.sendMu.Unlock()
		})
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
		_ = s.conn.Close()
	})
	<-s.done
	return s.Err()
}

func (s *stream) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *stream) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteJSON(newAudioInput(chunk)); err != nil {
			s.setErr(fmt.Errorf("send audio: %w", err))
			return
		}
	}
}

func (s *stream) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("read server message: %w", err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Warn("unparseable server message, skipping", "error", err)
			continue
		}

		ev, err := toEvent(msg)
		if err != nil {
			slog.Warn("bad server message payload, skipping", "error", err)
			continue
		}
		if isEmpty(ev) {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.stop:
			return
		}
	}
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

func isEmpty(ev types.ServerEvent) bool {
	return !ev.Opened && !ev.TurnComplete && !ev.Interrupted &&
		ev.InputTranscript == "" && ev.OutputTranscript == "" && len(ev.Audio) == 0
}
