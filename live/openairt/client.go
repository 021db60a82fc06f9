// Package openairt implements the live session boundary on the OpenAI
// Realtime websocket API as an alternative to the default provider.
package openairt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/internal/types"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/pcm"
)

const (
	// DefaultEndpoint is the OpenAI Realtime websocket endpoint.
	DefaultEndpoint = "wss://api.openai.com/v1/realtime"
	// DefaultModel is the default realtime speech model.
	DefaultModel = "gpt-4o-realtime-preview"

	// inputRate is the sample rate the Realtime API expects for pcm16
	// input. Captured 16 kHz chunks are resampled up before sending.
	inputRate = 24000
)

// ErrClosed is returned by Send after the session has ended.
var ErrClosed = errors.New("openairt: session closed")

// Dial opens a realtime session and sends the session configuration.
// The Opened event is emitted when the server reports session.created.
func Dial(ctx context.Context, cfg types.StreamConfig) (types.Stream, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint+"?model="+model, header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime session: %w", err)
	}

	if err := conn.WriteJSON(newSessionUpdate(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send session config: %w", err)
	}

	s := &stream{
		conn:   conn,
		events: make(chan types.ServerEvent, 64),
		audio:  make(chan string, 32),
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

type stream struct {
	conn *websocket.Conn

	events chan types.ServerEvent
	audio  chan string
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

// Send enqueues one capture chunk, resampled to the API's input rate.
// Never blocks: a full queue drops the chunk.
func (s *stream) Send(ctx context.Context, chunk pcm.Chunk) error {
	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return ErrClosed
	}

	payload, err := transcode(chunk)
	if err != nil {
		return err
	}

	select {
	case s.audio <- payload:
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

// transcode converts a 16 kHz capture chunk to 24 kHz base64 pcm16.
func transcode(chunk pcm.Chunk) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return "", fmt.Errorf("decode chunk: %w", err)
	}
	buf, err := pcm.Decode(raw, pcm.CaptureRate, 1)
	if err != nil {
		return "", fmt.Errorf("decode chunk: %w", err)
	}
	up := pcm.Resample(buf.Channels[0], buf.SampleRate, inputRate)
	return pcm.EncodeFrame(up).Data, nil
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
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
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

	for payload := range s.audio {
		if err := s.conn.WriteJSON(newAudioAppend(payload)); err != nil {
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
			s.setErr(fmt.Errorf("read server event: %w", err))
			return
		}

		var raw serverEvent
		if err := json.Unmarshal(payload, &raw); err != nil {
			slog.Warn("unparseable server event, skipping", "error", err)
			continue
		}

		if raw.Type == EventError {
			msg := "realtime API error"
			if raw.Error != nil {
				msg = raw.Error.Message
			}
			s.setErr(errors.New(msg))
			return
		}

		ev, ok, err := toEvent(raw)
		if err != nil {
			slog.Warn("bad server event payload, skipping", "type", raw.Type, "error", err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.stop:
			return
		}
	}
}
