// Package types provides shared type definitions for the application.
package types

import (
	"context"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/pcm"
)

// ConnectionState is the authoritative lifecycle state of a live session.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ServerEvent is one inbound message from the remote session, translated
// to a provider-neutral form. The fields are independent and may co-occur
// in a single message.
type ServerEvent struct {
	// Opened signals the server acknowledged the session configuration.
	Opened bool
	// InputTranscript is a partial transcription of the user's speech.
	InputTranscript string
	// OutputTranscript is a partial transcription of the model's reply.
	OutputTranscript string
	// Audio is raw PCM16-LE synthesized audio at the playback rate.
	Audio []byte
	// TurnComplete signals the model finished its reply.
	TurnComplete bool
	// Interrupted signals the user spoke over the model's reply.
	Interrupted bool
}

// Stream is a duplex handle to a remote conversational session. Send must
// never block the caller beyond enqueueing: captured audio frames arrive
// from the device callback. Close is always defined and idempotent.
type Stream interface {
	Send(ctx context.Context, chunk pcm.Chunk) error
	// Events yields inbound events until the session ends; the channel is
	// closed afterwards.
	Events() <-chan ServerEvent
	// Err reports why the event channel closed. Nil means an orderly
	// remote close.
	Err() error
	Close() error
}

// StreamConfig is the fixed configuration sent at session open.
type StreamConfig struct {
	APIKey            string
	Endpoint          string // provider default when empty
	Model             string
	Voice             string
	SystemInstruction string
}

// Dialer opens a remote session with a provider.
type Dialer func(ctx context.Context, cfg StreamConfig) (Stream, error)
