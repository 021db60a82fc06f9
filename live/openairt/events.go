package openairt

import (
	"encoding/base64"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/internal/types"
)

// Server event types this client reacts to.
const (
	EventSessionCreated        = "session.created"
	EventAudioDelta            = "response.audio.delta"
	EventOutputTranscriptDelta = "response.audio_transcript.delta"
	EventInputTranscriptDelta  = "conversation.item.input_audio_transcription.delta"
	EventResponseDone          = "response.done"
	EventSpeechStarted         = "input_audio_buffer.speech_started"
	EventError                 = "error"
)

// serverEvent covers the union of inbound events; only the fields used
// by the handled event types are modeled.
type serverEvent struct {
	Type  string    `json:"type"`
	Delta string    `json:"delta,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

// apiError is an error payload from the Realtime API.
type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// sessionUpdate configures the session after connect: speech in and out,
// the coaching persona, server-side turn detection, and transcription of
// both directions.
type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string          `json:"modalities"`
	Instructions            string            `json:"instructions,omitempty"`
	Voice                   string            `json:"voice,omitempty"`
	InputAudioFormat        string            `json:"input_audio_format"`
	OutputAudioFormat       string            `json:"output_audio_format"`
	InputAudioTranscription *transcriptionCfg `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection    `json:"turn_detection,omitempty"`
}

type transcriptionCfg struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type string `json:"type"`
}

func newSessionUpdate(cfg types.StreamConfig) sessionUpdate {
	return sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			Modalities:              []string{"audio", "text"},
			Instructions:            cfg.SystemInstruction,
			Voice:                   cfg.Voice,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: &transcriptionCfg{Model: "whisper-1"},
			TurnDetection:           &turnDetection{Type: "server_vad"},
		},
	}
}

// audioAppend is an input_audio_buffer.append event.
type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func newAudioAppend(audioBase64 string) audioAppend {
	return audioAppend{Type: "input_audio_buffer.append", Audio: audioBase64}
}

// toEvent translates one server event to the provider-neutral form.
// The second return is false for event types this client ignores.
func toEvent(ev serverEvent) (types.ServerEvent, bool, error) {
	switch ev.Type {
	case EventSessionCreated:
		return types.ServerEvent{Opened: true}, true, nil
	case EventOutputTranscriptDelta:
		return types.ServerEvent{OutputTranscript: ev.Delta}, true, nil
	case EventInputTranscriptDelta:
		return types.ServerEvent{InputTranscript: ev.Delta}, true, nil
	case EventResponseDone:
		return types.ServerEvent{TurnComplete: true}, true, nil
	case EventSpeechStarted:
		// Server VAD heard the user over the reply: cancel playback.
		return types.ServerEvent{Interrupted: true}, true, nil
	case EventAudioDelta:
		audio, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			return types.ServerEvent{}, false, err
		}
		return types.ServerEvent{Audio: audio}, true, nil
	default:
		return types.ServerEvent{}, false, nil
	}
}
