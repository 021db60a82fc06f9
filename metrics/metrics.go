// Package metrics exposes Prometheus instrumentation for the voice client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the live voice pipeline.
type Metrics struct {
	// Capture pipeline
	FramesCaptured prometheus.Counter
	FramesSent     prometheus.Counter
	FramesDropped  prometheus.Counter
	BytesSent      prometheus.Counter

	// Playback pipeline
	ChunksDecoded    prometheus.Counter
	DecodeErrors     prometheus.Counter
	BuffersScheduled prometheus.Counter
	Interruptions    prometheus.Counter

	// Session
	SessionConnects prometheus.Counter
	SessionErrors   prometheus.Counter
	ConnectionState prometheus.Gauge

	// Transcript
	TranscriptTurns *prometheus.CounterVec
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutor_frames_captured_total",
			Help: "Total number of microphone frames captured",
		}),
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutor_frames_sent_total",
			Help: "Total number of audio frames sent to the model",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutor_frames_dropped_total",
			Help: "Total number of captured frames dropped with no open session",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutor_audio_bytes_sent_total",
			Help: "Total encoded audio payload bytes sent",
		}),
		ChunksDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutor_audio_chunks_decoded_total",
			Help: "Total number of inbound audio payloads decoded",
		}),
		DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutor_audio_decode_errors_total",
			Help: "Total number of malformed inbound audio payloads skipped",
		}),
		BuffersScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutor_playback_buffers_scheduled_total",
			Help: "Total number of audio buffers handed to the playback scheduler",
		}),
		Interruptions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutor_interruptions_total",
			Help: "Total number of mid-utterance playback interruptions",
		}),
		SessionConnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutor_session_connects_total",
			Help: "Total number of session connect attempts",
		}),
		SessionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tutor_session_errors_total",
			Help: "Total number of sessions that ended in the error state",
		}),
		ConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tutor_connection_state",
			Help: "Current connection state (0=disconnected 1=connecting 2=connected 3=error)",
		}),
		TranscriptTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_transcript_turns_total",
			Help: "Total number of transcript turns started",
		}, []string{"sender"}),
	}
}
