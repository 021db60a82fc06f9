// Package pcm converts between float32 audio samples and the 16-bit
// little-endian PCM wire format used by the live session, including the
// base64 transport encoding for outbound chunks.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedData is returned when inbound bytes cannot be interpreted
// as 16-bit PCM for the declared channel count.
var ErrMalformedData = errors.New("pcm: malformed audio data")

// CaptureRate is the sample rate expected by the model for input audio.
const CaptureRate = 16000

// PlaybackRate is the sample rate of synthesized audio from the model.
const PlaybackRate = 24000

// Chunk is an encoded outbound audio payload: base64 PCM16-LE plus a
// MIME descriptor carrying the sample rate. Immutable once created.
type Chunk struct {
	Data     string
	MIMEType string
}

// MIMEType returns the PCM mime descriptor for a sample rate,
// e.g. "audio/pcm;rate=16000".
func MIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodeFrame converts float32 samples in [-1, 1] to a transport chunk
// tagged with the capture rate. Samples outside [-1, 1] are clamped.
// Negative values scale by 32768 and non-negative by 32767 so that +1.0
// does not overflow int16.
func EncodeFrame(samples []float32) Chunk {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return Chunk{
		Data:     base64.StdEncoding.EncodeToString(buf),
		MIMEType: MIMEType(CaptureRate),
	}
}

// Buffer holds decoded audio as per-channel float32 samples.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback duration in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Decode reinterprets data as interleaved 16-bit little-endian PCM,
// de-interleaves it by channel and rescales to float32 by dividing
// by 32768.
func Decode(data []byte, sampleRate, channels int) (*Buffer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrMalformedData, channels)
	}
	if sampleRate < 1 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrMalformedData, sampleRate)
	}
	if len(data)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedData, len(data), 2*channels)
	}

	frames := len(data) / (2 * channels)
	buf := &Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			v := int16(binary.LittleEndian.Uint16(data[(i*channels+ch)*2:]))
			buf.Channels[ch][i] = float32(v) / 32768.0
		}
	}
	return buf, nil
}

// Resample converts samples from one sample rate to another using linear
// interpolation. Used when the audio device cannot open a stream at the
// target rate. Returns the input unchanged when the rates match.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 || from < 1 || to < 1 {
		return samples
	}
	ratio := float64(from) / float64(to)
	n := int(float64(len(samples)) / ratio)
	if n == 0 {
		n = 1
	}
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
