package audio

import (
	"fmt"
	"time"
)

// PlaybackBuffer holds decoded float samples derived from one downlink chunk.
// Immutable once produced.
type PlaybackBuffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in the buffer.
func (b *PlaybackBuffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback duration of the buffer.
func (b *PlaybackBuffer) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Decoder converts opaque downlink payloads (concatenated little-endian 16-bit
// PCM samples) into normalized PlaybackBuffers. Pure and synchronous; safe for
// concurrent use.
type Decoder struct {
	sampleRate int
	channels   int
}

func NewDecoder(sampleRate, channels int) *Decoder {
	return &Decoder{
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Decode validates and decodes one chunk. A payload whose length is not a
// multiple of 2*channels fails with ErrMalformedPayload; the failure is local
// to that chunk.
func (d *Decoder) Decode(payload []byte) (*PlaybackBuffer, error) {
	frameBytes := bytesPerSample * d.channels
	if len(payload)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedPayload, len(payload), frameBytes)
	}

	return &PlaybackBuffer{
		Samples:    PCM16ToFloat(payload),
		SampleRate: d.sampleRate,
		Channels:   d.channels,
	}, nil
}
