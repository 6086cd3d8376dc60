package audio

import "errors"

var (
	// ErrDeviceUnavailable is returned when a capture or playback device cannot
	// be acquired at session start.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrStreamInterrupted signals that an acquired device stream ended
	// mid-session.
	ErrStreamInterrupted = errors.New("audio stream interrupted")

	// ErrMalformedPayload is returned by the decoder when a downlink chunk does
	// not satisfy the PCM16 framing contract.
	ErrMalformedPayload = errors.New("malformed audio payload")
)
