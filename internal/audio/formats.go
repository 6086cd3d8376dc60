package audio

// Format constants shared by the capture, decode and playback layers.
const (
	// Microphone capture, uplink side.
	CaptureSampleRate = 16_000 // Hz
	CaptureChannels   = 1
	CaptureBlockSize  = 4_096 // samples per capture tick

	// Service output, downlink side.
	PlaybackSampleRate = 24_000 // Hz
	PlaybackChannels   = 1

	bytesPerSample = 2 // 16-bit PCM
)

// MimeTypePCM16k is the uplink frame format tag expected by the realtime service.
const MimeTypePCM16k = "audio/pcm;rate=16000"
