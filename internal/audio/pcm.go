package audio

import "math"

// FloatToPCM16 quantizes normalized float samples to 16-bit signed little-endian
// bytes. Samples are clamped to [-1, 1] first; negative values scale by 32768 and
// positive values by 32767 so both ends of the range map onto representable int16
// values without overflow.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
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

		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}

	return out
}

// PCM16ToFloat converts little-endian 16-bit PCM bytes to normalized float
// samples in [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat(b []byte) []float32 {
	samples := make([]float32, len(b)/bytesPerSample)
	for i := range samples {
		v := int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
		samples[i] = float32(v) / 32768.0
	}

	return samples
}

// RMS computes the root-mean-square level of a sample block,
// normalized to [0, 1]. An empty block has level 0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
