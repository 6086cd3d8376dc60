// Package audio implements the capture and playback half of the voice
// pipeline: microphone block capture with PCM16 encoding, downlink PCM
// decoding, and a gapless playback scheduler driven by the output device.
package audio

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/calyptra/voicepipe/internal/config"
)

// Module provides audio pipeline dependencies.
var Module = fx.Module("audio",
	fx.Provide(
		NewDeviceProviderFx,
		NewCapturePipelineProvider,
		NewSchedulerProvider,
		NewDecoderProvider,
	),
)

// NewDeviceProviderFx opens the host audio backend.
func NewDeviceProviderFx(logger *zap.Logger) (DeviceProvider, error) {
	return NewMalgoProvider(logger)
}

// NewCapturePipelineProvider creates the capture pipeline against a capture
// device opened with config-derived parameters.
func NewCapturePipelineProvider(cfg *config.Config, logger *zap.Logger, devices DeviceProvider) (*CapturePipeline, error) {
	rate := cfg.Audio.InputSampleRate
	channels := cfg.Audio.Channels
	blockSize := cfg.Audio.CaptureBlockSize

	device, err := devices.OpenCapture(rate, channels, blockSize)
	if err != nil {
		return nil, err
	}

	logger.Info("Creating capture pipeline",
		zap.Int("sampleRate", rate),
		zap.Int("channels", channels),
		zap.Int("blockSize", blockSize))

	return NewCapturePipeline(logger, device, rate, channels), nil
}

// NewSchedulerProvider creates the playback scheduler on the output rate.
func NewSchedulerProvider(cfg *config.Config, logger *zap.Logger) *Scheduler {
	return NewScheduler(logger, cfg.Audio.OutputSampleRate)
}

// NewDecoderProvider creates the downlink PCM decoder.
func NewDecoderProvider(cfg *config.Config) *Decoder {
	return NewDecoder(cfg.Audio.OutputSampleRate, cfg.Audio.Channels)
}
