package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// PlaybackDevice pulls float samples from a render callback at the output
// device's pace.
type PlaybackDevice interface {
	Start(render func(out []float32)) error
	Stop() error
}

// DeviceProvider opens capture and playback devices against the host audio
// backend. Close releases the backend context; devices opened through the
// provider must be stopped first.
type DeviceProvider interface {
	OpenCapture(sampleRate, channels, blockSize int) (CaptureDevice, error)
	OpenPlayback(sampleRate, channels int) (PlaybackDevice, error)
	Close() error
}

type malgoProvider struct {
	logger *zap.Logger
	ctx    *malgo.AllocatedContext
}

// NewMalgoProvider initializes the miniaudio backend context used to open
// capture and playback devices.
func NewMalgoProvider(logger *zap.Logger) (DeviceProvider, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, cfg, func(message string) {
		logger.Debug("Audio backend", zap.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", ErrDeviceUnavailable, err)
	}

	return &malgoProvider{logger: logger, ctx: ctx}, nil
}

func (p *malgoProvider) OpenCapture(sampleRate, channels, blockSize int) (CaptureDevice, error) {
	return &malgoCapture{
		provider:   p,
		sampleRate: sampleRate,
		channels:   channels,
		blockSize:  blockSize,
	}, nil
}

func (p *malgoProvider) OpenPlayback(sampleRate, channels int) (PlaybackDevice, error) {
	return &malgoPlayback{
		provider:   p,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

func (p *malgoProvider) Close() error {
	if err := p.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninit audio context: %w", err)
	}
	p.ctx.Free()
	return nil
}

// malgoCapture wraps a miniaudio capture device configured for 32-bit float
// frames. The device delivers whole blocks of blockSize frames.
type malgoCapture struct {
	provider   *malgoProvider
	sampleRate int
	channels   int
	blockSize  int

	mu     sync.Mutex
	device *malgo.Device
}

func (c *malgoCapture) Start(onBlock func(samples []float32), onStop func(err error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		return fmt.Errorf("capture device already started")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(c.channels)
	cfg.SampleRate = uint32(c.sampleRate)
	cfg.PeriodSizeInFrames = uint32(c.blockSize)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			onBlock(decodeF32LE(input, int(frameCount)*c.channels))
		},
		Stop: func() {
			onStop(nil)
		},
	}

	device, err := malgo.InitDevice(c.provider.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	c.device = device
	return nil
}

func (c *malgoCapture) Stop() error {
	c.mu.Lock()
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device == nil {
		return nil
	}

	// Uninit alone tears the device down; an explicit Stop first avoids the
	// stop callback firing with frames still in flight.
	err := device.Stop()
	device.Uninit()
	if err != nil {
		return fmt.Errorf("stop capture device: %w", err)
	}
	return nil
}

type malgoPlayback struct {
	provider   *malgoProvider
	sampleRate int
	channels   int

	mu      sync.Mutex
	device  *malgo.Device
	scratch []float32
}

func (p *malgoPlayback) Start(render func(out []float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		return fmt.Errorf("playback device already started")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(p.channels)
	cfg.SampleRate = uint32(p.sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			n := int(frameCount) * p.channels
			if cap(p.scratch) < n {
				p.scratch = make([]float32, n)
			}
			out := p.scratch[:n]
			render(out)
			encodeF32LE(output, out)
		},
	}

	device, err := malgo.InitDevice(p.provider.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start playback device: %w", err)
	}

	p.device = device
	return nil
}

func (p *malgoPlayback) Stop() error {
	p.mu.Lock()
	device := p.device
	p.device = nil
	p.mu.Unlock()

	if device == nil {
		return nil
	}

	err := device.Stop()
	device.Uninit()
	if err != nil {
		return fmt.Errorf("stop playback device: %w", err)
	}
	return nil
}

func decodeF32LE(b []byte, samples int) []float32 {
	out := make([]float32, samples)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func encodeF32LE(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
