package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// EncodedFrame is a transport-ready uplink frame: quantized little-endian
// 16-bit PCM plus format metadata. Ownership transfers to the transport on send.
type EncodedFrame struct {
	MimeType   string
	Payload    []byte
	SampleRate int
	Channels   int
	Sequence   uint64
}

// CaptureDevice delivers periodic fixed-size blocks of normalized float
// samples. Start acquires the underlying device; onStop fires once if the
// stream ends before Stop is called.
type CaptureDevice interface {
	Start(onBlock func(samples []float32), onStop func(err error)) error
	Stop() error
}

// CaptureHandlers receive the pipeline's outputs. Frames are delivered in
// strict capture order, at most once each; handlers must not block.
type CaptureHandlers struct {
	OnFrame     func(frame EncodedFrame)
	OnVolume    func(rms float64)
	OnInterrupt func(err error)
}

// CapturePipeline reads sample blocks from a capture device, computes a
// per-block RMS loudness metric and packages the block as an EncodedFrame.
type CapturePipeline struct {
	logger *zap.Logger
	device CaptureDevice

	sampleRate int
	channels   int

	mu       sync.Mutex
	handlers CaptureHandlers
	started  bool // device handle held

	live atomic.Bool
	seq  atomic.Uint64
}

func NewCapturePipeline(logger *zap.Logger, device CaptureDevice, sampleRate, channels int) *CapturePipeline {
	return &CapturePipeline{
		logger:     logger,
		device:     device,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Start acquires the capture device and begins emitting frames. A device that
// cannot be acquired fails here, before any frame is produced.
func (p *CapturePipeline) Start(handlers CaptureHandlers) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("capture pipeline already started")
	}
	p.handlers = handlers
	p.started = true
	p.mu.Unlock()

	p.live.Store(true)

	err := p.device.Start(p.onBlock, p.onDeviceStop)
	if err != nil {
		p.live.Store(false)
		p.mu.Lock()
		p.started = false
		p.mu.Unlock()

		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	p.logger.Info("Capture pipeline started",
		zap.Int("sample_rate", p.sampleRate),
		zap.Int("channels", p.channels))

	return nil
}

// Stop releases the capture device and halts frame emission. Idempotent. An
// interrupted stream stops emitting on its own but keeps the device handle
// until Stop releases it.
func (p *CapturePipeline) Stop() error {
	p.live.Store(false)

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.mu.Unlock()

	err := p.device.Stop()

	p.logger.Info("Capture pipeline stopped",
		zap.Uint64("frames_emitted", p.seq.Load()))

	return err
}

// onBlock runs on the device's capture callback. It must stay bounded-time in
// the block size and never block the audio thread.
func (p *CapturePipeline) onBlock(samples []float32) {
	if !p.live.Load() {
		return
	}

	p.mu.Lock()
	handlers := p.handlers
	p.mu.Unlock()

	if handlers.OnVolume != nil {
		handlers.OnVolume(RMS(samples))
	}

	frame := EncodedFrame{
		MimeType:   MimeTypePCM16k,
		Payload:    FloatToPCM16(samples),
		SampleRate: p.sampleRate,
		Channels:   p.channels,
		Sequence:   p.seq.Add(1),
	}

	if handlers.OnFrame != nil {
		handlers.OnFrame(frame)
	}
}

func (p *CapturePipeline) onDeviceStop(err error) {
	// Device-initiated stop while we are still live means the stream dropped
	// mid-session. Frame emission halts here, but the device handle stays
	// held until Stop releases it; session-level teardown is up to the
	// interrupt handler.
	if !p.live.CompareAndSwap(true, false) {
		return
	}

	p.logger.Warn("Capture stream interrupted", zap.Error(err))

	p.mu.Lock()
	handlers := p.handlers
	p.mu.Unlock()

	if handlers.OnInterrupt != nil {
		cause := ErrStreamInterrupted
		if err != nil {
			cause = fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
		}
		handlers.OnInterrupt(cause)
	}
}
