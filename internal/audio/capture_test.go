package audio_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/calyptra/voicepipe/internal/audio"
)

// fakeCaptureDevice drives the pipeline by hand instead of from a hardware
// callback thread.
type fakeCaptureDevice struct {
	mu       sync.Mutex
	onBlock  func(samples []float32)
	onStop   func(err error)
	startErr error
	started  bool
	stops    int
}

func (d *fakeCaptureDevice) Start(onBlock func(samples []float32), onStop func(err error)) error {
	if d.startErr != nil {
		return d.startErr
	}
	d.mu.Lock()
	d.onBlock = onBlock
	d.onStop = onStop
	d.started = true
	d.mu.Unlock()
	return nil
}

func (d *fakeCaptureDevice) Stop() error {
	d.mu.Lock()
	d.started = false
	d.stops++
	d.mu.Unlock()
	return nil
}

func (d *fakeCaptureDevice) emit(samples []float32) {
	d.mu.Lock()
	onBlock := d.onBlock
	d.mu.Unlock()
	onBlock(samples)
}

func (d *fakeCaptureDevice) interrupt(err error) {
	d.mu.Lock()
	onStop := d.onStop
	d.mu.Unlock()
	onStop(err)
}

func newTestPipeline(t *testing.T, device *fakeCaptureDevice) *audio.CapturePipeline {
	t.Helper()
	return audio.NewCapturePipeline(zaptest.NewLogger(t), device,
		audio.CaptureSampleRate, audio.CaptureChannels)
}

func TestCapturePipeline_EmitsFramesInOrder(t *testing.T) {
	device := &fakeCaptureDevice{}
	pipeline := newTestPipeline(t, device)

	var frames []audio.EncodedFrame
	err := pipeline.Start(audio.CaptureHandlers{
		OnFrame: func(frame audio.EncodedFrame) {
			frames = append(frames, frame)
		},
	})
	require.NoError(t, err)

	block := make([]float32, audio.CaptureBlockSize)
	for i := 0; i < 5; i++ {
		device.emit(block)
	}

	require.Len(t, frames, 5)
	for i, frame := range frames {
		assert.Equal(t, audio.MimeTypePCM16k, frame.MimeType)
		assert.Equal(t, audio.CaptureSampleRate, frame.SampleRate)
		assert.Len(t, frame.Payload, audio.CaptureBlockSize*2)
		assert.Equal(t, uint64(i+1), frame.Sequence)
	}

	require.NoError(t, pipeline.Stop())
}

func TestCapturePipeline_ReportsVolumeBeforeFrame(t *testing.T) {
	device := &fakeCaptureDevice{}
	pipeline := newTestPipeline(t, device)

	var events []string
	var lastRMS float64
	err := pipeline.Start(audio.CaptureHandlers{
		OnFrame: func(audio.EncodedFrame) {
			events = append(events, "frame")
		},
		OnVolume: func(rms float64) {
			events = append(events, "volume")
			lastRMS = rms
		},
	})
	require.NoError(t, err)

	block := make([]float32, 1024)
	for i := range block {
		block[i] = 0.5
	}
	device.emit(block)

	assert.Equal(t, []string{"volume", "frame"}, events)
	assert.InDelta(t, 0.5, lastRMS, 1e-6)

	require.NoError(t, pipeline.Stop())
}

func TestCapturePipeline_StartFailure(t *testing.T) {
	device := &fakeCaptureDevice{startErr: errors.New("no such device")}
	pipeline := newTestPipeline(t, device)

	err := pipeline.Start(audio.CaptureHandlers{})
	require.Error(t, err)
	assert.ErrorIs(t, err, audio.ErrDeviceUnavailable)

	// A failed start leaves the pipeline reusable.
	device.startErr = nil
	require.NoError(t, pipeline.Start(audio.CaptureHandlers{}))
	require.NoError(t, pipeline.Stop())
}

func TestCapturePipeline_DoubleStart(t *testing.T) {
	device := &fakeCaptureDevice{}
	pipeline := newTestPipeline(t, device)

	require.NoError(t, pipeline.Start(audio.CaptureHandlers{}))
	assert.Error(t, pipeline.Start(audio.CaptureHandlers{}))

	require.NoError(t, pipeline.Stop())
}

func TestCapturePipeline_StopIdempotent(t *testing.T) {
	device := &fakeCaptureDevice{}
	pipeline := newTestPipeline(t, device)

	require.NoError(t, pipeline.Start(audio.CaptureHandlers{}))

	require.NoError(t, pipeline.Stop())
	require.NoError(t, pipeline.Stop())
	require.NoError(t, pipeline.Stop())

	assert.Equal(t, 1, device.stops)
}

func TestCapturePipeline_NoFramesAfterStop(t *testing.T) {
	device := &fakeCaptureDevice{}
	pipeline := newTestPipeline(t, device)

	var frames int
	require.NoError(t, pipeline.Start(audio.CaptureHandlers{
		OnFrame: func(audio.EncodedFrame) { frames++ },
	}))

	device.emit(make([]float32, 64))
	require.NoError(t, pipeline.Stop())

	// Blocks still in flight on the device thread are dropped.
	device.emit(make([]float32, 64))
	device.emit(make([]float32, 64))

	assert.Equal(t, 1, frames)
}

func TestCapturePipeline_DeviceInterrupt(t *testing.T) {
	device := &fakeCaptureDevice{}
	pipeline := newTestPipeline(t, device)

	var interruptErr error
	require.NoError(t, pipeline.Start(audio.CaptureHandlers{
		OnInterrupt: func(err error) { interruptErr = err },
	}))

	device.interrupt(errors.New("stream died"))

	require.Error(t, interruptErr)
	assert.ErrorIs(t, interruptErr, audio.ErrStreamInterrupted)

	// Frame emission halted, but the device handle is still held: the
	// teardown's Stop must release it exactly once.
	require.NoError(t, pipeline.Stop())
	assert.Equal(t, 1, device.stops)

	require.NoError(t, pipeline.Stop())
	assert.Equal(t, 1, device.stops)
}

func TestCapturePipeline_RestartAfterInterrupt(t *testing.T) {
	device := &fakeCaptureDevice{}
	pipeline := newTestPipeline(t, device)

	require.NoError(t, pipeline.Start(audio.CaptureHandlers{
		OnInterrupt: func(error) {},
	}))

	device.interrupt(errors.New("stream died"))
	require.NoError(t, pipeline.Stop())
	assert.Equal(t, 1, device.stops)

	// With the handle released, a new session can reacquire the device.
	var frames int
	require.NoError(t, pipeline.Start(audio.CaptureHandlers{
		OnFrame: func(audio.EncodedFrame) { frames++ },
	}))

	device.emit(make([]float32, 64))
	assert.Equal(t, 1, frames)

	require.NoError(t, pipeline.Stop())
	assert.Equal(t, 2, device.stops)
}

func TestCapturePipeline_InterruptAfterStop(t *testing.T) {
	device := &fakeCaptureDevice{}
	pipeline := newTestPipeline(t, device)

	var interrupts int
	require.NoError(t, pipeline.Start(audio.CaptureHandlers{
		OnInterrupt: func(error) { interrupts++ },
	}))

	require.NoError(t, pipeline.Stop())

	// The stop callback racing a local Stop must not fire the interrupt.
	device.interrupt(nil)

	assert.Equal(t, 0, interrupts)
}
