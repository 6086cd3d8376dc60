package audio

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// scheduledSource is one queued buffer positioned on the playback timeline.
// start is the frame index on the scheduler's render clock at which its first
// sample plays.
type scheduledSource struct {
	samples []float32
	start   int64
}

func (s *scheduledSource) end() int64 {
	return s.start + int64(len(s.samples))
}

// Scheduler places decoded buffers back to back on a playback timeline so
// consecutive chunks of one response play gaplessly. Its clock is the count
// of frames handed out through Render, which is driven by the output device.
//
// QueueAudio keeps a write cursor one buffer-duration ahead of the last queued
// buffer. When the cursor has fallen behind the render clock (the stream went
// idle) it snaps forward so the next buffer starts immediately instead of in
// the past.
type Scheduler struct {
	logger *zap.Logger
	rate   int

	mu        sync.Mutex
	rendered  int64 // frames consumed by the device so far
	nextStart int64 // frame index where the next queued buffer begins
	active    []*scheduledSource
	playing   bool

	onStateChange func(playing bool)
}

func NewScheduler(logger *zap.Logger, sampleRate int) *Scheduler {
	return &Scheduler{
		logger: logger,
		rate:   sampleRate,
	}
}

// SetStateListener registers a callback fired whenever the scheduler
// transitions between playing and idle. The callback runs outside the
// scheduler's lock and may call back into the scheduler.
func (s *Scheduler) SetStateListener(fn func(playing bool)) {
	s.mu.Lock()
	s.onStateChange = fn
	s.mu.Unlock()
}

// IsPlaying reports whether any queued audio is still pending or rendering.
func (s *Scheduler) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Queued returns the duration of audio scheduled at or after the render clock.
func (s *Scheduler) Queued() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var frames int64
	for _, src := range s.active {
		remaining := src.end() - s.rendered
		if remaining > 0 {
			frames += min(remaining, int64(len(src.samples)))
		}
	}
	return framesToDuration(frames, s.rate)
}

// QueueAudio schedules buf for playback immediately after any audio already
// queued, or immediately if the timeline has drained.
func (s *Scheduler) QueueAudio(buf *PlaybackBuffer) {
	s.mu.Lock()

	if s.nextStart < s.rendered {
		s.logger.Debug("Playback cursor behind clock, resetting",
			zap.Int64("cursor", s.nextStart),
			zap.Int64("clock", s.rendered))
		s.nextStart = s.rendered
	}

	src := &scheduledSource{samples: buf.Samples, start: s.nextStart}
	s.nextStart += int64(buf.Frames())
	s.active = append(s.active, src)

	notify := s.setPlayingLocked(len(s.active) > 0)

	// A zero-length buffer completes on arrival. It still touches the active
	// set so state listeners see an edge pair, but it never moves the cursor.
	if len(src.samples) == 0 {
		s.active = s.active[:len(s.active)-1]
		notify = append(notify, s.setPlayingLocked(len(s.active) > 0)...)
	}

	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// Stop discards all queued audio and resets the write cursor to the render
// clock. Safe to call at any time, including when nothing is playing.
func (s *Scheduler) Stop() {
	s.mu.Lock()

	dropped := len(s.active)
	s.active = nil
	s.nextStart = s.rendered
	notify := s.setPlayingLocked(false)

	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Debug("Playback stopped", zap.Int("dropped_sources", dropped))
	}
	for _, fn := range notify {
		fn()
	}
}

// Render fills out with the next window of the playback timeline, mixing in
// every source that overlaps it, and advances the clock by len(out) frames.
// Regions with no scheduled audio come out as silence. Called from the output
// device's data callback.
func (s *Scheduler) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	s.mu.Lock()

	windowStart := s.rendered
	windowEnd := windowStart + int64(len(out))

	for _, src := range s.active {
		if src.start >= windowEnd || src.end() <= windowStart {
			continue
		}

		from := max(src.start, windowStart)
		to := min(src.end(), windowEnd)
		srcOff := from - src.start
		dstOff := from - windowStart
		copy(out[dstOff:dstOff+(to-from)], src.samples[srcOff:srcOff+(to-from)])
	}

	s.rendered = windowEnd

	remaining := s.active[:0]
	for _, src := range s.active {
		if src.end() > s.rendered {
			remaining = append(remaining, src)
		}
	}
	s.active = remaining

	notify := s.setPlayingLocked(len(s.active) > 0)

	s.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// setPlayingLocked updates the playing flag and returns the listener
// invocation to run once the lock is released. Caller holds s.mu.
func (s *Scheduler) setPlayingLocked(playing bool) []func() {
	if playing == s.playing {
		return nil
	}
	s.playing = playing
	if s.onStateChange == nil {
		return nil
	}
	fn := s.onStateChange
	return []func(){func() { fn(playing) }}
}

func framesToDuration(frames int64, rate int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
