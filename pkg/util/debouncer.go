// Package util provides small reusable concurrency helpers.
package util

import (
	"sync"
	"time"
)

// Debouncer is a resettable deadline: its channel fires once the configured
// duration passes without a Reset. Typical use is an inactivity timeout,
// where each unit of activity calls Reset and the channel firing means the
// stream went quiet.
//
//	idle := util.NewDebouncer(30 * time.Second)
//	defer idle.Stop()
//
//	for {
//	    select {
//	    case frame := <-frames:
//	        handle(frame)
//	        idle.Reset()
//	    case <-idle.Expired():
//	        return errIdle
//	    }
//	}
//
// Safe for concurrent use.
type Debouncer struct {
	duration time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer whose deadline is duration from now.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		timer:    time.NewTimer(duration),
	}
}

// Reset pushes the deadline out to duration from now. After Stop it does
// nothing.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	// Drain a deadline that fired but was never received, otherwise the
	// stale tick would satisfy the next wait immediately.
	if !d.timer.Stop() {
		select {
		case <-d.timer.C:
		default:
		}
	}
	d.timer.Reset(d.duration)
}

// Expired returns the channel that receives once the deadline passes.
func (d *Debouncer) Expired() <-chan time.Time {
	return d.timer.C
}

// Stop disarms the deadline permanently. Safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.stopped {
		d.timer.Stop()
		d.stopped = true
	}
}
