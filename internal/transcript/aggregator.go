// Package transcript turns streamed partial-text deltas into committed
// utterances and keeps a bounded per-session history of them.
package transcript

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Speaker identifies which side of the conversation produced a delta.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Delta is one streamed transcript fragment. Final marks the provider's last
// fragment for the current utterance; commit timing does not depend on it.
type Delta struct {
	Speaker Speaker
	Text    string
	Final   bool
}

// Utterance is a committed run of same-speaker text.
type Utterance struct {
	Speaker     Speaker
	Text        string
	CommittedAt time.Time
}

// Aggregator accumulates deltas into an open utterance per speaker and
// commits the open utterance when the speaker changes or on Flush. Open text
// that trims to empty is discarded rather than committed.
type Aggregator struct {
	logger *zap.Logger

	mu       sync.Mutex
	open     bool
	speaker  Speaker
	pending  strings.Builder
	history  []Utterance
	onCommit func(u Utterance)
	now      func() time.Time
}

func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{
		logger: logger,
		now:    time.Now,
	}
}

// SetCommitListener registers a callback fired for every committed utterance.
// The callback runs outside the aggregator's lock.
func (a *Aggregator) SetCommitListener(fn func(u Utterance)) {
	a.mu.Lock()
	a.onCommit = fn
	a.mu.Unlock()
}

// Apply folds one delta into the transcript. A delta from a different speaker
// than the open utterance commits the open utterance first, so interleaved
// streams come out as alternating whole utterances.
func (a *Aggregator) Apply(delta Delta) {
	a.mu.Lock()

	var committed *Utterance
	if a.open && a.speaker != delta.Speaker {
		committed = a.commitLocked()
	}

	if !a.open {
		a.open = true
		a.speaker = delta.Speaker
		a.pending.Reset()
	}
	a.pending.WriteString(delta.Text)

	fn := a.onCommit
	a.mu.Unlock()

	if committed != nil && fn != nil {
		fn(*committed)
	}
}

// Flush commits any open utterance. Called at end of turn and on teardown.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	committed := a.commitLocked()
	fn := a.onCommit
	a.mu.Unlock()

	if committed != nil && fn != nil {
		fn(*committed)
	}
}

// Reset discards the open utterance and committed history, returning the
// aggregator to its initial state for a fresh session.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.open = false
	a.pending.Reset()
	a.history = nil
	a.mu.Unlock()
}

// History returns the committed utterances in commit order.
func (a *Aggregator) History() []Utterance {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Utterance, len(a.history))
	copy(out, a.history)
	return out
}

// commitLocked closes the open utterance and appends it to history, or drops
// it if its text trims to empty. Caller holds a.mu.
func (a *Aggregator) commitLocked() *Utterance {
	if !a.open {
		return nil
	}

	text := a.pending.String()
	a.open = false
	a.pending.Reset()

	if strings.TrimSpace(text) == "" {
		a.logger.Debug("Dropping whitespace-only utterance", zap.String("speaker", string(a.speaker)))
		return nil
	}

	u := Utterance{
		Speaker:     a.speaker,
		Text:        text,
		CommittedAt: a.now(),
	}
	a.history = append(a.history, u)

	a.logger.Debug("Committed utterance",
		zap.String("speaker", string(u.Speaker)),
		zap.Int("length", len(u.Text)))

	return &u
}
