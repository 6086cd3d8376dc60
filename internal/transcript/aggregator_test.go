package transcript_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/calyptra/voicepipe/internal/transcript"
)

func newTestAggregator(t *testing.T) *transcript.Aggregator {
	t.Helper()
	return transcript.NewAggregator(zaptest.NewLogger(t))
}

func TestAggregator_SameSpeakerAccumulates(t *testing.T) {
	agg := newTestAggregator(t)

	agg.Apply(transcript.Delta{Speaker: transcript.SpeakerUser, Text: "a"})
	agg.Apply(transcript.Delta{Speaker: transcript.SpeakerUser, Text: "b"})
	agg.Apply(transcript.Delta{Speaker: transcript.SpeakerAgent, Text: "c"})

	history := agg.History()
	require.Len(t, history, 1)
	assert.Equal(t, transcript.SpeakerUser, history[0].Speaker)
	assert.Equal(t, "ab", history[0].Text)

	agg.Flush()

	history = agg.History()
	require.Len(t, history, 2)
	assert.Equal(t, transcript.SpeakerAgent, history[1].Speaker)
	assert.Equal(t, "c", history[1].Text)
}

func TestAggregator_SpeakerAlternation(t *testing.T) {
	agg := newTestAggregator(t)

	deltas := []transcript.Delta{
		{Speaker: transcript.SpeakerUser, Text: "hello "},
		{Speaker: transcript.SpeakerUser, Text: "there"},
		{Speaker: transcript.SpeakerAgent, Text: "hi, "},
		{Speaker: transcript.SpeakerAgent, Text: "how can I help?"},
		{Speaker: transcript.SpeakerUser, Text: "never mind"},
	}
	for _, d := range deltas {
		agg.Apply(d)
	}
	agg.Flush()

	history := agg.History()
	require.Len(t, history, 3)
	assert.Equal(t, "hello there", history[0].Text)
	assert.Equal(t, "hi, how can I help?", history[1].Text)
	assert.Equal(t, "never mind", history[2].Text)
}

func TestAggregator_WhitespaceOnlyDropped(t *testing.T) {
	tests := map[string]struct {
		texts []string
	}{
		"spaces":        {texts: []string{"   "}},
		"newlines_tabs": {texts: []string{"\n", "\t", " "}},
		"empty":         {texts: []string{"", ""}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			agg := newTestAggregator(t)

			for _, text := range tt.texts {
				agg.Apply(transcript.Delta{Speaker: transcript.SpeakerUser, Text: text})
			}

			// Both commit paths drop the open utterance.
			agg.Apply(transcript.Delta{Speaker: transcript.SpeakerAgent, Text: " "})
			agg.Flush()

			assert.Empty(t, agg.History())
		})
	}
}

func TestAggregator_InteriorWhitespacePreserved(t *testing.T) {
	agg := newTestAggregator(t)

	agg.Apply(transcript.Delta{Speaker: transcript.SpeakerUser, Text: "  hello  "})
	agg.Flush()

	history := agg.History()
	require.Len(t, history, 1)
	// Only the commit decision trims; the stored text keeps its whitespace.
	assert.Equal(t, "  hello  ", history[0].Text)
}

func TestAggregator_FlushIdempotent(t *testing.T) {
	agg := newTestAggregator(t)

	agg.Apply(transcript.Delta{Speaker: transcript.SpeakerAgent, Text: "done"})
	agg.Flush()
	agg.Flush()
	agg.Flush()

	assert.Len(t, agg.History(), 1)
}

func TestAggregator_CommitListener(t *testing.T) {
	agg := newTestAggregator(t)

	var committed []transcript.Utterance
	agg.SetCommitListener(func(u transcript.Utterance) {
		committed = append(committed, u)
	})

	agg.Apply(transcript.Delta{Speaker: transcript.SpeakerUser, Text: "one"})
	agg.Apply(transcript.Delta{Speaker: transcript.SpeakerAgent, Text: "two"})
	agg.Flush()

	require.Len(t, committed, 2)
	assert.Equal(t, "one", committed[0].Text)
	assert.Equal(t, "two", committed[1].Text)
	assert.False(t, committed[0].CommittedAt.IsZero())
}

func TestAggregator_Reset(t *testing.T) {
	agg := newTestAggregator(t)

	agg.Apply(transcript.Delta{Speaker: transcript.SpeakerUser, Text: "stale"})
	agg.Flush()
	agg.Apply(transcript.Delta{Speaker: transcript.SpeakerUser, Text: "open"})

	agg.Reset()

	assert.Empty(t, agg.History())

	// The open utterance from before the reset is gone too.
	agg.Flush()
	assert.Empty(t, agg.History())
}

func TestAggregator_FinalFlagDoesNotCommit(t *testing.T) {
	agg := newTestAggregator(t)

	agg.Apply(transcript.Delta{Speaker: transcript.SpeakerAgent, Text: "partial", Final: true})

	// Commit happens on speaker switch or Flush, not on the final marker.
	assert.Empty(t, agg.History())

	agg.Flush()
	assert.Len(t, agg.History(), 1)
}
