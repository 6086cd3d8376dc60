package transcript_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/voicepipe/internal/transcript"
)

func TestHistoryStore_SaveAndGet(t *testing.T) {
	store, err := transcript.NewHistoryStore(4)
	require.NoError(t, err)

	utterances := []transcript.Utterance{
		{Speaker: transcript.SpeakerUser, Text: "hello"},
		{Speaker: transcript.SpeakerAgent, Text: "hi"},
	}
	store.Save("session-1", utterances)

	record, ok := store.Get("session-1")
	require.True(t, ok)
	assert.Equal(t, "session-1", record.SessionID)
	assert.Equal(t, utterances, record.Utterances)

	_, ok = store.Get("session-2")
	assert.False(t, ok)
}

func TestHistoryStore_EvictsOldest(t *testing.T) {
	store, err := transcript.NewHistoryStore(2)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		store.Save(fmt.Sprintf("session-%d", i), nil)
	}

	assert.Equal(t, 2, store.Len())

	_, ok := store.Get("session-1")
	assert.False(t, ok, "oldest session should be evicted")
	_, ok = store.Get("session-3")
	assert.True(t, ok)
}

func TestHistoryStore_InvalidSize(t *testing.T) {
	_, err := transcript.NewHistoryStore(0)
	assert.Error(t, err)
}
