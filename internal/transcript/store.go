package transcript

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// SessionRecord stores the committed transcript of one finished session.
type SessionRecord struct {
	SessionID  string
	Utterances []Utterance
}

// HistoryStore holds the LRU cache of recent session transcripts, keyed by
// session ID. Eviction bounds memory across long-running processes.
type HistoryStore struct {
	*lru.Cache[string, *SessionRecord]
}

// NewHistoryStore creates a HistoryStore holding at most size sessions.
func NewHistoryStore(size int) (*HistoryStore, error) {
	lruCache, err := lru.New[string, *SessionRecord](size)
	if err != nil {
		return nil, err
	}

	return &HistoryStore{
		Cache: lruCache,
	}, nil
}

// Save records a finished session's transcript.
func (s *HistoryStore) Save(sessionID string, utterances []Utterance) {
	s.Cache.Add(sessionID, &SessionRecord{
		SessionID:  sessionID,
		Utterances: utterances,
	})
}

// Get looks up a session's transcript.
func (s *HistoryStore) Get(sessionID string) (*SessionRecord, bool) {
	return s.Cache.Get(sessionID)
}

// Len returns the number of stored sessions.
func (s *HistoryStore) Len() int {
	return s.Cache.Len()
}
