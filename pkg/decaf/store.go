package decaf

import (
	"slices"
	"strings"
	"sync"

	"github.com/harun/decaf/pkg/acp"
)

// bufferedSession holds the pending text of one session. An empty text
// buffer means nothing is pending.
type bufferedSession struct {
	text     strings.Builder
	template acp.SessionNotification
}

// Store keeps pending chunk text per session. It is safe for concurrent use.
//
// Records are created on first use and cleared, never deleted, when drained.
type Store struct {
	mu       sync.Mutex
	sessions map[acp.SessionID]*bufferedSession
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[acp.SessionID]*bufferedSession),
	}
}

// Accumulate appends text to the session's buffer and makes template the
// notification the next flush is modelled on. It reports whether a new
// session record was created.
func (s *Store) Accumulate(id acp.SessionID, text string, template acp.SessionNotification) (created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		rec = &bufferedSession{}
		s.sessions[id] = rec
	}
	rec.text.WriteString(text)
	rec.template = template
	return !ok
}

// PendingSessionIDs returns the sessions with buffered text, sorted.
func (s *Store) PendingSessionIDs() []acp.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]acp.SessionID, 0, len(s.sessions))
	for id, rec := range s.sessions {
		if rec.text.Len() > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Drain takes the session's buffered text and clears it. ok is false when
// nothing was pending.
func (s *Store) Drain(id acp.SessionID) (text string, template acp.SessionNotification, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.sessions[id]
	if !exists || rec.text.Len() == 0 {
		return "", acp.SessionNotification{}, false
	}

	text = rec.text.String()
	rec.text.Reset()
	return text, rec.template, true
}

// Len returns the number of session records held, pending or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// PendingBytes returns how many bytes of text are buffered for a session.
func (s *Store) PendingBytes(id acp.SessionID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.sessions[id]; ok {
		return rec.text.Len()
	}
	return 0
}
