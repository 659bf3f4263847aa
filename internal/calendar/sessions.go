package calendar

import (
	"sync"
	"time"
)

type session struct {
	cursor   Cursor
	lastSeen time.Time
}

// Sessions keeps one cursor per client session, so navigation by one client
// never moves another client's view. Unknown sessions start at the current
// month in the display location.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*session
	loc      *time.Location
	now      func() time.Time
}

func NewSessions(loc *time.Location) *Sessions {
	if loc == nil {
		loc = time.Local
	}
	return &Sessions{
		sessions: make(map[string]*session),
		loc:      loc,
		now:      time.Now,
	}
}

// lookup returns the session for id, creating it if needed. Caller holds mu.
func (s *Sessions) lookup(id string) *session {
	now := s.now()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{cursor: CursorAt(now, s.loc)}
		s.sessions[id] = sess
	}
	sess.lastSeen = now
	return sess
}

// Current returns the cursor of session id.
func (s *Sessions) Current(id string) Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(id).cursor
}

// Navigate moves the cursor of session id and returns the new value.
func (s *Sessions) Navigate(id string, d Direction) Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.lookup(id)
	sess.cursor = sess.cursor.Navigate(d)
	return sess.cursor
}

// Set replaces the cursor of session id.
func (s *Sessions) Set(id string, c Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookup(id).cursor = c
}

// Prune drops sessions idle for longer than maxIdle and returns how many
// were removed.
func (s *Sessions) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
