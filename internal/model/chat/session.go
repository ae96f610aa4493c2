package chat

import (
	"sync"
	"time"
)

// Session captures one anonymous conversation: its transcript and the
// optional personality verdict. The transcript only ever grows.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	mu      sync.RWMutex
	turns   []Turn
	verdict *string
}

// NewSession returns an empty session with the supplied identifier.
func NewSession(id string, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: createdAt,
		turns:     make([]Turn, 0, 16),
	}
}

// Append adds a turn to the end of the transcript.
func (s *Session) Append(turn Turn) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.mu.Unlock()
}

// Turns returns a copy of the transcript in chronological order.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]Turn, len(s.turns))
	copy(copied, s.turns)
	return copied
}

// Len reports the number of turns recorded so far.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// UserTurnCount counts turns spoken by the user.
func (s *Session) UserTurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, turn := range s.turns {
		if turn.Role == RoleUser {
			count++
		}
	}
	return count
}

// Verdict returns the personality verdict if one has been recorded.
func (s *Session) Verdict() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.verdict == nil {
		return "", false
	}
	return *s.verdict, true
}

// SetVerdict records the verdict. Only the first call has any effect.
func (s *Session) SetVerdict(verdict string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.verdict != nil {
		return false
	}
	s.verdict = &verdict
	return true
}
