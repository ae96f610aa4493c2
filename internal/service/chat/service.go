package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is busy with another message")
)

type entry struct {
	session  *chat.Session
	busy     sync.Mutex
	lastSeen time.Time
}

// Service keeps live sessions in memory. Nothing outlives the process.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewService bootstraps the in-memory session registry.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]*entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions an empty anonymous session.
func (s *Service) CreateSession(_ context.Context) (*chat.Session, error) {
	now := s.now()
	session := chat.NewSession(uuid.NewString(), now)

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session, lastSeen: now}
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (*chat.Session, error) {
	e, err := s.touch(sessionID)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// Acquire grants exclusive use of a session for one exchange. The returned
// release func must be called when the exchange is over. A session already
// in use yields ErrSessionBusy instead of queueing.
func (s *Service) Acquire(_ context.Context, sessionID string) (*chat.Session, func(), error) {
	e, err := s.touch(sessionID)
	if err != nil {
		return nil, nil, err
	}

	if !e.busy.TryLock() {
		return nil, nil, ErrSessionBusy
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			e.lastSeen = s.now()
			s.mu.Unlock()
			e.busy.Unlock()
		})
	}
	return e.session, release, nil
}

// Delete drops a session.
func (s *Service) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// Sweep removes sessions idle for longer than idleTTL and not mid-exchange.
// It returns the number of sessions removed.
func (s *Service) Sweep(idleTTL time.Duration) int {
	if idleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if e.lastSeen.After(cutoff) {
			continue
		}
		if !e.busy.TryLock() {
			continue
		}
		delete(s.sessions, id)
		e.busy.Unlock()
		removed++
	}
	return removed
}

// Count reports the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) touch(sessionID string) (*entry, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = s.now()
	return e, nil
}
