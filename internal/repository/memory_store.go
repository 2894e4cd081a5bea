package repository

import (
	"container/list"
	"context"
	"sync"
	"time"

	"k12-tutor/internal/domain"
)

// MemoryStore keeps sessions in process memory. With no options it never
// evicts, so memory grows with the number of sessions seen since start.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*list.Element
	order       *list.List // front is most recently used
	maxSessions int
	idleTTL     time.Duration
	now         func() time.Time
}

type memoryEntry struct {
	id       string
	turns    []domain.ConversationTurn
	lastUsed time.Time
}

type MemoryOption func(*MemoryStore)

// WithMaxSessions evicts the least recently used session once n are held.
func WithMaxSessions(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithIdleTTL forgets sessions that have not been touched for d.
func WithIdleTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns a copy of the session's turns, registering an empty
// session on first access.
func (s *MemoryStore) GetOrCreate(_ context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookupLocked(sessionID)
	if e == nil {
		e = s.insertLocked(sessionID)
	}
	s.touchLocked(e)
	return cloneTurns(e.Value.(*memoryEntry).turns), nil
}

// Append adds turn to the end of the session, creating it if needed.
func (s *MemoryStore) Append(_ context.Context, sessionID string, turn domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookupLocked(sessionID)
	if e == nil {
		e = s.insertLocked(sessionID)
	}
	entry := e.Value.(*memoryEntry)
	entry.turns = append(entry.turns, turn)
	s.touchLocked(e)
	return nil
}

// History returns a copy of the session's turns without creating it.
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookupLocked(sessionID)
	if e == nil {
		return []domain.ConversationTurn{}, nil
	}
	return cloneTurns(e.Value.(*memoryEntry).turns), nil
}

// Len reports how many sessions are held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) lookupLocked(id string) *list.Element {
	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if s.idleTTL > 0 && s.now().Sub(e.Value.(*memoryEntry).lastUsed) > s.idleTTL {
		s.removeLocked(e)
		return nil
	}
	return e
}

func (s *MemoryStore) insertLocked(id string) *list.Element {
	s.sweepLocked()
	e := s.order.PushFront(&memoryEntry{id: id, lastUsed: s.now()})
	s.sessions[id] = e
	for s.maxSessions > 0 && s.order.Len() > s.maxSessions {
		s.removeLocked(s.order.Back())
	}
	return e
}

// sweepLocked drops idle sessions from the least recently used end. The
// list is ordered by lastUsed, so it stops at the first live entry.
func (s *MemoryStore) sweepLocked() {
	if s.idleTTL <= 0 {
		return
	}
	now := s.now()
	for back := s.order.Back(); back != nil; back = s.order.Back() {
		if now.Sub(back.Value.(*memoryEntry).lastUsed) <= s.idleTTL {
			return
		}
		s.removeLocked(back)
	}
}

func (s *MemoryStore) touchLocked(e *list.Element) {
	e.Value.(*memoryEntry).lastUsed = s.now()
	s.order.MoveToFront(e)
}

func (s *MemoryStore) removeLocked(e *list.Element) {
	s.order.Remove(e)
	delete(s.sessions, e.Value.(*memoryEntry).id)
}

func cloneTurns(turns []domain.ConversationTurn) []domain.ConversationTurn {
	out := make([]domain.ConversationTurn, len(turns))
	copy(out, turns)
	return out
}
