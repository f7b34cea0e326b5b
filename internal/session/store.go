package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errInvalidSession = errors.New("session: user id required")

// Store persists sessions keyed by user identifier. Implementations keep a
// payment-link index in step with session writes.
type Store interface {
	Get(ctx context.Context, userID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]*Session, error)
	FindByPaymentLink(ctx context.Context, linkID string) (*Session, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byLink   map[string]string
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byLink:   make(map[string]string),
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s == nil || s.UserID == "" {
		return errInvalidSession
	}
	stored := s.Clone()
	stored.UpdatedAt = m.now()
	s.UpdatedAt = stored.UpdatedAt

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[s.UserID]; ok && prev.PaymentLinkID != "" && prev.PaymentLinkID != stored.PaymentLinkID {
		delete(m.byLink, prev.PaymentLinkID)
	}
	if stored.PaymentLinkID != "" {
		m.byLink[stored.PaymentLinkID] = stored.UserID
	}
	m.sessions[s.UserID] = stored
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[userID]; ok && prev.PaymentLinkID != "" {
		if m.byLink[prev.PaymentLinkID] == userID {
			delete(m.byLink, prev.PaymentLinkID)
		}
	}
	delete(m.sessions, userID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *MemoryStore) FindByPaymentLink(_ context.Context, linkID string) (*Session, error) {
	if linkID == "" {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	userID, ok := m.byLink[linkID]
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := m.sessions[userID]
	if !ok || s.PaymentLinkID != linkID {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
