package session

import (
	"context"
	"slices"
	"sync"
	"time"
)

// memoryStore keeps sessions in a map. Expired sessions are dropped lazily.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionData
	ttl      time.Duration
	now      func() time.Time
}

func newMemoryStore(cfg *storeConfig) *memoryStore {
	return &memoryStore{
		sessions: make(map[string]*SessionData),
		ttl:      cfg.ttl,
		now:      cfg.now,
	}
}

func (s *memoryStore) expired(data *SessionData) bool {
	return s.now().Sub(data.UpdatedAt) > s.ttl
}

// copyData keeps stored sessions independent of caller mutations.
func copyData(data *SessionData) *SessionData {
	c := *data
	c.State = slices.Clone(data.State)
	return &c
}

// Create implements Store.
func (s *memoryStore) Create(ctx context.Context, data *SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.sessions[data.ID]; ok && !s.expired(old) {
		return ErrExists
	}
	now := s.now()
	data.CreatedAt = now
	data.UpdatedAt = now
	data.Version = 1
	s.sessions[data.ID] = copyData(data)
	return nil
}

// Get implements Store. Reading a session refreshes its TTL.
func (s *memoryStore) Get(ctx context.Context, id string) (*SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if s.expired(data) {
		delete(s.sessions, id)
		return nil, nil
	}
	data.UpdatedAt = s.now()
	return copyData(data), nil
}

// Update implements Store.
func (s *memoryStore) Update(ctx context.Context, data *SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[data.ID]
	if !ok || s.expired(stored) {
		return ErrNotFound
	}
	if stored.Version != data.Version {
		return ErrVersionConflict
	}
	data.Version++
	data.UpdatedAt = s.now()
	s.sessions[data.ID] = copyData(data)
	return nil
}

// Delete implements Store.
func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Close implements Store.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]*SessionData)
	return nil
}
