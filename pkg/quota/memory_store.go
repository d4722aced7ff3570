package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps quota state and debounce marks in memory. It implements
// both Store and Debouncer for tests and single-process deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	states     map[string]*State
	admissions map[string]time.Time // tenant|contextKey -> last success
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:     make(map[string]*State),
		admissions: make(map[string]time.Time),
	}
}

func (s *MemoryStore) GetState(_ context.Context, tenantID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[tenantID]
	if !ok {
		return nil, nil
	}
	out := *st
	return &out, nil
}

func (s *MemoryStore) PutState(_ context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.states[st.TenantID] = &cp
	return nil
}

func (s *MemoryStore) Seen(_ context.Context, tenantID, contextKey string, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.admissions[tenantID+"|"+contextKey]
	if !ok {
		return false, nil
	}
	return now.Sub(last) < DebounceTTL, nil
}

func (s *MemoryStore) Mark(_ context.Context, tenantID, contextKey string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admissions[tenantID+"|"+contextKey] = now
	return nil
}
