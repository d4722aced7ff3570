package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/ordgate/core/pkg/fdc"
)

// MemoryStore is an in-memory Store for tests and single-process use.
type MemoryStore struct {
	mu      sync.RWMutex
	commits map[string][]*fdc.Commit // companyID -> records in insert order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{commits: make(map[string][]*fdc.Commit)}
}

func (s *MemoryStore) GetByIdempotencyKey(_ context.Context, companyID, key string) (*fdc.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.commits[companyID] {
		if c.IdempotencyKey == key {
			out := *c
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Head(_ context.Context, companyID string) (*fdc.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.commits[companyID]
	if len(rows) == 0 {
		return nil, nil
	}
	head := rows[0]
	for _, c := range rows[1:] {
		if !c.GeneratedAt.Before(head.GeneratedAt) {
			head = c
		}
	}
	out := *head
	return &out, nil
}

func (s *MemoryStore) Insert(_ context.Context, c *fdc.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *c
	s.commits[c.CompanyID] = append(s.commits[c.CompanyID], &stored)
	return nil
}

func (s *MemoryStore) ListByCompany(_ context.Context, companyID string) ([]*fdc.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.commits[companyID]
	out := make([]*fdc.Commit, len(rows))
	for i, c := range rows {
		cp := *c
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GeneratedAt.Before(out[j].GeneratedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetByFdcID(_ context.Context, companyID, fdcID string) (*fdc.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.commits[companyID] {
		if c.FdcID == fdcID {
			out := *c
			return &out, nil
		}
	}
	return nil, nil
}

// CountByCompany returns the number of records for a company.
func (s *MemoryStore) CountByCompany(companyID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.commits[companyID])
}

// Corrupt overwrites a stored record's financial intent in place, bypassing
// the append-only contract. Test helper for chain verification.
func (s *MemoryStore) Corrupt(companyID string, index int, intent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits[companyID][index].FinancialIntent = intent
}
