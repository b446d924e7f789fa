package store

import (
	"context"
	"sort"
	"sync"

	"overseer/internal/access/models"
	id "overseer/pkg/domain"
)

// InMemoryStore keeps recorded accesses in insertion order. Reads hand out
// copies scoped to the requesting owner, mirroring the postgres store.
type InMemoryStore struct {
	mu       sync.RWMutex
	accesses []models.DataAccess
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Record(_ context.Context, access *models.DataAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accesses = append(s.accesses, *access)
	return nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, owner id.SubjectID, filter ListFilter) ([]*models.DataAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.DataAccess
	for i := range s.accesses {
		access := s.accesses[i]
		if !involves(&access, owner) {
			continue
		}
		date := access.Date()
		if !filter.DateStart.IsZero() && date.Before(filter.DateStart) {
			continue
		}
		if !filter.DateEnd.IsZero() && date.After(filter.DateEnd) {
			continue
		}
		copied := access
		copied.Owners = []id.SubjectID{owner}
		matched = append(matched, &copied)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *InMemoryStore) CountsByOwner(_ context.Context, owner id.SubjectID) (*FieldCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := &FieldCounts{
		Users: make(map[string]int),
		Tools: make(map[string]int),
		Kinds: make(map[string]int),
	}
	for i := range s.accesses {
		access := &s.accesses[i]
		if !involves(access, owner) {
			continue
		}
		counts.Users[access.User.String()]++
		counts.Tools[access.Tool]++
		counts.Kinds[access.Kind.String()]++
	}
	return counts, nil
}

func involves(access *models.DataAccess, owner id.SubjectID) bool {
	for _, o := range access.Owners {
		if o == owner {
			return true
		}
	}
	return false
}
