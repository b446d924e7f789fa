package store

import (
	"context"
	"sync"

	"overseer/internal/policy/models"
	id "overseer/pkg/domain"
	"overseer/pkg/platform/sentinel"
)

// InMemoryStore keeps policies in a map keyed by policy ID. All reads hand
// out copies so callers can never mutate stored state.
type InMemoryStore struct {
	mu       sync.RWMutex
	policies map[id.PolicyID]models.Policy
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{policies: make(map[id.PolicyID]models.Policy)}
}

func (s *InMemoryStore) Add(_ context.Context, policy *models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.ID] = *policy
	return nil
}

// Get loads a policy scoped to its owner. A policy belonging to someone else
// is reported as absent, never as forbidden.
func (s *InMemoryStore) Get(_ context.Context, owner id.SubjectID, policyID id.PolicyID) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, exists := s.policies[policyID]
	if !exists || policy.Owner != owner {
		return nil, sentinel.ErrNotFound
	}
	copied := policy
	return &copied, nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, owner id.SubjectID) ([]*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Policy
	for _, policy := range s.policies {
		if policy.Owner == owner {
			copied := policy
			out = append(out, &copied)
		}
	}
	return out, nil
}

// ListByOwners returns the candidate set for matching: every policy whose
// owner is involved in the access under evaluation.
func (s *InMemoryStore) ListByOwners(_ context.Context, owners []id.SubjectID) ([]*models.Policy, error) {
	ownerSet := make(map[id.SubjectID]struct{}, len(owners))
	for _, owner := range owners {
		ownerSet[owner] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Policy
	for _, policy := range s.policies {
		if _, involved := ownerSet[policy.Owner]; involved {
			copied := policy
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, policy *models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.policies[policy.ID]
	if !exists || existing.Owner != policy.Owner {
		return sentinel.ErrNotFound
	}
	s.policies[policy.ID] = *policy
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, owner id.SubjectID, policyID id.PolicyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy, exists := s.policies[policyID]
	if !exists || policy.Owner != owner {
		return sentinel.ErrNotFound
	}
	delete(s.policies, policyID)
	return nil
}

// ReferencesTool reports whether any policy names the tool. The in-memory
// tool store uses this to mimic the database foreign key on delete.
func (s *InMemoryStore) ReferencesTool(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, policy := range s.policies {
		if policy.Tool != nil && *policy.Tool == name {
			return true
		}
	}
	return false
}
