package service

import (
	"context"
	"errors"

	"overseer/internal/policy/models"
	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
	"overseer/pkg/platform/sentinel"
)

// Store is the policy persistence contract.
type Store interface {
	Add(ctx context.Context, policy *models.Policy) error
	Get(ctx context.Context, owner id.SubjectID, policyID id.PolicyID) (*models.Policy, error)
	ListByOwner(ctx context.Context, owner id.SubjectID) ([]*models.Policy, error)
	ListByOwners(ctx context.Context, owners []id.SubjectID) ([]*models.Policy, error)
	Update(ctx context.Context, policy *models.Policy) error
	Delete(ctx context.Context, owner id.SubjectID, policyID id.PolicyID) error
}

// ToolRegistry answers whether a tool name is registered.
type ToolRegistry interface {
	RequireExists(ctx context.Context, name string) error
}

// Service implements owner-scoped policy CRUD. The acting owner is an
// explicit argument on every operation: there is no ambient current-user
// state, and acting on someone else's policy reads as not-found.
type Service struct {
	store Store
	tools ToolRegistry
}

func NewService(store Store, tools ToolRegistry) *Service {
	return &Service{store: store, tools: tools}
}

func (s *Service) Create(ctx context.Context, owner id.SubjectID, fields models.Fields) (*models.Policy, error) {
	if err := s.validateTool(ctx, fields.Tool); err != nil {
		return nil, err
	}
	policy, err := models.New(owner, fields)
	if err != nil {
		return nil, err
	}
	if err := s.store.Add(ctx, policy); err != nil {
		if errors.Is(err, sentinel.ErrReferenced) {
			return nil, dErrors.New(dErrors.CodeUnknownTool, "tool '"+*fields.Tool+"' is unknown")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store policy")
	}
	return policy, nil
}

func (s *Service) List(ctx context.Context, owner id.SubjectID) ([]*models.Policy, error) {
	policies, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list policies")
	}
	return policies, nil
}

func (s *Service) Get(ctx context.Context, owner id.SubjectID, policyID id.PolicyID) (*models.Policy, error) {
	policy, err := s.store.Get(ctx, owner, policyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "policy not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	return policy, nil
}

// Update replaces all writable fields of the policy. Loads first so the
// returned policy reflects the stored owner, then writes scoped to that
// owner again; the store's WHERE clause makes racing deletes surface as
// not-found rather than resurrecting the row.
func (s *Service) Update(ctx context.Context, owner id.SubjectID, policyID id.PolicyID, fields models.Fields) (*models.Policy, error) {
	if err := s.validateTool(ctx, fields.Tool); err != nil {
		return nil, err
	}

	policy, err := s.Get(ctx, owner, policyID)
	if err != nil {
		return nil, err
	}
	if err := policy.Apply(fields); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, policy); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "policy not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update policy")
	}
	return policy, nil
}

func (s *Service) Delete(ctx context.Context, owner id.SubjectID, policyID id.PolicyID) error {
	if err := s.store.Delete(ctx, owner, policyID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "policy not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete policy")
	}
	return nil
}

func (s *Service) validateTool(ctx context.Context, tool *string) error {
	if tool == nil {
		return nil
	}
	return s.tools.RequireExists(ctx, *tool)
}
