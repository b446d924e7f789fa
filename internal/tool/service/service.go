package service

import (
	"context"
	"errors"

	"overseer/internal/tool/models"
	dErrors "overseer/pkg/domain-errors"
	"overseer/pkg/platform/sentinel"
)

// Store is the registry persistence contract.
type Store interface {
	Add(ctx context.Context, tool models.Tool) error
	List(ctx context.Context) ([]models.Tool, error)
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
}

// Service manages the tool registry and answers existence checks for the
// policy and access services.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Register(ctx context.Context, name string) (models.Tool, error) {
	tool, err := models.NewTool(name)
	if err != nil {
		return models.Tool{}, err
	}
	if err := s.store.Add(ctx, tool); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return models.Tool{}, dErrors.New(dErrors.CodeConflict, "tool '"+tool.Name+"' is already registered")
		}
		return models.Tool{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register tool")
	}
	return tool, nil
}

func (s *Service) List(ctx context.Context) ([]models.Tool, error) {
	tools, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tools")
	}
	return tools, nil
}

// ListNames returns just the registered tool names.
func (s *Service) ListNames(ctx context.Context) ([]string, error) {
	tools, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	return names, nil
}

// RequireExists fails with UnknownTool when the named tool is not
// registered. Both the policy service and the access orchestrator call this
// before touching anything else, so callers get a clean client error instead
// of a constraint violation from the database.
func (s *Service) RequireExists(ctx context.Context, name string) error {
	exists, err := s.store.Exists(ctx, name)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check tool registry")
	}
	if !exists {
		return dErrors.New(dErrors.CodeUnknownTool, "tool '"+name+"' is unknown")
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "tool '"+name+"' is not registered")
		case errors.Is(err, sentinel.ErrReferenced):
			return dErrors.New(dErrors.CodeConflict, "tool '"+name+"' is still referenced by accesses or policies")
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete tool")
		}
	}
	return nil
}
