package store

import (
	"context"
	"sort"
	"sync"

	"overseer/internal/tool/models"
	"overseer/pkg/platform/sentinel"
)

// InMemoryStore keeps the tool registry in a map. Used by unit tests and
// dependency-free development runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	tools map[string]models.Tool

	// referenced is consulted on delete to mirror the foreign-key
	// constraint enforced by PostgreSQL.
	referenced func(name string) bool
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{tools: make(map[string]models.Tool)}
}

// SetReferenceCheck installs the callback that reports whether any access or
// policy still references a tool.
func (s *InMemoryStore) SetReferenceCheck(fn func(name string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referenced = fn
}

func (s *InMemoryStore) Add(_ context.Context, tool models.Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[tool.Name]; exists {
		return sentinel.ErrConflict
	}
	s.tools[tool.Name] = tool
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]models.Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tools := make([]models.Tool, 0, len(s.tools))
	for _, tool := range s.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

func (s *InMemoryStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.tools[name]
	return exists, nil
}

func (s *InMemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[name]; !exists {
		return sentinel.ErrNotFound
	}
	if s.referenced != nil && s.referenced(name) {
		return sentinel.ErrReferenced
	}
	delete(s.tools, name)
	return nil
}
