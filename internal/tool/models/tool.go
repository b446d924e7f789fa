// Package models defines the tool registry entry. Tools are the external
// systems (issue tracker, wiki, chat) through which data accesses happen;
// both accesses and policies must reference a registered tool.
package models

import (
	"strings"

	dErrors "overseer/pkg/domain-errors"
)

// Tool is a registered tool, keyed by name.
type Tool struct {
	Name string `json:"name"`
}

// NewTool validates a registration request.
func NewTool(name string) (Tool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tool{}, dErrors.New(dErrors.CodeValidation, "tool name must not be empty")
	}
	if len(name) > 20 {
		return Tool{}, dErrors.New(dErrors.CodeValidation, "tool name must be at most 20 characters")
	}
	return Tool{Name: name}, nil
}
