// Package identity resolves tool-specific user identifiers (email addresses,
// account names) to the stable subject IDs issued by the Revolori SSO
// provider. Everything recorded in the log is keyed by subject ID.
package identity

import (
	"context"

	id "overseer/pkg/domain"
)

// Resolver maps tool-specific IDs to subject IDs.
type Resolver interface {
	// MapOne resolves a single tool-specific ID.
	MapOne(ctx context.Context, tool string, toolSpecificID string) (id.SubjectID, error)
	// MapMany resolves a batch and returns the distinct subject IDs. Several
	// tool-specific IDs can belong to the same subject.
	MapMany(ctx context.Context, tool string, toolSpecificIDs []string) ([]id.SubjectID, error)
}
