// Package models defines the data access record: one event in the
// append-only inverse-transparency log.
package models

import (
	"time"

	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
	platformstrings "overseer/pkg/platform/strings"
)

// DataAccess is one access event. Candidate accesses are built by the
// orchestrator from a fully identity-resolved request; once recorded they
// are immutable.
type DataAccess struct {
	ID   id.AccessID
	User id.SubjectID
	Tool string
	Kind id.AccessKind
	// Timestamp is when the access happened. Policy validity windows are
	// checked against its calendar date.
	Timestamp     time.Time
	Justification string
	// DataTypes are free-text tags for the categories of data touched,
	// e.g. "Jira issues", "email address".
	DataTypes []string
	// Owners are the subjects whose data was touched. Never empty, never
	// containing duplicates.
	Owners []id.SubjectID
}

// NewCandidate builds a not-yet-recorded access and enforces the owner-set
// invariants.
func NewCandidate(user id.SubjectID, tool string, kind id.AccessKind, timestamp time.Time, justification string, dataTypes []string, owners []id.SubjectID) (*DataAccess, error) {
	if len(owners) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "access must involve at least one owner")
	}
	deduped := dedupeOwners(owners)

	return &DataAccess{
		ID:            id.NewAccessID(),
		User:          user,
		Tool:          tool,
		Kind:          kind,
		Timestamp:     timestamp,
		Justification: justification,
		DataTypes:     platformstrings.DedupeAndTrim(dataTypes),
		Owners:        deduped,
	}, nil
}

// Date returns the calendar date of the access, the granularity at which
// policy validity windows operate.
func (a *DataAccess) Date() id.Date {
	return id.DateOf(a.Timestamp)
}

func dedupeOwners(owners []id.SubjectID) []id.SubjectID {
	seen := make(map[id.SubjectID]struct{}, len(owners))
	out := make([]id.SubjectID, 0, len(owners))
	for _, owner := range owners {
		if _, dup := seen[owner]; dup {
			continue
		}
		seen[owner] = struct{}{}
		out = append(out, owner)
	}
	return out
}
