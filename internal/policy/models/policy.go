// Package models defines data access policies: standing permissions issued
// by a data owner. A nil field is a wildcard and matches any value in that
// dimension.
package models

import (
	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
)

// Policy is a standing permission issued by exactly one owner.
type Policy struct {
	ID    id.PolicyID
	Owner id.SubjectID

	// Tool restricts the policy to one tool; nil matches any tool.
	Tool *string
	// AccessKind restricts the kind of exposure; nil matches any kind.
	AccessKind *id.AccessKind
	// User restricts who may access; nil matches any requester.
	User *id.SubjectID
	// ValidityStart and ValidityEnd bound the dates of access this policy
	// covers, inclusive on both sides. A nil bound is unbounded in that
	// direction.
	ValidityStart *id.Date
	ValidityEnd   *id.Date
}

// Fields are the writable attributes shared by create and update.
type Fields struct {
	Tool          *string
	AccessKind    *id.AccessKind
	User          *id.SubjectID
	ValidityStart *id.Date
	ValidityEnd   *id.Date
}

// Validate enforces the validity-window invariant.
func (f Fields) Validate() error {
	if f.ValidityStart != nil && f.ValidityEnd != nil && f.ValidityStart.After(*f.ValidityEnd) {
		return dErrors.New(dErrors.CodeValidation, "validity_period_start_date must not be after validity_period_end_date")
	}
	return nil
}

// New builds a policy owned by owner from writable fields.
func New(owner id.SubjectID, fields Fields) (*Policy, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "policy owner is required")
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	return &Policy{
		ID:            id.NewPolicyID(),
		Owner:         owner,
		Tool:          fields.Tool,
		AccessKind:    fields.AccessKind,
		User:          fields.User,
		ValidityStart: fields.ValidityStart,
		ValidityEnd:   fields.ValidityEnd,
	}, nil
}

// Apply overwrites all writable fields. Updates are whole-policy: a field
// omitted from the request becomes a wildcard, exactly as on create.
func (p *Policy) Apply(fields Fields) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	p.Tool = fields.Tool
	p.AccessKind = fields.AccessKind
	p.User = fields.User
	p.ValidityStart = fields.ValidityStart
	p.ValidityEnd = fields.ValidityEnd
	return nil
}

// Matches is the wildcard predicate: it reports whether this policy permits
// an access with the given concrete dimensions, performed on accessDate.
// Ownership is checked first; a policy never speaks for another owner, no
// matter how permissive its wildcards are. Each validity bound is checked
// against its own wildcard flag, inclusive on both sides.
func (p *Policy) Matches(owner id.SubjectID, tool string, kind id.AccessKind, user id.SubjectID, accessDate id.Date) bool {
	if p.Owner != owner {
		return false
	}
	if p.Tool != nil && *p.Tool != tool {
		return false
	}
	if p.AccessKind != nil && *p.AccessKind != kind {
		return false
	}
	if p.User != nil && *p.User != user {
		return false
	}
	if p.ValidityStart != nil && accessDate.Before(*p.ValidityStart) {
		return false
	}
	if p.ValidityEnd != nil && accessDate.After(*p.ValidityEnd) {
		return false
	}
	return true
}
