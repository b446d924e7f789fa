// Package domain holds shared domain primitives: typed identifiers and the
// access-kind enum. Typed IDs make it a compile error to pass a policy ID
// where an access ID is expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "overseer/pkg/domain-errors"
)

// SubjectID is a Revolori ID: an opaque, globally stable identifier for a
// person, independent of any tool. Issued by the Revolori SSO provider and
// never interpreted here.
type SubjectID string

// ParseSubjectID validates that s is a usable subject identifier.
func ParseSubjectID(s string) (SubjectID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id must not be empty")
	}
	if len(s) > 100 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id must be at most 100 characters")
	}
	return SubjectID(s), nil
}

func (s SubjectID) String() string {
	return string(s)
}

// IsNil reports whether the subject ID is unset.
func (s SubjectID) IsNil() bool {
	return s == ""
}

// AccessID identifies a recorded data access.
type AccessID uuid.UUID

// PolicyID identifies a data access policy.
type PolicyID uuid.UUID

// NewAccessID returns a fresh random access ID.
func NewAccessID() AccessID {
	return AccessID(uuid.New())
}

// NewPolicyID returns a fresh random policy ID.
func NewPolicyID() PolicyID {
	return PolicyID(uuid.New())
}

// ParsePolicyID parses a policy ID from its string form.
func ParsePolicyID(s string) (PolicyID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return PolicyID{}, err
	}
	return PolicyID(u), nil
}

// ParseAccessID parses an access ID from its string form.
func ParseAccessID(s string) (AccessID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return AccessID{}, err
	}
	return AccessID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}

func (a AccessID) String() string { return uuid.UUID(a).String() }

func (p PolicyID) String() string { return uuid.UUID(p).String() }

func (a AccessID) IsNil() bool { return uuid.UUID(a) == uuid.Nil }

func (p PolicyID) IsNil() bool { return uuid.UUID(p) == uuid.Nil }
