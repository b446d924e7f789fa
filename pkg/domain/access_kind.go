package domain

import dErrors "overseer/pkg/domain-errors"

// AccessKind classifies how data was exposed. The wire values are inherited
// from the first deployment and must not change: downstream consumers of the
// log filter on them.
type AccessKind string

const (
	// AccessKindDirect is a single-record lookup by ID.
	AccessKindDirect AccessKind = "Direkt"
	// AccessKindQuery is exposure through a search result.
	AccessKindQuery AccessKind = "Query"
	// AccessKindAggregate is exposure through a statistical aggregate.
	AccessKindAggregate AccessKind = "Aggregation"
)

// ParseAccessKind validates a wire value.
func ParseAccessKind(s string) (AccessKind, error) {
	switch AccessKind(s) {
	case AccessKindDirect, AccessKindQuery, AccessKindAggregate:
		return AccessKind(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown access kind: "+s)
}

func (k AccessKind) String() string {
	return string(k)
}
