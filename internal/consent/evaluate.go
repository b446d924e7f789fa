// Package consent turns an owner's policies into a grant or veto for a
// concrete data access. It is pure computation over already-loaded data:
// no I/O happens inside matching or evaluation, so a single evaluation
// always sees one consistent policy snapshot.
package consent

import (
	accessmodels "overseer/internal/access/models"
	policymodels "overseer/internal/policy/models"
	id "overseer/pkg/domain"
)

// Breakdown partitions the owners of an access by whether at least one of
// their policies matched. The two slices are disjoint and together cover
// exactly the access's owner set, in the access's owner order.
type Breakdown struct {
	GrantedOwners  []id.SubjectID
	RejectedOwners []id.SubjectID
}

// Granted is the binary projection: every involved owner consented.
func (b Breakdown) Granted() bool {
	return len(b.RejectedOwners) == 0
}

// MatchingPolicies returns, per involved owner, the policies permitting the
// access. Owners without a match map to an empty slice; policies belonging
// to owners outside the access are ignored regardless of their wildcards.
func MatchingPolicies(access *accessmodels.DataAccess, policies []*policymodels.Policy) map[id.SubjectID][]*policymodels.Policy {
	date := access.Date()
	matches := make(map[id.SubjectID][]*policymodels.Policy, len(access.Owners))
	for _, owner := range access.Owners {
		matches[owner] = nil
		for _, policy := range policies {
			if policy.Matches(owner, access.Tool, access.Kind, access.User, date) {
				matches[owner] = append(matches[owner], policy)
			}
		}
	}
	return matches
}

// Evaluate computes the per-owner consent breakdown for an access. An owner
// with no matching policy rejects: absence of a policy is a veto, not a
// wildcard allow.
func Evaluate(access *accessmodels.DataAccess, policies []*policymodels.Policy) Breakdown {
	matches := MatchingPolicies(access, policies)

	var breakdown Breakdown
	for _, owner := range access.Owners {
		if len(matches[owner]) > 0 {
			breakdown.GrantedOwners = append(breakdown.GrantedOwners, owner)
		} else {
			breakdown.RejectedOwners = append(breakdown.RejectedOwners, owner)
		}
	}
	return breakdown
}
