package handler

import (
	"strings"

	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
)

// accessRequestBase carries the fields shared by all three request shapes.
// Users and owners are tool-specific IDs; resolution to subject IDs happens
// in the service.
type accessRequestBase struct {
	DataTypes     []string `json:"data_types"`
	Justification string   `json:"justification"`
	Tool          string   `json:"tool"`
	User          string   `json:"user"`
}

func (r *accessRequestBase) validate() error {
	r.Tool = strings.TrimSpace(r.Tool)
	r.User = strings.TrimSpace(r.User)
	if r.Tool == "" {
		return dErrors.New(dErrors.CodeValidation, "tool is required")
	}
	if r.User == "" {
		return dErrors.New(dErrors.CodeValidation, "user is required")
	}
	return nil
}

// directAccessRequest covers a lookup of a single individual's data.
type directAccessRequest struct {
	accessRequestBase
	Owner string `json:"owner"`
}

func (r *directAccessRequest) Validate() error {
	if err := r.validate(); err != nil {
		return err
	}
	r.Owner = strings.TrimSpace(r.Owner)
	if r.Owner == "" {
		return dErrors.New(dErrors.CodeValidation, "owner is required")
	}
	return nil
}

// multiOwnerAccessRequest covers query and aggregate accesses.
type multiOwnerAccessRequest struct {
	accessRequestBase
	Owners []string `json:"owners"`
}

func (r *multiOwnerAccessRequest) Validate() error {
	if err := r.validate(); err != nil {
		return err
	}
	if len(r.Owners) == 0 {
		return dErrors.New(dErrors.CodeValidation, "owners must not be empty")
	}
	return nil
}

type accessResponse struct {
	Granted        bool     `json:"granted"`
	GrantedOwners  []string `json:"granted_owners"`
	RejectedOwners []string `json:"rejected_owners"`
}

// listedAccess is the owner's view of one recorded access. Co-owners are
// omitted: each owner sees only their own involvement.
type listedAccess struct {
	AccessKind    string   `json:"access_kind"`
	DataTypes     []string `json:"data_types"`
	Justification string   `json:"justification"`
	OwnerRID      string   `json:"owner_rid"`
	Timestamp     string   `json:"timestamp"`
	Tool          string   `json:"tool"`
	UserRID       string   `json:"user_rid"`
}

type listAccessesResponse struct {
	Accesses []listedAccess `json:"accesses"`
	OwnerRID string         `json:"owner_rid"`
}

type countsResponse struct {
	Users       map[string]int `json:"users"`
	Tools       map[string]int `json:"tools"`
	AccessKinds map[string]int `json:"access_kinds"`
}

func subjectsToStrings(subjects []id.SubjectID) []string {
	out := make([]string, len(subjects))
	for i, subject := range subjects {
		out[i] = subject.String()
	}
	return out
}
