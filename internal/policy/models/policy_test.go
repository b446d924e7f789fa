package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
)

const (
	ownerO1 = id.SubjectID("o1@example.com")
	ownerO2 = id.SubjectID("o2@example.com")
	userU   = id.SubjectID("u@example.com")
)

func strPtr(s string) *string            { return &s }
func kindPtr(k id.AccessKind) *id.AccessKind { return &k }
func subjPtr(s id.SubjectID) *id.SubjectID   { return &s }
func datePtr(d id.Date) *id.Date             { return &d }

func TestNew(t *testing.T) {
	t.Run("requires an owner", func(t *testing.T) {
		_, err := New("", Fields{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects inverted validity window", func(t *testing.T) {
		_, err := New(ownerO1, Fields{
			ValidityStart: datePtr(id.NewDate(2024, time.December, 31)),
			ValidityEnd:   datePtr(id.NewDate(2024, time.January, 1)),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("single-day window is valid", func(t *testing.T) {
		day := id.NewDate(2024, time.June, 1)
		p, err := New(ownerO1, Fields{ValidityStart: datePtr(day), ValidityEnd: datePtr(day)})
		require.NoError(t, err)
		assert.False(t, p.ID.IsNil())
	})
}

func TestMatches(t *testing.T) {
	accessDate := id.NewDate(2024, time.June, 1)

	t.Run("all-wildcard policy matches everything for its owner", func(t *testing.T) {
		p := &Policy{ID: id.NewPolicyID(), Owner: ownerO1}
		assert.True(t, p.Matches(ownerO1, "jira", id.AccessKindQuery, userU, accessDate))
		assert.True(t, p.Matches(ownerO1, "wiki", id.AccessKindDirect, ownerO2, accessDate))
	})

	t.Run("ownership is checked before wildcards", func(t *testing.T) {
		p := &Policy{ID: id.NewPolicyID(), Owner: ownerO1}
		assert.False(t, p.Matches(ownerO2, "jira", id.AccessKindQuery, userU, accessDate),
			"a fully wildcarded policy must never speak for another owner")
	})

	t.Run("non-wildcard fields must match exactly", func(t *testing.T) {
		p := &Policy{
			ID:         id.NewPolicyID(),
			Owner:      ownerO1,
			Tool:       strPtr("jira"),
			AccessKind: kindPtr(id.AccessKindQuery),
			User:       subjPtr(userU),
		}
		assert.True(t, p.Matches(ownerO1, "jira", id.AccessKindQuery, userU, accessDate))
		assert.False(t, p.Matches(ownerO1, "wiki", id.AccessKindQuery, userU, accessDate))
		assert.False(t, p.Matches(ownerO1, "jira", id.AccessKindDirect, userU, accessDate))
		assert.False(t, p.Matches(ownerO1, "jira", id.AccessKindQuery, ownerO2, accessDate))
	})

	t.Run("validity bounds are inclusive", func(t *testing.T) {
		p := &Policy{
			ID:            id.NewPolicyID(),
			Owner:         ownerO1,
			ValidityStart: datePtr(id.NewDate(2024, time.January, 1)),
			ValidityEnd:   datePtr(id.NewDate(2024, time.December, 31)),
		}
		assert.True(t, p.Matches(ownerO1, "jira", id.AccessKindQuery, userU, id.NewDate(2024, time.January, 1)))
		assert.True(t, p.Matches(ownerO1, "jira", id.AccessKindQuery, userU, id.NewDate(2024, time.December, 31)))
		assert.False(t, p.Matches(ownerO1, "jira", id.AccessKindQuery, userU, id.NewDate(2023, time.December, 31)))
		assert.False(t, p.Matches(ownerO1, "jira", id.AccessKindQuery, userU, id.NewDate(2025, time.January, 1)))
	})

	t.Run("each bound is checked against its own wildcard", func(t *testing.T) {
		// An end-bounded policy with no start must still match arbitrarily
		// old accesses, and a start-bounded policy with no end must match
		// arbitrarily recent ones.
		endOnly := &Policy{
			ID:          id.NewPolicyID(),
			Owner:       ownerO1,
			ValidityEnd: datePtr(id.NewDate(2024, time.December, 31)),
		}
		assert.True(t, endOnly.Matches(ownerO1, "jira", id.AccessKindQuery, userU, id.NewDate(1999, time.January, 1)))
		assert.False(t, endOnly.Matches(ownerO1, "jira", id.AccessKindQuery, userU, id.NewDate(2025, time.January, 1)))

		startOnly := &Policy{
			ID:            id.NewPolicyID(),
			Owner:         ownerO1,
			ValidityStart: datePtr(id.NewDate(2024, time.January, 1)),
		}
		assert.True(t, startOnly.Matches(ownerO1, "jira", id.AccessKindQuery, userU, id.NewDate(2099, time.January, 1)))
		assert.False(t, startOnly.Matches(ownerO1, "jira", id.AccessKindQuery, userU, id.NewDate(2023, time.June, 1)))
	})
}

func TestApply(t *testing.T) {
	p, err := New(ownerO1, Fields{Tool: strPtr("jira")})
	require.NoError(t, err)

	// Omitted fields reset to wildcard.
	require.NoError(t, p.Apply(Fields{User: subjPtr(userU)}))
	assert.Nil(t, p.Tool)
	require.NotNil(t, p.User)
	assert.Equal(t, userU, *p.User)
	assert.Equal(t, ownerO1, p.Owner, "owner is immutable")

	err = p.Apply(Fields{
		ValidityStart: datePtr(id.NewDate(2024, time.December, 31)),
		ValidityEnd:   datePtr(id.NewDate(2024, time.January, 1)),
	})
	require.Error(t, err)
}
