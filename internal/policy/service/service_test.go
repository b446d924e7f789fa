package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overseer/internal/policy/models"
	policystore "overseer/internal/policy/store"
	toolservice "overseer/internal/tool/service"
	toolstore "overseer/internal/tool/store"
	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tools := toolservice.NewService(toolstore.NewInMemory())
	_, err := tools.Register(context.Background(), "jira")
	require.NoError(t, err)
	return NewService(policystore.NewInMemory(), tools)
}

func TestCreate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := id.SubjectID("alice@example.com")

	t.Run("creates wildcard policy", func(t *testing.T) {
		policy, err := svc.Create(ctx, owner, models.Fields{})
		require.NoError(t, err)
		assert.False(t, policy.ID.IsNil())
		assert.Equal(t, owner, policy.Owner)
		assert.Nil(t, policy.Tool)
	})

	t.Run("unknown tool is rejected before storage", func(t *testing.T) {
		tool := "unknown-tool"
		_, err := svc.Create(ctx, owner, models.Fields{Tool: &tool})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownTool))

		policies, err := svc.List(ctx, owner)
		require.NoError(t, err)
		for _, p := range policies {
			assert.Nil(t, p.Tool)
		}
	})

	t.Run("inverted validity window is rejected", func(t *testing.T) {
		start := id.NewDate(2024, time.December, 31)
		end := id.NewDate(2024, time.January, 1)
		_, err := svc.Create(ctx, owner, models.Fields{ValidityStart: &start, ValidityEnd: &end})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestOwnerScopedMutation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	alice := id.SubjectID("alice@example.com")
	bob := id.SubjectID("bob@example.com")

	policy, err := svc.Create(ctx, alice, models.Fields{})
	require.NoError(t, err)

	t.Run("foreign owner gets not found on get", func(t *testing.T) {
		_, err := svc.Get(ctx, bob, policy.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("foreign owner gets not found on update", func(t *testing.T) {
		_, err := svc.Update(ctx, bob, policy.ID, models.Fields{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("foreign owner gets not found on delete", func(t *testing.T) {
		err := svc.Delete(ctx, bob, policy.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		// Policy must still exist for its real owner.
		_, err = svc.Get(ctx, alice, policy.ID)
		require.NoError(t, err)
	})
}

func TestUpdateReplacesAllFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := id.SubjectID("alice@example.com")

	tool := "jira"
	policy, err := svc.Create(ctx, owner, models.Fields{Tool: &tool})
	require.NoError(t, err)

	user := id.SubjectID("u@example.com")
	updated, err := svc.Update(ctx, owner, policy.ID, models.Fields{User: &user})
	require.NoError(t, err)
	assert.Nil(t, updated.Tool, "omitted field resets to wildcard")
	require.NotNil(t, updated.User)
	assert.Equal(t, user, *updated.User)
}

func TestDeleteMakesPolicyInert(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	owner := id.SubjectID("alice@example.com")

	policy, err := svc.Create(ctx, owner, models.Fields{})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, owner, policy.ID))

	_, err = svc.Get(ctx, owner, policy.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	err = svc.Delete(ctx, owner, policy.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "second delete is not found")
}
