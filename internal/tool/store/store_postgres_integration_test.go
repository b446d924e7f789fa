//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overseer/internal/tool/models"
	"overseer/pkg/platform/sentinel"
	"overseer/pkg/testutil/containers"
)

func TestPostgresStore_Integration(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	s := NewPostgres(pg.DB)

	t.Run("default tools are seeded", func(t *testing.T) {
		exists, err := s.Exists(ctx, "jira")
		require.NoError(t, err)
		assert.True(t, exists)

		tools, err := s.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, tools, models.Tool{Name: "slack"})
	})

	t.Run("add and list", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, models.Tool{Name: "zoom"}))

		exists, err := s.Exists(ctx, "zoom")
		require.NoError(t, err)
		assert.True(t, exists)

		tools, err := s.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, tools, models.Tool{Name: "zoom"})
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		err := s.Add(ctx, models.Tool{Name: "jira"})
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("delete removes the tool", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, models.Tool{Name: "gitlab"}))
		require.NoError(t, s.Delete(ctx, "gitlab"))

		exists, err := s.Exists(ctx, "gitlab")
		require.NoError(t, err)
		assert.False(t, exists)

		assert.ErrorIs(t, s.Delete(ctx, "gitlab"), sentinel.ErrNotFound)
	})

	t.Run("referenced tool cannot be deleted", func(t *testing.T) {
		_, err := pg.DB.ExecContext(ctx, `
			INSERT INTO data_access_policies (id, owner_rid, tool)
			VALUES ($1, 'owner-1', 'git')
		`, uuid.New())
		require.NoError(t, err)

		assert.ErrorIs(t, s.Delete(ctx, "git"), sentinel.ErrReferenced)
	})
}
